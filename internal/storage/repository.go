package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"debts/internal/core"
)

const timestampLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	opts    Options
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations. Write transactions take the lock immediately
// and wait at most opts.LockTimeout for it.
func NewSQLiteRepository(dbPath string, opts Options) (*SQLiteRepository, error) {
	opts = opts.WithDefaults()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath, opts.LockTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		opts:    opts,
	}, nil
}

func dsn(path string, lockTimeout time.Duration) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate",
		path, lockTimeout.Milliseconds())
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) CreateDebt(ctx context.Context, d core.Debt) error {
	row, err := toDebtRow(d)
	if err != nil {
		return err
	}
	if err := r.queries.CreateDebt(ctx, row); err != nil {
		return classify("create debt", err)
	}

	slog.InfoContext(ctx, "Debt saved to SQLite",
		"debt_id", d.ID,
		"household_id", d.HouseholdID,
		"type", d.Type(),
		"principal_cents", d.PrincipalCents)
	return nil
}

func (r *SQLiteRepository) GetDebt(ctx context.Context, id uuid.UUID) (core.Debt, error) {
	return loadDebt(ctx, r.queries, id)
}

func loadDebt(ctx context.Context, q *Queries, id uuid.UUID) (core.Debt, error) {
	row, err := q.GetDebt(ctx, id.String())
	if err != nil {
		return core.Debt{}, classify("get debt", err)
	}
	return fromDebtRow(row)
}

func (r *SQLiteRepository) ListDebts(ctx context.Context, householdID string, f core.DebtFilter) ([]core.Debt, error) {
	p := listDebtsParams{
		HouseholdID: householdID,
		IsActive:    f.IsActive,
		Creditor:    f.Creditor,
		Search:      f.Search,
	}
	if f.Type != nil {
		t := string(*f.Type)
		p.Type = &t
	}

	rows, err := r.queries.ListDebts(ctx, p)
	if err != nil {
		return nil, classify("list debts", err)
	}

	debts := make([]core.Debt, 0, len(rows))
	for _, row := range rows {
		d, err := fromDebtRow(row)
		if err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, nil
}

func (r *SQLiteRepository) UpdateDebt(ctx context.Context, d core.Debt) error {
	row, err := toDebtRow(d)
	if err != nil {
		return err
	}
	n, err := r.queries.UpdateDebt(ctx, row)
	if err != nil {
		return classify("update debt", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Debt updated", "debt_id", d.ID, "is_active", d.IsActive)
	return nil
}

func (r *SQLiteRepository) DeleteDebt(ctx context.Context, id uuid.UUID) error {
	n, err := r.queries.DeleteDebt(ctx, id.String())
	if err != nil {
		return classify("delete debt", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Debt deleted with its payments", "debt_id", id)
	return nil
}

func (r *SQLiteRepository) ListPayments(ctx context.Context, debtID uuid.UUID) ([]core.Payment, error) {
	rows, err := r.queries.ListPayments(ctx, debtID.String())
	if err != nil {
		return nil, classify("list payments", err)
	}

	payments := make([]core.Payment, 0, len(rows))
	for _, row := range rows {
		p, err := fromPaymentRow(row)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func (r *SQLiteRepository) GetPayment(ctx context.Context, id uuid.UUID) (core.Payment, error) {
	row, err := r.queries.GetPayment(ctx, id.String())
	if err != nil {
		return core.Payment{}, classify("get payment", err)
	}
	return fromPaymentRow(row)
}

func (r *SQLiteRepository) SumActiveBalances(ctx context.Context, householdID string) ([]core.TypeTotal, error) {
	rows, err := r.queries.SumActiveBalances(ctx, householdID)
	if err != nil {
		return nil, classify("sum active balances", err)
	}

	totals := make([]core.TypeTotal, 0, len(rows))
	for _, row := range rows {
		totals = append(totals, core.TypeTotal{
			Type:         core.DebtType(row.Type),
			TotalBalance: core.Money{Cents: row.TotalBalance},
			Count:        int(row.Count),
		})
	}
	return totals, nil
}

// WithinTx runs fn in a BEGIN IMMEDIATE transaction bounded by opts.TxTimeout.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.TxTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}

	if err := fn(ctx, &sqliteTx{q: r.queries.WithTx(tx)}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

type sqliteTx struct {
	q *Queries
}

func (t *sqliteTx) GetDebt(ctx context.Context, id uuid.UUID) (core.Debt, error) {
	return loadDebt(ctx, t.q, id)
}

func (t *sqliteTx) HasPayment(ctx context.Context, debtID uuid.UUID, on core.Date, amountCents int64) (bool, error) {
	ok, err := t.q.HasPayment(ctx, debtID.String(), on.String(), amountCents)
	if err != nil {
		return false, classify("check duplicate payment", err)
	}
	return ok, nil
}

func (t *sqliteTx) InsertPayment(ctx context.Context, p core.Payment) error {
	if err := t.q.InsertPayment(ctx, toPaymentRow(p)); err != nil {
		return classify("insert payment", err)
	}
	return nil
}

func (t *sqliteTx) ApplyPrincipal(ctx context.Context, debtID uuid.UUID, principalCents int64, at time.Time) (int64, error) {
	balance, err := t.q.ApplyPrincipal(ctx, debtID.String(), principalCents, formatTimestamp(at))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInsufficientBalance
	}
	if err != nil {
		return 0, classify("apply principal", err)
	}
	return balance, nil
}

func (t *sqliteTx) MarkPaidOff(ctx context.Context, debtID uuid.UUID, at time.Time) error {
	ts := formatTimestamp(at)
	n, err := t.q.MarkPaidOff(ctx, debtID.String(), ts, ts)
	if err != nil {
		return classify("mark paid off", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// classify maps driver errors onto the package sentinels. Lock contention,
// deadlines and anything else the database reports become *core.StorageError.
func classify(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return &core.StorageError{Op: op, Err: err}
}

func toDebtRow(d core.Debt) (debtRow, error) {
	md := d.Metadata
	if md == nil {
		md = core.Metadata{}
	}
	mdJSON, err := json.Marshal(md)
	if err != nil {
		return debtRow{}, fmt.Errorf("encode metadata: %w", err)
	}

	row := debtRow{
		ID:                  d.ID.String(),
		HouseholdID:         d.HouseholdID,
		Type:                string(d.Type()),
		Name:                d.Name,
		Creditor:            d.Creditor,
		PrincipalCents:      d.PrincipalCents,
		CurrentBalanceCents: d.BalanceCents,
		Currency:            d.Currency,
		InterestRate:        nullDecimal(d.InterestRate()),
		MarginRate:          nullDecimal(d.MarginRate()),
		StartDate:           d.StartDate.String(),
		IsActive:            d.IsActive,
		Metadata:            string(mdJSON),
		CreatedBy:           d.CreatedBy,
		CreatedAt:           formatTimestamp(d.CreatedAt),
		UpdatedAt:           formatTimestamp(d.UpdatedAt),
	}
	if d.MaturityDate != nil {
		row.MaturityDate = sql.NullString{String: d.MaturityDate.String(), Valid: true}
	}
	return row, nil
}

func fromDebtRow(row debtRow) (core.Debt, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Debt{}, fmt.Errorf("parse debt id %q: %w", row.ID, err)
	}
	interestRate, err := parseNullDecimal(row.InterestRate)
	if err != nil {
		return core.Debt{}, fmt.Errorf("parse interest rate: %w", err)
	}
	marginRate, err := parseNullDecimal(row.MarginRate)
	if err != nil {
		return core.Debt{}, fmt.Errorf("parse margin rate: %w", err)
	}
	terms, err := core.NewTerms(core.DebtType(row.Type), interestRate, marginRate)
	if err != nil {
		return core.Debt{}, fmt.Errorf("debt %s: %w", row.ID, err)
	}
	start, err := core.ParseDate(row.StartDate)
	if err != nil {
		return core.Debt{}, err
	}

	d := core.Debt{
		ID:             id,
		HouseholdID:    row.HouseholdID,
		Name:           row.Name,
		Creditor:       row.Creditor,
		PrincipalCents: row.PrincipalCents,
		BalanceCents:   row.CurrentBalanceCents,
		Currency:       row.Currency,
		Terms:          terms,
		StartDate:      start,
		IsActive:       row.IsActive,
		CreatedBy:      row.CreatedBy,
		CreatedAt:      parseTimestamp(row.CreatedAt),
		UpdatedAt:      parseTimestamp(row.UpdatedAt),
	}
	if row.MaturityDate.Valid {
		m, err := core.ParseDate(row.MaturityDate.String)
		if err != nil {
			return core.Debt{}, err
		}
		d.MaturityDate = &m
	}
	if err := json.Unmarshal([]byte(row.Metadata), &d.Metadata); err != nil {
		return core.Debt{}, fmt.Errorf("decode metadata: %w", err)
	}
	if d.Metadata == nil {
		d.Metadata = core.Metadata{}
	}
	return d, nil
}

func toPaymentRow(p core.Payment) paymentRow {
	row := paymentRow{
		ID:             p.ID.String(),
		DebtID:         p.DebtID.String(),
		AmountCents:    p.AmountCents,
		PrincipalCents: p.PrincipalCents,
		InterestCents:  p.InterestCents,
		PaymentDate:    p.PaymentDate.String(),
		Currency:       p.Currency,
		CreatedAt:      formatTimestamp(p.CreatedAt),
	}
	if p.TransactionRef != "" {
		row.TransactionRef = sql.NullString{String: p.TransactionRef, Valid: true}
	}
	return row
}

func fromPaymentRow(row paymentRow) (core.Payment, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Payment{}, fmt.Errorf("parse payment id %q: %w", row.ID, err)
	}
	debtID, err := uuid.Parse(row.DebtID)
	if err != nil {
		return core.Payment{}, fmt.Errorf("parse debt id %q: %w", row.DebtID, err)
	}
	on, err := core.ParseDate(row.PaymentDate)
	if err != nil {
		return core.Payment{}, err
	}
	return core.Payment{
		ID:             id,
		DebtID:         debtID,
		AmountCents:    row.AmountCents,
		PrincipalCents: row.PrincipalCents,
		InterestCents:  row.InterestCents,
		PaymentDate:    on,
		Currency:       row.Currency,
		TransactionRef: row.TransactionRef.String,
		CreatedAt:      parseTimestamp(row.CreatedAt),
	}, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

package storage

import (
	"context"
	"database/sql"
	"strings"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// debtRow mirrors the debts table.
type debtRow struct {
	ID                  string
	HouseholdID         string
	Type                string
	Name                string
	Creditor            string
	PrincipalCents      int64
	CurrentBalanceCents int64
	Currency            string
	InterestRate        sql.NullString
	MarginRate          sql.NullString
	StartDate           string
	MaturityDate        sql.NullString
	IsActive            bool
	Metadata            string
	CreatedBy           string
	CreatedAt           string
	UpdatedAt           string
}

type paymentRow struct {
	ID             string
	DebtID         string
	AmountCents    int64
	PrincipalCents int64
	InterestCents  int64
	PaymentDate    string
	Currency       string
	TransactionRef sql.NullString
	CreatedAt      string
}

const debtColumns = `id, household_id, type, name, creditor, principal_cents, current_balance_cents,
	currency, interest_rate, margin_rate, start_date, maturity_date, is_active, metadata,
	created_by, created_at, updated_at`

const paymentColumns = `id, debt_id, amount_cents, principal_cents, interest_cents, payment_date,
	currency, transaction_ref, created_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDebt(s scanner) (debtRow, error) {
	var r debtRow
	err := s.Scan(
		&r.ID, &r.HouseholdID, &r.Type, &r.Name, &r.Creditor, &r.PrincipalCents, &r.CurrentBalanceCents,
		&r.Currency, &r.InterestRate, &r.MarginRate, &r.StartDate, &r.MaturityDate, &r.IsActive, &r.Metadata,
		&r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func scanPayment(s scanner) (paymentRow, error) {
	var r paymentRow
	err := s.Scan(
		&r.ID, &r.DebtID, &r.AmountCents, &r.PrincipalCents, &r.InterestCents, &r.PaymentDate,
		&r.Currency, &r.TransactionRef, &r.CreatedAt,
	)
	return r, err
}

const createDebt = `-- name: CreateDebt :exec
INSERT INTO debts (` + debtColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, json(?), ?, ?, ?)`

func (q *Queries) CreateDebt(ctx context.Context, r debtRow) error {
	_, err := q.db.ExecContext(ctx, createDebt,
		r.ID, r.HouseholdID, r.Type, r.Name, r.Creditor, r.PrincipalCents, r.CurrentBalanceCents,
		r.Currency, r.InterestRate, r.MarginRate, r.StartDate, r.MaturityDate, r.IsActive, r.Metadata,
		r.CreatedBy, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

const getDebt = `-- name: GetDebt :one
SELECT ` + debtColumns + ` FROM debts WHERE id = ?`

func (q *Queries) GetDebt(ctx context.Context, id string) (debtRow, error) {
	return scanDebt(q.db.QueryRowContext(ctx, getDebt, id))
}

type listDebtsParams struct {
	HouseholdID string
	Type        *string
	IsActive    *bool
	Creditor    string
	Search      string
}

// ListDebts builds its WHERE clause from the set filters.
func (q *Queries) ListDebts(ctx context.Context, p listDebtsParams) ([]debtRow, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + debtColumns + ` FROM debts WHERE household_id = ?`)
	args := []interface{}{p.HouseholdID}

	if p.Type != nil {
		sb.WriteString(` AND type = ?`)
		args = append(args, *p.Type)
	}
	if p.IsActive != nil {
		sb.WriteString(` AND is_active = ?`)
		args = append(args, *p.IsActive)
	}
	if p.Creditor != "" {
		sb.WriteString(` AND lower(creditor) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(p.Creditor))
	}
	if p.Search != "" {
		pattern := likePattern(p.Search)
		sb.WriteString(` AND (lower(name) LIKE ? ESCAPE '\' OR lower(creditor) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	sb.WriteString(` ORDER BY is_active DESC, current_balance_cents DESC, created_at ASC`)

	rows, err := q.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []debtRow
	for rows.Next() {
		r, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const updateDebt = `-- name: UpdateDebt :execrows
UPDATE debts SET
	name = ?,
	creditor = ?,
	interest_rate = ?,
	margin_rate = ?,
	start_date = ?,
	maturity_date = ?,
	is_active = ?,
	metadata = CASE
		WHEN json_extract(metadata, '$.paidOffDate') IS NULL THEN json(?)
		ELSE json_set(json(?), '$.paidOffDate', json_extract(metadata, '$.paidOffDate'))
	END,
	updated_at = ?
WHERE id = ?`

func (q *Queries) UpdateDebt(ctx context.Context, r debtRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateDebt,
		r.Name, r.Creditor, r.InterestRate, r.MarginRate, r.StartDate, r.MaturityDate, r.IsActive,
		r.Metadata, r.Metadata, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteDebt = `-- name: DeleteDebt :execrows
DELETE FROM debts WHERE id = ?`

func (q *Queries) DeleteDebt(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteDebt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listPayments = `-- name: ListPayments :many
SELECT ` + paymentColumns + ` FROM payments WHERE debt_id = ? ORDER BY payment_date ASC, created_at ASC`

func (q *Queries) ListPayments(ctx context.Context, debtID string) ([]paymentRow, error) {
	rows, err := q.db.QueryContext(ctx, listPayments, debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []paymentRow
	for rows.Next() {
		r, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const getPayment = `-- name: GetPayment :one
SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

func (q *Queries) GetPayment(ctx context.Context, id string) (paymentRow, error) {
	return scanPayment(q.db.QueryRowContext(ctx, getPayment, id))
}

const hasPayment = `-- name: HasPayment :one
SELECT EXISTS (
	SELECT 1 FROM payments WHERE debt_id = ? AND payment_date = ? AND amount_cents = ?
)`

func (q *Queries) HasPayment(ctx context.Context, debtID, paymentDate string, amountCents int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, hasPayment, debtID, paymentDate, amountCents).Scan(&exists)
	return exists, err
}

const insertPayment = `-- name: InsertPayment :exec
INSERT INTO payments (` + paymentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertPayment(ctx context.Context, r paymentRow) error {
	_, err := q.db.ExecContext(ctx, insertPayment,
		r.ID, r.DebtID, r.AmountCents, r.PrincipalCents, r.InterestCents, r.PaymentDate,
		r.Currency, r.TransactionRef, r.CreatedAt,
	)
	return err
}

// The WHERE guard makes the decrement conditional: a stale caller gets no row back.
const applyPrincipal = `-- name: ApplyPrincipal :one
UPDATE debts
SET current_balance_cents = MAX(current_balance_cents - ?, 0), updated_at = ?
WHERE id = ? AND current_balance_cents >= ?
RETURNING current_balance_cents`

func (q *Queries) ApplyPrincipal(ctx context.Context, debtID string, principalCents int64, updatedAt string) (int64, error) {
	var balance int64
	err := q.db.QueryRowContext(ctx, applyPrincipal, principalCents, updatedAt, debtID, principalCents).Scan(&balance)
	return balance, err
}

const markPaidOff = `-- name: MarkPaidOff :execrows
UPDATE debts
SET current_balance_cents = 0,
	metadata = json_set(COALESCE(metadata, '{}'), '$.paidOffDate', ?),
	updated_at = ?
WHERE id = ?`

func (q *Queries) MarkPaidOff(ctx context.Context, debtID, paidOffAt, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markPaidOff, paidOffAt, updatedAt, debtID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type typeTotalRow struct {
	Type         string
	TotalBalance int64
	Count        int64
}

const sumActiveBalances = `-- name: SumActiveBalances :many
SELECT type, COALESCE(SUM(current_balance_cents), 0), COUNT(*)
FROM debts
WHERE household_id = ? AND is_active = 1
GROUP BY type
ORDER BY type`

func (q *Queries) SumActiveBalances(ctx context.Context, householdID string) ([]typeTotalRow, error) {
	rows, err := q.db.QueryContext(ctx, sumActiveBalances, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []typeTotalRow
	for rows.Next() {
		var r typeTotalRow
		if err := rows.Scan(&r.Type, &r.TotalBalance, &r.Count); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// likePattern lowercases s and escapes LIKE wildcards for a substring match.
func likePattern(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

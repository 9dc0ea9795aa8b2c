package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"debts/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "debts.db"), Options{})
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleDebt(household string, terms core.Terms, principal int64) core.Debt {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	maturity := core.NewDate(2026, 1, 1)
	return core.Debt{
		ID:             uuid.New(),
		HouseholdID:    household,
		Name:           "Loan",
		Creditor:       "Bank Mandiri",
		PrincipalCents: principal,
		BalanceCents:   principal,
		Currency:       "IDR",
		Terms:          terms,
		StartDate:      core.NewDate(2024, 1, 1),
		MaturityDate:   &maturity,
		IsActive:       true,
		Metadata:       core.Metadata{"note": json.RawMessage(`"first"`)},
		CreatedBy:      "user-1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestSQLiteDebtRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	rate := decimal.RequireFromString("0.0005")
	d := sampleDebt("hh-1", core.ConventionalTerms{InterestRate: rate}, 500000)
	if err := repo.CreateDebt(ctx, d); err != nil {
		t.Fatalf("CreateDebt: %v", err)
	}

	got, err := repo.GetDebt(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDebt: %v", err)
	}
	if got.PrincipalCents != 500000 || got.BalanceCents != 500000 {
		t.Fatalf("unexpected amounts %+v", got)
	}
	if got.InterestRate() == nil || !got.InterestRate().Equal(rate) {
		t.Fatalf("rate not preserved: %v", got.InterestRate())
	}
	if got.MarginRate() != nil {
		t.Fatalf("margin rate should be nil")
	}
	if got.MaturityDate == nil || !got.MaturityDate.Same(*d.MaturityDate) {
		t.Fatalf("maturity not preserved: %v", got.MaturityDate)
	}
	if !got.CreatedAt.Equal(d.CreatedAt) || got.CreatedBy != "user-1" {
		t.Fatalf("audit fields not preserved: %+v", got)
	}
	if string(got.Metadata["note"]) != `"first"` {
		t.Fatalf("metadata not preserved: %v", got.Metadata)
	}

	if _, err := repo.GetDebt(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteCheckConstraints(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	d := sampleDebt("hh-1", core.PersonalTerms{}, 1000)
	d.BalanceCents = 2000
	err := repo.CreateDebt(ctx, d)
	if core.KindOf(err) != core.KindStorage {
		t.Fatalf("balance above principal must violate a CHECK, got %v", err)
	}
}

func TestSQLiteListDebtsFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	small := sampleDebt("hh-1", core.PersonalTerms{}, 1000)
	small.Name = "Loan from Sister"
	small.Creditor = "Family"
	big := sampleDebt("hh-1", core.IslamicTerms{MarginRate: decimal.RequireFromString("0.06")}, 900000)
	big.Name = "House 100% financing"
	inactive := sampleDebt("hh-1", core.PersonalTerms{}, 5000000)
	inactive.IsActive = false
	other := sampleDebt("hh-2", core.PersonalTerms{}, 1000)

	for _, d := range []core.Debt{small, big, inactive, other} {
		if err := repo.CreateDebt(ctx, d); err != nil {
			t.Fatalf("CreateDebt: %v", err)
		}
	}

	all, err := repo.ListDebts(ctx, "hh-1", core.DebtFilter{})
	if err != nil {
		t.Fatalf("ListDebts: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 debts, got %d", len(all))
	}
	if all[0].ID != big.ID || all[1].ID != small.ID || all[2].ID != inactive.ID {
		t.Fatalf("unexpected order: %s %s %s", all[0].Name, all[1].Name, all[2].Name)
	}

	personal := core.DebtPersonal
	active := true
	cases := []struct {
		name string
		f    core.DebtFilter
		want int
	}{
		{"type", core.DebtFilter{Type: &personal}, 2},
		{"active", core.DebtFilter{IsActive: &active}, 2},
		{"creditor", core.DebtFilter{Creditor: "FAMILY"}, 1},
		{"search name", core.DebtFilter{Search: "sister"}, 1},
		{"search creditor", core.DebtFilter{Search: "mandiri"}, 2},
		{"search escapes wildcard", core.DebtFilter{Search: "100%"}, 1},
		{"search underscore literal", core.DebtFilter{Search: "_"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.ListDebts(ctx, "hh-1", tc.f)
			if err != nil {
				t.Fatalf("ListDebts: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("got %d debts, want %d", len(got), tc.want)
			}
		})
	}
}

func TestSQLiteSumActiveBalances(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	a := sampleDebt("hh-1", core.PersonalTerms{}, 1000)
	b := sampleDebt("hh-1", core.PersonalTerms{}, 2500)
	c := sampleDebt("hh-1", core.IslamicTerms{MarginRate: decimal.RequireFromString("0.05")}, 7000)
	d := sampleDebt("hh-1", core.PersonalTerms{}, 9999)
	d.IsActive = false
	for _, debt := range []core.Debt{a, b, c, d} {
		if err := repo.CreateDebt(ctx, debt); err != nil {
			t.Fatalf("CreateDebt: %v", err)
		}
	}

	totals, err := repo.SumActiveBalances(ctx, "hh-1")
	if err != nil {
		t.Fatalf("SumActiveBalances: %v", err)
	}
	byType := map[core.DebtType]core.TypeTotal{}
	for _, tt := range totals {
		byType[tt.Type] = tt
	}
	if got := byType[core.DebtPersonal]; got.TotalBalance.Cents != 3500 || got.Count != 2 {
		t.Fatalf("personal total %+v", got)
	}
	if got := byType[core.DebtIslamic]; got.TotalBalance.Cents != 7000 || got.Count != 1 {
		t.Fatalf("islamic total %+v", got)
	}

	empty, err := repo.SumActiveBalances(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty household: %v, %v", empty, err)
	}
}

func TestSQLiteUpdatePreservesBalanceAndPayoff(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	d := sampleDebt("hh-1", core.PersonalTerms{}, 1000)
	if err := repo.CreateDebt(ctx, d); err != nil {
		t.Fatalf("CreateDebt: %v", err)
	}

	paidAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.ApplyPrincipal(ctx, d.ID, 1000, paidAt); err != nil {
			return err
		}
		return tx.MarkPaidOff(ctx, d.ID, paidAt)
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}

	// A stale copy still carries the original balance and no payoff stamp.
	stale := d
	stale.Name = "Renamed"
	stale.BalanceCents = 1000
	stale.Metadata = core.Metadata{"note": json.RawMessage(`"second"`)}
	if err := repo.UpdateDebt(ctx, stale); err != nil {
		t.Fatalf("UpdateDebt: %v", err)
	}

	got, err := repo.GetDebt(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDebt: %v", err)
	}
	if got.Name != "Renamed" || got.BalanceCents != 0 {
		t.Fatalf("unexpected debt after update: %+v", got)
	}
	at, ok := got.Metadata.PaidOffDate()
	if !ok || !at.Equal(paidAt) {
		t.Fatalf("paidOffDate lost: %v %v", at, ok)
	}
	if string(got.Metadata["note"]) != `"second"` {
		t.Fatalf("metadata not updated: %v", got.Metadata)
	}

	if err := repo.UpdateDebt(ctx, sampleDebt("hh-1", core.PersonalTerms{}, 1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func insertTestPayment(t *testing.T, repo *SQLiteRepository, debtID uuid.UUID, on core.Date, principal int64) core.Payment {
	t.Helper()
	p := core.Payment{
		ID:             uuid.New(),
		DebtID:         debtID,
		AmountCents:    principal,
		PrincipalCents: principal,
		PaymentDate:    on,
		Currency:       "IDR",
		CreatedAt:      time.Now().UTC(),
	}
	err := repo.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		_, err := tx.ApplyPrincipal(ctx, debtID, principal, p.CreatedAt)
		return err
	})
	if err != nil {
		t.Fatalf("insert payment: %v", err)
	}
	return p
}

func TestSQLitePaymentsAndCascade(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	d := sampleDebt("hh-1", core.PersonalTerms{}, 1000)
	if err := repo.CreateDebt(ctx, d); err != nil {
		t.Fatalf("CreateDebt: %v", err)
	}
	second := insertTestPayment(t, repo, d.ID, core.NewDate(2024, 3, 1), 200)
	first := insertTestPayment(t, repo, d.ID, core.NewDate(2024, 2, 1), 300)

	payments, err := repo.ListPayments(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	if len(payments) != 2 || payments[0].ID != first.ID || payments[1].ID != second.ID {
		t.Fatalf("payments not in date order: %+v", payments)
	}
	if _, err := repo.GetPayment(ctx, first.ID); err != nil {
		t.Fatalf("GetPayment: %v", err)
	}

	got, _ := repo.GetDebt(ctx, d.ID)
	if got.BalanceCents != 500 {
		t.Fatalf("balance = %d, want 500", got.BalanceCents)
	}

	if err := repo.DeleteDebt(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDebt: %v", err)
	}
	if _, err := repo.GetPayment(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("payments should cascade, got %v", err)
	}
	if err := repo.DeleteDebt(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteTxRollsBackAndGuardsBalance(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	d := sampleDebt("hh-1", core.PersonalTerms{}, 1000)
	if err := repo.CreateDebt(ctx, d); err != nil {
		t.Fatalf("CreateDebt: %v", err)
	}

	p := core.Payment{
		ID: uuid.New(), DebtID: d.ID, AmountCents: 1500, PrincipalCents: 1500,
		PaymentDate: core.NewDate(2024, 2, 1), Currency: "IDR", CreatedAt: time.Now(),
	}
	err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		_, err := tx.ApplyPrincipal(ctx, d.ID, 1500, time.Now())
		return err
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	payments, _ := repo.ListPayments(ctx, d.ID)
	if len(payments) != 0 {
		t.Fatalf("payment must be rolled back, found %d", len(payments))
	}
	got, _ := repo.GetDebt(ctx, d.ID)
	if got.BalanceCents != 1000 {
		t.Fatalf("balance changed to %d", got.BalanceCents)
	}
}

func TestSQLiteDuplicatePaymentIsRejected(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	d := sampleDebt("hh-1", core.PersonalTerms{}, 1000)
	if err := repo.CreateDebt(ctx, d); err != nil {
		t.Fatalf("CreateDebt: %v", err)
	}
	on := core.NewDate(2024, 2, 1)
	insertTestPayment(t, repo, d.ID, on, 100)

	err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		exists, err := tx.HasPayment(ctx, d.ID, on, 100)
		if err != nil {
			return err
		}
		if !exists {
			t.Errorf("HasPayment should see the first payment")
		}
		return tx.InsertPayment(ctx, core.Payment{
			ID: uuid.New(), DebtID: d.ID, AmountCents: 100, PrincipalCents: 100,
			PaymentDate: on, Currency: "IDR", CreatedAt: time.Now(),
		})
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestSQLiteTxTimeoutIsRetryable(t *testing.T) {
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "debts.db"), Options{TxTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	d := sampleDebt("hh-1", core.PersonalTerms{}, 1000)
	if err := repo.CreateDebt(context.Background(), d); err != nil {
		t.Fatalf("CreateDebt: %v", err)
	}

	err = repo.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		<-ctx.Done()
		_, err := tx.GetDebt(ctx, d.ID)
		return err
	})
	if !core.IsRetryable(err) {
		t.Fatalf("expected retryable storage error, got %v", err)
	}
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"debts/internal/core"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate record")
	// ErrInsufficientBalance is returned by Tx.ApplyPrincipal when the
	// stored balance is lower than the requested decrement.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Options bounds how long a transaction may wait for the write lock and how
// long it may run in total. Exceeding either yields a *core.StorageError.
type Options struct {
	LockTimeout time.Duration
	TxTimeout   time.Duration
}

func DefaultOptions() Options {
	return Options{LockTimeout: 5 * time.Second, TxTimeout: 10 * time.Second}
}

// WithDefaults fills unset bounds with DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.LockTimeout <= 0 {
		o.LockTimeout = d.LockTimeout
	}
	if o.TxTimeout <= 0 {
		o.TxTimeout = d.TxTimeout
	}
	return o
}

// Repository is the durable record store for debts and payments.
type Repository interface {
	CreateDebt(ctx context.Context, d core.Debt) error
	GetDebt(ctx context.Context, id uuid.UUID) (core.Debt, error)
	// ListDebts returns a household's debts, active first, then by
	// descending current balance.
	ListDebts(ctx context.Context, householdID string, f core.DebtFilter) ([]core.Debt, error)
	// UpdateDebt writes the mutable fields of d. Balance, principal, type
	// and currency are never touched, and a stored payoff date survives.
	UpdateDebt(ctx context.Context, d core.Debt) error
	// DeleteDebt removes a debt and all of its payments.
	DeleteDebt(ctx context.Context, id uuid.UUID) error
	ListPayments(ctx context.Context, debtID uuid.UUID) ([]core.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (core.Payment, error)
	// SumActiveBalances groups the active debts of a household by type.
	SumActiveBalances(ctx context.Context, householdID string) ([]core.TypeTotal, error)
	// WithinTx runs fn atomically. Any error from fn rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Tx is the set of operations available inside WithinTx.
type Tx interface {
	GetDebt(ctx context.Context, id uuid.UUID) (core.Debt, error)
	HasPayment(ctx context.Context, debtID uuid.UUID, on core.Date, amountCents int64) (bool, error)
	InsertPayment(ctx context.Context, p core.Payment) error
	// ApplyPrincipal decrements the balance only if it covers principalCents,
	// clamping at zero, and returns the new balance.
	ApplyPrincipal(ctx context.Context, debtID uuid.UUID, principalCents int64, at time.Time) (int64, error)
	// MarkPaidOff stamps the reserved paidOffDate metadata key.
	MarkPaidOff(ctx context.Context, debtID uuid.UUID, at time.Time) error
}

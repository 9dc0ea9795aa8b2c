package sheets

import (
	"context"

	"github.com/google/uuid"

	"debts/internal/core"
	"debts/internal/schedule"
)

// LedgerRow is one committed payment as exported to the household ledger.
type LedgerRow struct {
	PaymentID      uuid.UUID
	DebtID         uuid.UUID
	DebtName       string
	Creditor       string
	PaymentDate    core.Date
	Amount         core.Money
	Principal      core.Money
	Interest       core.Money
	BalanceAfter   core.Money
	Currency       string
	TransactionRef string
}

// Ports for outbound adapters.
type (
	LedgerWriter interface {
		AppendPayment(ctx context.Context, row LedgerRow) (rowRef string, err error)
	}

	// LedgerReader lists the exported payments of one calendar year.
	LedgerReader interface {
		ListLedger(ctx context.Context, year int) ([]LedgerRow, error)
	}

	// ScheduleWriter replaces the exported schedule of a debt.
	ScheduleWriter interface {
		WriteSchedule(ctx context.Context, debt core.Debt, s schedule.Schedule) (sheetName string, err error)
	}

	Exporter interface {
		LedgerWriter
		LedgerReader
		ScheduleWriter
	}
)

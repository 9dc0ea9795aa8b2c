package schedule

import (
	"github.com/shopspring/decimal"

	"debts/internal/core"
)

// TotalMargin is the fixed Murabahah margin agreed at origination:
// original principal times the margin rate, in cents.
func TotalMargin(principalCents int64, marginRate decimal.Decimal) int64 {
	return decimal.NewFromInt(principalCents).Mul(marginRate).Round(0).IntPart()
}

// projectIslamic spreads the outstanding principal and the unpaid part of the
// fixed margin over the remaining installments. Installments and their margin
// components each differ by at most one cent.
func projectIslamic(debt core.Debt, history []core.Payment, terms core.IslamicTerms, today core.Date) projection {
	dates := dueDates(debt, history, today)
	if len(dates) == 0 {
		return projection{}
	}

	remainingMargin := TotalMargin(debt.PrincipalCents, terms.MarginRate) - sumInterest(history)
	if remainingMargin < 0 {
		remainingMargin = 0
	}

	n := len(dates)
	installments := splitEven(debt.BalanceCents+remainingMargin, n)
	margins := splitEven(remainingMargin, n)

	rows := make([]Row, 0, n)
	balance := debt.BalanceCents
	for k, due := range dates {
		principal := installments[k] - margins[k]
		balance -= principal
		rows = append(rows, Row{
			DueDate:          due,
			Payment:          core.Money{Cents: installments[k]},
			Principal:        core.Money{Cents: principal},
			Interest:         core.Money{Cents: margins[k]},
			RemainingBalance: core.Money{Cents: balance},
		})
	}

	m := core.Money{Cents: installments[0]}
	return projection{rows: rows, monthly: &m}
}

package schedule

import (
	"math"

	"debts/internal/core"
)

// projectConventional amortizes the current balance as a declining-balance
// annuity over the remaining monthly due dates.
func projectConventional(debt core.Debt, history []core.Payment, terms core.ConventionalTerms, today core.Date) projection {
	dates := dueDates(debt, history, today)
	if len(dates) == 0 {
		return projection{}
	}

	i := terms.InterestRate.InexactFloat64() / 12
	n := len(dates)
	monthly := annuityPayment(debt.BalanceCents, i, n)

	rows := make([]Row, 0, n)
	balance := debt.BalanceCents
	for k, due := range dates {
		interest := roundCents(float64(balance) * i)
		principal := monthly - interest
		if principal < 0 {
			principal = 0
		}
		// The last row clears whatever rounding left behind.
		if k == n-1 || principal > balance {
			principal = balance
		}
		balance -= principal
		rows = append(rows, Row{
			DueDate:          due,
			Payment:          core.Money{Cents: principal + interest},
			Principal:        core.Money{Cents: principal},
			Interest:         core.Money{Cents: interest},
			RemainingBalance: core.Money{Cents: balance},
		})
	}

	m := core.Money{Cents: monthly}
	return projection{rows: rows, monthly: &m}
}

// annuityPayment is P·i/(1−(1+i)^−n) in cents, or P/n without interest.
func annuityPayment(balanceCents int64, i float64, n int) int64 {
	p := float64(balanceCents)
	if i == 0 {
		return roundCents(p / float64(n))
	}
	return roundCents(p * i / (1 - math.Pow(1+i, -float64(n))))
}

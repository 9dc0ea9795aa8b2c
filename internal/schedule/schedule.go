// Package schedule derives amortization schedules from a debt's current
// state and its payment history. Everything here is pure: the same inputs
// always give the same schedule.
package schedule

import (
	"sort"

	"github.com/google/uuid"

	"debts/internal/core"
)

type (
	Row struct {
		PaymentNumber    int        `json:"paymentNumber"`
		DueDate          core.Date  `json:"dueDate"`
		Payment          core.Money `json:"paymentAmount"`
		Principal        core.Money `json:"principalAmount"`
		Interest         core.Money `json:"interestAmount"` // margin for Islamic financing
		RemainingBalance core.Money `json:"remainingBalance"`
		IsPaid           bool       `json:"isPaid"`
		IsOverdue        bool       `json:"isOverdue"`
	}

	Summary struct {
		TotalPrincipal    core.Money  `json:"totalPrincipal"`
		TotalInterest     core.Money  `json:"totalInterest"`
		TotalAmount       core.Money  `json:"totalAmount"`
		PayoffDate        *core.Date  `json:"payoffDate"`
		NumberOfPayments  int         `json:"numberOfPayments"`
		RemainingPayments int         `json:"remainingPayments"`
		MonthlyPayment    *core.Money `json:"monthlyPayment,omitempty"`
	}

	Schedule struct {
		DebtID   uuid.UUID     `json:"debtId"`
		Type     core.DebtType `json:"type"`
		Currency string        `json:"currency"`
		Rows     []Row         `json:"schedule"`
		Summary  Summary       `json:"summary"`
	}
)

// projection is the forward-looking part of a schedule.
type projection struct {
	rows    []Row
	monthly *core.Money
}

// Calculate builds the schedule of debt as of today. Historical payments come
// first as paid rows; the projection depends on the debt's terms.
func Calculate(debt core.Debt, payments []core.Payment, today core.Date) (Schedule, error) {
	history := chronological(payments)

	proj, err := core.MatchTerms(debt.Terms,
		func(core.PersonalTerms) (projection, error) {
			// Personal debts have no cadence to project.
			return projection{}, nil
		},
		func(t core.ConventionalTerms) (projection, error) {
			return projectConventional(debt, history, t, today), nil
		},
		func(t core.IslamicTerms) (projection, error) {
			return projectIslamic(debt, history, t, today), nil
		},
	)
	if err != nil {
		return Schedule{}, &core.CalculationError{DebtType: debt.Type(), Err: err}
	}

	rows := historyRows(debt.PrincipalCents, history)
	for _, r := range proj.rows {
		r.PaymentNumber = len(rows) + 1
		r.IsOverdue = r.DueDate.IsBefore(today)
		rows = append(rows, r)
	}

	return Schedule{
		DebtID:   debt.ID,
		Type:     debt.Type(),
		Currency: debt.Currency,
		Rows:     rows,
		Summary:  summarize(rows, proj.monthly),
	}, nil
}

// NextDue returns the first unpaid row, if any.
func (s Schedule) NextDue() (Row, bool) {
	for _, r := range s.Rows {
		if !r.IsPaid {
			return r, true
		}
	}
	return Row{}, false
}

// historyRows turns recorded payments into paid rows with a running balance
// starting from the original principal.
func historyRows(principalCents int64, history []core.Payment) []Row {
	rows := make([]Row, 0, len(history))
	balance := principalCents
	for i, p := range history {
		balance -= p.PrincipalCents
		if balance < 0 {
			balance = 0
		}
		rows = append(rows, Row{
			PaymentNumber:    i + 1,
			DueDate:          p.PaymentDate,
			Payment:          core.Money{Cents: p.AmountCents},
			Principal:        core.Money{Cents: p.PrincipalCents},
			Interest:         core.Money{Cents: p.InterestCents},
			RemainingBalance: core.Money{Cents: balance},
			IsPaid:           true,
		})
	}
	return rows
}

func summarize(rows []Row, monthly *core.Money) Summary {
	var s Summary
	for _, r := range rows {
		s.TotalPrincipal.Cents += r.Principal.Cents
		s.TotalInterest.Cents += r.Interest.Cents
		if !r.IsPaid {
			s.RemainingPayments++
		}
	}
	s.TotalAmount.Cents = s.TotalPrincipal.Cents + s.TotalInterest.Cents
	s.NumberOfPayments = len(rows)
	s.MonthlyPayment = monthly

	// A payoff date exists only once the schedule runs the balance to zero.
	if n := len(rows); n > 0 && rows[n-1].RemainingBalance.Cents == 0 {
		d := rows[n-1].DueDate
		s.PayoffDate = &d
	}
	return s
}

// chronological returns a sorted copy of payments, oldest first.
func chronological(payments []core.Payment) []core.Payment {
	out := append([]core.Payment(nil), payments...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.PaymentDate.Same(b.PaymentDate) {
			return a.PaymentDate.IsBefore(b.PaymentDate)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

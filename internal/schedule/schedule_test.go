package schedule

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"debts/internal/core"
)

func date(y, m, d int) core.Date { return core.NewDate(y, m, d) }

func ptr(d core.Date) *core.Date { return &d }

func payment(debtID uuid.UUID, on core.Date, principal, interest int64) core.Payment {
	return core.Payment{
		ID:             uuid.New(),
		DebtID:         debtID,
		AmountCents:    principal + interest,
		PrincipalCents: principal,
		InterestCents:  interest,
		PaymentDate:    on,
	}
}

func TestPersonalSchedule(t *testing.T) {
	debt := core.Debt{
		ID:             uuid.New(),
		PrincipalCents: 100000,
		BalanceCents:   70000,
		Currency:       "IDR",
		Terms:          core.PersonalTerms{},
		StartDate:      date(2024, 1, 1),
	}
	payments := []core.Payment{payment(debt.ID, date(2024, 2, 1), 30000, 0)}

	s, err := Calculate(debt, payments, date(2024, 3, 1))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(s.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(s.Rows))
	}
	row := s.Rows[0]
	if !row.IsPaid || row.Interest.Cents != 0 || row.RemainingBalance.Cents != 70000 {
		t.Fatalf("unexpected row %+v", row)
	}
	if s.Summary.TotalInterest.Cents != 0 {
		t.Fatalf("TotalInterest = %d, want 0", s.Summary.TotalInterest.Cents)
	}
	if s.Summary.MonthlyPayment != nil {
		t.Fatalf("personal debts have no monthly payment")
	}
	if s.Summary.PayoffDate != nil {
		t.Fatalf("balance remains, payoff date must be nil")
	}
	if _, ok := s.NextDue(); ok {
		t.Fatalf("personal schedules have nothing due")
	}
}

func TestPersonalScheduleOrdersHistory(t *testing.T) {
	debt := core.Debt{ID: uuid.New(), PrincipalCents: 1000, Terms: core.PersonalTerms{}, StartDate: date(2024, 1, 1)}
	payments := []core.Payment{
		payment(debt.ID, date(2024, 3, 1), 300, 0),
		payment(debt.ID, date(2024, 2, 1), 700, 0),
	}
	s, err := Calculate(debt, payments, date(2024, 4, 1))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !s.Rows[0].DueDate.Same(date(2024, 2, 1)) || s.Rows[0].RemainingBalance.Cents != 300 {
		t.Fatalf("rows not chronological: %+v", s.Rows)
	}
	if s.Rows[1].RemainingBalance.Cents != 0 || s.Rows[1].PaymentNumber != 2 {
		t.Fatalf("unexpected last row %+v", s.Rows[1])
	}
	if s.Summary.PayoffDate == nil || !s.Summary.PayoffDate.Same(date(2024, 3, 1)) {
		t.Fatalf("payoff date should be the final payment date, got %v", s.Summary.PayoffDate)
	}
	if !payments[0].PaymentDate.Same(date(2024, 3, 1)) {
		t.Fatalf("input payments must not be reordered")
	}
}

func conventionalDebt() core.Debt {
	return core.Debt{
		ID:             uuid.New(),
		PrincipalCents: 500000,
		BalanceCents:   500000,
		Currency:       "USD",
		Terms:          core.ConventionalTerms{InterestRate: decimal.RequireFromString("0.18")},
		StartDate:      date(2024, 1, 1),
		MaturityDate:   ptr(date(2026, 1, 1)),
		IsActive:       true,
	}
}

func TestConventionalSchedule(t *testing.T) {
	debt := conventionalDebt()
	s, err := Calculate(debt, nil, date(2024, 1, 1))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(s.Rows) != 24 {
		t.Fatalf("expected 24 rows, got %d", len(s.Rows))
	}
	if s.Summary.MonthlyPayment == nil || s.Summary.MonthlyPayment.Cents <= 0 {
		t.Fatalf("monthly payment must be positive, got %v", s.Summary.MonthlyPayment)
	}
	// 5000 at 1.5% monthly over 24 months.
	if got := s.Summary.MonthlyPayment.Cents; got != 24962 {
		t.Fatalf("monthly payment = %d, want 24962", got)
	}
	first, last := s.Rows[0], s.Rows[len(s.Rows)-1]
	if first.Interest.Cents <= last.Interest.Cents {
		t.Fatalf("first interest %d should exceed last %d", first.Interest.Cents, last.Interest.Cents)
	}
	if first.Interest.Cents != 7500 {
		t.Fatalf("first interest = %d, want 7500", first.Interest.Cents)
	}
	if !first.DueDate.Same(date(2024, 2, 1)) || !last.DueDate.Same(date(2026, 1, 1)) {
		t.Fatalf("unexpected due dates %s..%s", first.DueDate, last.DueDate)
	}
	if last.RemainingBalance.Cents != 0 {
		t.Fatalf("final balance = %d, want 0", last.RemainingBalance.Cents)
	}
	if s.Summary.TotalPrincipal.Cents != debt.BalanceCents {
		t.Fatalf("principal rows sum to %d, want %d", s.Summary.TotalPrincipal.Cents, debt.BalanceCents)
	}
	if s.Summary.TotalAmount.Cents != s.Summary.TotalPrincipal.Cents+s.Summary.TotalInterest.Cents {
		t.Fatalf("total amount mismatch")
	}
	if s.Summary.PayoffDate == nil || !s.Summary.PayoffDate.Same(date(2026, 1, 1)) {
		t.Fatalf("payoff date should be maturity, got %v", s.Summary.PayoffDate)
	}
	for _, r := range s.Rows {
		if r.IsPaid || r.IsOverdue {
			t.Fatalf("fresh schedule row %d should be unpaid and not overdue", r.PaymentNumber)
		}
	}
}

func TestConventionalScheduleWithHistory(t *testing.T) {
	debt := conventionalDebt()
	p := payment(debt.ID, date(2024, 2, 1), 17462, 7500)
	debt.BalanceCents -= p.PrincipalCents

	s, err := Calculate(debt, []core.Payment{p}, date(2024, 5, 15))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(s.Rows) != 24 {
		t.Fatalf("expected 1 paid + 23 future rows, got %d", len(s.Rows))
	}
	if !s.Rows[0].IsPaid || s.Rows[0].PaymentNumber != 1 {
		t.Fatalf("first row should be the recorded payment: %+v", s.Rows[0])
	}
	next, ok := s.NextDue()
	if !ok || next.PaymentNumber != 2 || !next.DueDate.Same(date(2024, 3, 1)) {
		t.Fatalf("unexpected next due %+v", next)
	}
	if !next.IsOverdue {
		t.Fatalf("a March row is overdue in May")
	}
	if s.Rows[4].IsOverdue {
		t.Fatalf("the June row is not overdue yet")
	}
	if s.Summary.RemainingPayments != 23 || s.Summary.NumberOfPayments != 24 {
		t.Fatalf("unexpected counts %+v", s.Summary)
	}
	if s.Summary.TotalPrincipal.Cents != debt.PrincipalCents {
		t.Fatalf("past and future principal should add up to the original principal, got %d", s.Summary.TotalPrincipal.Cents)
	}
}

func TestConventionalScheduleWithoutMaturityShowsHistoryOnly(t *testing.T) {
	debt := conventionalDebt()
	debt.MaturityDate = nil
	s, err := Calculate(debt, nil, date(2024, 6, 1))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(s.Rows) != 0 || s.Summary.MonthlyPayment != nil {
		t.Fatalf("expected empty projection, got %+v", s)
	}
}

func TestConventionalPastMaturityBalloon(t *testing.T) {
	debt := conventionalDebt()
	p := payment(debt.ID, date(2026, 2, 1), 100000, 0)
	debt.BalanceCents -= p.PrincipalCents
	today := date(2026, 3, 1)

	s, err := Calculate(debt, []core.Payment{p}, today)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(s.Rows) != 2 {
		t.Fatalf("expected history + balloon, got %d rows", len(s.Rows))
	}
	balloon := s.Rows[1]
	if !balloon.DueDate.Same(today) || balloon.Principal.Cents != debt.BalanceCents || balloon.RemainingBalance.Cents != 0 {
		t.Fatalf("unexpected balloon row %+v", balloon)
	}
}

func TestPaidOffDebtHasNoFutureRows(t *testing.T) {
	debt := conventionalDebt()
	p := payment(debt.ID, date(2024, 2, 1), debt.PrincipalCents, 7500)
	debt.BalanceCents = 0
	s, err := Calculate(debt, []core.Payment{p}, date(2024, 3, 1))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(s.Rows) != 1 || s.Summary.RemainingPayments != 0 {
		t.Fatalf("expected only the paid row, got %+v", s.Rows)
	}
}

func islamicDebt() core.Debt {
	return core.Debt{
		ID:             uuid.New(),
		PrincipalCents: 10000000,
		BalanceCents:   10000000,
		Currency:       "MYR",
		Terms:          core.IslamicTerms{MarginRate: decimal.RequireFromString("0.06")},
		StartDate:      date(2024, 1, 1),
		MaturityDate:   ptr(date(2034, 1, 1)),
		IsActive:       true,
	}
}

func TestIslamicSchedule(t *testing.T) {
	debt := islamicDebt()
	s, err := Calculate(debt, nil, date(2024, 1, 1))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(s.Rows) != 120 {
		t.Fatalf("expected 120 installments, got %d", len(s.Rows))
	}
	if got := s.Summary.TotalInterest.Cents; got < 600000-100 || got > 600000+100 {
		t.Fatalf("total margin = %d, want about 600000", got)
	}
	assertEqualInstallments(t, s.Rows)
	if last := s.Rows[len(s.Rows)-1]; last.RemainingBalance.Cents != 0 {
		t.Fatalf("final balance = %d, want 0", last.RemainingBalance.Cents)
	}
	if s.Summary.TotalPrincipal.Cents != debt.BalanceCents {
		t.Fatalf("principal components sum to %d, want %d", s.Summary.TotalPrincipal.Cents, debt.BalanceCents)
	}
}

func TestIslamicMarginIsFixed(t *testing.T) {
	debt := islamicDebt()
	first := payment(debt.ID, date(2024, 2, 1), 83334, 5000)
	debt.BalanceCents -= first.PrincipalCents

	s, err := Calculate(debt, []core.Payment{first}, date(2024, 2, 15))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if s.Summary.TotalInterest.Cents != 600000 {
		t.Fatalf("paid plus projected margin = %d, want the fixed 600000", s.Summary.TotalInterest.Cents)
	}
	future := s.Rows[1:]
	if len(future) != 119 {
		t.Fatalf("expected 119 remaining installments, got %d", len(future))
	}
	assertEqualInstallments(t, future)
}

func TestIslamicMarginOverpaidIsNotNegative(t *testing.T) {
	debt := islamicDebt()
	p := payment(debt.ID, date(2024, 2, 1), 1000000, 700000)
	debt.BalanceCents -= p.PrincipalCents

	s, err := Calculate(debt, []core.Payment{p}, date(2024, 3, 1))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	for _, r := range s.Rows[1:] {
		if r.Interest.Cents != 0 || r.Principal.Cents < 0 {
			t.Fatalf("unexpected row %+v", r)
		}
	}
}

func assertEqualInstallments(t *testing.T, rows []Row) {
	t.Helper()
	lo, hi := rows[0].Payment.Cents, rows[0].Payment.Cents
	for _, r := range rows {
		if r.IsPaid {
			continue
		}
		if r.Principal.Cents < 0 {
			t.Fatalf("row %d has negative principal", r.PaymentNumber)
		}
		if r.Payment.Cents < lo {
			lo = r.Payment.Cents
		}
		if r.Payment.Cents > hi {
			hi = r.Payment.Cents
		}
	}
	if hi-lo > 1 {
		t.Fatalf("installments range from %d to %d, want within 1 cent", lo, hi)
	}
}

func TestCalculateIsIdempotent(t *testing.T) {
	debt := islamicDebt()
	payments := []core.Payment{payment(debt.ID, date(2024, 2, 1), 83334, 5000)}
	debt.BalanceCents -= 83334
	today := date(2024, 6, 1)

	a, err := Calculate(debt, payments, today)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	b, err := Calculate(debt, payments, today)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("repeated calculation differs")
	}
}

func TestUnknownTermsIsCalculationError(t *testing.T) {
	_, err := Calculate(core.Debt{ID: uuid.New()}, nil, date(2024, 1, 1))
	var ce *core.CalculationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CalculationError, got %v", err)
	}
	if core.KindOf(err) != core.KindCalculation {
		t.Fatalf("unexpected kind %s", core.KindOf(err))
	}
}

func TestSplitEven(t *testing.T) {
	cases := []struct {
		total int64
		n     int
		want  []int64
	}{
		{10, 3, []int64{4, 3, 3}},
		{9, 3, []int64{3, 3, 3}},
		{0, 2, []int64{0, 0}},
		{5, 0, nil},
	}
	for _, tc := range cases {
		if got := splitEven(tc.total, tc.n); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitEven(%d, %d) = %v, want %v", tc.total, tc.n, got, tc.want)
		}
	}
}

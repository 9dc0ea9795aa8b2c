package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"debts/internal/core"
)

func TestClassifyDue(t *testing.T) {
	today := core.NewDate(2024, 6, 15)
	tests := []struct {
		due    core.Date
		want   DueBucket
		wantOK bool
	}{
		{core.NewDate(2024, 6, 14), BucketOverdue, true},
		{core.NewDate(2023, 1, 1), BucketOverdue, true},
		{core.NewDate(2024, 6, 15), BucketDueToday, true},
		{core.NewDate(2024, 6, 16), BucketDueThisWeek, true},
		{core.NewDate(2024, 6, 22), BucketDueThisWeek, true},
		{core.NewDate(2024, 6, 23), BucketDueThisMonth, true},
		{core.NewDate(2024, 7, 15), BucketDueThisMonth, true},
		{core.NewDate(2024, 7, 16), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.due.String(), func(t *testing.T) {
			got, ok := ClassifyDue(tt.due, today)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("ClassifyDue(%s) = %q, %v; want %q, %v", tt.due, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestGetDebtSummaryEmptyHousehold(t *testing.T) {
	svc := newTestService(t)

	s, err := svc.GetDebtSummary(context.Background(), "empty-household")
	if err != nil {
		t.Fatalf("GetDebtSummary: %v", err)
	}
	if s.TotalDebt.Cents != 0 {
		t.Fatalf("TotalDebt = %s, want 0", s.TotalDebt)
	}
	if len(s.ByType) != len(core.AllDebtTypes()) {
		t.Fatalf("expected a zero entry per type, got %+v", s.ByType)
	}
	for _, tt := range s.ByType {
		if tt.Count != 0 || tt.TotalBalance.Cents != 0 {
			t.Fatalf("non-zero total %+v", tt)
		}
	}
	u := s.UpcomingPayments
	if u.Overdue == nil || u.DueToday == nil || u.DueThisWeek == nil || u.DueThisMonth == nil {
		t.Fatalf("buckets must be empty lists, got %+v", u)
	}
}

func TestGetDebtSummary(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	overdue := mustCreate(t, svc, conventionalInput("1200", core.NewDate(2024, 1, 1), datePtr(2025, 1, 10)))
	today := mustCreate(t, svc, conventionalInput("1200", core.NewDate(2024, 6, 1), datePtr(2025, 6, 15)))
	week := mustCreate(t, svc, conventionalInput("1200", core.NewDate(2024, 6, 1), datePtr(2025, 6, 20)))
	month := mustCreate(t, svc, conventionalInput("1200", core.NewDate(2024, 6, 10), datePtr(2025, 7, 5)))
	later := mustCreate(t, svc, conventionalInput("1200", core.NewDate(2024, 8, 1), datePtr(2025, 8, 1)))
	personal := mustCreate(t, svc, personalInput("300", "USD"))
	islamic := mustCreate(t, svc, islamicInput("1000"))

	closed := personalInput("999", "USD")
	inactive := false
	closed.IsActive = &inactive
	mustCreate(t, svc, closed)

	if _, err := svc.RecordPayment(ctx, personal.ID, household, pay("100", "100", "0", core.NewDate(2024, 2, 1))); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	s, err := svc.GetDebtSummary(ctx, household)
	if err != nil {
		t.Fatalf("GetDebtSummary: %v", err)
	}

	wantTotals := map[core.DebtType]struct {
		cents int64
		count int
	}{
		core.DebtPersonal:     {20000, 1},
		core.DebtConventional: {5 * 120000, 5},
		core.DebtIslamic:      {100000, 1},
	}
	var sum int64
	for _, tt := range s.ByType {
		want := wantTotals[tt.Type]
		if tt.TotalBalance.Cents != want.cents || tt.Count != want.count {
			t.Errorf("%s: got %s over %d debts, want %d cents over %d", tt.Type, tt.TotalBalance, tt.Count, want.cents, want.count)
		}
		sum += tt.TotalBalance.Cents
	}
	if s.TotalDebt.Cents != sum || sum != 720000 {
		t.Fatalf("TotalDebt = %s, per-type sum %d", s.TotalDebt, sum)
	}

	ids := func(list []core.UpcomingPayment) []uuid.UUID {
		out := make([]uuid.UUID, len(list))
		for i, p := range list {
			out[i] = p.DebtID
		}
		return out
	}
	contains := func(list []core.UpcomingPayment, id uuid.UUID) bool {
		for _, got := range ids(list) {
			if got == id {
				return true
			}
		}
		return false
	}

	u := s.UpcomingPayments
	if !contains(u.Overdue, overdue.ID) || !contains(u.Overdue, islamic.ID) {
		t.Errorf("overdue bucket = %v", ids(u.Overdue))
	}
	if len(u.DueToday) != 1 || u.DueToday[0].DebtID != today.ID {
		t.Errorf("dueToday bucket = %v", ids(u.DueToday))
	}
	if len(u.DueThisWeek) != 1 || u.DueThisWeek[0].DebtID != week.ID {
		t.Errorf("dueThisWeek bucket = %v", ids(u.DueThisWeek))
	}
	if len(u.DueThisMonth) != 1 || u.DueThisMonth[0].DebtID != month.ID {
		t.Errorf("dueThisMonth bucket = %v", ids(u.DueThisMonth))
	}
	for _, list := range [][]core.UpcomingPayment{u.Overdue, u.DueToday, u.DueThisWeek, u.DueThisMonth} {
		if contains(list, later.ID) || contains(list, personal.ID) {
			t.Errorf("debt without a due date within 30 days was bucketed")
		}
		for _, p := range list {
			if p.AmountDue.Cents <= 0 {
				t.Errorf("upcoming payment %s has no amount due", p.Name)
			}
		}
	}
	if len(u.DueToday) == 1 && !u.DueToday[0].DueDate.Same(core.NewDate(2024, 6, 15)) {
		t.Errorf("dueToday date = %s", u.DueToday[0].DueDate)
	}
}

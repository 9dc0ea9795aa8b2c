package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"debts/internal/core"
	"debts/internal/schedule"
	ports "debts/internal/sheets"
)

func TestMemoryStoreLedgerByYear(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, on := range []core.Date{core.NewDate(2023, 12, 31), core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1)} {
		if _, err := s.AppendPayment(ctx, ports.LedgerRow{PaymentID: uuid.New(), PaymentDate: on}); err != nil {
			t.Fatalf("AppendPayment: %v", err)
		}
	}

	rows, err := s.ListLedger(ctx, 2024)
	if err != nil || len(rows) != 2 {
		t.Fatalf("unexpected 2024 ledger: rows=%v err=%v", rows, err)
	}
	ref, err := s.AppendPayment(ctx, ports.LedgerRow{PaymentID: uuid.New(), PaymentDate: core.NewDate(2024, 3, 1)})
	if err != nil || ref != "mem:2024:3" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	if _, err := s.AppendPayment(ctx, ports.LedgerRow{}); err == nil {
		t.Fatal("expected error for row without payment id")
	}
}

func TestMemoryStoreScheduleReplaced(t *testing.T) {
	s := New()
	ctx := context.Background()
	debt := core.Debt{ID: uuid.New()}

	first := schedule.Schedule{Rows: []schedule.Row{{PaymentNumber: 1}, {PaymentNumber: 2}}}
	if _, err := s.WriteSchedule(ctx, debt, first); err != nil {
		t.Fatalf("WriteSchedule: %v", err)
	}
	first.Rows[0].PaymentNumber = 99

	if _, err := s.WriteSchedule(ctx, debt, schedule.Schedule{Rows: []schedule.Row{{PaymentNumber: 1}}}); err != nil {
		t.Fatalf("WriteSchedule: %v", err)
	}
	got, ok := s.Schedule(debt.ID)
	if !ok || len(got.Rows) != 1 || got.Rows[0].PaymentNumber != 1 {
		t.Fatalf("unexpected stored schedule %+v", got)
	}
}

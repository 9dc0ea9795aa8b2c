package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"debts/internal/core"
	"debts/internal/schedule"
	ports "debts/internal/sheets"
)

// Store keeps exported ledger rows and schedules in process.
type Store struct {
	mu        sync.Mutex
	ledger    map[int][]ports.LedgerRow
	schedules map[uuid.UUID]schedule.Schedule
}

var _ ports.Exporter = (*Store)(nil)

func New() *Store {
	return &Store{
		ledger:    map[int][]ports.LedgerRow{},
		schedules: map[uuid.UUID]schedule.Schedule{},
	}
}

// AppendPayment stores the row and returns a synthetic row reference.
func (s *Store) AppendPayment(_ context.Context, row ports.LedgerRow) (string, error) {
	if row.PaymentID == uuid.Nil {
		return "", errors.New("ledger row without payment id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	year := row.PaymentDate.Year()
	s.ledger[year] = append(s.ledger[year], row)
	return fmt.Sprintf("mem:%d:%d", year, len(s.ledger[year])), nil
}

func (s *Store) ListLedger(_ context.Context, year int) ([]ports.LedgerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.LedgerRow(nil), s.ledger[year]...), nil
}

func (s *Store) WriteSchedule(_ context.Context, debt core.Debt, sched schedule.Schedule) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := append([]schedule.Row(nil), sched.Rows...)
	sched.Rows = rows
	s.schedules[debt.ID] = sched
	return "mem:schedule:" + debt.ID.String(), nil
}

// Schedule returns the last schedule written for debtID.
func (s *Store) Schedule(debtID uuid.UUID) (schedule.Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[debtID]
	return sched, ok
}

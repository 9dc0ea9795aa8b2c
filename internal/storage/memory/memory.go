// Package memory is an in-process record store. Writes are serialized by a
// single lock whose wait is bounded like SQLite's busy timeout, and a
// transaction works on a snapshot that replaces the live state on commit.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"debts/internal/core"
	"debts/internal/storage"
)

var errLockTimeout = errors.New("timed out waiting for write lock")

type state struct {
	debts    map[uuid.UUID]core.Debt
	payments map[uuid.UUID]core.Payment
}

func (st state) clone() state {
	out := state{
		debts:    make(map[uuid.UUID]core.Debt, len(st.debts)),
		payments: make(map[uuid.UUID]core.Payment, len(st.payments)),
	}
	for id, d := range st.debts {
		out.debts[id] = copyDebt(d)
	}
	for id, p := range st.payments {
		out.payments[id] = p
	}
	return out
}

type Store struct {
	mu        sync.RWMutex
	st        state
	writeLock chan struct{}
	opts      storage.Options
}

var _ storage.Repository = (*Store)(nil)

func New(opts storage.Options) *Store {
	return &Store{
		st: state{
			debts:    map[uuid.UUID]core.Debt{},
			payments: map[uuid.UUID]core.Payment{},
		},
		writeLock: make(chan struct{}, 1),
		opts:      opts.WithDefaults(),
	}
}

func (s *Store) Close() error { return nil }

// acquire takes the write lock, waiting at most LockTimeout.
func (s *Store) acquire(ctx context.Context) (func(), error) {
	timer := time.NewTimer(s.opts.LockTimeout)
	defer timer.Stop()
	select {
	case s.writeLock <- struct{}{}:
		return func() { <-s.writeLock }, nil
	case <-timer.C:
		return nil, &core.StorageError{Op: "acquire write lock", Err: errLockTimeout}
	case <-ctx.Done():
		return nil, &core.StorageError{Op: "acquire write lock", Err: ctx.Err()}
	}
}

// write applies fn to the live state under the write lock.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.st)
}

func (s *Store) CreateDebt(ctx context.Context, d core.Debt) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.debts[d.ID]; ok {
			return storage.ErrDuplicate
		}
		st.debts[d.ID] = copyDebt(d)
		return nil
	})
}

func (s *Store) GetDebt(ctx context.Context, id uuid.UUID) (core.Debt, error) {
	if err := ctx.Err(); err != nil {
		return core.Debt{}, &core.StorageError{Op: "get debt", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getDebt(id)
}

func (st *state) getDebt(id uuid.UUID) (core.Debt, error) {
	d, ok := st.debts[id]
	if !ok {
		return core.Debt{}, storage.ErrNotFound
	}
	return copyDebt(d), nil
}

func (s *Store) ListDebts(ctx context.Context, householdID string, f core.DebtFilter) ([]core.Debt, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.StorageError{Op: "list debts", Err: err}
	}
	s.mu.RLock()
	var out []core.Debt
	for _, d := range s.st.debts {
		if d.HouseholdID == householdID && f.Matches(d) {
			out = append(out, copyDebt(d))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsActive != b.IsActive {
			return a.IsActive
		}
		if a.BalanceCents != b.BalanceCents {
			return a.BalanceCents > b.BalanceCents
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateDebt(ctx context.Context, d core.Debt) error {
	return s.write(ctx, func(st *state) error {
		cur, ok := st.debts[d.ID]
		if !ok {
			return storage.ErrNotFound
		}
		md := d.Metadata.Clone()
		if raw, ok := cur.Metadata[core.MetadataPaidOffDate]; ok {
			md[core.MetadataPaidOffDate] = raw
		}
		cur.Name = d.Name
		cur.Creditor = d.Creditor
		cur.Terms = d.Terms
		cur.StartDate = d.StartDate
		cur.MaturityDate = copyDate(d.MaturityDate)
		cur.IsActive = d.IsActive
		cur.Metadata = md
		cur.UpdatedAt = d.UpdatedAt
		st.debts[d.ID] = cur
		return nil
	})
}

func (s *Store) DeleteDebt(ctx context.Context, id uuid.UUID) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.debts[id]; !ok {
			return storage.ErrNotFound
		}
		delete(st.debts, id)
		for pid, p := range st.payments {
			if p.DebtID == id {
				delete(st.payments, pid)
			}
		}
		return nil
	})
}

func (s *Store) ListPayments(ctx context.Context, debtID uuid.UUID) ([]core.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.StorageError{Op: "list payments", Err: err}
	}
	s.mu.RLock()
	var out []core.Payment
	for _, p := range s.st.payments {
		if p.DebtID == debtID {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaymentDate.Same(out[j].PaymentDate) {
			return out[i].PaymentDate.IsBefore(out[j].PaymentDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (core.Payment, error) {
	if err := ctx.Err(); err != nil {
		return core.Payment{}, &core.StorageError{Op: "get payment", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.payments[id]
	if !ok {
		return core.Payment{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) SumActiveBalances(ctx context.Context, householdID string) ([]core.TypeTotal, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.StorageError{Op: "sum active balances", Err: err}
	}
	s.mu.RLock()
	byType := map[core.DebtType]*core.TypeTotal{}
	for _, d := range s.st.debts {
		if d.HouseholdID != householdID || !d.IsActive {
			continue
		}
		tt, ok := byType[d.Type()]
		if !ok {
			tt = &core.TypeTotal{Type: d.Type()}
			byType[d.Type()] = tt
		}
		tt.TotalBalance.Cents += d.BalanceCents
		tt.Count++
	}
	s.mu.RUnlock()

	out := make([]core.TypeTotal, 0, len(byType))
	for _, tt := range byType {
		out = append(out, *tt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// WithinTx runs fn against a snapshot and publishes it only if fn succeeds
// before the transaction deadline.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &memTx{st: &work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &core.StorageError{Op: "commit transaction", Err: err}
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

type memTx struct {
	st *state
}

func (t *memTx) GetDebt(ctx context.Context, id uuid.UUID) (core.Debt, error) {
	if err := ctx.Err(); err != nil {
		return core.Debt{}, &core.StorageError{Op: "get debt", Err: err}
	}
	return t.st.getDebt(id)
}

func (t *memTx) HasPayment(ctx context.Context, debtID uuid.UUID, on core.Date, amountCents int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &core.StorageError{Op: "check duplicate payment", Err: err}
	}
	return t.st.hasPayment(debtID, on, amountCents), nil
}

func (st *state) hasPayment(debtID uuid.UUID, on core.Date, amountCents int64) bool {
	for _, p := range st.payments {
		if p.DebtID == debtID && p.PaymentDate.Same(on) && p.AmountCents == amountCents {
			return true
		}
	}
	return false
}

func (t *memTx) InsertPayment(ctx context.Context, p core.Payment) error {
	if err := ctx.Err(); err != nil {
		return &core.StorageError{Op: "insert payment", Err: err}
	}
	if _, ok := t.st.debts[p.DebtID]; !ok {
		return storage.ErrNotFound
	}
	if _, ok := t.st.payments[p.ID]; ok || t.st.hasPayment(p.DebtID, p.PaymentDate, p.AmountCents) {
		return storage.ErrDuplicate
	}
	t.st.payments[p.ID] = p
	return nil
}

func (t *memTx) ApplyPrincipal(ctx context.Context, debtID uuid.UUID, principalCents int64, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &core.StorageError{Op: "apply principal", Err: err}
	}
	d, ok := t.st.debts[debtID]
	if !ok || d.BalanceCents < principalCents {
		return 0, storage.ErrInsufficientBalance
	}
	d.BalanceCents -= principalCents
	if d.BalanceCents < 0 {
		d.BalanceCents = 0
	}
	d.UpdatedAt = at
	t.st.debts[debtID] = d
	return d.BalanceCents, nil
}

func (t *memTx) MarkPaidOff(ctx context.Context, debtID uuid.UUID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return &core.StorageError{Op: "mark paid off", Err: err}
	}
	d, ok := t.st.debts[debtID]
	if !ok {
		return storage.ErrNotFound
	}
	d.BalanceCents = 0
	d.Metadata = d.Metadata.WithPaidOffDate(at)
	d.UpdatedAt = at
	t.st.debts[debtID] = d
	return nil
}

func copyDebt(d core.Debt) core.Debt {
	d.MaturityDate = copyDate(d.MaturityDate)
	if d.Metadata == nil {
		d.Metadata = core.Metadata{}
	} else {
		d.Metadata = d.Metadata.Clone()
	}
	return d
}

func copyDate(d *core.Date) *core.Date {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"debts/internal/core"
	"debts/internal/log"
	"debts/internal/schedule"
	"debts/internal/storage"
)

const defaultSummaryConcurrency = 8

// SummaryAggregator builds the household overview: active balances by
// product type and the next due payment of every active debt.
type SummaryAggregator struct {
	repo        storage.Repository
	clock       core.Clock
	concurrency int
	logger      *log.Logger
}

func NewSummaryAggregator(repo storage.Repository, clock core.Clock, concurrency int, logger *log.Logger) *SummaryAggregator {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if concurrency <= 0 {
		concurrency = defaultSummaryConcurrency
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SummaryAggregator{
		repo:        repo,
		clock:       clock,
		concurrency: concurrency,
		logger:      logger.WithComponent(log.ComponentSummary),
	}
}

// GetDebtSummary never fails for a household without debts; it returns
// zero totals for every type and empty buckets.
func (a *SummaryAggregator) GetDebtSummary(ctx context.Context, householdID string) (core.DebtSummary, error) {
	var (
		totals []core.TypeTotal
		active []core.Debt
	)
	onlyActive := true

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = a.repo.SumActiveBalances(gctx, householdID)
		return err
	})
	g.Go(func() error {
		var err error
		active, err = a.repo.ListDebts(gctx, householdID, core.DebtFilter{IsActive: &onlyActive})
		return err
	})
	if err := g.Wait(); err != nil {
		return core.DebtSummary{}, storageFailure("load household debts", err)
	}

	today := core.Today(a.clock)
	next, err := a.nextDue(ctx, active, today)
	if err != nil {
		return core.DebtSummary{}, err
	}
	upcoming, err := groupUpcoming(next, today)
	if err != nil {
		return core.DebtSummary{}, err
	}

	byType := completeTotals(totals)
	var total int64
	for _, tt := range byType {
		total += tt.TotalBalance.Cents
	}

	a.logger.WithFields(log.NewFields().WithOperation(log.OpSummary)).
		DebugContext(ctx, "Debt summary computed",
			log.FieldHouseholdID, householdID,
			log.FieldCount, len(active),
			log.FieldBalanceCents, total)

	return core.DebtSummary{
		HouseholdID:      householdID,
		TotalDebt:        core.Money{Cents: total},
		ByType:           byType,
		UpcomingPayments: upcoming,
	}, nil
}

// nextDue computes each debt's first unpaid schedule row, at most
// a.concurrency at a time. Debts with nothing left to pay are skipped.
func (a *SummaryAggregator) nextDue(ctx context.Context, debts []core.Debt, today core.Date) ([]core.UpcomingPayment, error) {
	found := make([]*core.UpcomingPayment, len(debts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, d := range debts {
		g.Go(func() error {
			payments, err := a.repo.ListPayments(gctx, d.ID)
			if err != nil {
				return storageFailure("list payments", err)
			}
			sched, err := schedule.Calculate(d, payments, today)
			if err != nil {
				return fmt.Errorf("schedule for debt %s: %w", d.ID, err)
			}
			row, ok := sched.NextDue()
			if !ok {
				return nil
			}
			found[i] = &core.UpcomingPayment{
				DebtID:    d.ID,
				Name:      d.Name,
				DueDate:   row.DueDate,
				AmountDue: row.Payment,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]core.UpcomingPayment, 0, len(debts))
	for _, p := range found {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

// completeTotals returns one entry per product type in display order,
// filling types without active debts with zeros.
func completeTotals(totals []core.TypeTotal) []core.TypeTotal {
	byType := make(map[core.DebtType]core.TypeTotal, len(totals))
	for _, tt := range totals {
		byType[tt.Type] = tt
	}
	out := make([]core.TypeTotal, 0, len(core.AllDebtTypes()))
	for _, t := range core.AllDebtTypes() {
		tt, ok := byType[t]
		if !ok {
			tt = core.TypeTotal{Type: t}
		}
		out = append(out, tt)
	}
	return out
}

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"debts/internal/core"
	"debts/internal/log"
	"debts/internal/schedule"
	"debts/internal/storage"
)

// Options configures a DebtService. Zero values fall back to defaults.
type Options struct {
	Clock     core.Clock
	Publisher PaymentPublisher
	Processor ProcessorConfig
	Logger    *log.Logger
	// SummaryConcurrency bounds the schedules computed in parallel for a summary.
	SummaryConcurrency int
}

// DebtService is the entry point for every debt operation. Each call is
// scoped to a household and checks ownership itself.
type DebtService struct {
	repo      storage.Repository
	clock     core.Clock
	payments  *PaymentProcessor
	summaries *SummaryAggregator
	logger    *log.Logger
}

func NewDebtService(repo storage.Repository, opts Options) *DebtService {
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return &DebtService{
		repo:      repo,
		clock:     opts.Clock,
		payments:  NewPaymentProcessor(repo, opts.Clock, opts.Publisher, opts.Processor, opts.Logger),
		summaries: NewSummaryAggregator(repo, opts.Clock, opts.SummaryConcurrency, opts.Logger),
		logger:    opts.Logger.WithComponent(log.ComponentDebts),
	}
}

// CreateDebt validates in and stores a new debt whose balance equals its principal.
func (s *DebtService) CreateDebt(ctx context.Context, householdID string, in core.CreateDebtInput, creatorUserID string) (core.Debt, error) {
	if err := requireHousehold(householdID); err != nil {
		return core.Debt{}, err
	}
	draft, err := core.ValidateForCreate(in)
	if err != nil {
		return core.Debt{}, err
	}

	now := s.clock.Now().UTC()
	debt := core.Debt{
		ID:             uuid.New(),
		HouseholdID:    householdID,
		Name:           draft.Name,
		Creditor:       draft.Creditor,
		PrincipalCents: draft.PrincipalCents,
		BalanceCents:   draft.PrincipalCents,
		Currency:       draft.Currency,
		Terms:          draft.Terms,
		StartDate:      draft.StartDate,
		MaturityDate:   draft.MaturityDate,
		IsActive:       draft.IsActive,
		Metadata:       draft.Metadata,
		CreatedBy:      creatorUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateDebt(ctx, debt); err != nil {
		return core.Debt{}, storageFailure("create debt", err)
	}

	s.logger.WithFields(log.NewFields().
		WithOperation(log.OpCreate).
		WithDebt(debt.ID.String(), householdID, string(debt.Type()))).
		InfoContext(ctx, "Debt created", log.FieldPrincipalCents, debt.PrincipalCents)
	return debt, nil
}

// GetDebtByID returns the debt with its payment history, oldest first.
func (s *DebtService) GetDebtByID(ctx context.Context, id uuid.UUID, householdID string) (core.DebtWithPayments, error) {
	debt, err := loadOwnedDebt(ctx, s.repo, id, householdID)
	if err != nil {
		return core.DebtWithPayments{}, err
	}
	payments, err := s.repo.ListPayments(ctx, id)
	if err != nil {
		return core.DebtWithPayments{}, storageFailure("list payments", err)
	}
	if payments == nil {
		payments = []core.Payment{}
	}
	return core.DebtWithPayments{Debt: debt, Payments: payments}, nil
}

func (s *DebtService) GetDebtsByHousehold(ctx context.Context, householdID string, f core.DebtFilter) ([]core.Debt, error) {
	if err := requireHousehold(householdID); err != nil {
		return nil, err
	}
	if f.Type != nil && !f.Type.IsValid() {
		return nil, &core.ValidationError{Field: core.FieldType, Rule: "supported", Message: fmt.Sprintf("debt type %q is not supported", *f.Type)}
	}
	debts, err := s.repo.ListDebts(ctx, householdID, f)
	if err != nil {
		return nil, storageFailure("list debts", err)
	}
	if debts == nil {
		debts = []core.Debt{}
	}
	return debts, nil
}

// UpdateDebt applies patch to the mutable fields of a debt. The balance and
// a recorded payoff date are never changed here.
func (s *DebtService) UpdateDebt(ctx context.Context, id uuid.UUID, householdID string, patch core.DebtPatch) (core.Debt, error) {
	existing, err := loadOwnedDebt(ctx, s.repo, id, householdID)
	if err != nil {
		return core.Debt{}, err
	}
	draft, err := core.ValidateForUpdate(existing, patch)
	if err != nil {
		return core.Debt{}, err
	}

	updated := existing
	updated.Name = draft.Name
	updated.Creditor = draft.Creditor
	updated.Terms = draft.Terms
	updated.StartDate = draft.StartDate
	updated.MaturityDate = draft.MaturityDate
	updated.IsActive = draft.IsActive
	updated.Metadata = draft.Metadata
	updated.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.UpdateDebt(ctx, updated); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.Debt{}, &core.NotFoundError{Resource: "debt", ID: id.String()}
		}
		return core.Debt{}, storageFailure("update debt", err)
	}

	s.logger.WithFields(log.NewFields().
		WithOperation(log.OpUpdate).
		WithDebt(id.String(), householdID, string(existing.Type()))).
		InfoContext(ctx, "Debt updated")

	fresh, err := s.repo.GetDebt(ctx, id)
	if err != nil {
		return core.Debt{}, storageFailure("get debt", err)
	}
	return fresh, nil
}

// DeleteDebt removes a debt together with its payments.
func (s *DebtService) DeleteDebt(ctx context.Context, id uuid.UUID, householdID string) error {
	if _, err := loadOwnedDebt(ctx, s.repo, id, householdID); err != nil {
		return err
	}
	if err := s.repo.DeleteDebt(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &core.NotFoundError{Resource: "debt", ID: id.String()}
		}
		return storageFailure("delete debt", err)
	}

	s.logger.WithFields(log.NewFields().
		WithOperation(log.OpDelete).
		WithDebt(id.String(), householdID, "")).
		InfoContext(ctx, "Debt deleted")
	return nil
}

func (s *DebtService) RecordPayment(ctx context.Context, debtID uuid.UUID, householdID string, in core.PaymentInput) (core.Payment, error) {
	return s.payments.RecordPayment(ctx, debtID, householdID, in)
}

// CalculatePaymentSchedule derives the schedule from stored state. It writes nothing.
func (s *DebtService) CalculatePaymentSchedule(ctx context.Context, debtID uuid.UUID, householdID string) (schedule.Schedule, error) {
	debt, err := loadOwnedDebt(ctx, s.repo, debtID, householdID)
	if err != nil {
		return schedule.Schedule{}, err
	}
	payments, err := s.repo.ListPayments(ctx, debtID)
	if err != nil {
		return schedule.Schedule{}, storageFailure("list payments", err)
	}
	return schedule.Calculate(debt, payments, core.Today(s.clock))
}

func (s *DebtService) GetDebtSummary(ctx context.Context, householdID string) (core.DebtSummary, error) {
	if err := requireHousehold(householdID); err != nil {
		return core.DebtSummary{}, err
	}
	return s.summaries.GetDebtSummary(ctx, householdID)
}

// Close releases the record store.
func (s *DebtService) Close() error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Close(); err != nil {
		return fmt.Errorf("close debt service: %w", err)
	}
	return nil
}

// loadOwnedDebt distinguishes a missing debt from one owned by another household.
func loadOwnedDebt(ctx context.Context, repo storage.Repository, id uuid.UUID, householdID string) (core.Debt, error) {
	if err := requireHousehold(householdID); err != nil {
		return core.Debt{}, err
	}
	debt, err := repo.GetDebt(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Debt{}, &core.NotFoundError{Resource: "debt", ID: id.String()}
	}
	if err != nil {
		return core.Debt{}, storageFailure("get debt", err)
	}
	if debt.HouseholdID != householdID {
		return core.Debt{}, &core.ForbiddenError{}
	}
	return debt, nil
}

func requireHousehold(householdID string) error {
	if householdID == "" {
		return &core.ValidationError{Field: "householdId", Rule: "required", Message: "household id is required"}
	}
	return nil
}

// storageFailure keeps classified errors intact and wraps the rest with op.
func storageFailure(op string, err error) error {
	if core.KindOf(err) != core.KindInternal {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

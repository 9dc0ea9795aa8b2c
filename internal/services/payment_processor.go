package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"debts/internal/core"
	"debts/internal/log"
	"debts/internal/storage"
)

// PaymentPublisher is notified after a payment has been committed.
type PaymentPublisher interface {
	PublishPaymentRecorded(ctx context.Context, householdID string, p core.Payment, balanceAfterCents int64) error
}

// ProcessorConfig holds the tunable business rules of the payment processor.
type ProcessorConfig struct {
	// MaxInterestRatio rejects payments whose interest (or margin) component
	// exceeds this multiple of the principal component.
	MaxInterestRatio decimal.Decimal
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{MaxInterestRatio: decimal.NewFromInt(2)}
}

// PaymentProcessor applies payments to debts atomically.
type PaymentProcessor struct {
	repo      storage.Repository
	clock     core.Clock
	publisher PaymentPublisher
	cfg       ProcessorConfig
	logger    *log.Logger
}

// NewPaymentProcessor wires a processor. publisher may be nil.
func NewPaymentProcessor(repo storage.Repository, clock core.Clock, publisher PaymentPublisher, cfg ProcessorConfig, logger *log.Logger) *PaymentProcessor {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if cfg.MaxInterestRatio.Sign() <= 0 {
		cfg.MaxInterestRatio = DefaultProcessorConfig().MaxInterestRatio
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &PaymentProcessor{
		repo:      repo,
		clock:     clock,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.WithComponent(log.ComponentPayments),
	}
}

// RecordPayment validates in against the debt and, inside one transaction,
// inserts the payment and decrements the balance. The balance check is
// repeated inside the transaction so a concurrent payment cannot overdraw.
func (p *PaymentProcessor) RecordPayment(ctx context.Context, debtID uuid.UUID, householdID string, in core.PaymentInput) (core.Payment, error) {
	debt, err := loadOwnedDebt(ctx, p.repo, debtID, householdID)
	if err != nil {
		return core.Payment{}, err
	}
	if !debt.IsActive {
		return core.Payment{}, core.NewBusinessRuleError(core.ErrInactiveDebt, "debt %s is inactive", debt.ID)
	}
	if err := p.checkPaymentDate(debt, in.PaymentDate); err != nil {
		return core.Payment{}, err
	}

	history, err := p.repo.ListPayments(ctx, debt.ID)
	if err != nil {
		return core.Payment{}, storageFailure("list payments", err)
	}
	amountCents := core.CentsFromDecimal(in.Amount)
	for _, existing := range history {
		if existing.PaymentDate.Same(in.PaymentDate) && existing.AmountCents == amountCents {
			return core.Payment{}, duplicatePayment(in.PaymentDate, amountCents)
		}
	}

	draft, err := core.NormalizePayment(in)
	if err != nil {
		return core.Payment{}, err
	}
	if draft.PrincipalCents > debt.BalanceCents {
		return core.Payment{}, overdraft(draft.PrincipalCents, debt.BalanceCents)
	}
	if err := p.checkTypeRule(debt, draft); err != nil {
		return core.Payment{}, err
	}

	now := p.clock.Now().UTC()
	payment := core.Payment{
		ID:             uuid.New(),
		DebtID:         debt.ID,
		AmountCents:    draft.AmountCents,
		PrincipalCents: draft.PrincipalCents,
		InterestCents:  draft.InterestCents,
		PaymentDate:    draft.PaymentDate,
		Currency:       debt.Currency,
		TransactionRef: draft.TransactionRef,
		CreatedAt:      now,
	}

	var balanceAfter int64
	err = p.repo.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetDebt(ctx, debt.ID)
		if err != nil {
			return err
		}
		if !cur.IsActive {
			return core.NewBusinessRuleError(core.ErrInactiveDebt, "debt %s is inactive", cur.ID)
		}
		dup, err := tx.HasPayment(ctx, cur.ID, payment.PaymentDate, payment.AmountCents)
		if err != nil {
			return err
		}
		if dup {
			return duplicatePayment(payment.PaymentDate, payment.AmountCents)
		}
		if payment.PrincipalCents > cur.BalanceCents {
			return overdraft(payment.PrincipalCents, cur.BalanceCents)
		}

		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		balanceAfter, err = tx.ApplyPrincipal(ctx, cur.ID, payment.PrincipalCents, now)
		if err != nil {
			return err
		}
		if balanceAfter == 0 && payment.PrincipalCents > 0 {
			return tx.MarkPaidOff(ctx, cur.ID, now)
		}
		return nil
	})
	if err != nil {
		return core.Payment{}, p.txFailure(ctx, debt, payment, err)
	}

	fields := log.NewFields().
		WithOperation(log.OpPay).
		WithDebt(debt.ID.String(), householdID, string(debt.Type())).
		WithPayment(payment.ID.String(), payment.AmountCents, payment.PrincipalCents, payment.InterestCents)
	p.logger.WithFields(fields).InfoContext(ctx, "Payment recorded", log.FieldBalanceCents, balanceAfter)
	if balanceAfter == 0 {
		p.logger.InfoContext(ctx, "Debt paid off", log.FieldDebtID, debt.ID.String())
	}

	p.publish(ctx, householdID, payment, balanceAfter)
	return payment, nil
}

func (p *PaymentProcessor) checkPaymentDate(debt core.Debt, on core.Date) error {
	if on.IsZero() {
		return &core.ValidationError{Field: core.FieldPaymentDate, Rule: "required", Message: "payment date is required"}
	}
	if on.IsBefore(debt.StartDate) {
		return &core.ValidationError{
			Field:   core.FieldPaymentDate,
			Rule:    "after_start",
			Message: fmt.Sprintf("payment date %s is before the debt start date %s", on, debt.StartDate),
		}
	}
	if today := core.Today(p.clock); on.IsAfter(today) {
		return &core.ValidationError{
			Field:   core.FieldPaymentDate,
			Rule:    "not_future",
			Message: fmt.Sprintf("payment date %s is in the future", on),
		}
	}
	return nil
}

// checkTypeRule applies the per-product limit on the interest component.
func (p *PaymentProcessor) checkTypeRule(debt core.Debt, d core.PaymentDraft) error {
	limitExceeded := func() bool {
		limit := p.cfg.MaxInterestRatio.Mul(decimal.NewFromInt(d.PrincipalCents))
		return decimal.NewFromInt(d.InterestCents).GreaterThan(limit)
	}
	_, err := core.MatchTerms(debt.Terms,
		func(core.PersonalTerms) (struct{}, error) {
			if d.InterestCents > 0 {
				return struct{}{}, core.NewBusinessRuleError(core.ErrInterestOnPersonal, "interest component must be zero")
			}
			return struct{}{}, nil
		},
		func(core.ConventionalTerms) (struct{}, error) {
			if limitExceeded() {
				return struct{}{}, core.NewBusinessRuleError(core.ErrDisproportionateInterest,
					"interest %s exceeds %s times principal %s",
					core.Money{Cents: d.InterestCents}, p.cfg.MaxInterestRatio, core.Money{Cents: d.PrincipalCents})
			}
			return struct{}{}, nil
		},
		func(core.IslamicTerms) (struct{}, error) {
			if limitExceeded() {
				return struct{}{}, core.NewBusinessRuleError(core.ErrDisproportionateInterest,
					"margin %s exceeds %s times principal %s",
					core.Money{Cents: d.InterestCents}, p.cfg.MaxInterestRatio, core.Money{Cents: d.PrincipalCents})
			}
			return struct{}{}, nil
		},
	)
	if errors.Is(err, core.ErrUnknownDebtType) {
		return &core.CalculationError{DebtType: debt.Type(), Err: err}
	}
	return err
}

// txFailure maps errors escaping the payment transaction onto the taxonomy.
func (p *PaymentProcessor) txFailure(ctx context.Context, debt core.Debt, payment core.Payment, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &core.NotFoundError{Resource: "debt", ID: debt.ID.String()}
	case errors.Is(err, storage.ErrDuplicate):
		return duplicatePayment(payment.PaymentDate, payment.AmountCents)
	case errors.Is(err, storage.ErrInsufficientBalance):
		return core.NewBusinessRuleError(core.ErrOverdraft, "balance changed while the payment was processed")
	}

	kind := core.KindOf(err)
	if kind == core.KindStorage || kind == core.KindInternal {
		fields := log.NewFields().
			WithOperation(log.OpPay).
			WithDebt(debt.ID.String(), debt.HouseholdID, string(debt.Type())).
			WithError(err, string(kind))
		p.logger.WithFields(fields).ErrorContext(ctx, "Payment transaction rolled back")
	}
	return err
}

func (p *PaymentProcessor) publish(ctx context.Context, householdID string, payment core.Payment, balanceAfter int64) {
	if p.publisher == nil {
		p.logger.DebugContext(ctx, "No event publisher configured, skipping payment event")
		return
	}
	if err := p.publisher.PublishPaymentRecorded(ctx, householdID, payment, balanceAfter); err != nil {
		// The payment is committed; the event is best effort.
		p.logger.WarnContext(ctx, "Failed to publish payment event",
			log.FieldPaymentID, payment.ID.String(),
			log.FieldError, err.Error())
	}
}

func duplicatePayment(on core.Date, amountCents int64) error {
	return core.NewBusinessRuleError(core.ErrDuplicatePayment,
		"a payment of %s on %s is already recorded", core.Money{Cents: amountCents}, on)
}

func overdraft(principalCents, balanceCents int64) error {
	return core.NewBusinessRuleError(core.ErrOverdraft,
		"principal %s exceeds current balance %s", core.Money{Cents: principalCents}, core.Money{Cents: balanceCents})
}

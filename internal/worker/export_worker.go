package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"debts/internal/amqp"
	"debts/internal/core"
	"debts/internal/log"
	"debts/internal/schedule"
	"debts/internal/sheets"
	"debts/internal/storage"
)

// ExportWorker mirrors committed payments into a spreadsheet: one ledger row
// per payment and a schedule tab per debt. Exports are idempotent, so a
// redelivered event or a reconcile run never duplicates ledger rows.
type ExportWorker struct {
	repo     storage.Repository
	exporter sheets.Exporter
	clock    core.Clock
	logger   *log.Logger
}

func NewExportWorker(repo storage.Repository, exporter sheets.Exporter, clock core.Clock, logger *log.Logger) *ExportWorker {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		repo:     repo,
		exporter: exporter,
		clock:    clock,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandlePaymentRecorded exports the payment named by msg and refreshes the
// debt's schedule. Events for deleted debts or payments are NotFound errors.
func (w *ExportWorker) HandlePaymentRecorded(ctx context.Context, msg *amqp.PaymentRecordedMessage) error {
	w.logger.InfoContext(ctx, "Processing payment event",
		log.FieldPaymentID, msg.PaymentID.String(),
		log.FieldDebtID, msg.DebtID.String())

	debt, history, err := w.load(ctx, msg.DebtID)
	if err != nil {
		return err
	}
	if debt.HouseholdID != msg.HouseholdID {
		return &core.NotFoundError{Resource: "debt", ID: msg.DebtID.String()}
	}

	var payment *core.Payment
	for i := range history {
		if history[i].ID == msg.PaymentID {
			payment = &history[i]
			break
		}
	}
	if payment == nil {
		return &core.NotFoundError{Resource: "payment", ID: msg.PaymentID.String()}
	}

	exported, err := w.exportedIDs(ctx, payment.PaymentDate.Year())
	if err != nil {
		return err
	}
	if _, err := w.exportPayment(ctx, debt, history, *payment, exported); err != nil {
		return err
	}
	return w.writeSchedule(ctx, debt, history)
}

// ReconcileDebt exports every payment of a debt that is missing from the
// ledger and rewrites its schedule. It returns the number of rows appended.
func (w *ExportWorker) ReconcileDebt(ctx context.Context, debtID uuid.UUID) (int, error) {
	debt, history, err := w.load(ctx, debtID)
	if err != nil {
		return 0, err
	}

	exportedByYear := map[int]map[uuid.UUID]bool{}
	appended := 0
	for _, p := range history {
		year := p.PaymentDate.Year()
		exported, ok := exportedByYear[year]
		if !ok {
			if exported, err = w.exportedIDs(ctx, year); err != nil {
				return appended, err
			}
			exportedByYear[year] = exported
		}
		added, err := w.exportPayment(ctx, debt, history, p, exported)
		if err != nil {
			return appended, err
		}
		if added {
			exported[p.ID] = true
			appended++
		}
	}
	return appended, w.writeSchedule(ctx, debt, history)
}

// ReconcileHousehold runs ReconcileDebt for every debt of the household.
// A failing debt is logged and skipped.
func (w *ExportWorker) ReconcileHousehold(ctx context.Context, householdID string) error {
	debts, err := w.repo.ListDebts(ctx, householdID, core.DebtFilter{})
	if err != nil {
		return fmt.Errorf("list debts for reconcile: %w", err)
	}

	appended, failed := 0, 0
	for _, d := range debts {
		n, err := w.ReconcileDebt(ctx, d.ID)
		appended += n
		if err != nil {
			failed++
			w.logger.ErrorContext(ctx, "Failed to reconcile debt",
				log.FieldDebtID, d.ID.String(),
				log.FieldError, err.Error())
		}
	}

	w.logger.InfoContext(ctx, "Reconcile completed",
		log.FieldHouseholdID, householdID,
		log.FieldCount, len(debts),
		"appended", appended,
		"errors", failed)
	return nil
}

func (w *ExportWorker) load(ctx context.Context, debtID uuid.UUID) (core.Debt, []core.Payment, error) {
	debt, err := w.repo.GetDebt(ctx, debtID)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Debt{}, nil, &core.NotFoundError{Resource: "debt", ID: debtID.String()}
	}
	if err != nil {
		return core.Debt{}, nil, fmt.Errorf("get debt %s: %w", debtID, err)
	}
	history, err := w.repo.ListPayments(ctx, debtID)
	if err != nil {
		return core.Debt{}, nil, fmt.Errorf("list payments of %s: %w", debtID, err)
	}
	return debt, history, nil
}

func (w *ExportWorker) exportedIDs(ctx context.Context, year int) (map[uuid.UUID]bool, error) {
	rows, err := w.exporter.ListLedger(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("read ledger %d: %w", year, err)
	}
	ids := make(map[uuid.UUID]bool, len(rows))
	for _, r := range rows {
		ids[r.PaymentID] = true
	}
	return ids, nil
}

// exportPayment appends p unless it is already in exported.
func (w *ExportWorker) exportPayment(ctx context.Context, debt core.Debt, history []core.Payment, p core.Payment, exported map[uuid.UUID]bool) (bool, error) {
	if exported[p.ID] {
		w.logger.DebugContext(ctx, "Payment already exported", log.FieldPaymentID, p.ID.String())
		return false, nil
	}

	row := sheets.LedgerRow{
		PaymentID:      p.ID,
		DebtID:         debt.ID,
		DebtName:       debt.Name,
		Creditor:       debt.Creditor,
		PaymentDate:    p.PaymentDate,
		Amount:         core.Money{Cents: p.AmountCents},
		Principal:      core.Money{Cents: p.PrincipalCents},
		Interest:       core.Money{Cents: p.InterestCents},
		BalanceAfter:   core.Money{Cents: balanceAfter(debt.PrincipalCents, history, p.ID)},
		Currency:       p.Currency,
		TransactionRef: p.TransactionRef,
	}
	ref, err := w.exporter.AppendPayment(ctx, row)
	if err != nil {
		return false, fmt.Errorf("append payment %s: %w", p.ID, err)
	}

	w.logger.WithFields(log.NewFields().
		WithOperation(log.OpExport).
		WithPayment(p.ID.String(), p.AmountCents, p.PrincipalCents, p.InterestCents)).
		InfoContext(ctx, "Exported payment", log.FieldSheet, ref)
	return true, nil
}

func (w *ExportWorker) writeSchedule(ctx context.Context, debt core.Debt, history []core.Payment) error {
	sched, err := schedule.Calculate(debt, history, core.Today(w.clock))
	if err != nil {
		return err
	}
	if _, err := w.exporter.WriteSchedule(ctx, debt, sched); err != nil {
		return fmt.Errorf("write schedule of %s: %w", debt.ID, err)
	}
	return nil
}

// balanceAfter replays history, oldest first, up to and including paymentID.
func balanceAfter(principalCents int64, history []core.Payment, paymentID uuid.UUID) int64 {
	balance := principalCents
	for _, p := range history {
		balance -= p.PrincipalCents
		if balance < 0 {
			balance = 0
		}
		if p.ID == paymentID {
			break
		}
	}
	return balance
}

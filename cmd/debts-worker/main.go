// Command debts-worker consumes payment events and mirrors them to the
// spreadsheet ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"debts/internal/backend"
	"debts/internal/cli"
	"debts/internal/config"
	"debts/internal/log"
	"debts/internal/sheets"
	gsheet "debts/internal/sheets/google"
	sheetsmem "debts/internal/sheets/memory"
	"debts/internal/worker"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	households := flag.String("household", os.Getenv("DEBTS_RECONCILE_HOUSEHOLDS"), "comma-separated household ids to reconcile")
	interval := flag.Duration("reconcile-interval", 0, "re-run reconciliation this often; 0 runs it once at startup")
	flag.Parse()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker, os.Stdout)
	logger.Info("Starting debts-worker", log.FieldOperation, log.OpStartup)

	if err := run(context.Background(), cfg, logger, splitHouseholds(*households), *interval); err != nil {
		logger.Error("Worker stopped", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger, households []string, interval time.Duration) error {
	if !cfg.EventsEnabled() {
		return errors.New("AMQP_URL is required for the worker")
	}

	ctx, stop := cli.GracefulShutdown(log.WithContext(ctx, logger), logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	result, err := backend.NewFactory(logger, nil).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("initialize backend: %w", err)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", log.FieldError, err.Error())
		}
	}()
	if result.Events == nil {
		return errors.New("AMQP broker unreachable")
	}

	exporter, err := newExporter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	w := worker.NewExportWorker(result.Repo, exporter, nil, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := result.Events.ConsumePaymentEvents(ctx, w.HandlePaymentRecorded)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if len(households) > 0 {
		g.Go(func() error {
			reconcileLoop(ctx, w, households, interval)
			return nil
		})
	}
	return g.Wait()
}

func newExporter(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.Exporter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, exporting to memory only")
		return sheetsmem.New(), nil
	}
	client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleLedgerSheetName, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}

// reconcileLoop exports anything the consumer missed, once and then every
// interval when interval is positive.
func reconcileLoop(ctx context.Context, w *worker.ExportWorker, households []string, interval time.Duration) {
	logger := log.FromContext(ctx)
	reconcile := func() {
		for _, hh := range households {
			if err := w.ReconcileHousehold(ctx, hh); err != nil && ctx.Err() == nil {
				logger.Error("Reconciliation failed", log.FieldHouseholdID, hh, log.FieldError, err.Error())
			}
		}
	}
	reconcile()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconcile()
		}
	}
}

func splitHouseholds(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

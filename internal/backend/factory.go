package backend

import (
	"context"
	"errors"
	"fmt"

	"debts/internal/amqp"
	"debts/internal/core"
	"debts/internal/log"
	"debts/internal/services"
	"debts/internal/storage"
	"debts/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	clock  core.Clock
}

// NewFactory creates a new backend factory. A nil clock means wall time.
func NewFactory(logger *log.Logger, clock core.Clock) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
		clock:  clock,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	repo, err := f.createRepository(config)
	if err != nil {
		return nil, err
	}

	events := f.createEvents(ctx, config)

	opts := services.Options{
		Clock:              f.clock,
		Processor:          config.Processor,
		Logger:             f.logger,
		SummaryConcurrency: config.SummaryConcurrency,
	}
	if events != nil {
		opts.Publisher = events
	}
	svc := services.NewDebtService(repo, opts)

	f.logger.InfoContext(ctx, "Initialized backend",
		"type", config.Type.String(),
		"amqp_enabled", events != nil)

	return &BackendResult{
		Service: svc,
		Repo:    repo,
		Events:  events,
		Cleanup: func() error {
			var errs []error
			if events != nil {
				errs = append(errs, events.Close())
			}
			errs = append(errs, svc.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createRepository(config Config) (storage.Repository, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, config.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite record store", "db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized in-memory record store")
		return memory.New(config.Storage), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// createEvents connects the optional publisher. A broker that cannot be
// reached disables events instead of failing startup.
func (f *DefaultFactory) createEvents(ctx context.Context, config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without payment events",
			log.FieldError, err.Error())
		return nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		log.FieldQueue, config.AMQPQueue)
	return client
}

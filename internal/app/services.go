package app

import (
	"context"
	"errors"
	"strings"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	domainstrategy "github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/erp/stockledger/internal/infrastructure/broadcast"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"github.com/erp/stockledger/internal/infrastructure/jobs"
	"github.com/erp/stockledger/internal/infrastructure/notification"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/scheduler"
	"github.com/erp/stockledger/internal/infrastructure/strategy"
)

// Services is the wired application layer
type Services struct {
	Ledger       *appinv.StockLedger
	Reservations *appinv.ReservationManager
	Levels       *appinv.StockLevelService
	Batches      *appinv.BatchTracker
	Valuation    *appinv.ValuationEngine
	Alerts       *appinv.AlertEngine

	Bus  *event.InMemoryEventBus
	Jobs *jobs.Client

	idempotency shared.IdempotencyStore
}

// NewServices builds every ledger service on rt and subscribes the event
// handlers. With Redis configured, idempotency keys live in Redis, stock
// changes are broadcast, alerts are also published and scheduled movements
// go through the job queue.
func NewServices(rt *Runtime) (*Services, error) {
	cfg := rt.Config
	log := rt.Logger
	repos := persistence.NewRepositories(rt.DB.DB,
		persistence.WithLowStockSource(inventory.LowStockThresholdSource(cfg.Ledger.LowStockThresholdSource)))
	clock := shared.SystemClock{}
	redisClient := rt.RedisClient()

	store, err := cache.NewIdempotencyStoreFactory(
		cache.WithLogger(log),
		cache.WithKeyPrefix(cfg.Redis.KeyPrefix+"idem:"),
	).CreateStore(redisClient)
	if err != nil {
		return nil, err
	}

	registry, err := strategy.NewRegistryWithDefaults(
		domainstrategy.ValuationMethod(strings.ToUpper(cfg.Ledger.ValuationDefaultMethod)))
	if err != nil {
		return nil, err
	}

	s := &Services{
		Bus:         event.NewInMemoryEventBus(log),
		idempotency: store,
	}

	s.Ledger = appinv.NewStockLedger(repos.Scope, repos.Movements, repos.StockLevels, clock, appinv.LedgerOptions{
		BulkMaxItems:    cfg.Ledger.BulkMaxItems,
		BulkConcurrency: cfg.Ledger.BulkConcurrency,
		IdempotencyTTL:  cfg.Ledger.IdempotencyTTL,
		StuckAfter:      cfg.Ledger.StuckAfter,
	}, log)
	s.Ledger.SetIdempotencyStore(store)

	s.Reservations = appinv.NewReservationManager(repos.Scope, repos.Reservations, clock,
		cfg.Ledger.ReservationDefaultTTL, log)
	s.Levels = appinv.NewStockLevelService(repos.StockLevels, repos.Scope, clock, log)
	s.Batches = appinv.NewBatchTracker(repos.Scope, repos.Batches, repos.BatchHistory, clock, log)
	s.Valuation = appinv.NewValuationEngine(repos.Movements, repos.Valuations, registry, clock, log)
	s.Alerts = appinv.NewAlertEngine(repos.Scope, repos.StockLevels, repos.Batches, repos.Alerts, clock, appinv.AlertOptions{
		ExpiryWindow: cfg.Ledger.ExpiryWarningWindow(),
	}, log)

	sinks := []notification.Sink{notification.NewLogNotifier(log)}
	if redisClient != nil {
		sinks = append(sinks, notification.NewRedisNotifier(redisClient, cfg.Redis.AlertChannel))
		s.Jobs = jobs.NewClient(rt.AsynqOpt(), cfg.Worker.MaxRetry, log)
		s.Ledger.SetJobScheduler(s.Jobs)
	}
	s.Alerts.SetNotifier(notification.NewMultiNotifier(sinks...))

	for _, svc := range []interface {
		SetEventPublisher(shared.EventPublisher)
	}{s.Ledger, s.Reservations, s.Levels, s.Batches, s.Alerts} {
		svc.SetEventPublisher(s.Bus)
	}
	s.Ledger.SetMetrics(rt.LedgerMetrics)
	s.Reservations.SetMetrics(rt.LedgerMetrics)
	s.Alerts.SetMetrics(rt.LedgerMetrics)
	s.Valuation.SetMetrics(rt.LedgerMetrics)
	s.Batches.SetMetrics(rt.LedgerMetrics)

	alertHandler := appinv.NewAlertEventHandler(s.Alerts, log)
	if cfg.Ledger.AsyncAlerts && s.Jobs != nil {
		alertHandler = alertHandler.WithJobScheduler(s.Jobs)
	}
	s.Bus.Subscribe(alertHandler)

	if redisClient != nil {
		publisher := broadcast.NewStockUpdatePublisher(redisClient, cfg.Redis.StockChannel, log)
		s.Bus.Subscribe(event.NewIdempotentHandler(publisher, store, log,
			event.WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: true, TTL: cfg.Ledger.IdempotencyTTL}),
			event.WithLedgerMetrics(rt.LedgerMetrics)))
	}

	return s, nil
}

// SchedulerTasks returns the periodic sweeps the ledger needs
func (s *Services) SchedulerTasks(rt *Runtime) []scheduler.Task {
	l := rt.Config.Ledger
	return []scheduler.Task{
		scheduler.ReservationExpiryTask(s.Reservations, l.SweepInterval),
		scheduler.BatchExpiryTask(s.Batches, l.BatchSweepInterval),
		scheduler.AlertScanTask(s.Alerts, l.AlertScanInterval),
		scheduler.DueMovementsTask(s.Ledger, l.SweepInterval),
		scheduler.StuckMovementsTask(s.Ledger, l.SweepInterval),
	}
}

// Start starts the event bus
func (s *Services) Start(ctx context.Context) error {
	return s.Bus.Start(ctx)
}

// Close stops the bus and releases the job client and idempotency store
func (s *Services) Close(ctx context.Context) error {
	errs := []error{s.Bus.Stop(ctx), s.idempotency.Close()}
	if s.Jobs != nil {
		errs = append(errs, s.Jobs.Close())
	}
	return errors.Join(errs...)
}

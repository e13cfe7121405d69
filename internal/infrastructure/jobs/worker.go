package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// WorkerConfig collects what the worker needs to start
type WorkerConfig struct {
	RedisOpt        asynq.RedisConnOpt
	Concurrency     int
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
	Handlers        *Handlers
}

// Worker wraps the asynq server serving ledger tasks
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewWorker constructs a Worker
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Handlers == nil {
		return nil, errors.New("worker: handlers are required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	logger := cfg.Logger.Named("asynq")

	srv := asynq.NewServer(cfg.RedisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueMovements: 6,
			QueueAlerts:    3,
		},
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("Task failed",
				zap.String("type", task.Type()),
				zap.Int("retry", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err),
			)
		}),
	})

	mux := asynq.NewServeMux()
	cfg.Handlers.Register(mux)

	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run processes tasks until ctx is cancelled, then shuts the server down,
// waiting up to the shutdown timeout for in-flight tasks
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	w.logger.Info("Job worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("Job worker stopped")
	return nil
}

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/stockledger/internal/app"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/jobs"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	if !cfg.Redis.Enabled() {
		panic("The job worker requires redis.host to be configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		panic("Failed to initialize runtime: " + err.Error())
	}
	log := rt.Logger.Named("worker")
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			log.Error("Error closing runtime", zap.Error(err))
		}
	}()

	services, err := app.NewServices(rt)
	if err != nil {
		log.Fatal("Failed to wire services", zap.Error(err))
	}
	if err := services.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := services.Close(context.Background()); err != nil {
			log.Error("Error stopping services", zap.Error(err))
		}
	}()

	handlers := jobs.NewHandlers(services.Ledger, services.Alerts, log)
	handlers.SetMetrics(rt.LedgerMetrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpt:        rt.AsynqOpt(),
		Concurrency:     cfg.Worker.Concurrency,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
		Logger:          log,
		Handlers:        handlers,
	})
	if err != nil {
		log.Fatal("Failed to create worker", zap.Error(err))
	}

	if err := worker.Run(ctx); err != nil {
		log.Error("Worker stopped with error", zap.Error(err))
		return
	}
	log.Info("Worker exited gracefully")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/stockledger/internal/app"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/scheduler"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/erp/stockledger/internal/interfaces/http/handler"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/erp/stockledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		panic("Failed to initialize runtime: " + err.Error())
	}
	log := rt.Logger
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			log.Error("Error closing runtime", zap.Error(err))
		}
	}()

	if cfg.Database.AutoMigrate || rt.DB.Driver == config.DriverSQLite {
		if err := rt.Migrate(ctx); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

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

	sched, err := scheduler.NewLedgerScheduler(scheduler.LedgerSchedulerConfig{
		Enabled:    cfg.Ledger.SchedulerEnabled,
		RunOnStart: true,
	}, log, services.SchedulerTasks(rt)...)
	if err != nil {
		log.Fatal("Failed to create scheduler", zap.Error(err))
	}
	sched.SetMetrics(rt.LedgerMetrics)
	if err := sched.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer func() {
		if err := sched.Stop(context.Background()); err != nil {
			log.Error("Error stopping scheduler", zap.Error(err))
		}
	}()

	engine, limiter, err := newEngine(rt)
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}
	if limiter != nil {
		defer limiter.Close()
	}

	router.NewRouter(engine).Register(
		handler.NewSystemHandler(cfg.App.Name, version).
			WithCheck("database", rt.PingDatabase).
			WithCheck("redis", rt.PingRedis),
		handler.NewMovementHandler(services.Ledger),
		handler.NewReservationHandler(services.Reservations),
		handler.NewStockLevelHandler(services.Levels),
		handler.NewBatchHandler(services.Batches, cfg.Ledger.ExpiryWarningDays),
		handler.NewValuationHandler(services.Valuation),
		handler.NewAlertHandler(services.Alerts),
	).Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serveErr:
		if err != nil {
			log.Error("Server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}
	log.Info("Server exited gracefully")
}

func newEngine(rt *app.Runtime) (*gin.Engine, *middleware.RateLimiter, error) {
	cfg := rt.Config

	metrics, err := telemetry.NewHTTPMetrics(rt.Meter)
	if err != nil {
		return nil, nil, err
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders

	engine, err := router.NewEngine(router.EngineOptions{
		Logger: rt.Logger,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		Metrics:        metrics,
		CORS:           cors,
		RateLimiter:    limiter,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		if limiter != nil {
			limiter.Close()
		}
		return nil, nil, err
	}
	return engine, limiter, nil
}

// Package app assembles the ledger's infrastructure and services for the
// server and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/migration"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/erp/stockledger/migrations"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Runtime holds the process-wide infrastructure: logging, telemetry, the
// database and the optional Redis connection.
type Runtime struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *persistence.Database
	Redis  *redis.Client

	Meter         metric.Meter
	LedgerMetrics *telemetry.LedgerMetrics

	tracer *telemetry.TracerProvider
	meters *telemetry.MeterProvider
	logs   *telemetry.LoggerProvider
}

// NewRuntime connects everything cfg describes. On error whatever was
// already opened is closed again.
func NewRuntime(ctx context.Context, cfg *config.Config) (rt *Runtime, err error) {
	rt = &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	bootLog := logger.New(logger.FromAppConfig(cfg.Log))
	telCfg := telemetry.FromAppConfig(cfg.Telemetry)

	if rt.logs, err = telemetry.NewLoggerProvider(ctx, telCfg, bootLog); err != nil {
		return rt, err
	}
	rt.Logger = logger.New(logger.FromAppConfig(cfg.Log), rt.logs.ZapCore(logger.ParseLevel(cfg.Log.Level)))

	if rt.tracer, err = telemetry.NewTracerProvider(ctx, telCfg, rt.Logger); err != nil {
		return rt, err
	}
	if rt.meters, err = telemetry.NewMeterProvider(ctx, telCfg, cfg.Telemetry.MetricsInterval, rt.Logger); err != nil {
		return rt, err
	}
	rt.Meter = rt.meters.Meter(cfg.Telemetry.ServiceName)
	if rt.LedgerMetrics, err = telemetry.NewLedgerMetrics(rt.Meter); err != nil {
		return rt, fmt.Errorf("failed to create ledger metrics: %w", err)
	}

	gormLog := logger.NewGormLogger(rt.Logger, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	if rt.DB, err = persistence.NewDatabase(&cfg.Database, gormLog); err != nil {
		return rt, err
	}
	if err = telemetry.RegisterDBTracing(rt.DB.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        rt.DB.Driver,
	}, rt.Logger); err != nil {
		return rt, fmt.Errorf("failed to register database tracing: %w", err)
	}

	if cfg.Redis.Enabled() {
		if rt.Redis, err = cache.NewRedisClient(ctx, cfg.Redis); err != nil {
			return rt, err
		}
	}

	rt.Logger.Info("Runtime initialized",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("database", rt.DB.Driver),
		zap.Bool("redis", rt.Redis != nil),
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
	)
	return rt, nil
}

// Migrate brings the schema up to date. SQLite uses GORM auto-migration;
// Postgres applies the embedded SQL migrations.
func (rt *Runtime) Migrate(ctx context.Context) error {
	if rt.DB.Driver == config.DriverSQLite {
		return persistence.AutoMigrate(ctx, rt.DB.DB)
	}

	sqlDB, err := rt.DB.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.NewFromFS(sqlDB, migrations.FS, rt.Logger)
	if err != nil {
		return err
	}
	// closing the migrator would close the shared *sql.DB
	return m.Up()
}

// RedisClient returns the Redis connection as an interface, nil when Redis
// is not configured
func (rt *Runtime) RedisClient() redis.UniversalClient {
	if rt.Redis == nil {
		return nil
	}
	return rt.Redis
}

// AsynqOpt returns the asynq connection options for the configured Redis
func (rt *Runtime) AsynqOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     rt.Config.Redis.Addr(),
		Password: rt.Config.Redis.Password,
		DB:       rt.Config.Redis.DB,
	}
}

// PingDatabase checks the database connection
func (rt *Runtime) PingDatabase(ctx context.Context) error {
	return rt.DB.Ping(ctx)
}

// PingRedis checks the Redis connection
func (rt *Runtime) PingRedis(ctx context.Context) error {
	if rt.Redis == nil {
		return nil
	}
	return rt.Redis.Ping(ctx).Err()
}

// Close releases every connection and flushes telemetry
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	if rt.DB != nil {
		errs = append(errs, rt.DB.Close())
	}
	if rt.meters != nil {
		errs = append(errs, rt.meters.Shutdown(ctx))
	}
	if rt.tracer != nil {
		errs = append(errs, rt.tracer.Shutdown(ctx))
	}
	if rt.logs != nil {
		errs = append(errs, rt.logs.Shutdown(ctx))
	}
	if rt.Logger != nil {
		_ = rt.Logger.Sync()
	}
	return errors.Join(errs...)
}

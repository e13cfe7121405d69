package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include query variables in spans (dev only)
	SlowQueryThresh time.Duration // queries above this are flagged on the span
	DBSystem        string
}

// RegisterDBTracing installs otelgorm plus slow query flagging on db
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	timer := &queryTimer{threshold: cfg.SlowQueryThresh}
	if err := timer.register(db); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

type queryStartKey struct{}

// queryTimer annotates the active span with row counts, errors and slowness
type queryTimer struct {
	threshold time.Duration
}

func (q *queryTimer) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (q *queryTimer) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > q.threshold {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}

func (q *queryTimer) register(db *gorm.DB) error {
	cb := db.Callback()
	regs := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("ledger_timing:before_create", q.before) },
		func() error { return cb.Query().Before("gorm:query").Register("ledger_timing:before_query", q.before) },
		func() error { return cb.Update().Before("gorm:update").Register("ledger_timing:before_update", q.before) },
		func() error { return cb.Delete().Before("gorm:delete").Register("ledger_timing:before_delete", q.before) },
		func() error { return cb.Row().Before("gorm:row").Register("ledger_timing:before_row", q.before) },
		func() error { return cb.Raw().Before("gorm:raw").Register("ledger_timing:before_raw", q.before) },
		func() error { return cb.Create().After("gorm:create").Register("ledger_timing:after_create", q.after) },
		func() error { return cb.Query().After("gorm:query").Register("ledger_timing:after_query", q.after) },
		func() error { return cb.Update().After("gorm:update").Register("ledger_timing:after_update", q.after) },
		func() error { return cb.Delete().After("gorm:delete").Register("ledger_timing:after_delete", q.after) },
		func() error { return cb.Row().After("gorm:row").Register("ledger_timing:after_row", q.after) },
		func() error { return cb.Raw().After("gorm:raw").Register("ledger_timing:after_raw", q.after) },
	}
	for _, reg := range regs {
		if err := reg(); err != nil {
			return err
		}
	}
	return nil
}

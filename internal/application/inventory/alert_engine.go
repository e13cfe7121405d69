package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Alert metric actions
const (
	alertRaised       = "raised"
	alertResolved     = "resolved"
	alertDeduplicated = "deduplicated"
	alertAcknowledged = "acknowledged"
	alertNotifyFailed = "notify_failed"
)

const defaultScanBatchSize = 200

// AlertOptions tunes the AlertEngine. The LOW_STOCK threshold comes from
// each StockLevel row.
type AlertOptions struct {
	ExpiryWindow time.Duration
}

// DefaultAlertOptions returns a 7 day expiry window
func DefaultAlertOptions() AlertOptions {
	return AlertOptions{
		ExpiryWindow: 7 * 24 * time.Hour,
	}
}

// AlertEngine keeps at most one open alert per (type, item, location) and
// resolves it once the condition clears. New alerts are forwarded to the
// notifier after they commit.
type AlertEngine struct {
	scope          TransactionScope
	levels         inventory.StockLevelRepository
	batches        inventory.BatchRepository
	alerts         inventory.StockAlertRepository
	clock          shared.Clock
	opts           AlertOptions
	notifier       Notifier
	eventPublisher shared.EventPublisher
	metrics        *telemetry.LedgerMetrics
	logger         *zap.Logger
}

// NewAlertEngine creates a new AlertEngine
func NewAlertEngine(
	scope TransactionScope,
	levels inventory.StockLevelRepository,
	batches inventory.BatchRepository,
	alerts inventory.StockAlertRepository,
	clock shared.Clock,
	opts AlertOptions,
	logger *zap.Logger,
) *AlertEngine {
	d := DefaultAlertOptions()
	if opts.ExpiryWindow <= 0 {
		opts.ExpiryWindow = d.ExpiryWindow
	}
	return &AlertEngine{
		scope:   scope,
		levels:  levels,
		batches: batches,
		alerts:  alerts,
		clock:   clock,
		opts:    opts,
		logger:  logger,
	}
}

// SetNotifier sets the sink new alerts are forwarded to
func (e *AlertEngine) SetNotifier(notifier Notifier) {
	e.notifier = notifier
}

// SetEventPublisher sets the event publisher for publishing domain events
func (e *AlertEngine) SetEventPublisher(publisher shared.EventPublisher) {
	e.eventPublisher = publisher
}

// SetMetrics sets the ledger metrics recorder
func (e *AlertEngine) SetMetrics(metrics *telemetry.LedgerMetrics) {
	e.metrics = metrics
}

// EvaluationResult summarizes one evaluation pass
type EvaluationResult struct {
	Raised       []AlertResponse `json:"raised"`
	Resolved     []AlertResponse `json:"resolved"`
	Refreshed    int             `json:"refreshed"`
	Deduplicated int             `json:"deduplicated"`
}

func (r *EvaluationResult) merge(o *EvaluationResult) {
	r.Raised = append(r.Raised, o.Raised...)
	r.Resolved = append(r.Resolved, o.Resolved...)
	r.Refreshed += o.Refreshed
	r.Deduplicated += o.Deduplicated
}

// Evaluate re-checks every alert condition of one (item, location).
// Evaluating twice with no change in between opens no second alert.
func (e *AlertEngine) Evaluate(ctx context.Context, itemID, locationID uuid.UUID) (*EvaluationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "alert", "evaluate",
		telemetry.AttrItemID, itemID.String(),
		telemetry.AttrLocationID, locationID.String(),
	)
	defer span.End()

	var conditions []inventory.AlertCondition
	level, err := e.levels.FindByKey(ctx, itemID, locationID)
	switch {
	case err == nil:
		conditions = inventory.EvaluateStockConditions(level)
	case !errors.Is(err, shared.ErrNotFound):
		telemetry.RecordError(span, err)
		return nil, err
	}

	expiry, err := e.expiryCondition(ctx, itemID, locationID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	conditions = append(conditions, expiry)

	result, err := e.applyConditions(ctx, conditions)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

func (e *AlertEngine) evaluateLevel(ctx context.Context, level *inventory.StockLevel) (*EvaluationResult, error) {
	conditions := inventory.EvaluateStockConditions(level)
	expiry, err := e.expiryCondition(ctx, level.ItemID, level.LocationID)
	if err != nil {
		return nil, err
	}
	return e.applyConditions(ctx, append(conditions, expiry))
}

func (e *AlertEngine) expiryCondition(ctx context.Context, itemID, locationID uuid.UUID) (inventory.AlertCondition, error) {
	batches, err := e.batches.FindActiveByItemLocation(ctx, itemID, locationID)
	if err != nil {
		return inventory.AlertCondition{}, err
	}
	return inventory.EvaluateExpiryCondition(itemID, locationID, batches, e.clock.Now(), e.opts.ExpiryWindow), nil
}

func (e *AlertEngine) applyConditions(ctx context.Context, conditions []inventory.AlertCondition) (*EvaluationResult, error) {
	result := &EvaluationResult{}
	for _, c := range conditions {
		r, err := e.applyCondition(ctx, c)
		if err != nil {
			return result, err
		}
		result.merge(r)
	}
	return result, nil
}

// applyCondition opens, refreshes or resolves the alert of one triple in its
// own transaction. A unique violation means a concurrent evaluation opened
// the alert first and is treated as a no-op.
func (e *AlertEngine) applyCondition(ctx context.Context, c inventory.AlertCondition) (*EvaluationResult, error) {
	result := &EvaluationResult{}
	var (
		raised *inventory.StockAlert
		events pendingEvents
	)
	err := e.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		events = pendingEvents{}
		raised = nil
		result = &EvaluationResult{}

		existing, err := repos.Alerts().FindOpen(ctx, c.Type, c.ItemID, c.LocationID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		now := e.clock.Now()

		switch {
		case c.Breached && existing == nil:
			a, err := inventory.NewStockAlert(c, now)
			if err != nil {
				return err
			}
			if err := repos.Alerts().Create(ctx, a); err != nil {
				return err
			}
			events.collect(a)
			raised = a
			result.Raised = append(result.Raised, ToAlertResponse(a))

		case c.Breached:
			if existing.Refresh(c, now) {
				if err := repos.Alerts().Save(ctx, existing); err != nil {
					return err
				}
				result.Refreshed++
			}

		case existing != nil:
			if err := existing.Resolve("", now); err != nil {
				return err
			}
			if err := repos.Alerts().Save(ctx, existing); err != nil {
				return err
			}
			events.collect(existing)
			result.Resolved = append(result.Resolved, ToAlertResponse(existing))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			e.metrics.Alert(ctx, string(c.Type), alertDeduplicated)
			return &EvaluationResult{Deduplicated: 1}, nil
		}
		return nil, err
	}

	for range result.Resolved {
		e.metrics.Alert(ctx, string(c.Type), alertResolved)
		logger.Enrich(ctx, e.logger).Info("Stock alert resolved",
			zap.String("alert_type", string(c.Type)),
			zap.String("item_id", c.ItemID.String()),
			zap.String("location_id", c.LocationID.String()),
		)
	}
	if raised != nil {
		e.metrics.Alert(ctx, string(raised.Type), alertRaised)
		logger.Enrich(ctx, e.logger).Info("Stock alert raised",
			zap.String("alert_id", raised.ID.String()),
			zap.String("alert_type", string(raised.Type)),
			zap.String("item_id", raised.ItemID.String()),
			zap.String("location_id", raised.LocationID.String()),
			zap.Int64("current_quantity", raised.CurrentQuantity),
			zap.Int64("threshold_quantity", raised.ThresholdQuantity),
		)
		e.notify(ctx, raised)
	}
	events.publish(ctx, e.eventPublisher, e.logger)
	return result, nil
}

// notify forwards an alert to the notifier. Failures are logged and counted
// and never reach the caller.
func (e *AlertEngine) notify(ctx context.Context, a *inventory.StockAlert) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, a); err != nil {
		e.metrics.Alert(ctx, string(a.Type), alertNotifyFailed)
		logger.Enrich(ctx, e.logger).Warn("Failed to deliver alert notification",
			zap.String("alert_id", a.ID.String()),
			zap.String("alert_type", string(a.Type)),
			zap.Error(err),
		)
	}
}

// RaiseMovementFailed opens a MOVEMENT_FAILED alert for a location the
// failed movement touched
func (e *AlertEngine) RaiseMovementFailed(ctx context.Context, movementID, itemID, locationID uuid.UUID, reason string) (*EvaluationResult, error) {
	id := movementID
	return e.applyCondition(ctx, inventory.AlertCondition{
		Type:       inventory.AlertTypeMovementFailed,
		ItemID:     itemID,
		LocationID: locationID,
		Breached:   true,
		SourceID:   &id,
		Message:    fmt.Sprintf("Movement %s for item %s at location %s failed: %s", movementID, itemID, locationID, reason),
	})
}

// ResolveMovementFailed closes the MOVEMENT_FAILED alert of a location, if any
func (e *AlertEngine) ResolveMovementFailed(ctx context.Context, itemID, locationID uuid.UUID) (*EvaluationResult, error) {
	return e.applyCondition(ctx, inventory.AlertCondition{
		Type:       inventory.AlertTypeMovementFailed,
		ItemID:     itemID,
		LocationID: locationID,
	})
}

// AlertScanStats contains statistics about a full alert scan
type AlertScanStats struct {
	Scanned     int       `json:"scanned"`
	Raised      int       `json:"raised"`
	Resolved    int       `json:"resolved"`
	Failed      int       `json:"failed"`
	ProcessedAt time.Time `json:"processed_at"`
}

// EvaluateAll re-evaluates every stock level. Used by the periodic scan to
// catch conditions that change without a stock mutation, such as batches
// entering the expiry window.
func (e *AlertEngine) EvaluateAll(ctx context.Context) (*AlertScanStats, error) {
	stats := &AlertScanStats{ProcessedAt: e.clock.Now()}

	err := e.levels.ScanAll(ctx, defaultScanBatchSize, func(levels []inventory.StockLevel) error {
		for i := range levels {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats.Scanned++
			r, err := e.evaluateLevel(ctx, &levels[i])
			if err != nil {
				stats.Failed++
				e.logger.Error("Failed to evaluate stock alerts",
					zap.String("item_id", levels[i].ItemID.String()),
					zap.String("location_id", levels[i].LocationID.String()),
					zap.Error(err),
				)
				continue
			}
			stats.Raised += len(r.Raised)
			stats.Resolved += len(r.Resolved)
		}
		return nil
	})
	if err != nil {
		e.logger.Error("Alert scan aborted", zap.Int("scanned", stats.Scanned), zap.Error(err))
		return stats, err
	}

	e.logger.Info("Completed alert scan",
		zap.Int("scanned", stats.Scanned),
		zap.Int("raised", stats.Raised),
		zap.Int("resolved", stats.Resolved),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// Acknowledge records that an operator has seen an ACTIVE alert
func (e *AlertEngine) Acknowledge(ctx context.Context, id uuid.UUID, by string) (*AlertResponse, error) {
	a, err := e.transition(ctx, "acknowledge", id, func(a *inventory.StockAlert, now time.Time) error {
		return a.Acknowledge(by, now)
	})
	if err != nil {
		return nil, err
	}
	e.metrics.Alert(ctx, string(a.Type), alertAcknowledged)
	resp := ToAlertResponse(a)
	return &resp, nil
}

// Resolve closes an open alert on operator request
func (e *AlertEngine) Resolve(ctx context.Context, id uuid.UUID, by string) (*AlertResponse, error) {
	if by == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "resolvedBy is required")
	}
	a, err := e.transition(ctx, "resolve", id, func(a *inventory.StockAlert, now time.Time) error {
		return a.Resolve(by, now)
	})
	if err != nil {
		return nil, err
	}
	e.metrics.Alert(ctx, string(a.Type), alertResolved)
	resp := ToAlertResponse(a)
	return &resp, nil
}

func (e *AlertEngine) transition(ctx context.Context, op string, id uuid.UUID, fn func(*inventory.StockAlert, time.Time) error) (*inventory.StockAlert, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "alert", op, "alert_id", id.String())
	defer span.End()

	var (
		updated *inventory.StockAlert
		events  pendingEvents
	)
	err := e.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		events = pendingEvents{}
		a, err := repos.Alerts().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(a, e.clock.Now()); err != nil {
			return err
		}
		if err := repos.Alerts().Save(ctx, a); err != nil {
			return err
		}
		events.collect(a)
		updated = a
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.Enrich(ctx, e.logger).Info("Stock alert "+op+"d",
		zap.String("alert_id", id.String()),
		zap.String("status", string(updated.Status)),
	)
	events.publish(ctx, e.eventPublisher, e.logger)
	return updated, nil
}

// Get returns one alert
func (e *AlertEngine) Get(ctx context.Context, id uuid.UUID) (*AlertResponse, error) {
	a, err := e.alerts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToAlertResponse(a)
	return &resp, nil
}

// List returns a page of alerts
func (e *AlertEngine) List(ctx context.Context, filter AlertListFilter) (*shared.Paginated[AlertResponse], error) {
	f := listFilter(filter.Page, filter.PageSize, filter.OrderBy, filter.OrderDir)
	alerts, total, err := e.alerts.FindAll(ctx, inventory.AlertFilter{
		Filter:     f,
		ItemID:     filter.ItemID,
		LocationID: filter.LocationID,
		Type:       inventory.AlertType(filter.Type),
		Status:     inventory.AlertStatus(filter.Status),
		OpenOnly:   filter.OpenOnly,
	})
	if err != nil {
		return nil, err
	}
	page := shared.NewPaginated(ToAlertResponses(alerts), total, f.Page, f.Limit())
	return &page, nil
}

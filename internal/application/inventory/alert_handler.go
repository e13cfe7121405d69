package inventory

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertEvaluator is the part of the AlertEngine the event handler drives
type AlertEvaluator interface {
	Evaluate(ctx context.Context, itemID, locationID uuid.UUID) (*EvaluationResult, error)
	RaiseMovementFailed(ctx context.Context, movementID, itemID, locationID uuid.UUID, reason string) (*EvaluationResult, error)
	ResolveMovementFailed(ctx context.Context, itemID, locationID uuid.UUID) (*EvaluationResult, error)
}

// AlertEventHandler re-evaluates alerts whenever stock changes. It is
// subscribed to the event bus and runs after the triggering transaction
// has committed.
type AlertEventHandler struct {
	logger    *zap.Logger
	evaluator AlertEvaluator
	jobs      JobScheduler
}

// NewAlertEventHandler creates a new handler for stock change events
func NewAlertEventHandler(evaluator AlertEvaluator, logger *zap.Logger) *AlertEventHandler {
	return &AlertEventHandler{
		logger:    logger,
		evaluator: evaluator,
	}
}

// WithJobScheduler hands stock level evaluations to the job queue instead of
// running them inline
func (h *AlertEventHandler) WithJobScheduler(jobs JobScheduler) *AlertEventHandler {
	h.jobs = jobs
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *AlertEventHandler) EventTypes() []string {
	return []string{
		inventory.EventTypeStockLevelChanged,
		inventory.EventTypeMovementFailed,
		inventory.EventTypeMovementCompleted,
		inventory.EventTypeBatchExpired,
	}
}

// Handle dispatches on the event type
func (h *AlertEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *inventory.StockLevelChangedEvent:
		return h.onStockLevelChanged(ctx, e)
	case *inventory.MovementFailedEvent:
		return h.onMovementFailed(ctx, e)
	case *inventory.MovementCompletedEvent:
		return h.onMovementCompleted(ctx, e)
	case *inventory.BatchExpiredEvent:
		_, err := h.evaluator.Evaluate(ctx, e.ItemID, e.LocationID)
		return err
	default:
		h.logger.Error("unexpected event type",
			zap.Strings("expected", h.EventTypes()),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}
}

func (h *AlertEventHandler) onStockLevelChanged(ctx context.Context, e *inventory.StockLevelChangedEvent) error {
	// Holds do not move on-hand quantity, which is all the stock alerts look at.
	if e.Cause == inventory.StockChangeReserved || e.Cause == inventory.StockChangeReleased {
		return nil
	}

	if h.jobs != nil {
		err := h.jobs.EnqueueAlertEvaluation(ctx, e.ItemID, e.LocationID)
		if err == nil {
			return nil
		}
		h.logger.Warn("failed to enqueue alert evaluation, evaluating inline",
			zap.String("item_id", e.ItemID.String()),
			zap.String("location_id", e.LocationID.String()),
			zap.Error(err),
		)
	}
	_, err := h.evaluator.Evaluate(ctx, e.ItemID, e.LocationID)
	return err
}

func (h *AlertEventHandler) onMovementFailed(ctx context.Context, e *inventory.MovementFailedEvent) error {
	var firstErr error
	for _, loc := range e.Locations {
		if _, err := h.evaluator.RaiseMovementFailed(ctx, e.MovementID, e.ItemID, loc, e.Reason); err != nil {
			h.logger.Error("failed to raise movement failure alert",
				zap.String("movement_id", e.MovementID.String()),
				zap.String("location_id", loc.String()),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// onMovementCompleted clears MOVEMENT_FAILED alerts once a later movement
// for the same item and location goes through
func (h *AlertEventHandler) onMovementCompleted(ctx context.Context, e *inventory.MovementCompletedEvent) error {
	for _, loc := range []*uuid.UUID{e.FromLocationID, e.ToLocationID} {
		if loc == nil {
			continue
		}
		if _, err := h.evaluator.ResolveMovementFailed(ctx, e.ItemID, *loc); err != nil {
			return err
		}
	}
	return nil
}

var _ shared.EventHandler = (*AlertEventHandler)(nil)

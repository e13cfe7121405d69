package jobs

import (
	"context"
	"fmt"

	appinventory "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// MovementProcessor processes an approved movement
type MovementProcessor interface {
	Process(ctx context.Context, id uuid.UUID) (*appinventory.MovementResponse, error)
}

// StockAlertEvaluator evaluates alerts for one stock level
type StockAlertEvaluator interface {
	Evaluate(ctx context.Context, itemID, locationID uuid.UUID) (*appinventory.EvaluationResult, error)
}

// Handlers holds the asynq handlers for ledger tasks
type Handlers struct {
	movements MovementProcessor
	alerts    StockAlertEvaluator
	logger    *zap.Logger
	metrics   *telemetry.LedgerMetrics
}

// NewHandlers creates task handlers backed by the ledger services
func NewHandlers(movements MovementProcessor, alerts StockAlertEvaluator, logger *zap.Logger) *Handlers {
	return &Handlers{movements: movements, alerts: alerts, logger: logger}
}

// SetMetrics sets the metrics recorder for job runs
func (h *Handlers) SetMetrics(metrics *telemetry.LedgerMetrics) {
	h.metrics = metrics
}

// Register attaches every handler to mux
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskMovementProcess, h.HandleMovementProcess)
	mux.HandleFunc(TaskAlertEvaluate, h.HandleAlertEvaluate)
}

// HandleMovementProcess processes the movement named by the task.
//
// A movement another worker already claimed or finished is done. Business
// failures leave the movement FAILED with an alert raised and are not
// retried; infrastructure errors and lost races are.
func (h *Handlers) HandleMovementProcess(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { h.metrics.JobRun(ctx, TaskMovementProcess, err) }()

	payload, err := decodePayload[MovementProcessPayload](t)
	if err != nil {
		return err
	}

	_, err = h.movements.Process(ctx, payload.MovementID)
	switch code := shared.CodeOf(err); {
	case err == nil:
		return nil
	case code == shared.CodeInvalidMovementState:
		h.logger.Info("Movement no longer processable, dropping task",
			zap.String("movement_id", payload.MovementID.String()),
			zap.Error(err),
		)
		return nil
	case code == "" || code == shared.CodeConcurrencyConflict:
		return err
	default:
		h.logger.Warn("Scheduled movement failed",
			zap.String("movement_id", payload.MovementID.String()),
			zap.String("code", code),
			zap.Error(err),
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
}

// HandleAlertEvaluate re-evaluates alerts for the task's stock level
func (h *Handlers) HandleAlertEvaluate(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { h.metrics.JobRun(ctx, TaskAlertEvaluate, err) }()

	payload, err := decodePayload[AlertEvaluatePayload](t)
	if err != nil {
		return err
	}
	_, err = h.alerts.Evaluate(ctx, payload.ItemID, payload.LocationID)
	return err
}

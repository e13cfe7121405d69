// Package jobs runs ledger work on the asynq background queue: deferred
// processing of scheduled movements and asynchronous alert evaluation.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueMovements carries movement processing, weighted above alerts
	QueueMovements = "movements"
	// QueueAlerts carries alert evaluation
	QueueAlerts = "alerts"

	// TaskMovementProcess processes one approved movement
	TaskMovementProcess = "movement:process"
	// TaskAlertEvaluate re-evaluates alerts for one (item, location)
	TaskAlertEvaluate = "alert:evaluate"
)

// alertUniqueFor collapses bursts of evaluations for the same key
const alertUniqueFor = 30 * time.Second

// MovementProcessPayload identifies the movement to process
type MovementProcessPayload struct {
	MovementID uuid.UUID `json:"movement_id"`
}

// AlertEvaluatePayload identifies the stock level to evaluate
type AlertEvaluatePayload struct {
	ItemID     uuid.UUID `json:"item_id"`
	LocationID uuid.UUID `json:"location_id"`
}

// NewMovementProcessTask builds the task for a movement. The task ID is
// derived from the movement so a movement is only ever queued once.
func NewMovementProcessTask(movementID uuid.UUID) (*asynq.Task, error) {
	body, err := json.Marshal(MovementProcessPayload{MovementID: movementID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMovementProcess, body,
		asynq.Queue(QueueMovements),
		asynq.TaskID(movementTaskID(movementID)),
	), nil
}

// NewAlertEvaluateTask builds the task for an alert evaluation
func NewAlertEvaluateTask(itemID, locationID uuid.UUID) (*asynq.Task, error) {
	body, err := json.Marshal(AlertEvaluatePayload{ItemID: itemID, LocationID: locationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertEvaluate, body,
		asynq.Queue(QueueAlerts),
		asynq.Unique(alertUniqueFor),
	), nil
}

func movementTaskID(id uuid.UUID) string {
	return fmt.Sprintf("movement:%s", id)
}

func decodePayload[T any](t *asynq.Task) (T, error) {
	var payload T
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("invalid %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}

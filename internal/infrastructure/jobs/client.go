package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	appinventory "github.com/erp/stockledger/internal/application/inventory"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// enqueuer is the part of *asynq.Client the Client uses
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client submits ledger jobs to the queue. It implements the application
// layer's JobScheduler.
type Client struct {
	client   enqueuer
	maxRetry int
	logger   *zap.Logger
}

// NewClient constructs a client on an asynq connection
func NewClient(redisOpt asynq.RedisConnOpt, maxRetry int, logger *zap.Logger) *Client {
	return newClient(asynq.NewClient(redisOpt), maxRetry, logger)
}

func newClient(e enqueuer, maxRetry int, logger *zap.Logger) *Client {
	return &Client{client: e, maxRetry: maxRetry, logger: logger}
}

// ScheduleMovement enqueues processing of movementID at the given time.
// Scheduling a movement that is already queued is a no-op.
func (c *Client) ScheduleMovement(ctx context.Context, movementID uuid.UUID, at time.Time) error {
	task, err := NewMovementProcessTask(movementID)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task, asynq.ProcessAt(at), asynq.MaxRetry(c.maxRetry))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		c.logger.Debug("Movement already scheduled", zap.String("movement_id", movementID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to schedule movement %s: %w", movementID, err)
	}

	c.logger.Info("Movement scheduled",
		zap.String("movement_id", movementID.String()),
		zap.Time("process_at", at),
		zap.String("task_id", info.ID),
	)
	return nil
}

// EnqueueAlertEvaluation enqueues alert evaluation for one stock level.
// A matching evaluation already waiting in the queue absorbs the request.
func (c *Client) EnqueueAlertEvaluation(ctx context.Context, itemID, locationID uuid.UUID) error {
	task, err := NewAlertEvaluateTask(itemID, locationID)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.MaxRetry(c.maxRetry))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue alert evaluation: %w", err)
	}
	return nil
}

// Close releases client resources
func (c *Client) Close() error {
	return c.client.Close()
}

var _ appinventory.JobScheduler = (*Client)(nil)

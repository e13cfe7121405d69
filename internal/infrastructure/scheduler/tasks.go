package scheduler

import (
	"context"
	"time"

	appinventory "github.com/erp/stockledger/internal/application/inventory"
)

// Task names, also used as the job label on metrics
const (
	TaskReservationExpiry = "reservation_expiry"
	TaskBatchExpiry       = "batch_expiry"
	TaskAlertScan         = "alert_scan"
	TaskDueMovements      = "due_movements"
	TaskStuckMovements    = "stuck_movements"
)

// movementBatchSize bounds how many movements a single due/stuck run touches
const movementBatchSize = 100

// ReservationSweeper releases reservations past their expiry
type ReservationSweeper interface {
	ReleaseExpired(ctx context.Context) (*appinventory.ExpiredReservationStats, error)
}

// BatchSweeper deactivates batches past their expiry date
type BatchSweeper interface {
	DeactivateExpired(ctx context.Context) (*appinventory.ExpiredBatchStats, error)
}

// AlertScanner re-evaluates alerts for every stock level
type AlertScanner interface {
	EvaluateAll(ctx context.Context) (*appinventory.AlertScanStats, error)
}

// MovementSweeper processes due scheduled movements and recovers stuck ones
type MovementSweeper interface {
	ProcessDue(ctx context.Context, limit int) (*appinventory.DueMovementStats, error)
	RecoverStuck(ctx context.Context, limit int) (int, error)
}

// ReservationExpiryTask releases expired reservations every interval
func ReservationExpiryTask(sweeper ReservationSweeper, interval time.Duration) Task {
	return Task{
		Name:     TaskReservationExpiry,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := sweeper.ReleaseExpired(ctx)
			return err
		},
	}
}

// BatchExpiryTask deactivates expired batches every interval
func BatchExpiryTask(sweeper BatchSweeper, interval time.Duration) Task {
	return Task{
		Name:     TaskBatchExpiry,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := sweeper.DeactivateExpired(ctx)
			return err
		},
	}
}

// AlertScanTask runs a full alert scan every interval
func AlertScanTask(scanner AlertScanner, interval time.Duration) Task {
	return Task{
		Name:     TaskAlertScan,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := scanner.EvaluateAll(ctx)
			return err
		},
	}
}

// DueMovementsTask processes scheduled movements whose time has come. Only
// needed when no job queue delivers them.
func DueMovementsTask(sweeper MovementSweeper, interval time.Duration) Task {
	return Task{
		Name:     TaskDueMovements,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := sweeper.ProcessDue(ctx, movementBatchSize)
			return err
		},
	}
}

// StuckMovementsTask fails movements stuck IN_PROGRESS every interval
func StuckMovementsTask(sweeper MovementSweeper, interval time.Duration) Task {
	return Task{
		Name:     TaskStuckMovements,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := sweeper.RecoverStuck(ctx, movementBatchSize)
			return err
		},
	}
}

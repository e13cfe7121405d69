package inventory

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier delivers newly raised alerts to an external sink.
// Delivery is best effort and never rolls back the alert.
type Notifier interface {
	Notify(ctx context.Context, alert *inventory.StockAlert) error
}

// JobScheduler hands work to the background job queue
type JobScheduler interface {
	// ScheduleMovement enqueues processing of an approved movement at the given time
	ScheduleMovement(ctx context.Context, movementID uuid.UUID, at time.Time) error

	// EnqueueAlertEvaluation enqueues re-evaluation of one (item, location)
	EnqueueAlertEvaluation(ctx context.Context, itemID, locationID uuid.UUID) error
}

// pendingEvents gathers the domain events raised inside a transaction so they
// can be published once it commits
type pendingEvents struct {
	events []shared.DomainEvent
}

func (p *pendingEvents) collect(aggregates ...shared.AggregateRoot) {
	for _, a := range aggregates {
		if a == nil {
			continue
		}
		p.events = append(p.events, a.GetDomainEvents()...)
		a.ClearDomainEvents()
	}
}

func (p *pendingEvents) add(events ...shared.DomainEvent) {
	p.events = append(p.events, events...)
}

// publish hands the collected events to publisher. Handler failures are
// logged by the bus and never reach the caller.
func (p *pendingEvents) publish(ctx context.Context, publisher shared.EventPublisher, logger *zap.Logger) {
	if publisher == nil || len(p.events) == 0 {
		return
	}
	if err := publisher.Publish(ctx, p.events...); err != nil {
		logger.Warn("Failed to publish domain events",
			zap.Int("count", len(p.events)),
			zap.Error(err),
		)
	}
	p.events = nil
}

// timed runs fn and returns how long it took
func timed(fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	return time.Since(start), err
}

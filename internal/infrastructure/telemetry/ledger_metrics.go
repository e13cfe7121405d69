package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName names the meter used for ledger instruments
const MeterName = "github.com/erp/stockledger"

// Metric attribute keys
var (
	AttrKeyMovementType = attribute.Key("movement_type")
	AttrKeyPriority     = attribute.Key("priority")
	AttrKeyOutcome      = attribute.Key("outcome")
	AttrKeyAction       = attribute.Key("action")
	AttrKeyAlertType    = attribute.Key("alert_type")
	AttrKeyMethod       = attribute.Key("method")
	AttrKeyJob          = attribute.Key("job")
	AttrKeyEventType    = attribute.Key("event_type")
)

// Outcomes recorded on counters
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeDuplicate = "duplicate"
)

// LedgerMetrics records stock ledger activity. A nil *LedgerMetrics is valid
// and records nothing.
type LedgerMetrics struct {
	movementsSubmitted metric.Int64Counter
	movementsProcessed metric.Int64Counter
	processDuration    metric.Float64Histogram
	reservations       metric.Int64Counter
	alerts             metric.Int64Counter
	valuations         metric.Int64Counter
	valuationDuration  metric.Float64Histogram
	batchesExpired     metric.Int64Counter
	jobRuns            metric.Int64Counter
	eventsHandled      metric.Int64Counter
}

// NewLedgerMetrics creates the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	m := &LedgerMetrics{}
	var err error

	if m.movementsSubmitted, err = meter.Int64Counter("stockledger.movements.submitted",
		metric.WithDescription("Movements accepted by submit"), metric.WithUnit("{movement}")); err != nil {
		return nil, fmt.Errorf("failed to create movements.submitted counter: %w", err)
	}
	if m.movementsProcessed, err = meter.Int64Counter("stockledger.movements.processed",
		metric.WithDescription("Movement processing attempts by outcome"), metric.WithUnit("{movement}")); err != nil {
		return nil, fmt.Errorf("failed to create movements.processed counter: %w", err)
	}
	if m.processDuration, err = meter.Float64Histogram("stockledger.movement.process.duration",
		metric.WithDescription("Time spent applying a movement"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(ProcessDurationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create process duration histogram: %w", err)
	}
	if m.reservations, err = meter.Int64Counter("stockledger.reservations",
		metric.WithDescription("Reservation transitions by action"), metric.WithUnit("{reservation}")); err != nil {
		return nil, fmt.Errorf("failed to create reservations counter: %w", err)
	}
	if m.alerts, err = meter.Int64Counter("stockledger.alerts",
		metric.WithDescription("Alerts raised and resolved"), metric.WithUnit("{alert}")); err != nil {
		return nil, fmt.Errorf("failed to create alerts counter: %w", err)
	}
	if m.valuations, err = meter.Int64Counter("stockledger.valuations",
		metric.WithDescription("Valuations computed by method"), metric.WithUnit("{valuation}")); err != nil {
		return nil, fmt.Errorf("failed to create valuations counter: %w", err)
	}
	if m.valuationDuration, err = meter.Float64Histogram("stockledger.valuation.duration",
		metric.WithDescription("Time spent replaying cost events"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(ProcessDurationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create valuation duration histogram: %w", err)
	}
	if m.batchesExpired, err = meter.Int64Counter("stockledger.batches.expired",
		metric.WithDescription("Batches deactivated by the expiry sweep"), metric.WithUnit("{batch}")); err != nil {
		return nil, fmt.Errorf("failed to create batches.expired counter: %w", err)
	}
	if m.jobRuns, err = meter.Int64Counter("stockledger.jobs",
		metric.WithDescription("Background job runs by outcome"), metric.WithUnit("{run}")); err != nil {
		return nil, fmt.Errorf("failed to create jobs counter: %w", err)
	}
	if m.eventsHandled, err = meter.Int64Counter("stockledger.events.handled",
		metric.WithDescription("Deduplicated event deliveries by outcome"), metric.WithUnit("{event}")); err != nil {
		return nil, fmt.Errorf("failed to create events.handled counter: %w", err)
	}
	return m, nil
}

// MovementSubmitted counts an accepted movement
func (m *LedgerMetrics) MovementSubmitted(ctx context.Context, movementType, priority string) {
	if m == nil {
		return
	}
	m.movementsSubmitted.Add(ctx, 1, metric.WithAttributes(
		AttrKeyMovementType.String(movementType), AttrKeyPriority.String(priority)))
}

// MovementProcessed counts a processing attempt and its duration
func (m *LedgerMetrics) MovementProcessed(ctx context.Context, movementType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrKeyMovementType.String(movementType), AttrKeyOutcome.String(outcome))
	m.movementsProcessed.Add(ctx, 1, attrs)
	m.processDuration.Record(ctx, d.Seconds(), attrs)
}

// Reservation counts a reservation transition (reserve, release, fulfill, expire)
func (m *LedgerMetrics) Reservation(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.reservations.Add(ctx, 1, metric.WithAttributes(AttrKeyAction.String(action)))
}

// Alert counts an alert transition (raised, resolved)
func (m *LedgerMetrics) Alert(ctx context.Context, alertType, action string) {
	if m == nil {
		return
	}
	m.alerts.Add(ctx, 1, metric.WithAttributes(AttrKeyAlertType.String(alertType), AttrKeyAction.String(action)))
}

// Valuation counts a computed valuation
func (m *LedgerMetrics) Valuation(ctx context.Context, method string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrKeyMethod.String(method))
	m.valuations.Add(ctx, 1, attrs)
	m.valuationDuration.Record(ctx, d.Seconds(), attrs)
}

// BatchesExpired counts batches retired by a sweep
func (m *LedgerMetrics) BatchesExpired(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.batchesExpired.Add(ctx, int64(n))
}

// JobRun counts a background job run
func (m *LedgerMetrics) JobRun(ctx context.Context, job string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.jobRuns.Add(ctx, 1, metric.WithAttributes(AttrKeyJob.String(job), AttrKeyOutcome.String(outcome)))
}

// EventHandled counts an event delivery seen by a deduplicating handler
// (completed, duplicate, failed)
func (m *LedgerMetrics) EventHandled(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	m.eventsHandled.Add(ctx, 1, metric.WithAttributes(
		AttrKeyEventType.String(eventType), AttrKeyOutcome.String(outcome)))
}

package event

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const eventKeyPrefix = "event:"

// IdempotentHandler wraps an EventHandler so each event ID is handled once,
// even when an event is delivered again after a retry
type IdempotentHandler struct {
	handler shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics *telemetry.LedgerMetrics
}

// IdempotentHandlerOption is a functional option for IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig sets how long event IDs are remembered and whether
// deduplication is on at all. A zero TTL keeps the default.
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		if config.TTL <= 0 {
			config.TTL = h.config.TTL
		}
		h.config = config
	}
}

// WithLedgerMetrics counts handled, duplicate and failed deliveries
func WithLedgerMetrics(metrics *telemetry.LedgerMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.metrics = metrics
	}
}

// NewIdempotentHandler creates a new idempotent handler wrapper
func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the wrapped handler's event types
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle claims the event ID and runs the wrapped handler. A store failure
// lets the event through. A handler failure releases the claim so a
// redelivery is handled again.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	eventID := event.EventID().String()
	key := eventKeyPrefix + eventID

	_, claimed, err := h.store.Remember(ctx, key, event.EventType(), h.config.TTL)
	if err != nil {
		h.logger.Warn("failed to check idempotency, processing anyway",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	} else if !claimed {
		h.metrics.EventHandled(ctx, event.EventType(), telemetry.OutcomeDuplicate)
		h.logger.Debug("duplicate event detected, skipping",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType()),
		)
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.metrics.EventHandled(ctx, event.EventType(), telemetry.OutcomeFailed)
		if ferr := h.store.Forget(context.WithoutCancel(ctx), key); ferr != nil {
			h.logger.Warn("failed to release idempotency claim",
				zap.String("event_id", eventID),
				zap.Error(ferr),
			)
		}
		return err
	}

	h.metrics.EventHandled(ctx, event.EventType(), telemetry.OutcomeCompleted)
	return nil
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)

// Package broadcast pushes stock level changes to Redis subscribers so that
// dashboards and downstream caches can follow the ledger in near real time.
package broadcast

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StockUpdatePublisher is an event handler that republishes StockLevelChanged
// events as serialized envelopes on a Redis channel.
type StockUpdatePublisher struct {
	client     redis.UniversalClient
	channel    string
	serializer *event.EventSerializer
	logger     *zap.Logger
}

// NewStockUpdatePublisher creates a publisher for channel
func NewStockUpdatePublisher(client redis.UniversalClient, channel string, logger *zap.Logger) *StockUpdatePublisher {
	return &StockUpdatePublisher{
		client:     client,
		channel:    channel,
		serializer: event.NewLedgerSerializer(),
		logger:     logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (p *StockUpdatePublisher) EventTypes() []string {
	return []string{inventory.EventTypeStockLevelChanged}
}

// Handle encodes and publishes the event
func (p *StockUpdatePublisher) Handle(ctx context.Context, e shared.DomainEvent) error {
	payload, err := p.serializer.Encode(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", e.EventType(), err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish stock update: %w", err)
	}

	p.logger.Debug("Stock update broadcast",
		zap.String("event_id", e.EventID().String()),
		zap.String("aggregate_id", e.AggregateID().String()),
		zap.Int64("receivers", receivers),
	)
	return nil
}

var _ shared.EventHandler = (*StockUpdatePublisher)(nil)

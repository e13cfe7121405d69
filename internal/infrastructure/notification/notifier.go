// Package notification delivers newly raised stock alerts to external sinks.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AlertMessage is the JSON document published for a new alert
type AlertMessage struct {
	AlertID           uuid.UUID  `json:"alert_id"`
	Type              string     `json:"type"`
	ItemID            uuid.UUID  `json:"item_id"`
	LocationID        uuid.UUID  `json:"location_id"`
	Message           string     `json:"message"`
	CurrentQuantity   int64      `json:"current_quantity"`
	ThresholdQuantity int64      `json:"threshold_quantity"`
	SourceID          *uuid.UUID `json:"source_id,omitempty"`
	RaisedAt          time.Time  `json:"raised_at"`
}

// NewAlertMessage converts an alert to its wire form
func NewAlertMessage(a *inventory.StockAlert) AlertMessage {
	return AlertMessage{
		AlertID:           a.ID,
		Type:              string(a.Type),
		ItemID:            a.ItemID,
		LocationID:        a.LocationID,
		Message:           a.Message,
		CurrentQuantity:   a.CurrentQuantity,
		ThresholdQuantity: a.ThresholdQuantity,
		SourceID:          a.SourceID,
		RaisedAt:          a.CreatedAt,
	}
}

// LogNotifier writes alerts to the log. Useful in development and as the
// fallback when Redis is not configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new logging notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the alert
func (n *LogNotifier) Notify(ctx context.Context, a *inventory.StockAlert) error {
	n.logger.Warn("STOCK ALERT",
		zap.String("alert_id", a.ID.String()),
		zap.String("type", string(a.Type)),
		zap.String("item_id", a.ItemID.String()),
		zap.String("location_id", a.LocationID.String()),
		zap.Int64("current_qty", a.CurrentQuantity),
		zap.Int64("threshold_qty", a.ThresholdQuantity),
		zap.String("message", a.Message),
	)
	return nil
}

// RedisNotifier publishes alerts as JSON on a Redis pub/sub channel
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisNotifier creates a notifier publishing to channel
func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Notify publishes the alert. Having no subscribers is not an error.
func (n *RedisNotifier) Notify(ctx context.Context, a *inventory.StockAlert) error {
	payload, err := json.Marshal(NewAlertMessage(a))
	if err != nil {
		return fmt.Errorf("failed to marshal alert %s: %w", a.ID, err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish alert %s to %s: %w", a.ID, n.channel, err)
	}
	return nil
}

// Sink is anything that accepts alert notifications
type Sink interface {
	Notify(ctx context.Context, a *inventory.StockAlert) error
}

// MultiNotifier fans an alert out to every sink. All sinks are attempted;
// the errors are joined.
type MultiNotifier struct {
	sinks []Sink
}

// NewMultiNotifier creates a notifier delivering to sinks in order
func NewMultiNotifier(sinks ...Sink) *MultiNotifier {
	return &MultiNotifier{sinks: sinks}
}

// Notify delivers to every sink
func (m *MultiNotifier) Notify(ctx context.Context, a *inventory.StockAlert) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BatchTracker registers dated batches and retires them once they expire
type BatchTracker struct {
	scope          TransactionScope
	batches        inventory.BatchRepository
	history        inventory.BatchHistoryRepository
	clock          shared.Clock
	sweepBatchSize int
	eventPublisher shared.EventPublisher
	metrics        *telemetry.LedgerMetrics
	logger         *zap.Logger
}

// NewBatchTracker creates a new BatchTracker
func NewBatchTracker(
	scope TransactionScope,
	batches inventory.BatchRepository,
	history inventory.BatchHistoryRepository,
	clock shared.Clock,
	logger *zap.Logger,
) *BatchTracker {
	return &BatchTracker{
		scope:          scope,
		batches:        batches,
		history:        history,
		clock:          clock,
		sweepBatchSize: defaultSweepBatchSize,
		logger:         logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (t *BatchTracker) SetEventPublisher(publisher shared.EventPublisher) {
	t.eventPublisher = publisher
}

// SetMetrics sets the ledger metrics recorder
func (t *BatchTracker) SetMetrics(metrics *telemetry.LedgerMetrics) {
	t.metrics = metrics
}

// CreateBatch registers a batch. When no batch number is given one is
// generated from the item, the manufacture date and a random suffix.
func (t *BatchTracker) CreateBatch(ctx context.Context, req CreateBatchRequest) (*BatchResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "batch", "create",
		telemetry.AttrItemID, req.ItemID.String(),
		telemetry.AttrLocationID, req.LocationID.String(),
	)
	defer span.End()

	now := t.clock.Now()
	number := strings.TrimSpace(req.BatchNumber)
	if number == "" && req.ItemID != uuid.Nil {
		number = inventory.GenerateBatchNumber(req.ItemID, req.ManufacturedDate, now, uuid.NewString()[:8])
	}
	params := inventory.BatchParams{
		ItemID:           req.ItemID,
		LocationID:       req.LocationID,
		BatchNumber:      number,
		Quantity:         req.Quantity,
		ManufacturedDate: req.ManufacturedDate,
		ExpiryDate:       req.ExpiryDate,
		SupplierID:       req.SupplierID,
	}
	if req.UnitCost != nil {
		params.UnitCost = decimal.NewNullDecimal(*req.UnitCost)
	}
	b, err := inventory.NewBatch(params, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	err = t.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		exists, err := repos.Batches().ExistsByItemAndNumber(ctx, b.ItemID, b.BatchNumber)
		if err != nil {
			return err
		}
		if exists {
			return inventory.NewDuplicateBatchError(b.ItemID, b.BatchNumber)
		}
		if err := repos.Batches().Create(ctx, b); err != nil {
			return err
		}
		return repos.BatchHistory().Append(ctx, inventory.NewBatchHistory(b, inventory.BatchActionCreated, "", now))
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.AttrBatchID, b.ID.String())
	logger.Enrich(ctx, t.logger).Info("Batch created",
		zap.String("batch_id", b.ID.String()),
		zap.String("batch_number", b.BatchNumber),
		zap.String("item_id", b.ItemID.String()),
		zap.Time("expiry_date", b.ExpiryDate),
		zap.Int64("quantity", b.Quantity),
	)
	resp := ToBatchResponse(b, now)
	return &resp, nil
}

// GetBatch returns one batch
func (t *BatchTracker) GetBatch(ctx context.Context, id uuid.UUID) (*BatchResponse, error) {
	b, err := t.batches.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToBatchResponse(b, t.clock.Now())
	return &resp, nil
}

// ListBatches returns every batch of an item, soonest expiry first
func (t *BatchTracker) ListBatches(ctx context.Context, itemID uuid.UUID) ([]BatchResponse, error) {
	batches, err := t.batches.FindByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return ToBatchResponses(batches, t.clock.Now()), nil
}

// History returns the state transitions of a batch, oldest first
func (t *BatchTracker) History(ctx context.Context, batchID uuid.UUID) ([]BatchHistoryResponse, error) {
	if _, err := t.batches.FindByID(ctx, batchID); err != nil {
		return nil, err
	}
	entries, err := t.history.FindByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return ToBatchHistoryResponses(entries), nil
}

// MaxExpiryWindowDays bounds the look-ahead of GetExpiringBatches
const MaxExpiryWindowDays = 36500

// GetExpiringBatches returns active batches expiring within the next
// withinDays days. Batches already past expiry are deactivated first.
func (t *BatchTracker) GetExpiringBatches(ctx context.Context, withinDays int) ([]BatchResponse, error) {
	if withinDays < 0 || withinDays > MaxExpiryWindowDays {
		return nil, shared.NewDomainErrorf(shared.CodeValidation,
			"withinDays must be between 0 and %d, got %d", MaxExpiryWindowDays, withinDays).
			WithDetail("within_days", withinDays)
	}

	if _, err := t.DeactivateExpired(ctx); err != nil {
		logger.Enrich(ctx, t.logger).Warn("Opportunistic batch expiry sweep failed", zap.Error(err))
	}

	now := t.clock.Now()
	batches, err := t.batches.FindExpiring(ctx, now, now.AddDate(0, 0, withinDays))
	if err != nil {
		return nil, err
	}
	return ToBatchResponses(batches, now), nil
}

// ExpiredBatchStats contains statistics about a batch expiry sweep
type ExpiredBatchStats struct {
	TotalExpired int       `json:"total_expired"`
	Deactivated  int       `json:"deactivated"`
	Failed       int       `json:"failed"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// DeactivateExpired retires every active batch whose expiry date has passed
// and records an EXPIRED history entry for each
func (t *BatchTracker) DeactivateExpired(ctx context.Context) (*ExpiredBatchStats, error) {
	now := t.clock.Now()
	stats := &ExpiredBatchStats{ProcessedAt: now}

	for {
		expired, err := t.batches.FindExpired(ctx, now, t.sweepBatchSize)
		if err != nil {
			t.logger.Error("Failed to find expired batches", zap.Error(err))
			return stats, err
		}
		stats.TotalExpired += len(expired)

		progressed := 0
		for i := range expired {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if err := t.deactivate(ctx, expired[i].ItemID, expired[i].BatchNumber, now); err != nil {
				stats.Failed++
				t.logger.Error("Failed to deactivate expired batch",
					zap.String("batch_id", expired[i].ID.String()),
					zap.String("batch_number", expired[i].BatchNumber),
					zap.Error(err),
				)
				continue
			}
			stats.Deactivated++
			progressed++
		}
		if len(expired) < t.sweepBatchSize || progressed == 0 {
			break
		}
	}

	if stats.TotalExpired == 0 {
		return stats, nil
	}
	t.metrics.BatchesExpired(ctx, stats.Deactivated)
	t.logger.Info("Completed batch expiry sweep",
		zap.Int("total", stats.TotalExpired),
		zap.Int("deactivated", stats.Deactivated),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (t *BatchTracker) deactivate(ctx context.Context, itemID uuid.UUID, number string, now time.Time) error {
	var events pendingEvents
	err := t.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		events = pendingEvents{}
		b, err := repos.Batches().FindByItemAndNumberForUpdate(ctx, itemID, number)
		if err != nil {
			return err
		}
		if !b.IsActive {
			return nil
		}
		entry, err := b.Deactivate(now)
		if err != nil {
			return err
		}
		if err := repos.Batches().Save(ctx, b); err != nil {
			return err
		}
		if err := repos.BatchHistory().Append(ctx, entry); err != nil {
			return err
		}
		events.collect(b)
		return nil
	})
	if err != nil {
		return err
	}
	events.publish(ctx, t.eventPublisher, t.logger)
	return nil
}

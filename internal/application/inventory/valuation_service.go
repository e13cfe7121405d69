package inventory

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ValuationStrategyProvider resolves a valuation method to its algorithm.
// An empty method selects the configured default.
type ValuationStrategyProvider interface {
	GetValuationStrategy(method strategy.ValuationMethod) (strategy.ValuationStrategy, error)
}

// ValuationEngine values an item's stock by replaying its completed
// movements. It only reads committed rows and takes no locks.
type ValuationEngine struct {
	movements  inventory.MovementRepository
	records    inventory.ValuationRecordRepository
	strategies ValuationStrategyProvider
	clock      shared.Clock
	metrics    *telemetry.LedgerMetrics
	logger     *zap.Logger
}

// NewValuationEngine creates a new ValuationEngine
func NewValuationEngine(
	movements inventory.MovementRepository,
	records inventory.ValuationRecordRepository,
	strategies ValuationStrategyProvider,
	clock shared.Clock,
	logger *zap.Logger,
) *ValuationEngine {
	return &ValuationEngine{
		movements:  movements,
		records:    records,
		strategies: strategies,
		clock:      clock,
		logger:     logger,
	}
}

// SetMetrics sets the ledger metrics recorder
func (e *ValuationEngine) SetMetrics(metrics *telemetry.LedgerMetrics) {
	e.metrics = metrics
}

// Compute values an item, optionally as of a point in time and scoped to
// one location
func (e *ValuationEngine) Compute(ctx context.Context, q ValuationQuery) (*ValuationResponse, error) {
	q.AsOf = asOfPtr(q.AsOf)
	result, err := e.compute(ctx, q)
	if err != nil {
		return nil, err
	}
	return &ValuationResponse{
		ItemID:         q.ItemID,
		LocationID:     q.LocationID,
		Method:         string(result.Method),
		UnitCost:       result.UnitCost,
		QuantityOnHand: result.QuantityOnHand,
		TotalValue:     result.TotalValue,
		EventCount:     result.EventCount,
		AsOf:           q.AsOf,
	}, nil
}

// Snapshot computes a valuation and stores it as a write-once record
func (e *ValuationEngine) Snapshot(ctx context.Context, q ValuationQuery) (*ValuationResponse, error) {
	q.AsOf = asOfPtr(q.AsOf)
	result, err := e.compute(ctx, q)
	if err != nil {
		return nil, err
	}

	record := inventory.NewValuationRecord(q.ItemID, q.LocationID, result, q.AsOf, e.clock.Now())
	if err := e.records.Create(ctx, record); err != nil {
		return nil, err
	}

	logger.Enrich(ctx, e.logger).Info("Valuation snapshot stored",
		zap.String("valuation_id", record.ID.String()),
		zap.String("item_id", record.ItemID.String()),
		zap.String("method", string(record.Method)),
		zap.String("total_value", record.TotalValue.String()),
	)
	resp := ToValuationRecordResponse(record)
	return &resp, nil
}

// ListSnapshots returns the newest stored valuations of an item
func (e *ValuationEngine) ListSnapshots(ctx context.Context, itemID uuid.UUID, limit int) ([]ValuationResponse, error) {
	records, err := e.records.FindByItem(ctx, itemID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ValuationResponse, len(records))
	for i := range records {
		out[i] = ToValuationRecordResponse(&records[i])
	}
	return out, nil
}

func (e *ValuationEngine) compute(ctx context.Context, q ValuationQuery) (strategy.ValuationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "valuation", "compute",
		telemetry.AttrItemID, q.ItemID.String(),
		telemetry.AttrMethod, q.Method,
	)
	defer span.End()

	if q.ItemID == uuid.Nil {
		err := shared.NewDomainError(shared.CodeValidation, "item ID is required")
		telemetry.RecordError(span, err)
		return strategy.ValuationResult{}, err
	}
	method, ok := strategy.ParseValuationMethod(q.Method)
	if !ok && q.Method != "" {
		err := shared.NewDomainErrorf(shared.CodeValidation, "unknown valuation method %q", q.Method).
			WithDetail("method", q.Method)
		telemetry.RecordError(span, err)
		return strategy.ValuationResult{}, err
	}
	s, err := e.strategies.GetValuationStrategy(method)
	if err != nil {
		telemetry.RecordError(span, err)
		return strategy.ValuationResult{}, err
	}

	var result strategy.ValuationResult
	elapsed, err := timed(func() error {
		movements, err := e.movements.FindCompletedByItem(ctx, q.ItemID, q.AsOf)
		if err != nil {
			return err
		}
		result, err = s.Value(ctx, costEvents(movements, q.LocationID))
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return strategy.ValuationResult{}, err
	}

	e.metrics.Valuation(ctx, string(result.Method), elapsed)
	telemetry.SetAttributes(span, "event_count", result.EventCount)
	return result, nil
}

// costEvents turns completed movements into the signed cost sequence a
// strategy replays. Transfers net to zero item-wide and are skipped unless
// the valuation is scoped to one location.
func costEvents(movements []inventory.Movement, locationID *uuid.UUID) []strategy.CostEvent {
	events := make([]strategy.CostEvent, 0, len(movements))
	for i := range movements {
		m := &movements[i]

		var qty int64
		if locationID == nil {
			if m.Type == inventory.MovementTypeTransfer {
				continue
			}
			qty = m.SignedQuantity()
		} else {
			qty = m.SignedQuantityAt(*locationID)
		}
		if qty == 0 {
			continue
		}

		cost := m.AppliedUnitCost
		if !cost.Valid {
			cost = m.UnitCost
		}
		occurred := m.UpdatedAt
		if m.CompletedAt != nil {
			occurred = *m.CompletedAt
		}
		events = append(events, strategy.CostEvent{
			Quantity:   qty,
			UnitCost:   cost.Decimal,
			OccurredAt: occurred,
			Reference:  m.ID.String(),
		})
	}
	return events
}

// asOfPtr normalises an optional timestamp to UTC
func asOfPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

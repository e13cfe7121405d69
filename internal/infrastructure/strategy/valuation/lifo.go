package valuation

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared/strategy"
)

// LIFOStrategy values stock by replaying events most recent first
type LIFOStrategy struct {
	strategy.BaseStrategy
}

// NewLIFOStrategy creates a new LIFO valuation strategy
func NewLIFOStrategy() *LIFOStrategy {
	return &LIFOStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"lifo",
			strategy.StrategyTypeValuation,
			"Last-In-First-Out valuation with running-average issue costing",
		),
	}
}

// Method returns the valuation method
func (s *LIFOStrategy) Method() strategy.ValuationMethod {
	return strategy.ValuationMethodLIFO
}

// Value replays events in reverse order. An issue met before any receipt
// removes nothing, so QuantityOnHand can come out above the real on-hand
// quantity: IN 100@10 then OUT 40 values as 100 units worth 1000, where FIFO
// and AVERAGE give 60 units worth 600.
func (s *LIFOStrategy) Value(ctx context.Context, events []strategy.CostEvent) (strategy.ValuationResult, error) {
	last := len(events) - 1
	return replay(ctx, s.Method(), events, func(i int) strategy.CostEvent {
		return events[last-i]
	})
}

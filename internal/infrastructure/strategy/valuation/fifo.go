package valuation

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared/strategy"
)

// FIFOStrategy values stock by replaying events oldest first
type FIFOStrategy struct {
	strategy.BaseStrategy
}

// NewFIFOStrategy creates a new FIFO valuation strategy
func NewFIFOStrategy() *FIFOStrategy {
	return &FIFOStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"fifo",
			strategy.StrategyTypeValuation,
			"First-In-First-Out valuation with running-average issue costing",
		),
	}
}

// Method returns the valuation method
func (s *FIFOStrategy) Method() strategy.ValuationMethod {
	return strategy.ValuationMethodFIFO
}

// Value replays events in the order given
func (s *FIFOStrategy) Value(ctx context.Context, events []strategy.CostEvent) (strategy.ValuationResult, error) {
	return replay(ctx, s.Method(), events, func(i int) strategy.CostEvent {
		return events[i]
	})
}

package valuation

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// WeightedAverageStrategy values stock at the average cost of all receipts
type WeightedAverageStrategy struct {
	strategy.BaseStrategy
}

// NewWeightedAverageStrategy creates a new weighted-average valuation strategy
func NewWeightedAverageStrategy() *WeightedAverageStrategy {
	return &WeightedAverageStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"average",
			strategy.StrategyTypeValuation,
			"Weighted-average valuation over all receipts",
		),
	}
}

// Method returns the valuation method
func (s *WeightedAverageStrategy) Method() strategy.ValuationMethod {
	return strategy.ValuationMethodAverage
}

// Value computes unit cost as sum(qty*cost)/sum(qty) over positive events.
// Quantity on hand is receipts minus issues and is not clamped.
func (s *WeightedAverageStrategy) Value(ctx context.Context, events []strategy.CostEvent) (strategy.ValuationResult, error) {
	var received, issued int64
	receivedCost := decimal.Zero

	for i, ev := range events {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return strategy.ValuationResult{}, err
			}
		}
		if ev.Quantity > 0 {
			received += ev.Quantity
			receivedCost = receivedCost.Add(ev.UnitCost.Mul(decimal.NewFromInt(ev.Quantity)))
		} else {
			issued += -ev.Quantity
		}
	}

	unitCost := decimal.Zero
	if received > 0 {
		unitCost = receivedCost.Div(decimal.NewFromInt(received))
	}
	onHand := received - issued

	return strategy.ValuationResult{
		Method:         s.Method(),
		UnitCost:       unitCost.Round(strategy.ValuationScale),
		QuantityOnHand: onHand,
		TotalValue:     unitCost.Mul(decimal.NewFromInt(onHand)).Round(strategy.ValuationScale),
		EventCount:     len(events),
	}, nil
}

package strategy

import (
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/erp/stockledger/internal/infrastructure/strategy/valuation"
)

// NewRegistryWithDefaults creates a registry holding FIFO, LIFO and AVERAGE,
// with defaultMethod (AVERAGE when empty) as the default.
func NewRegistryWithDefaults(defaultMethod strategy.ValuationMethod) (*StrategyRegistry, error) {
	r := NewStrategyRegistry()

	for _, s := range []strategy.ValuationStrategy{
		valuation.NewFIFOStrategy(),
		valuation.NewLIFOStrategy(),
		valuation.NewWeightedAverageStrategy(),
	} {
		if err := r.RegisterValuationStrategy(s); err != nil {
			return nil, err
		}
	}

	if defaultMethod == "" {
		defaultMethod = strategy.ValuationMethodAverage
	}
	if err := r.SetDefault(defaultMethod); err != nil {
		return nil, err
	}
	return r, nil
}

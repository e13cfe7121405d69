package valuation

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// runningBasis tracks quantity on hand and the cost basis carried by it.
// Issues are removed at the current average of the basis since the event
// history carries no per-receipt cost layers.
type runningBasis struct {
	onHand int64
	basis  decimal.Decimal
}

func (r *runningBasis) apply(ev strategy.CostEvent) {
	switch {
	case ev.Quantity > 0:
		r.onHand += ev.Quantity
		r.basis = r.basis.Add(ev.UnitCost.Mul(decimal.NewFromInt(ev.Quantity)))
	case ev.Quantity < 0:
		remove := -ev.Quantity
		if remove > r.onHand {
			remove = r.onHand
		}
		if remove <= 0 {
			return
		}
		avg := r.basis.Div(decimal.NewFromInt(r.onHand))
		r.basis = r.basis.Sub(avg.Mul(decimal.NewFromInt(remove)))
		r.onHand -= remove
		if r.onHand == 0 {
			r.basis = decimal.Zero
		}
	}
}

func (r *runningBasis) result(method strategy.ValuationMethod, n int) strategy.ValuationResult {
	unitCost := decimal.Zero
	if r.onHand > 0 {
		unitCost = r.basis.Div(decimal.NewFromInt(r.onHand))
	}
	return strategy.ValuationResult{
		Method:         method,
		UnitCost:       unitCost.Round(strategy.ValuationScale),
		QuantityOnHand: r.onHand,
		TotalValue:     r.basis.Round(strategy.ValuationScale),
		EventCount:     n,
	}
}

func replay(ctx context.Context, method strategy.ValuationMethod, events []strategy.CostEvent, next func(i int) strategy.CostEvent) (strategy.ValuationResult, error) {
	var rb runningBasis
	for i := range events {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return strategy.ValuationResult{}, err
			}
		}
		rb.apply(next(i))
	}
	return rb.result(method, len(events)), nil
}

package strategy

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValuationMethod represents the inventory valuation convention
type ValuationMethod string

const (
	ValuationMethodFIFO    ValuationMethod = "FIFO"
	ValuationMethodLIFO    ValuationMethod = "LIFO"
	ValuationMethodAverage ValuationMethod = "AVERAGE"
)

// ValuationScale is the number of decimal places kept in valuation results
const ValuationScale int32 = 4

// String returns the string representation of the valuation method
func (m ValuationMethod) String() string {
	return string(m)
}

// IsValid reports whether m is a supported method
func (m ValuationMethod) IsValid() bool {
	switch m {
	case ValuationMethodFIFO, ValuationMethodLIFO, ValuationMethodAverage:
		return true
	default:
		return false
	}
}

// ParseValuationMethod parses a method name case-insensitively.
// "weighted_average" and "moving_average" are accepted as AVERAGE.
func ParseValuationMethod(s string) (ValuationMethod, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FIFO":
		return ValuationMethodFIFO, true
	case "LIFO":
		return ValuationMethodLIFO, true
	case "AVERAGE", "WEIGHTED_AVERAGE", "MOVING_AVERAGE":
		return ValuationMethodAverage, true
	default:
		return "", false
	}
}

// CostEvent is one quantity-changing event in an item's history.
// Quantity is signed: receipts are positive, issues negative.
type CostEvent struct {
	Quantity   int64
	UnitCost   decimal.Decimal
	OccurredAt time.Time
	Reference  string
}

// ValuationResult is the outcome of replaying a cost event sequence
type ValuationResult struct {
	Method         ValuationMethod `json:"method"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	QuantityOnHand int64           `json:"quantity_on_hand"`
	TotalValue     decimal.Decimal `json:"total_value"`
	EventCount     int             `json:"event_count"`
}

// ValuationStrategy computes a valuation from events ordered oldest first
type ValuationStrategy interface {
	Strategy
	// Method returns the valuation method implemented by this strategy
	Method() ValuationMethod
	// Value replays events and returns the resulting valuation
	Value(ctx context.Context, events []CostEvent) (ValuationResult, error)
}

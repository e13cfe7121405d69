package inventory

import (
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockLevel is the authoritative quantity state of one item at one location.
// AvailableQuantity is stored for read efficiency and recomputed on every mutation.
type StockLevel struct {
	shared.BaseAggregateRoot
	ItemID            uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:idx_stock_levels_item_location,priority:1"`
	LocationID        uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:idx_stock_levels_item_location,priority:2;index"`
	Quantity          int64                   `gorm:"not null;default:0"`
	ReservedQuantity  int64                   `gorm:"not null;default:0"`
	AvailableQuantity int64                   `gorm:"not null;default:0"`
	MinStockLevel     int64                   `gorm:"not null;default:0"`
	MaxStockLevel     int64                   `gorm:"not null;default:0"`
	ReorderPoint      int64                   `gorm:"not null;default:0"`
	AverageCost       decimal.Decimal         `gorm:"type:decimal(18,4);not null;default:0"`
	LastCost          decimal.Decimal         `gorm:"type:decimal(18,4);not null;default:0"`
	LowStockSource    LowStockThresholdSource `gorm:"type:varchar(20);not null;default:'reorder_point'"`
	IsLowStock        bool                    `gorm:"not null;default:false;index"`
	IsOutOfStock      bool                    `gorm:"not null;default:true;index"`
	LastMovementAt    *time.Time
}

// TableName returns the table name for GORM
func (StockLevel) TableName() string {
	return "stock_levels"
}

// NewStockLevel creates an empty stock level for an (item, location) pair
func NewStockLevel(itemID, locationID uuid.UUID, now time.Time) (*StockLevel, error) {
	if itemID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "item ID cannot be empty")
	}
	if locationID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "location ID cannot be empty")
	}

	level := &StockLevel{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		ItemID:            itemID,
		LocationID:        locationID,
		AverageCost:       decimal.Zero,
		LastCost:          decimal.Zero,
		LowStockSource:    ThresholdSourceReorderPoint,
	}
	level.recompute()
	return level, nil
}

// Key returns the (item, location) key of the row
func (s *StockLevel) Key() StockKey {
	return StockKey{ItemID: s.ItemID, LocationID: s.LocationID}
}

// LowStockThreshold returns the quantity at or below which the row is low on
// stock. Under the reorder_point source that is the reorder point, falling
// back to the minimum stock level when no reorder point is configured. Under
// min_stock_level it is always the minimum stock level.
func (s *StockLevel) LowStockThreshold() int64 {
	if s.LowStockSource == ThresholdSourceMinStockLevel {
		return s.MinStockLevel
	}
	if s.ReorderPoint > 0 {
		return s.ReorderPoint
	}
	return s.MinStockLevel
}

// TotalValue returns on-hand quantity valued at the average cost
func (s *StockLevel) TotalValue() decimal.Decimal {
	return s.AverageCost.Mul(decimal.NewFromInt(s.Quantity))
}

// Receive adds stock. A unit cost, when given, is blended into the average
// cost weighted by quantity.
func (s *StockLevel) Receive(quantity int64, unitCost decimal.NullDecimal, cause string, now time.Time) error {
	if quantity <= 0 {
		return NewInvalidMovementError(fmt.Sprintf("receipt quantity must be positive, got %d", quantity))
	}
	if unitCost.Valid && unitCost.Decimal.IsNegative() {
		return NewInvalidMovementError("unit cost cannot be negative")
	}

	if unitCost.Valid {
		if s.Quantity <= 0 {
			s.AverageCost = unitCost.Decimal.Round(4)
		} else {
			oldQty := decimal.NewFromInt(s.Quantity)
			addQty := decimal.NewFromInt(quantity)
			total := s.AverageCost.Mul(oldQty).Add(unitCost.Decimal.Mul(addQty))
			s.AverageCost = total.Div(oldQty.Add(addQty)).Round(4)
		}
		s.LastCost = unitCost.Decimal.Round(4)
	}

	s.Quantity += quantity
	s.mutated(quantity, cause, now)
	return nil
}

// Issue removes stock that is not held by a reservation
func (s *StockLevel) Issue(quantity int64, cause string, now time.Time) error {
	if quantity <= 0 {
		return NewInvalidMovementError(fmt.Sprintf("issue quantity must be positive, got %d", quantity))
	}
	if s.AvailableQuantity < quantity {
		return NewInsufficientStockError(s.ItemID, s.LocationID, quantity, s.AvailableQuantity).
			WithDetail("on_hand", s.Quantity).
			WithDetail("reserved", s.ReservedQuantity)
	}

	s.Quantity -= quantity
	s.mutated(-quantity, cause, now)
	return nil
}

// Adjust applies a signed correction. A negative correction may not drive
// on-hand below zero nor below the reserved quantity.
func (s *StockLevel) Adjust(delta int64, cause string, now time.Time) error {
	if delta == 0 {
		return NewInvalidMovementError("adjustment delta cannot be zero")
	}
	if s.Quantity+delta < 0 {
		return NewInvalidMovementError(fmt.Sprintf(
			"adjustment of %d would make quantity of item %s at location %s negative (on hand %d)",
			delta, s.ItemID, s.LocationID, s.Quantity)).
			WithDetail("item_id", s.ItemID.String()).
			WithDetail("location_id", s.LocationID.String()).
			WithDetail("on_hand", s.Quantity).
			WithDetail("requested", delta)
	}
	if delta < 0 && s.AvailableQuantity < -delta {
		return NewInsufficientStockError(s.ItemID, s.LocationID, -delta, s.AvailableQuantity).
			WithDetail("on_hand", s.Quantity).
			WithDetail("reserved", s.ReservedQuantity)
	}

	s.Quantity += delta
	s.mutated(delta, cause, now)
	return nil
}

// Reserve places a hold against available stock
func (s *StockLevel) Reserve(quantity int64, now time.Time) error {
	if quantity <= 0 {
		return shared.NewDomainErrorf(shared.CodeValidation, "reservation quantity must be positive, got %d", quantity)
	}
	if quantity > s.AvailableQuantity {
		return NewInsufficientAvailableStockError(s.ItemID, s.LocationID, quantity, s.AvailableQuantity).
			WithDetail("on_hand", s.Quantity).
			WithDetail("reserved", s.ReservedQuantity)
	}

	s.ReservedQuantity += quantity
	s.mutated(0, StockChangeReserved, now)
	return nil
}

// ReleaseReservation frees a hold without consuming stock
func (s *StockLevel) ReleaseReservation(quantity int64, now time.Time) error {
	if quantity <= 0 || quantity > s.ReservedQuantity {
		return shared.NewDomainErrorf(shared.CodeInvalidReservationState,
			"cannot release %d units of item %s at location %s: only %d reserved",
			quantity, s.ItemID, s.LocationID, s.ReservedQuantity).
			WithDetail("requested", quantity).
			WithDetail("reserved", s.ReservedQuantity)
	}

	s.ReservedQuantity -= quantity
	s.mutated(0, StockChangeReleased, now)
	return nil
}

// FulfillReservation converts a hold into a permanent on-hand decrement
func (s *StockLevel) FulfillReservation(quantity int64, now time.Time) error {
	if quantity <= 0 || quantity > s.ReservedQuantity {
		return shared.NewDomainErrorf(shared.CodeInvalidReservationState,
			"cannot fulfill %d units of item %s at location %s: only %d reserved",
			quantity, s.ItemID, s.LocationID, s.ReservedQuantity).
			WithDetail("requested", quantity).
			WithDetail("reserved", s.ReservedQuantity)
	}
	if s.Quantity < quantity {
		return NewInsufficientStockError(s.ItemID, s.LocationID, quantity, s.Quantity).
			WithDetail("on_hand", s.Quantity)
	}

	s.Quantity -= quantity
	s.ReservedQuantity -= quantity
	s.mutated(-quantity, StockChangeFulfilled, now)
	return nil
}

// SetThresholds updates the alerting thresholds. Zero max means unbounded.
func (s *StockLevel) SetThresholds(minStock, maxStock, reorderPoint int64, now time.Time) error {
	if minStock < 0 || maxStock < 0 || reorderPoint < 0 {
		return shared.NewDomainError(shared.CodeValidation, "thresholds cannot be negative")
	}
	if maxStock > 0 && maxStock < minStock {
		return shared.NewDomainErrorf(shared.CodeValidation,
			"max stock level %d cannot be below min stock level %d", maxStock, minStock)
	}

	s.MinStockLevel = minStock
	s.MaxStockLevel = maxStock
	s.ReorderPoint = reorderPoint
	s.recompute()
	s.Touch(now)
	s.IncrementVersion()
	s.AddDomainEvent(NewStockLevelChangedEvent(s, 0, StockChangeThresholds, now))
	return nil
}

// SetLowStockSource picks the field IsLowStock and the LOW_STOCK alert are
// measured against. Rows get it once, when they are created.
func (s *StockLevel) SetLowStockSource(source LowStockThresholdSource) error {
	if !source.IsValid() {
		return shared.NewDomainErrorf(shared.CodeValidation, "unknown low stock threshold source %q", source).
			WithDetail("low_stock_source", string(source))
	}
	s.LowStockSource = source
	s.recompute()
	return nil
}

// CheckInvariants verifies the quantity invariants of the row
func (s *StockLevel) CheckInvariants() error {
	switch {
	case s.Quantity < 0:
		return shared.NewDomainErrorf(shared.CodeInvalidState, "stock level %s has negative quantity %d", s.ID, s.Quantity)
	case s.ReservedQuantity < 0:
		return shared.NewDomainErrorf(shared.CodeInvalidState, "stock level %s has negative reserved quantity %d", s.ID, s.ReservedQuantity)
	case s.AvailableQuantity != s.Quantity-s.ReservedQuantity:
		return shared.NewDomainErrorf(shared.CodeInvalidState,
			"stock level %s available %d != quantity %d - reserved %d",
			s.ID, s.AvailableQuantity, s.Quantity, s.ReservedQuantity)
	}
	return nil
}

func (s *StockLevel) mutated(delta int64, cause string, now time.Time) {
	s.recompute()
	s.LastMovementAt = &now
	s.Touch(now)
	s.IncrementVersion()
	s.AddDomainEvent(NewStockLevelChangedEvent(s, delta, cause, now))
}

func (s *StockLevel) recompute() {
	s.AvailableQuantity = s.Quantity - s.ReservedQuantity
	s.IsOutOfStock = s.Quantity <= 0
	threshold := s.LowStockThreshold()
	s.IsLowStock = s.Quantity > 0 && threshold > 0 && s.Quantity <= threshold
}

// StockKey identifies a StockLevel row
type StockKey struct {
	ItemID     uuid.UUID
	LocationID uuid.UUID
}

// String returns "item/location"
func (k StockKey) String() string {
	return k.ItemID.String() + "/" + k.LocationID.String()
}

// Less orders keys by location then item, the order rows are locked in
func (k StockKey) Less(other StockKey) bool {
	if c := compareUUID(k.LocationID, other.LocationID); c != 0 {
		return c < 0
	}
	return compareUUID(k.ItemID, other.ItemID) < 0
}

func compareUUID(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

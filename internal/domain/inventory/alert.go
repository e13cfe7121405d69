package inventory

import (
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// AlertType is the condition an alert reports
type AlertType string

const (
	AlertTypeLowStock       AlertType = "LOW_STOCK"
	AlertTypeOutOfStock     AlertType = "OUT_OF_STOCK"
	AlertTypeOverstock      AlertType = "OVERSTOCK"
	AlertTypeExpiryWarning  AlertType = "EXPIRY_WARNING"
	AlertTypeMovementFailed AlertType = "MOVEMENT_FAILED"
)

// IsValid returns true if the alert type is known
func (t AlertType) IsValid() bool {
	switch t {
	case AlertTypeLowStock, AlertTypeOutOfStock, AlertTypeOverstock, AlertTypeExpiryWarning, AlertTypeMovementFailed:
		return true
	default:
		return false
	}
}

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "ACTIVE"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertStatusResolved     AlertStatus = "RESOLVED"
)

// OpenAlertStatuses are the states that block a duplicate alert for the same triple
var OpenAlertStatuses = []AlertStatus{AlertStatusActive, AlertStatusAcknowledged}

// StockAlert reports a threshold breach for a (type, item, location) triple.
// At most one open alert exists per triple.
type StockAlert struct {
	shared.BaseAggregateRoot
	Type              AlertType   `gorm:"type:varchar(30);not null;uniqueIndex:idx_stock_alerts_open_triple,priority:1,where:status <> 'RESOLVED'"`
	Status            AlertStatus `gorm:"type:varchar(20);not null;index"`
	ItemID            uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_stock_alerts_open_triple,priority:2"`
	LocationID        uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_stock_alerts_open_triple,priority:3"`
	Message           string      `gorm:"type:varchar(500);not null"`
	CurrentQuantity   int64       `gorm:"not null;default:0"`
	ThresholdQuantity int64       `gorm:"not null;default:0"`
	SourceID          *uuid.UUID  `gorm:"type:uuid"`
	AcknowledgedBy    string      `gorm:"type:varchar(100)"`
	AcknowledgedAt    *time.Time
	ResolvedBy        string `gorm:"type:varchar(100)"`
	ResolvedAt        *time.Time
}

// TableName returns the table name for GORM
func (StockAlert) TableName() string {
	return "stock_alerts"
}

// NewStockAlert opens an ACTIVE alert
func NewStockAlert(c AlertCondition, now time.Time) (*StockAlert, error) {
	if !c.Type.IsValid() {
		return nil, shared.NewDomainErrorf(shared.CodeValidation, "unknown alert type %q", c.Type)
	}
	a := &StockAlert{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		Type:              c.Type,
		Status:            AlertStatusActive,
		ItemID:            c.ItemID,
		LocationID:        c.LocationID,
		Message:           c.Message,
		CurrentQuantity:   c.CurrentQuantity,
		ThresholdQuantity: c.ThresholdQuantity,
		SourceID:          c.SourceID,
	}
	a.AddDomainEvent(NewAlertRaisedEvent(a, now))
	return a, nil
}

// IsOpen reports whether the alert still blocks duplicates
func (a *StockAlert) IsOpen() bool {
	return a.Status == AlertStatusActive || a.Status == AlertStatusAcknowledged
}

// Acknowledge records operator acknowledgement of an ACTIVE alert
func (a *StockAlert) Acknowledge(by string, now time.Time) error {
	if a.Status != AlertStatusActive {
		return NewInvalidAlertStateError(a.ID, a.Status, "acknowledge")
	}
	if by == "" {
		return shared.NewDomainError(shared.CodeValidation, "acknowledgedBy is required")
	}
	a.Status = AlertStatusAcknowledged
	a.AcknowledgedBy = by
	a.AcknowledgedAt = &now
	a.Touch(now)
	a.IncrementVersion()
	return nil
}

// Resolve closes an open alert. An empty by means the condition cleared.
func (a *StockAlert) Resolve(by string, now time.Time) error {
	if !a.IsOpen() {
		return NewInvalidAlertStateError(a.ID, a.Status, "resolve")
	}
	a.Status = AlertStatusResolved
	a.ResolvedBy = by
	a.ResolvedAt = &now
	a.Touch(now)
	a.IncrementVersion()
	a.AddDomainEvent(NewAlertResolvedEvent(a, now))
	return nil
}

// Refresh updates the observed quantity of an open alert
func (a *StockAlert) Refresh(c AlertCondition, now time.Time) bool {
	if a.CurrentQuantity == c.CurrentQuantity && a.ThresholdQuantity == c.ThresholdQuantity {
		return false
	}
	a.CurrentQuantity = c.CurrentQuantity
	a.ThresholdQuantity = c.ThresholdQuantity
	a.Message = c.Message
	a.Touch(now)
	a.IncrementVersion()
	return true
}

// LowStockThresholdSource selects which StockLevel field drives LOW_STOCK
type LowStockThresholdSource string

const (
	ThresholdSourceReorderPoint  LowStockThresholdSource = "reorder_point"
	ThresholdSourceMinStockLevel LowStockThresholdSource = "min_stock_level"
)

// IsValid reports whether s is a known source
func (s LowStockThresholdSource) IsValid() bool {
	return s == ThresholdSourceReorderPoint || s == ThresholdSourceMinStockLevel
}

// AlertCondition is the outcome of evaluating one alert type for a triple
type AlertCondition struct {
	Type              AlertType
	ItemID            uuid.UUID
	LocationID        uuid.UUID
	Breached          bool
	CurrentQuantity   int64
	ThresholdQuantity int64
	Message           string
	SourceID          *uuid.UUID
}

// EvaluateStockConditions evaluates the quantity based alert types for a row.
// LOW_STOCK uses the row's own threshold so it always agrees with IsLowStock.
func EvaluateStockConditions(level *StockLevel) []AlertCondition {
	threshold := level.LowStockThreshold()
	q := level.Quantity

	base := func(t AlertType, breached bool, limit int64, msg string) AlertCondition {
		return AlertCondition{
			Type:              t,
			ItemID:            level.ItemID,
			LocationID:        level.LocationID,
			Breached:          breached,
			CurrentQuantity:   q,
			ThresholdQuantity: limit,
			Message:           msg,
		}
	}

	return []AlertCondition{
		base(AlertTypeLowStock, threshold > 0 && q > 0 && q <= threshold, threshold,
			fmt.Sprintf("Stock of item %s at location %s is low: %d (threshold %d)", level.ItemID, level.LocationID, q, threshold)),
		base(AlertTypeOutOfStock, q <= 0, 0,
			fmt.Sprintf("Item %s is out of stock at location %s", level.ItemID, level.LocationID)),
		base(AlertTypeOverstock, level.MaxStockLevel > 0 && q > level.MaxStockLevel, level.MaxStockLevel,
			fmt.Sprintf("Stock of item %s at location %s exceeds maximum: %d (max %d)", level.ItemID, level.LocationID, q, level.MaxStockLevel)),
	}
}

// EvaluateExpiryCondition evaluates EXPIRY_WARNING over the active batches of a triple
func EvaluateExpiryCondition(itemID, locationID uuid.UUID, batches []Batch, now time.Time, window time.Duration) AlertCondition {
	c := AlertCondition{
		Type:       AlertTypeExpiryWarning,
		ItemID:     itemID,
		LocationID: locationID,
	}

	var soonest *Batch
	var expiring int64
	for i := range batches {
		b := &batches[i]
		if !b.IsActive || b.ItemID != itemID || b.LocationID != locationID || !b.ExpiresWithin(now, window) {
			continue
		}
		expiring += b.Quantity
		if soonest == nil || b.ExpiryDate.Before(soonest.ExpiryDate) {
			soonest = b
		}
	}
	if soonest == nil {
		return c
	}

	id := soonest.ID
	c.Breached = true
	c.CurrentQuantity = expiring
	c.ThresholdQuantity = int64(window / (24 * time.Hour))
	c.SourceID = &id
	c.Message = fmt.Sprintf("Batch %s of item %s at location %s expires on %s",
		soonest.BatchNumber, itemID, locationID, soonest.ExpiryDate.Format("2006-01-02"))
	return c
}

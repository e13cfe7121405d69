package inventory

import (
	"time"

	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValuationRecord is a write-once snapshot of an item's valuation
type ValuationRecord struct {
	ID             uuid.UUID                `gorm:"type:uuid;primaryKey"`
	ItemID         uuid.UUID                `gorm:"type:uuid;not null;index:idx_valuation_records_item,priority:1"`
	LocationID     *uuid.UUID               `gorm:"type:uuid"`
	Method         strategy.ValuationMethod `gorm:"type:varchar(10);not null"`
	UnitCost       decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	QuantityOnHand int64                    `gorm:"not null"`
	TotalValue     decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	EventCount     int                      `gorm:"not null"`
	AsOf           *time.Time
	CreatedAt      time.Time `gorm:"not null;index:idx_valuation_records_item,priority:2"`
}

// TableName returns the table name for GORM
func (ValuationRecord) TableName() string {
	return "valuation_records"
}

// NewValuationRecord captures a computed valuation
func NewValuationRecord(itemID uuid.UUID, locationID *uuid.UUID, result strategy.ValuationResult, asOf *time.Time, now time.Time) *ValuationRecord {
	return &ValuationRecord{
		ID:             uuid.New(),
		ItemID:         itemID,
		LocationID:     locationID,
		Method:         result.Method,
		UnitCost:       result.UnitCost,
		QuantityOnHand: result.QuantityOnHand,
		TotalValue:     result.TotalValue,
		EventCount:     result.EventCount,
		AsOf:           asOf,
		CreatedAt:      now,
	}
}

package inventory

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Batch is a dated, independently expirable lot of an item.
// Batch numbers are unique per item.
type Batch struct {
	shared.BaseAggregateRoot
	ItemID           uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_batches_item_number,priority:1"`
	BatchNumber      string              `gorm:"type:varchar(100);not null;uniqueIndex:idx_batches_item_number,priority:2"`
	LocationID       uuid.UUID           `gorm:"type:uuid;not null;index"`
	Quantity         int64               `gorm:"not null;default:0"`
	ManufacturedDate *time.Time          `gorm:"type:date"`
	ExpiryDate       time.Time           `gorm:"not null;index:idx_batches_active_expiry,priority:2"`
	SupplierID       *uuid.UUID          `gorm:"type:uuid"`
	UnitCost         decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	IsActive         bool                `gorm:"not null;default:true;index:idx_batches_active_expiry,priority:1"`
	DeactivatedAt    *time.Time
}

// TableName returns the table name for GORM
func (Batch) TableName() string {
	return "batches"
}

// BatchParams are the inputs of a new batch
type BatchParams struct {
	ItemID           uuid.UUID
	LocationID       uuid.UUID
	BatchNumber      string
	Quantity         int64
	ManufacturedDate *time.Time
	ExpiryDate       *time.Time
	SupplierID       *uuid.UUID
	UnitCost         decimal.NullDecimal
}

// NewBatch creates an active batch. BatchNumber must already be resolved.
func NewBatch(p BatchParams, now time.Time) (*Batch, error) {
	if p.ItemID == uuid.Nil || p.LocationID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "item ID and location ID are required")
	}
	if p.ExpiryDate == nil || p.ExpiryDate.IsZero() {
		return nil, NewMissingExpiryDateError(p.ItemID)
	}
	if strings.TrimSpace(p.BatchNumber) == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "batch number is required")
	}
	if p.Quantity < 0 {
		return nil, shared.NewDomainErrorf(shared.CodeValidation, "batch quantity cannot be negative, got %d", p.Quantity)
	}
	if p.ManufacturedDate != nil && p.ManufacturedDate.After(*p.ExpiryDate) {
		return nil, shared.NewDomainError(shared.CodeValidation, "manufactured date cannot be after expiry date")
	}
	if p.UnitCost.Valid && p.UnitCost.Decimal.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeValidation, "unit cost cannot be negative")
	}

	return &Batch{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		ItemID:            p.ItemID,
		BatchNumber:       strings.TrimSpace(p.BatchNumber),
		LocationID:        p.LocationID,
		Quantity:          p.Quantity,
		ManufacturedDate:  p.ManufacturedDate,
		ExpiryDate:        *p.ExpiryDate,
		SupplierID:        p.SupplierID,
		UnitCost:          p.UnitCost,
		IsActive:          true,
	}, nil
}

// GenerateBatchNumber builds "B-<item prefix>-<YYYYMMDD>-<disambiguator>".
// The date is the manufacture date, or now when none is given.
func GenerateBatchNumber(itemID uuid.UUID, manufactured *time.Time, now time.Time, disambiguator string) string {
	day := now
	if manufactured != nil {
		day = *manufactured
	}
	prefix := strings.ToUpper(strings.ReplaceAll(itemID.String(), "-", "")[:8])
	return fmt.Sprintf("B-%s-%s-%s", prefix, day.UTC().Format("20060102"), strings.ToUpper(disambiguator))
}

// IsExpired reports whether the expiry date has passed
func (b *Batch) IsExpired(now time.Time) bool {
	return b.ExpiryDate.Before(now)
}

// ExpiresWithin reports whether the expiry falls in [now, now+window]
func (b *Batch) ExpiresWithin(now time.Time, window time.Duration) bool {
	return !b.ExpiryDate.Before(now) && !b.ExpiryDate.After(now.Add(window))
}

// DaysUntilExpiry returns whole days until expiry, negative once expired
func (b *Batch) DaysUntilExpiry(now time.Time) int {
	return int(math.Floor(b.ExpiryDate.Sub(now).Hours() / 24))
}

// Deactivate retires an expired batch and returns its history entry
func (b *Batch) Deactivate(now time.Time) (*BatchHistory, error) {
	if !b.IsActive {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidState, "batch %s is already inactive", b.BatchNumber)
	}
	b.IsActive = false
	b.DeactivatedAt = &now
	b.Touch(now)
	b.IncrementVersion()
	b.AddDomainEvent(NewBatchExpiredEvent(b, now))
	return NewBatchHistory(b, BatchActionExpired, "expiry date passed", now), nil
}

// Add increases the batch quantity
func (b *Batch) Add(quantity int64, now time.Time) {
	b.Quantity += quantity
	b.Touch(now)
	b.IncrementVersion()
}

// Remove decreases the batch quantity
func (b *Batch) Remove(quantity int64, now time.Time) error {
	if quantity > b.Quantity {
		return shared.NewDomainErrorf(shared.CodeInsufficientStock,
			"batch %s of item %s holds %d, cannot remove %d", b.BatchNumber, b.ItemID, b.Quantity, quantity).
			WithDetail("batch_number", b.BatchNumber).
			WithDetail("requested", quantity).
			WithDetail("available", b.Quantity)
	}
	b.Quantity -= quantity
	b.Touch(now)
	b.IncrementVersion()
	return nil
}

// BatchAction is the kind of BatchHistory entry
type BatchAction string

const (
	BatchActionCreated BatchAction = "CREATED"
	BatchActionExpired BatchAction = "EXPIRED"
)

// BatchHistory is an append-only record of batch state transitions
type BatchHistory struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey"`
	BatchID     uuid.UUID   `gorm:"type:uuid;not null;index"`
	ItemID      uuid.UUID   `gorm:"type:uuid;not null"`
	BatchNumber string      `gorm:"type:varchar(100);not null"`
	Action      BatchAction `gorm:"type:varchar(20);not null"`
	Quantity    int64       `gorm:"not null"`
	Note        string      `gorm:"type:varchar(500)"`
	CreatedAt   time.Time   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BatchHistory) TableName() string {
	return "batch_history"
}

// NewBatchHistory snapshots a batch for its history
func NewBatchHistory(b *Batch, action BatchAction, note string, now time.Time) *BatchHistory {
	return &BatchHistory{
		ID:          uuid.New(),
		BatchID:     b.ID,
		ItemID:      b.ItemID,
		BatchNumber: b.BatchNumber,
		Action:      action,
		Quantity:    b.Quantity,
		Note:        note,
		CreatedAt:   now,
	}
}

package inventory

import (
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// ReservationStatus is the lifecycle state of a hold
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "ACTIVE"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
	ReservationStatusFulfilled ReservationStatus = "FULFILLED"
)

// Release reasons
const (
	ReleaseReasonManual  = "MANUAL"
	ReleaseReasonExpired = "EXPIRED"
)

// Reservation is a quantity hold against an item's available stock at a location.
// The StockLevel row is found by (ItemID, LocationID), never by back-reference.
type Reservation struct {
	shared.BaseAggregateRoot
	ItemID        uuid.UUID         `gorm:"type:uuid;not null;index:idx_reservations_item_location,priority:1"`
	LocationID    uuid.UUID         `gorm:"type:uuid;not null;index:idx_reservations_item_location,priority:2"`
	Quantity      int64             `gorm:"not null"`
	ReferenceType string            `gorm:"type:varchar(50);not null;index:idx_reservations_reference,priority:1"`
	ReferenceID   string            `gorm:"type:varchar(100);not null;index:idx_reservations_reference,priority:2"`
	Status        ReservationStatus `gorm:"type:varchar(20);not null;index:idx_reservations_status_expiry,priority:1"`
	ExpiresAt     *time.Time        `gorm:"index:idx_reservations_status_expiry,priority:2"`
	ReleasedAt    *time.Time
	ReleaseReason string `gorm:"type:varchar(20)"`
	FulfilledAt   *time.Time
}

// TableName returns the table name for GORM
func (Reservation) TableName() string {
	return "reservations"
}

// NewReservation creates an ACTIVE reservation
func NewReservation(itemID, locationID uuid.UUID, quantity int64, refType, refID string, expiresAt *time.Time, now time.Time) (*Reservation, error) {
	if itemID == uuid.Nil || locationID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "item ID and location ID are required")
	}
	if quantity <= 0 {
		return nil, shared.NewDomainErrorf(shared.CodeValidation, "reservation quantity must be positive, got %d", quantity)
	}
	if strings.TrimSpace(refType) == "" || strings.TrimSpace(refID) == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "reference type and reference ID are required")
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, shared.NewDomainError(shared.CodeValidation, "expiry must be in the future")
	}

	return &Reservation{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		ItemID:            itemID,
		LocationID:        locationID,
		Quantity:          quantity,
		ReferenceType:     refType,
		ReferenceID:       refID,
		Status:            ReservationStatusActive,
		ExpiresAt:         expiresAt,
	}, nil
}

// Key returns the StockLevel key the hold is placed against
func (r *Reservation) Key() StockKey {
	return StockKey{ItemID: r.ItemID, LocationID: r.LocationID}
}

// IsActive returns true while the hold is in force
func (r *Reservation) IsActive() bool {
	return r.Status == ReservationStatusActive
}

// IsExpired reports whether an active hold has outlived its expiry
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.IsActive() && r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// Release frees the hold
func (r *Reservation) Release(reason string, now time.Time) error {
	if !r.IsActive() {
		return NewInvalidReservationStateError(r.ID, r.Status, "release")
	}
	if reason == "" {
		reason = ReleaseReasonManual
	}
	r.Status = ReservationStatusReleased
	r.ReleaseReason = reason
	r.ReleasedAt = &now
	r.Touch(now)
	r.IncrementVersion()
	r.AddDomainEvent(NewReservationReleasedEvent(r, now))
	return nil
}

// Fulfill converts the hold into consumed stock
func (r *Reservation) Fulfill(now time.Time) error {
	if !r.IsActive() {
		return NewInvalidReservationStateError(r.ID, r.Status, "fulfill")
	}
	r.Status = ReservationStatusFulfilled
	r.FulfilledAt = &now
	r.Touch(now)
	r.IncrementVersion()
	return nil
}

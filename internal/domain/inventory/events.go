package inventory

import (
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constants
const (
	AggregateTypeStockLevel  = "StockLevel"
	AggregateTypeMovement    = "Movement"
	AggregateTypeReservation = "Reservation"
	AggregateTypeBatch       = "Batch"
	AggregateTypeStockAlert  = "StockAlert"
)

// Event type constants
const (
	EventTypeStockLevelChanged   = "StockLevelChanged"
	EventTypeMovementCompleted   = "MovementCompleted"
	EventTypeMovementFailed      = "MovementFailed"
	EventTypeReservationReleased = "ReservationReleased"
	EventTypeBatchExpired        = "BatchExpired"
	EventTypeAlertRaised         = "AlertRaised"
	EventTypeAlertResolved       = "AlertResolved"
)

// Causes recorded on StockLevelChanged
const (
	StockChangeReceived    = "RECEIVED"
	StockChangeIssued      = "ISSUED"
	StockChangeAdjusted    = "ADJUSTED"
	StockChangeTransferIn  = "TRANSFER_IN"
	StockChangeTransferOut = "TRANSFER_OUT"
	StockChangeReserved    = "RESERVED"
	StockChangeReleased    = "RELEASED"
	StockChangeFulfilled   = "FULFILLED"
	StockChangeThresholds  = "THRESHOLDS"
)

// StockLevelChangedEvent is raised on every mutation of a StockLevel row.
// It is the hook for alert re-evaluation and "stock updated" broadcasts.
type StockLevelChangedEvent struct {
	shared.BaseDomainEvent
	ItemID            uuid.UUID `json:"item_id"`
	LocationID        uuid.UUID `json:"location_id"`
	Quantity          int64     `json:"quantity"`
	ReservedQuantity  int64     `json:"reserved_quantity"`
	AvailableQuantity int64     `json:"available_quantity"`
	Delta             int64     `json:"delta"`
	Cause             string    `json:"cause"`
	IsLowStock        bool      `json:"is_low_stock"`
	IsOutOfStock      bool      `json:"is_out_of_stock"`
}

// NewStockLevelChangedEvent creates a new StockLevelChangedEvent
func NewStockLevelChangedEvent(level *StockLevel, delta int64, cause string, at time.Time) *StockLevelChangedEvent {
	return &StockLevelChangedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeStockLevelChanged, AggregateTypeStockLevel, level.ID, at),
		ItemID:            level.ItemID,
		LocationID:        level.LocationID,
		Quantity:          level.Quantity,
		ReservedQuantity:  level.ReservedQuantity,
		AvailableQuantity: level.AvailableQuantity,
		Delta:             delta,
		Cause:             cause,
		IsLowStock:        level.IsLowStock,
		IsOutOfStock:      level.IsOutOfStock,
	}
}

// MovementCompletedEvent is raised once a movement has been applied
type MovementCompletedEvent struct {
	shared.BaseDomainEvent
	MovementID     uuid.UUID    `json:"movement_id"`
	ItemID         uuid.UUID    `json:"item_id"`
	MovementType   MovementType `json:"movement_type"`
	Quantity       int64        `json:"quantity"`
	FromLocationID *uuid.UUID   `json:"from_location_id,omitempty"`
	ToLocationID   *uuid.UUID   `json:"to_location_id,omitempty"`
	BatchNumber    string       `json:"batch_number,omitempty"`
}

// NewMovementCompletedEvent creates a new MovementCompletedEvent
func NewMovementCompletedEvent(m *Movement, at time.Time) *MovementCompletedEvent {
	return &MovementCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMovementCompleted, AggregateTypeMovement, m.ID, at),
		MovementID:      m.ID,
		ItemID:          m.ItemID,
		MovementType:    m.Type,
		Quantity:        m.Quantity,
		FromLocationID:  m.FromLocationID,
		ToLocationID:    m.ToLocationID,
		BatchNumber:     m.BatchNumber,
	}
}

// MovementFailedEvent is raised when processing a movement fails
type MovementFailedEvent struct {
	shared.BaseDomainEvent
	MovementID uuid.UUID   `json:"movement_id"`
	ItemID     uuid.UUID   `json:"item_id"`
	Locations  []uuid.UUID `json:"locations"`
	Reason     string      `json:"reason"`
}

// NewMovementFailedEvent creates a new MovementFailedEvent
func NewMovementFailedEvent(m *Movement, at time.Time) *MovementFailedEvent {
	return &MovementFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMovementFailed, AggregateTypeMovement, m.ID, at),
		MovementID:      m.ID,
		ItemID:          m.ItemID,
		Locations:       m.TouchedLocations(),
		Reason:          m.FailureReason,
	}
}

// ReservationReleasedEvent is raised when a hold is released
type ReservationReleasedEvent struct {
	shared.BaseDomainEvent
	ReservationID uuid.UUID `json:"reservation_id"`
	ItemID        uuid.UUID `json:"item_id"`
	LocationID    uuid.UUID `json:"location_id"`
	Quantity      int64     `json:"quantity"`
	Expired       bool      `json:"expired"`
}

// NewReservationReleasedEvent creates a new ReservationReleasedEvent
func NewReservationReleasedEvent(r *Reservation, at time.Time) *ReservationReleasedEvent {
	return &ReservationReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReservationReleased, AggregateTypeReservation, r.ID, at),
		ReservationID:   r.ID,
		ItemID:          r.ItemID,
		LocationID:      r.LocationID,
		Quantity:        r.Quantity,
		Expired:         r.ReleaseReason == ReleaseReasonExpired,
	}
}

// BatchExpiredEvent is raised when an expired batch is deactivated
type BatchExpiredEvent struct {
	shared.BaseDomainEvent
	BatchID     uuid.UUID `json:"batch_id"`
	ItemID      uuid.UUID `json:"item_id"`
	LocationID  uuid.UUID `json:"location_id"`
	BatchNumber string    `json:"batch_number"`
	ExpiryDate  time.Time `json:"expiry_date"`
	Quantity    int64     `json:"quantity"`
}

// NewBatchExpiredEvent creates a new BatchExpiredEvent
func NewBatchExpiredEvent(b *Batch, at time.Time) *BatchExpiredEvent {
	return &BatchExpiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchExpired, AggregateTypeBatch, b.ID, at),
		BatchID:         b.ID,
		ItemID:          b.ItemID,
		LocationID:      b.LocationID,
		BatchNumber:     b.BatchNumber,
		ExpiryDate:      b.ExpiryDate,
		Quantity:        b.Quantity,
	}
}

// AlertRaisedEvent is raised when a new alert opens
type AlertRaisedEvent struct {
	shared.BaseDomainEvent
	AlertID    uuid.UUID `json:"alert_id"`
	AlertType  AlertType `json:"alert_type"`
	ItemID     uuid.UUID `json:"item_id"`
	LocationID uuid.UUID `json:"location_id"`
	Message    string    `json:"message"`
}

// NewAlertRaisedEvent creates a new AlertRaisedEvent
func NewAlertRaisedEvent(a *StockAlert, at time.Time) *AlertRaisedEvent {
	return &AlertRaisedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAlertRaised, AggregateTypeStockAlert, a.ID, at),
		AlertID:         a.ID,
		AlertType:       a.Type,
		ItemID:          a.ItemID,
		LocationID:      a.LocationID,
		Message:         a.Message,
	}
}

// AlertResolvedEvent is raised when an alert closes
type AlertResolvedEvent struct {
	shared.BaseDomainEvent
	AlertID    uuid.UUID `json:"alert_id"`
	AlertType  AlertType `json:"alert_type"`
	ItemID     uuid.UUID `json:"item_id"`
	LocationID uuid.UUID `json:"location_id"`
}

// NewAlertResolvedEvent creates a new AlertResolvedEvent
func NewAlertResolvedEvent(a *StockAlert, at time.Time) *AlertResolvedEvent {
	return &AlertResolvedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAlertResolved, AggregateTypeStockAlert, a.ID, at),
		AlertID:         a.ID,
		AlertType:       a.Type,
		ItemID:          a.ItemID,
		LocationID:      a.LocationID,
	}
}

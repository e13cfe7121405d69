package inventory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType is the kind of stock-affecting event
type MovementType string

const (
	MovementTypeIn         MovementType = "IN"
	MovementTypeOut        MovementType = "OUT"
	MovementTypeTransfer   MovementType = "TRANSFER"
	MovementTypeAdjustment MovementType = "ADJUSTMENT"
)

// IsValid returns true if the movement type is known
func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypeIn, MovementTypeOut, MovementTypeTransfer, MovementTypeAdjustment:
		return true
	default:
		return false
	}
}

// MovementStatus is the workflow state of a movement
type MovementStatus string

const (
	MovementStatusPending    MovementStatus = "PENDING"
	MovementStatusApproved   MovementStatus = "APPROVED"
	MovementStatusInProgress MovementStatus = "IN_PROGRESS"
	MovementStatusCompleted  MovementStatus = "COMPLETED"
	MovementStatusFailed     MovementStatus = "FAILED"
	MovementStatusCancelled  MovementStatus = "CANCELLED"
	MovementStatusRejected   MovementStatus = "REJECTED"
)

// IsValid returns true if the status is known
func (s MovementStatus) IsValid() bool {
	switch s {
	case MovementStatusPending, MovementStatusApproved, MovementStatusInProgress,
		MovementStatusCompleted, MovementStatusFailed, MovementStatusCancelled, MovementStatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further workflow transition is allowed.
// FAILED only accepts an explicit re-process.
func (s MovementStatus) IsTerminal() bool {
	switch s {
	case MovementStatusCompleted, MovementStatusFailed, MovementStatusCancelled, MovementStatusRejected:
		return true
	default:
		return false
	}
}

// ProcessableStatuses are the states a process call may start from
var ProcessableStatuses = []MovementStatus{MovementStatusApproved, MovementStatusFailed}

// MovementPriority orders pending work. URGENT movements skip approval.
type MovementPriority string

const (
	MovementPriorityLow    MovementPriority = "LOW"
	MovementPriorityNormal MovementPriority = "NORMAL"
	MovementPriorityHigh   MovementPriority = "HIGH"
	MovementPriorityUrgent MovementPriority = "URGENT"
)

// IsValid returns true if the priority is known
func (p MovementPriority) IsValid() bool {
	switch p {
	case MovementPriorityLow, MovementPriorityNormal, MovementPriorityHigh, MovementPriorityUrgent:
		return true
	default:
		return false
	}
}

// Movement is one stock-affecting event and its approval/processing workflow
type Movement struct {
	shared.BaseAggregateRoot
	ItemID          uuid.UUID           `gorm:"type:uuid;not null;index:idx_movements_item_completed,priority:1"`
	Type            MovementType        `gorm:"type:varchar(20);not null;index"`
	Status          MovementStatus      `gorm:"type:varchar(20);not null;index"`
	Priority        MovementPriority    `gorm:"type:varchar(10);not null;default:'NORMAL'"`
	Quantity        int64               `gorm:"not null"`
	FromLocationID  *uuid.UUID          `gorm:"type:uuid;index"`
	ToLocationID    *uuid.UUID          `gorm:"type:uuid;index"`
	UnitCost        decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	AppliedUnitCost decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	Reason          string              `gorm:"type:varchar(500)"`
	ReferenceNumber string              `gorm:"type:varchar(100);index"`
	BatchNumber     string              `gorm:"type:varchar(100)"`
	RequestedBy     string              `gorm:"type:varchar(100)"`
	ApprovedBy      string              `gorm:"type:varchar(100)"`
	ApprovedAt      *time.Time
	RejectedBy      string `gorm:"type:varchar(100)"`
	RejectedAt      *time.Time
	RejectionReason string `gorm:"type:varchar(500)"`
	CancelledBy     string `gorm:"type:varchar(100)"`
	CancelledAt     *time.Time
	CancelReason    string     `gorm:"type:varchar(500)"`
	ScheduledAt     *time.Time `gorm:"index"`
	StartedAt       *time.Time
	CompletedAt     *time.Time `gorm:"index:idx_movements_item_completed,priority:2"`
	FailedAt        *time.Time
	FailureReason   string `gorm:"type:text"`
	AttemptCount    int    `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (Movement) TableName() string {
	return "movements"
}

// MovementSpec carries the caller-supplied fields of a new movement
type MovementSpec struct {
	ItemID          uuid.UUID
	Type            MovementType
	Quantity        int64
	FromLocationID  *uuid.UUID
	ToLocationID    *uuid.UUID
	UnitCost        decimal.NullDecimal
	Reason          string
	ReferenceNumber string
	BatchNumber     string
	Priority        MovementPriority
	ScheduledAt     *time.Time
	RequestedBy     string
}

// Validate checks the type-dependent shape rules of a movement request
func (s MovementSpec) Validate() error {
	if s.ItemID == uuid.Nil {
		return NewInvalidMovementError("item ID is required")
	}
	if !s.Type.IsValid() {
		return NewInvalidMovementError(fmt.Sprintf("unknown movement type %q", s.Type))
	}
	if s.Quantity <= 0 {
		return NewInvalidMovementError(fmt.Sprintf("quantity must be positive, got %d", s.Quantity)).
			WithDetail("quantity", s.Quantity)
	}
	if s.Priority != "" && !s.Priority.IsValid() {
		return NewInvalidMovementError(fmt.Sprintf("unknown priority %q", s.Priority))
	}
	if s.UnitCost.Valid && s.UnitCost.Decimal.IsNegative() {
		return NewInvalidMovementError("unit cost cannot be negative")
	}

	from, to := isSet(s.FromLocationID), isSet(s.ToLocationID)
	switch s.Type {
	case MovementTypeIn:
		if !to {
			return NewInvalidMovementError("IN movement requires toLocationId")
		}
		if from {
			return NewInvalidMovementError("IN movement cannot have fromLocationId")
		}
	case MovementTypeOut:
		if !from {
			return NewInvalidMovementError("OUT movement requires fromLocationId")
		}
		if to {
			return NewInvalidMovementError("OUT movement cannot have toLocationId")
		}
	case MovementTypeTransfer:
		if !from || !to {
			return NewInvalidMovementError("TRANSFER movement requires both fromLocationId and toLocationId")
		}
		if *s.FromLocationID == *s.ToLocationID {
			return NewInvalidMovementError("TRANSFER source and destination must differ").
				WithDetail("location_id", s.FromLocationID.String())
		}
	case MovementTypeAdjustment:
		if strings.TrimSpace(s.Reason) == "" {
			return NewInvalidMovementError("ADJUSTMENT movement requires a reason")
		}
		if from == to {
			return NewInvalidMovementError("ADJUSTMENT movement requires exactly one of fromLocationId or toLocationId")
		}
	}
	return nil
}

func isSet(id *uuid.UUID) bool {
	return id != nil && *id != uuid.Nil
}

// NewMovement creates a PENDING movement, or an APPROVED one for URGENT priority
func NewMovement(spec MovementSpec, now time.Time) (*Movement, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	priority := spec.Priority
	if priority == "" {
		priority = MovementPriorityNormal
	}

	m := &Movement{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		ItemID:            spec.ItemID,
		Type:              spec.Type,
		Status:            MovementStatusPending,
		Priority:          priority,
		Quantity:          spec.Quantity,
		FromLocationID:    spec.FromLocationID,
		ToLocationID:      spec.ToLocationID,
		UnitCost:          spec.UnitCost,
		Reason:            strings.TrimSpace(spec.Reason),
		ReferenceNumber:   spec.ReferenceNumber,
		BatchNumber:       spec.BatchNumber,
		RequestedBy:       spec.RequestedBy,
		ScheduledAt:       spec.ScheduledAt,
	}
	if priority == MovementPriorityUrgent {
		m.Status = MovementStatusApproved
		m.ApprovedBy = spec.RequestedBy
		m.ApprovedAt = &now
	}
	return m, nil
}

// Spec returns the request shape of the movement
func (m *Movement) Spec() MovementSpec {
	return MovementSpec{
		ItemID:          m.ItemID,
		Type:            m.Type,
		Quantity:        m.Quantity,
		FromLocationID:  m.FromLocationID,
		ToLocationID:    m.ToLocationID,
		UnitCost:        m.UnitCost,
		Reason:          m.Reason,
		ReferenceNumber: m.ReferenceNumber,
		BatchNumber:     m.BatchNumber,
		Priority:        m.Priority,
		ScheduledAt:     m.ScheduledAt,
		RequestedBy:     m.RequestedBy,
	}
}

// Approve moves a PENDING movement to APPROVED
func (m *Movement) Approve(approverID string, now time.Time) error {
	if m.Status != MovementStatusPending {
		return NewInvalidMovementStateError(m.ID, m.Status, "approve")
	}
	if strings.TrimSpace(approverID) == "" {
		return shared.NewDomainError(shared.CodeValidation, "approver ID is required")
	}
	m.Status = MovementStatusApproved
	m.ApprovedBy = approverID
	m.ApprovedAt = &now
	m.changed(now)
	return nil
}

// Reject moves a PENDING movement to REJECTED
func (m *Movement) Reject(rejecterID, reason string, now time.Time) error {
	if m.Status != MovementStatusPending {
		return NewInvalidMovementStateError(m.ID, m.Status, "reject")
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewDomainError(shared.CodeValidation, "rejection reason is required")
	}
	m.Status = MovementStatusRejected
	m.RejectedBy = rejecterID
	m.RejectedAt = &now
	m.RejectionReason = reason
	m.changed(now)
	return nil
}

// Cancel withdraws a movement before processing starts
func (m *Movement) Cancel(by, reason string, now time.Time) error {
	if m.Status != MovementStatusPending && m.Status != MovementStatusApproved {
		return NewInvalidMovementStateError(m.ID, m.Status, "cancel")
	}
	m.Status = MovementStatusCancelled
	m.CancelledBy = by
	m.CancelledAt = &now
	m.CancelReason = strings.TrimSpace(reason)
	m.changed(now)
	return nil
}

// CanProcess reports whether a process call may start
func (m *Movement) CanProcess() bool {
	for _, s := range ProcessableStatuses {
		if m.Status == s {
			return true
		}
	}
	return false
}

// Start marks the movement IN_PROGRESS
func (m *Movement) Start(now time.Time) error {
	if !m.CanProcess() {
		return NewInvalidMovementStateError(m.ID, m.Status, "process")
	}
	m.Status = MovementStatusInProgress
	m.StartedAt = &now
	m.AttemptCount++
	m.FailureReason = ""
	m.FailedAt = nil
	m.changed(now)
	return nil
}

// Complete marks an IN_PROGRESS movement COMPLETED
func (m *Movement) Complete(appliedUnitCost decimal.NullDecimal, now time.Time) error {
	if m.Status != MovementStatusInProgress {
		return NewInvalidMovementStateError(m.ID, m.Status, "complete")
	}
	m.Status = MovementStatusCompleted
	m.AppliedUnitCost = appliedUnitCost
	m.CompletedAt = &now
	m.changed(now)
	m.AddDomainEvent(NewMovementCompletedEvent(m, now))
	return nil
}

// Fail marks an IN_PROGRESS movement FAILED with the error recorded
func (m *Movement) Fail(reason string, now time.Time) error {
	if m.Status != MovementStatusInProgress {
		return NewInvalidMovementStateError(m.ID, m.Status, "fail")
	}
	m.Status = MovementStatusFailed
	m.FailureReason = reason
	m.FailedAt = &now
	m.changed(now)
	m.AddDomainEvent(NewMovementFailedEvent(m, now))
	return nil
}

// IsDue reports whether a scheduled movement may run at now
func (m *Movement) IsDue(now time.Time) bool {
	return m.ScheduledAt == nil || !m.ScheduledAt.After(now)
}

func (m *Movement) changed(now time.Time) {
	m.Touch(now)
	m.IncrementVersion()
}

// LocationDelta is the signed quantity effect of a movement on one location
type LocationDelta struct {
	LocationID uuid.UUID
	Delta      int64
	Cause      string
}

// Effects returns the per-location quantity effects, debits first
func (m *Movement) Effects() []LocationDelta {
	switch m.Type {
	case MovementTypeIn:
		return []LocationDelta{{LocationID: *m.ToLocationID, Delta: m.Quantity, Cause: StockChangeReceived}}
	case MovementTypeOut:
		return []LocationDelta{{LocationID: *m.FromLocationID, Delta: -m.Quantity, Cause: StockChangeIssued}}
	case MovementTypeTransfer:
		return []LocationDelta{
			{LocationID: *m.FromLocationID, Delta: -m.Quantity, Cause: StockChangeTransferOut},
			{LocationID: *m.ToLocationID, Delta: m.Quantity, Cause: StockChangeTransferIn},
		}
	case MovementTypeAdjustment:
		if isSet(m.ToLocationID) {
			return []LocationDelta{{LocationID: *m.ToLocationID, Delta: m.Quantity, Cause: StockChangeAdjusted}}
		}
		return []LocationDelta{{LocationID: *m.FromLocationID, Delta: -m.Quantity, Cause: StockChangeAdjusted}}
	}
	return nil
}

// TouchedLocations returns the distinct locations affected, sorted
func (m *Movement) TouchedLocations() []uuid.UUID {
	var ids []uuid.UUID
	if isSet(m.FromLocationID) {
		ids = append(ids, *m.FromLocationID)
	}
	if isSet(m.ToLocationID) {
		ids = append(ids, *m.ToLocationID)
	}
	sort.Slice(ids, func(i, j int) bool { return compareUUID(ids[i], ids[j]) < 0 })
	return ids
}

// TouchedKeys returns the StockLevel keys affected in lock order
func (m *Movement) TouchedKeys() []StockKey {
	locs := m.TouchedLocations()
	keys := make([]StockKey, 0, len(locs))
	for _, loc := range locs {
		keys = append(keys, StockKey{ItemID: m.ItemID, LocationID: loc})
	}
	return keys
}

// SignedQuantity returns the item-wide quantity effect. Transfers net to zero.
func (m *Movement) SignedQuantity() int64 {
	var sum int64
	for _, e := range m.Effects() {
		sum += e.Delta
	}
	return sum
}

// SignedQuantityAt returns the quantity effect on one location
func (m *Movement) SignedQuantityAt(locationID uuid.UUID) int64 {
	var sum int64
	for _, e := range m.Effects() {
		if e.LocationID == locationID {
			sum += e.Delta
		}
	}
	return sum
}

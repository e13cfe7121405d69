package inventory

import (
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// NewInvalidMovementError reports a malformed or type-inconsistent movement request
func NewInvalidMovementError(message string) *shared.DomainError {
	return shared.NewDomainError(shared.CodeInvalidMovement, message)
}

// NewInsufficientStockError reports that on-hand or available stock cannot cover a request
func NewInsufficientStockError(itemID, locationID uuid.UUID, requested, available int64) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeInsufficientStock,
		"insufficient stock for item %s at location %s: requested %d, available %d",
		itemID, locationID, requested, available).
		WithDetail("item_id", itemID.String()).
		WithDetail("location_id", locationID.String()).
		WithDetail("requested", requested).
		WithDetail("available", available)
}

// NewInsufficientAvailableStockError reports that a reservation exceeds unreserved stock
func NewInsufficientAvailableStockError(itemID, locationID uuid.UUID, requested, available int64) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeInsufficientAvailableStock,
		"insufficient available stock to reserve item %s at location %s: requested %d, available %d",
		itemID, locationID, requested, available).
		WithDetail("item_id", itemID.String()).
		WithDetail("location_id", locationID.String()).
		WithDetail("requested", requested).
		WithDetail("available", available)
}

// NewDuplicateBatchError reports an (item, batch number) collision
func NewDuplicateBatchError(itemID uuid.UUID, batchNumber string) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeDuplicateBatch,
		"batch %q already exists for item %s", batchNumber, itemID).
		WithDetail("item_id", itemID.String()).
		WithDetail("batch_number", batchNumber)
}

// NewMissingExpiryDateError reports a batch created without an expiry date
func NewMissingExpiryDateError(itemID uuid.UUID) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeMissingExpiryDate,
		"expiry date is required for batches of item %s", itemID).
		WithDetail("item_id", itemID.String())
}

// NewNotFoundError reports an unknown entity id
func NewNotFoundError(entity string, id any) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeNotFound, "%s %v not found", entity, id).
		WithDetail("entity", entity).
		WithDetail("id", id)
}

// NewInvalidMovementStateError reports an illegal movement transition
func NewInvalidMovementStateError(id uuid.UUID, status MovementStatus, operation string) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeInvalidMovementState,
		"cannot %s movement %s in status %s", operation, id, status).
		WithDetail("movement_id", id.String()).
		WithDetail("status", string(status))
}

// NewInvalidReservationStateError reports an illegal reservation transition
func NewInvalidReservationStateError(id uuid.UUID, status ReservationStatus, operation string) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeInvalidReservationState,
		"cannot %s reservation %s in status %s", operation, id, status).
		WithDetail("reservation_id", id.String()).
		WithDetail("status", string(status))
}

// NewInvalidAlertStateError reports an illegal alert transition
func NewInvalidAlertStateError(id uuid.UUID, status AlertStatus, operation string) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeInvalidState,
		"cannot %s alert %s in status %s", operation, id, status).
		WithDetail("alert_id", id.String()).
		WithDetail("status", string(status))
}

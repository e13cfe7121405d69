package event

import "github.com/erp/stockledger/internal/domain/inventory"

// RegisterLedgerEvents registers every ledger event type with the serializer
func RegisterLedgerEvents(serializer *EventSerializer) {
	serializer.Register(inventory.EventTypeStockLevelChanged, &inventory.StockLevelChangedEvent{})
	serializer.Register(inventory.EventTypeMovementCompleted, &inventory.MovementCompletedEvent{})
	serializer.Register(inventory.EventTypeMovementFailed, &inventory.MovementFailedEvent{})
	serializer.Register(inventory.EventTypeReservationReleased, &inventory.ReservationReleasedEvent{})
	serializer.Register(inventory.EventTypeBatchExpired, &inventory.BatchExpiredEvent{})
	serializer.Register(inventory.EventTypeAlertRaised, &inventory.AlertRaisedEvent{})
	serializer.Register(inventory.EventTypeAlertResolved, &inventory.AlertResolvedEvent{})
}

// NewLedgerSerializer returns a serializer with every ledger event registered
func NewLedgerSerializer() *EventSerializer {
	s := NewEventSerializer()
	RegisterLedgerEvents(s)
	return s
}

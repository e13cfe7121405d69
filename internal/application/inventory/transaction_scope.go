package inventory

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
)

// TransactionScope provides transactional access to the ledger repositories.
// All repository operations made through fn share one database transaction
// and commit or roll back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction. An error from fn rolls
	// the transaction back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories exposes every ledger repository bound to the
// current transaction.
//
// Lock discipline: StockLevel rows are locked with the ForUpdate finders in
// StockKey order. Movements and reservations are locked before the stock
// rows they touch.
type TransactionalRepositories interface {
	StockLevels() inventory.StockLevelRepository
	Movements() inventory.MovementRepository
	Reservations() inventory.ReservationRepository
	Batches() inventory.BatchRepository
	BatchHistory() inventory.BatchHistoryRepository
	Valuations() inventory.ValuationRecordRepository
	Alerts() inventory.StockAlertRepository
}

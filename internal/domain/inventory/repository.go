package inventory

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// StockLevelFilter narrows stock level listings
type StockLevelFilter struct {
	shared.Filter
	ItemID     *uuid.UUID
	LocationID *uuid.UUID
	LowStock   *bool
	OutOfStock *bool
}

// StockLevelRepository persists StockLevel rows.
// The ForUpdate variants must run inside a transaction and hold a row lock
// until it ends.
type StockLevelRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*StockLevel, error)

	// FindByKey returns the row for (item, location) or a NOT_FOUND error
	FindByKey(ctx context.Context, itemID, locationID uuid.UUID) (*StockLevel, error)

	// FindByKeyForUpdate is FindByKey with a row lock
	FindByKeyForUpdate(ctx context.Context, itemID, locationID uuid.UUID) (*StockLevel, error)

	// GetOrCreateForUpdate lazily creates the row and returns it locked
	GetOrCreateForUpdate(ctx context.Context, itemID, locationID uuid.UUID, now time.Time) (*StockLevel, error)

	// Save writes a mutated row, failing with CONCURRENCY_CONFLICT on a stale version
	Save(ctx context.Context, level *StockLevel) error

	FindAll(ctx context.Context, filter StockLevelFilter) ([]StockLevel, int64, error)

	// ScanAll walks every row in id order in pages of batchSize
	ScanAll(ctx context.Context, batchSize int, fn func([]StockLevel) error) error
}

// MovementFilter narrows movement listings
type MovementFilter struct {
	shared.Filter
	ItemID     *uuid.UUID
	LocationID *uuid.UUID
	Status     MovementStatus
	Type       MovementType
	Reference  string
}

// MovementRepository persists movements
type MovementRepository interface {
	Create(ctx context.Context, m *Movement) error

	// CreateBatch inserts all movements in one statement group
	CreateBatch(ctx context.Context, movements []*Movement) error

	FindByID(ctx context.Context, id uuid.UUID) (*Movement, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Movement, error)

	// Save writes a movement, failing with CONCURRENCY_CONFLICT on a stale version
	Save(ctx context.Context, m *Movement) error

	// ClaimForProcessing moves a movement from one of the given statuses to
	// IN_PROGRESS in a single conditional update. It returns false when the
	// movement was not in an allowed status.
	ClaimForProcessing(ctx context.Context, id uuid.UUID, from []MovementStatus, now time.Time) (bool, error)

	FindAll(ctx context.Context, filter MovementFilter) ([]Movement, int64, error)

	// FindCompletedByItem returns COMPLETED movements of an item ordered by
	// completion time then id, bounded by asOf (inclusive) when given
	FindCompletedByItem(ctx context.Context, itemID uuid.UUID, asOf *time.Time) ([]Movement, error)

	// FindDue returns APPROVED movements whose scheduled time has passed
	FindDue(ctx context.Context, now time.Time, limit int) ([]Movement, error)

	// FindStuck returns IN_PROGRESS movements started before the cutoff
	FindStuck(ctx context.Context, startedBefore time.Time, limit int) ([]Movement, error)
}

// ReservationFilter narrows reservation listings
type ReservationFilter struct {
	shared.Filter
	ItemID        *uuid.UUID
	LocationID    *uuid.UUID
	Status        ReservationStatus
	ReferenceType string
	ReferenceID   string
}

// ReservationRepository persists reservations
type ReservationRepository interface {
	Create(ctx context.Context, r *Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*Reservation, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Reservation, error)
	Save(ctx context.Context, r *Reservation) error
	FindAll(ctx context.Context, filter ReservationFilter) ([]Reservation, int64, error)

	// FindExpired returns ACTIVE reservations whose expiry is before now
	FindExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error)

	// SumActive returns the total ACTIVE quantity held against (item, location)
	SumActive(ctx context.Context, itemID, locationID uuid.UUID) (int64, error)
}

// BatchRepository persists batches
type BatchRepository interface {
	Create(ctx context.Context, b *Batch) error
	FindByID(ctx context.Context, id uuid.UUID) (*Batch, error)
	FindByItemAndNumber(ctx context.Context, itemID uuid.UUID, batchNumber string) (*Batch, error)
	FindByItemAndNumberForUpdate(ctx context.Context, itemID uuid.UUID, batchNumber string) (*Batch, error)
	ExistsByItemAndNumber(ctx context.Context, itemID uuid.UUID, batchNumber string) (bool, error)
	Save(ctx context.Context, b *Batch) error
	FindByItem(ctx context.Context, itemID uuid.UUID) ([]Batch, error)

	// FindActiveByItemLocation returns active batches held at a location
	FindActiveByItemLocation(ctx context.Context, itemID, locationID uuid.UUID) ([]Batch, error)

	// FindExpiring returns active batches with expiry in [from, to]
	FindExpiring(ctx context.Context, from, to time.Time) ([]Batch, error)

	// FindExpired returns active batches with expiry before now
	FindExpired(ctx context.Context, now time.Time, limit int) ([]Batch, error)
}

// BatchHistoryRepository appends and reads batch history. It has no update path.
type BatchHistoryRepository interface {
	Append(ctx context.Context, h *BatchHistory) error
	FindByBatch(ctx context.Context, batchID uuid.UUID) ([]BatchHistory, error)
}

// ValuationRecordRepository stores write-once valuation snapshots
type ValuationRecordRepository interface {
	Create(ctx context.Context, r *ValuationRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*ValuationRecord, error)
	FindByItem(ctx context.Context, itemID uuid.UUID, limit int) ([]ValuationRecord, error)
}

// AlertFilter narrows alert listings
type AlertFilter struct {
	shared.Filter
	ItemID     *uuid.UUID
	LocationID *uuid.UUID
	Type       AlertType
	Status     AlertStatus
	OpenOnly   bool
}

// StockAlertRepository persists alerts
type StockAlertRepository interface {
	// Create inserts an alert. A conflicting open alert for the same triple
	// yields ALREADY_EXISTS.
	Create(ctx context.Context, a *StockAlert) error
	FindByID(ctx context.Context, id uuid.UUID) (*StockAlert, error)
	Save(ctx context.Context, a *StockAlert) error

	// FindOpen returns the open alert for a triple or NOT_FOUND
	FindOpen(ctx context.Context, alertType AlertType, itemID, locationID uuid.UUID) (*StockAlert, error)

	// FindOpenByKey returns all open alerts for (item, location)
	FindOpenByKey(ctx context.Context, itemID, locationID uuid.UUID) ([]StockAlert, error)

	FindAll(ctx context.Context, filter AlertFilter) ([]StockAlert, int64, error)
}

package persistence

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBatchRepository implements BatchRepository using GORM
type GormBatchRepository struct {
	db *gorm.DB
}

// NewGormBatchRepository creates a new GormBatchRepository
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// Create inserts a batch. A collision on (item, batch number) is reported
// as DUPLICATE_BATCH.
func (r *GormBatchRepository) Create(ctx context.Context, b *inventory.Batch) error {
	if err := r.db.WithContext(ctx).Create(b).Error; err != nil {
		if isUniqueViolation(err) {
			return inventory.NewDuplicateBatchError(b.ItemID, b.BatchNumber).WithCause(err)
		}
		return err
	}
	return nil
}

// FindByID finds a batch by its ID
func (r *GormBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	var b inventory.Batch
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "batch", id)
	}
	return &b, nil
}

// FindByItemAndNumber finds a batch by its natural key
func (r *GormBatchRepository) FindByItemAndNumber(ctx context.Context, itemID uuid.UUID, batchNumber string) (*inventory.Batch, error) {
	return r.findByItemAndNumber(r.db.WithContext(ctx), itemID, batchNumber)
}

// FindByItemAndNumberForUpdate finds a batch by its natural key and locks it
func (r *GormBatchRepository) FindByItemAndNumberForUpdate(ctx context.Context, itemID uuid.UUID, batchNumber string) (*inventory.Batch, error) {
	return r.findByItemAndNumber(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), itemID, batchNumber)
}

func (r *GormBatchRepository) findByItemAndNumber(query *gorm.DB, itemID uuid.UUID, batchNumber string) (*inventory.Batch, error) {
	var b inventory.Batch
	if err := query.
		Where("item_id = ? AND batch_number = ?", itemID, batchNumber).
		First(&b).Error; err != nil {
		return nil, notFoundOr(err, "batch", batchNumber)
	}
	return &b, nil
}

// ExistsByItemAndNumber reports whether the batch number is taken for the item
func (r *GormBatchRepository) ExistsByItemAndNumber(ctx context.Context, itemID uuid.UUID, batchNumber string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&inventory.Batch{}).
		Where("item_id = ? AND batch_number = ?", itemID, batchNumber).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save writes quantity and activity changes with a version check
func (r *GormBatchRepository) Save(ctx context.Context, b *inventory.Batch) error {
	result := r.db.WithContext(ctx).
		Model(&inventory.Batch{}).
		Where("id = ? AND version = ?", b.ID, b.Version-1).
		Updates(map[string]any{
			"quantity":       b.Quantity,
			"is_active":      b.IsActive,
			"deactivated_at": b.DeactivatedAt,
			"version":        b.Version,
			"updated_at":     b.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return staleVersion("batch", b.ID.String())
	}
	return nil
}

// FindByItem returns all batches of an item, soonest expiry first
func (r *GormBatchRepository) FindByItem(ctx context.Context, itemID uuid.UUID) ([]inventory.Batch, error) {
	var batches []inventory.Batch
	if err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("expiry_date ASC").
		Order("batch_number ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindActiveByItemLocation returns active batches of an item held at a location
func (r *GormBatchRepository) FindActiveByItemLocation(ctx context.Context, itemID, locationID uuid.UUID) ([]inventory.Batch, error) {
	var batches []inventory.Batch
	if err := r.db.WithContext(ctx).
		Where("item_id = ? AND location_id = ? AND is_active = ?", itemID, locationID, true).
		Order("expiry_date ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindExpiring returns active batches expiring in [from, to]
func (r *GormBatchRepository) FindExpiring(ctx context.Context, from, to time.Time) ([]inventory.Batch, error) {
	var batches []inventory.Batch
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND expiry_date >= ? AND expiry_date <= ?", true, from, to).
		Order("expiry_date ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindExpired returns active batches whose expiry has passed
func (r *GormBatchRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]inventory.Batch, error) {
	var batches []inventory.Batch
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND expiry_date < ?", true, now).
		Order("expiry_date ASC").
		Limit(limit).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// Ensure GormBatchRepository implements BatchRepository
var _ inventory.BatchRepository = (*GormBatchRepository)(nil)

// GormBatchHistoryRepository implements BatchHistoryRepository using GORM.
// It only inserts and reads.
type GormBatchHistoryRepository struct {
	db *gorm.DB
}

// NewGormBatchHistoryRepository creates a new GormBatchHistoryRepository
func NewGormBatchHistoryRepository(db *gorm.DB) *GormBatchHistoryRepository {
	return &GormBatchHistoryRepository{db: db}
}

// Append inserts a history entry
func (r *GormBatchHistoryRepository) Append(ctx context.Context, h *inventory.BatchHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

// FindByBatch returns the history of a batch, oldest first
func (r *GormBatchHistoryRepository) FindByBatch(ctx context.Context, batchID uuid.UUID) ([]inventory.BatchHistory, error) {
	var entries []inventory.BatchHistory
	if err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Ensure GormBatchHistoryRepository implements BatchHistoryRepository
var _ inventory.BatchHistoryRepository = (*GormBatchHistoryRepository)(nil)

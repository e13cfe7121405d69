package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormValuationRecordRepository stores valuation snapshots. Records are
// never updated once written.
type GormValuationRecordRepository struct {
	db *gorm.DB
}

// NewGormValuationRecordRepository creates a new GormValuationRecordRepository
func NewGormValuationRecordRepository(db *gorm.DB) *GormValuationRecordRepository {
	return &GormValuationRecordRepository{db: db}
}

// Create inserts a snapshot
func (r *GormValuationRecordRepository) Create(ctx context.Context, rec *inventory.ValuationRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// FindByID finds a snapshot by its ID
func (r *GormValuationRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.ValuationRecord, error) {
	var rec inventory.ValuationRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "valuation record", id)
	}
	return &rec, nil
}

// FindByItem returns the latest snapshots of an item, newest first
func (r *GormValuationRecordRepository) FindByItem(ctx context.Context, itemID uuid.UUID, limit int) ([]inventory.ValuationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []inventory.ValuationRecord
	if err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Ensure GormValuationRecordRepository implements ValuationRecordRepository
var _ inventory.ValuationRecordRepository = (*GormValuationRecordRepository)(nil)

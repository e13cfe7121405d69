package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockLevelRepository implements StockLevelRepository using GORM
type GormStockLevelRepository struct {
	db             *gorm.DB
	lowStockSource inventory.LowStockThresholdSource
}

// NewGormStockLevelRepository creates a new GormStockLevelRepository
func NewGormStockLevelRepository(db *gorm.DB) *GormStockLevelRepository {
	return &GormStockLevelRepository{db: db, lowStockSource: inventory.ThresholdSourceReorderPoint}
}

// WithLowStockSource sets the low stock threshold source stamped on rows this
// repository creates. Existing rows keep theirs.
func (r *GormStockLevelRepository) WithLowStockSource(source inventory.LowStockThresholdSource) *GormStockLevelRepository {
	if source != "" {
		r.lowStockSource = source
	}
	return r
}

// FindByID finds a stock level by its surrogate ID
func (r *GormStockLevelRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.StockLevel, error) {
	var level inventory.StockLevel
	if err := r.db.WithContext(ctx).First(&level, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "stock level", id)
	}
	return &level, nil
}

// FindByKey finds the stock level of an (item, location) pair
func (r *GormStockLevelRepository) FindByKey(ctx context.Context, itemID, locationID uuid.UUID) (*inventory.StockLevel, error) {
	return r.findByKey(r.db.WithContext(ctx), itemID, locationID)
}

// FindByKeyForUpdate finds the stock level and holds a row lock until the
// surrounding transaction ends
func (r *GormStockLevelRepository) FindByKeyForUpdate(ctx context.Context, itemID, locationID uuid.UUID) (*inventory.StockLevel, error) {
	return r.findByKey(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), itemID, locationID)
}

func (r *GormStockLevelRepository) findByKey(query *gorm.DB, itemID, locationID uuid.UUID) (*inventory.StockLevel, error) {
	var level inventory.StockLevel
	if err := query.
		Where("item_id = ? AND location_id = ?", itemID, locationID).
		First(&level).Error; err != nil {
		return nil, notFoundOr(err, "stock level", inventory.StockKey{ItemID: itemID, LocationID: locationID}.String())
	}
	return &level, nil
}

// GetOrCreateForUpdate returns the locked row for (item, location), inserting
// an empty row first when none exists. Concurrent creators race on the
// unique key and the loser falls through to the locked read.
func (r *GormStockLevelRepository) GetOrCreateForUpdate(ctx context.Context, itemID, locationID uuid.UUID, now time.Time) (*inventory.StockLevel, error) {
	level, err := r.FindByKeyForUpdate(ctx, itemID, locationID)
	if err == nil {
		return level, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	fresh, err := inventory.NewStockLevel(itemID, locationID, now)
	if err != nil {
		return nil, err
	}
	if err := fresh.SetLowStockSource(r.lowStockSource); err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}, {Name: "location_id"}},
			DoNothing: true,
		}).
		Create(fresh).Error; err != nil {
		return nil, err
	}
	return r.FindByKeyForUpdate(ctx, itemID, locationID)
}

// Save writes a mutated stock level. The row must still carry the version
// it was read at.
func (r *GormStockLevelRepository) Save(ctx context.Context, level *inventory.StockLevel) error {
	result := r.db.WithContext(ctx).
		Model(&inventory.StockLevel{}).
		Where("id = ? AND version = ?", level.ID, level.Version-1).
		Updates(map[string]any{
			"quantity":           level.Quantity,
			"reserved_quantity":  level.ReservedQuantity,
			"available_quantity": level.AvailableQuantity,
			"min_stock_level":    level.MinStockLevel,
			"max_stock_level":    level.MaxStockLevel,
			"reorder_point":      level.ReorderPoint,
			"average_cost":       level.AverageCost,
			"last_cost":          level.LastCost,
			"is_low_stock":       level.IsLowStock,
			"is_out_of_stock":    level.IsOutOfStock,
			"last_movement_at":   level.LastMovementAt,
			"version":            level.Version,
			"updated_at":         level.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return staleVersion("stock level", level.ID.String())
	}
	return nil
}

// FindAll lists stock levels matching the filter with the total match count
func (r *GormStockLevelRepository) FindAll(ctx context.Context, filter inventory.StockLevelFilter) ([]inventory.StockLevel, int64, error) {
	query := r.db.WithContext(ctx).Model(&inventory.StockLevel{})
	if filter.ItemID != nil {
		query = query.Where("item_id = ?", *filter.ItemID)
	}
	if filter.LocationID != nil {
		query = query.Where("location_id = ?", *filter.LocationID)
	}
	if filter.LowStock != nil {
		query = query.Where("is_low_stock = ?", *filter.LowStock)
	}
	if filter.OutOfStock != nil {
		query = query.Where("is_out_of_stock = ?", *filter.OutOfStock)
	}
	return countAndPage[inventory.StockLevel](query, filter.Filter, StockLevelSortFields)
}

// ScanAll walks every stock level in id order, batchSize rows at a time.
// Keyset pagination keeps pages stable while rows are being updated.
func (r *GormStockLevelRepository) ScanAll(ctx context.Context, batchSize int, fn func([]inventory.StockLevel) error) error {
	if batchSize <= 0 {
		batchSize = 200
	}
	var after *uuid.UUID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		query := r.db.WithContext(ctx).Order("id ASC").Limit(batchSize)
		if after != nil {
			query = query.Where("id > ?", *after)
		}
		var page []inventory.StockLevel
		if err := query.Find(&page).Error; err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < batchSize {
			return nil
		}
		last := page[len(page)-1].ID
		after = &last
	}
}

// Ensure GormStockLevelRepository implements StockLevelRepository
var _ inventory.StockLevelRepository = (*GormStockLevelRepository)(nil)

package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStockAlertRepository implements StockAlertRepository using GORM
type GormStockAlertRepository struct {
	db *gorm.DB
}

// NewGormStockAlertRepository creates a new GormStockAlertRepository
func NewGormStockAlertRepository(db *gorm.DB) *GormStockAlertRepository {
	return &GormStockAlertRepository{db: db}
}

// Create inserts an alert. The partial unique index on open alerts turns a
// concurrent duplicate into ALREADY_EXISTS.
func (r *GormStockAlertRepository) Create(ctx context.Context, a *inventory.StockAlert) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists.
				WithDetail("type", string(a.Type)).
				WithDetail("item_id", a.ItemID.String()).
				WithDetail("location_id", a.LocationID.String()).
				WithCause(err)
		}
		return err
	}
	return nil
}

// FindByID finds an alert by its ID
func (r *GormStockAlertRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.StockAlert, error) {
	var a inventory.StockAlert
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "alert", id)
	}
	return &a, nil
}

// Save writes the lifecycle fields of an alert with a version check
func (r *GormStockAlertRepository) Save(ctx context.Context, a *inventory.StockAlert) error {
	result := r.db.WithContext(ctx).
		Model(&inventory.StockAlert{}).
		Where("id = ? AND version = ?", a.ID, a.Version-1).
		Updates(map[string]any{
			"status":             a.Status,
			"message":            a.Message,
			"current_quantity":   a.CurrentQuantity,
			"threshold_quantity": a.ThresholdQuantity,
			"source_id":          a.SourceID,
			"acknowledged_by":    a.AcknowledgedBy,
			"acknowledged_at":    a.AcknowledgedAt,
			"resolved_by":        a.ResolvedBy,
			"resolved_at":        a.ResolvedAt,
			"version":            a.Version,
			"updated_at":         a.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return staleVersion("alert", a.ID.String())
	}
	return nil
}

// FindOpen returns the open alert of a (type, item, location) triple
func (r *GormStockAlertRepository) FindOpen(ctx context.Context, alertType inventory.AlertType, itemID, locationID uuid.UUID) (*inventory.StockAlert, error) {
	var a inventory.StockAlert
	if err := r.db.WithContext(ctx).
		Where("type = ? AND item_id = ? AND location_id = ? AND status IN ?",
			alertType, itemID, locationID, inventory.OpenAlertStatuses).
		First(&a).Error; err != nil {
		return nil, notFoundOr(err, "open alert", string(alertType)+" "+inventory.StockKey{ItemID: itemID, LocationID: locationID}.String())
	}
	return &a, nil
}

// FindOpenByKey returns every open alert of an (item, location) pair
func (r *GormStockAlertRepository) FindOpenByKey(ctx context.Context, itemID, locationID uuid.UUID) ([]inventory.StockAlert, error) {
	var alerts []inventory.StockAlert
	if err := r.db.WithContext(ctx).
		Where("item_id = ? AND location_id = ? AND status IN ?", itemID, locationID, inventory.OpenAlertStatuses).
		Order("created_at ASC").
		Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// FindAll lists alerts matching the filter with the total match count
func (r *GormStockAlertRepository) FindAll(ctx context.Context, filter inventory.AlertFilter) ([]inventory.StockAlert, int64, error) {
	query := r.db.WithContext(ctx).Model(&inventory.StockAlert{})
	if filter.ItemID != nil {
		query = query.Where("item_id = ?", *filter.ItemID)
	}
	if filter.LocationID != nil {
		query = query.Where("location_id = ?", *filter.LocationID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OpenOnly {
		query = query.Where("status IN ?", inventory.OpenAlertStatuses)
	}
	return countAndPage[inventory.StockAlert](query, filter.Filter, AlertSortFields)
}

// Ensure GormStockAlertRepository implements StockAlertRepository
var _ inventory.StockAlertRepository = (*GormStockAlertRepository)(nil)

package persistence

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormReservationRepository implements ReservationRepository using GORM
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository creates a new GormReservationRepository
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// Create inserts a new reservation
func (r *GormReservationRepository) Create(ctx context.Context, res *inventory.Reservation) error {
	return r.db.WithContext(ctx).Create(res).Error
}

// FindByID finds a reservation by its ID
func (r *GormReservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Reservation, error) {
	var res inventory.Reservation
	if err := r.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "reservation", id)
	}
	return &res, nil
}

// FindByIDForUpdate finds a reservation and locks its row
func (r *GormReservationRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Reservation, error) {
	var res inventory.Reservation
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&res, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "reservation", id)
	}
	return &res, nil
}

// Save writes the lifecycle fields of a reservation with a version check
func (r *GormReservationRepository) Save(ctx context.Context, res *inventory.Reservation) error {
	result := r.db.WithContext(ctx).
		Model(&inventory.Reservation{}).
		Where("id = ? AND version = ?", res.ID, res.Version-1).
		Updates(map[string]any{
			"status":         res.Status,
			"released_at":    res.ReleasedAt,
			"release_reason": res.ReleaseReason,
			"fulfilled_at":   res.FulfilledAt,
			"version":        res.Version,
			"updated_at":     res.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return staleVersion("reservation", res.ID.String())
	}
	return nil
}

// FindAll lists reservations matching the filter with the total match count
func (r *GormReservationRepository) FindAll(ctx context.Context, filter inventory.ReservationFilter) ([]inventory.Reservation, int64, error) {
	query := r.db.WithContext(ctx).Model(&inventory.Reservation{})
	if filter.ItemID != nil {
		query = query.Where("item_id = ?", *filter.ItemID)
	}
	if filter.LocationID != nil {
		query = query.Where("location_id = ?", *filter.LocationID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ReferenceType != "" {
		query = query.Where("reference_type = ?", filter.ReferenceType)
	}
	if filter.ReferenceID != "" {
		query = query.Where("reference_id = ?", filter.ReferenceID)
	}
	return countAndPage[inventory.Reservation](query, filter.Filter, ReservationSortFields)
}

// FindExpired returns active reservations past their expiry, oldest first
func (r *GormReservationRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]inventory.Reservation, error) {
	var reservations []inventory.Reservation
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", inventory.ReservationStatusActive, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// SumActive totals the active holds against an (item, location) pair
func (r *GormReservationRepository) SumActive(ctx context.Context, itemID, locationID uuid.UUID) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&inventory.Reservation{}).
		Where("item_id = ? AND location_id = ? AND status = ?", itemID, locationID, inventory.ReservationStatusActive).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Ensure GormReservationRepository implements ReservationRepository
var _ inventory.ReservationRepository = (*GormReservationRepository)(nil)

package persistence

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMovementRepository implements MovementRepository using GORM
type GormMovementRepository struct {
	db *gorm.DB
}

// NewGormMovementRepository creates a new GormMovementRepository
func NewGormMovementRepository(db *gorm.DB) *GormMovementRepository {
	return &GormMovementRepository{db: db}
}

// Create inserts a new movement
func (r *GormMovementRepository) Create(ctx context.Context, m *inventory.Movement) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// CreateBatch inserts movements in chunks of 100
func (r *GormMovementRepository) CreateBatch(ctx context.Context, movements []*inventory.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(movements, 100).Error
}

// FindByID finds a movement by its ID
func (r *GormMovementRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Movement, error) {
	var m inventory.Movement
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "movement", id)
	}
	return &m, nil
}

// FindByIDForUpdate finds a movement and locks its row
func (r *GormMovementRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Movement, error) {
	var m inventory.Movement
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "movement", id)
	}
	return &m, nil
}

// Save writes the workflow fields of a movement with a version check
func (r *GormMovementRepository) Save(ctx context.Context, m *inventory.Movement) error {
	result := r.db.WithContext(ctx).
		Model(&inventory.Movement{}).
		Where("id = ? AND version = ?", m.ID, m.Version-1).
		Updates(map[string]any{
			"status":            m.Status,
			"approved_by":       m.ApprovedBy,
			"approved_at":       m.ApprovedAt,
			"rejected_by":       m.RejectedBy,
			"rejected_at":       m.RejectedAt,
			"rejection_reason":  m.RejectionReason,
			"cancelled_by":      m.CancelledBy,
			"cancelled_at":      m.CancelledAt,
			"cancel_reason":     m.CancelReason,
			"started_at":        m.StartedAt,
			"completed_at":      m.CompletedAt,
			"failed_at":         m.FailedAt,
			"failure_reason":    m.FailureReason,
			"attempt_count":     m.AttemptCount,
			"applied_unit_cost": m.AppliedUnitCost,
			"version":           m.Version,
			"updated_at":        m.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return staleVersion("movement", m.ID.String())
	}
	return nil
}

// ClaimForProcessing flips a movement to IN_PROGRESS only if it is still in
// one of the from statuses. Exactly one concurrent caller wins.
func (r *GormMovementRepository) ClaimForProcessing(ctx context.Context, id uuid.UUID, from []inventory.MovementStatus, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&inventory.Movement{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":         inventory.MovementStatusInProgress,
			"started_at":     now,
			"attempt_count":  gorm.Expr("attempt_count + 1"),
			"failure_reason": "",
			"failed_at":      nil,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindAll lists movements matching the filter with the total match count
func (r *GormMovementRepository) FindAll(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, int64, error) {
	query := r.db.WithContext(ctx).Model(&inventory.Movement{})
	if filter.ItemID != nil {
		query = query.Where("item_id = ?", *filter.ItemID)
	}
	if filter.LocationID != nil {
		query = query.Where("(from_location_id = ? OR to_location_id = ?)", *filter.LocationID, *filter.LocationID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Reference != "" {
		query = query.Where("reference_number = ?", filter.Reference)
	}
	return countAndPage[inventory.Movement](query, filter.Filter, MovementSortFields)
}

// FindCompletedByItem returns the completed history of an item in apply order
func (r *GormMovementRepository) FindCompletedByItem(ctx context.Context, itemID uuid.UUID, asOf *time.Time) ([]inventory.Movement, error) {
	query := r.db.WithContext(ctx).
		Where("item_id = ? AND status = ?", itemID, inventory.MovementStatusCompleted)
	if asOf != nil {
		query = query.Where("completed_at <= ?", *asOf)
	}

	var movements []inventory.Movement
	if err := query.Order("completed_at ASC").Order("id ASC").Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// priorityOrder sorts URGENT first and LOW last
const priorityOrder = "CASE priority WHEN 'URGENT' THEN 0 WHEN 'HIGH' THEN 1 WHEN 'NORMAL' THEN 2 ELSE 3 END"

// FindDue returns approved scheduled movements whose time has come,
// highest priority first
func (r *GormMovementRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]inventory.Movement, error) {
	var movements []inventory.Movement
	if err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", inventory.MovementStatusApproved, now).
		Order(priorityOrder).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// FindStuck returns movements left IN_PROGRESS since before the cutoff
func (r *GormMovementRepository) FindStuck(ctx context.Context, startedBefore time.Time, limit int) ([]inventory.Movement, error) {
	var movements []inventory.Movement
	if err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", inventory.MovementStatusInProgress, startedBefore).
		Order("started_at ASC").
		Limit(limit).
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// Ensure GormMovementRepository implements MovementRepository
var _ inventory.MovementRepository = (*GormMovementRepository)(nil)

package inventory

import (
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockLevelResponse represents a stock level in API responses
type StockLevelResponse struct {
	ID                uuid.UUID       `json:"id"`
	ItemID            uuid.UUID       `json:"item_id"`
	LocationID        uuid.UUID       `json:"location_id"`
	Quantity          int64           `json:"quantity"`
	ReservedQuantity  int64           `json:"reserved_quantity"`
	AvailableQuantity int64           `json:"available_quantity"`
	MinStockLevel     int64           `json:"min_stock_level"`
	MaxStockLevel     int64           `json:"max_stock_level"`
	ReorderPoint      int64           `json:"reorder_point"`
	AverageCost       decimal.Decimal `json:"average_cost"`
	LastCost          decimal.Decimal `json:"last_cost"`
	TotalValue        decimal.Decimal `json:"total_value"`
	LowStockSource    string          `json:"low_stock_source"`
	IsLowStock        bool            `json:"is_low_stock"`
	IsOutOfStock      bool            `json:"is_out_of_stock"`
	LastMovementAt    *time.Time      `json:"last_movement_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
}

// StockLevelListFilter represents filter options for stock level lists
type StockLevelListFilter struct {
	ItemID     *uuid.UUID `form:"-"`
	LocationID *uuid.UUID `form:"-"`
	LowStock   *bool      `form:"low_stock"`
	OutOfStock *bool      `form:"out_of_stock"`
	Page       int        `form:"page" binding:"omitempty,min=1"`
	PageSize   int        `form:"page_size" binding:"omitempty,min=1,max=500"`
	OrderBy    string     `form:"order_by"`
	OrderDir   string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// SetThresholdsRequest represents a request to change the alerting thresholds of a row
type SetThresholdsRequest struct {
	MinStockLevel int64 `json:"min_stock_level" binding:"min=0"`
	MaxStockLevel int64 `json:"max_stock_level" binding:"min=0"`
	ReorderPoint  int64 `json:"reorder_point" binding:"min=0"`
}

// SubmitMovementRequest represents a request to record a stock movement
type SubmitMovementRequest struct {
	Type            string           `json:"type" binding:"required,oneof=IN OUT TRANSFER ADJUSTMENT"`
	ItemID          uuid.UUID        `json:"item_id" binding:"required"`
	FromLocationID  *uuid.UUID       `json:"from_location_id"`
	ToLocationID    *uuid.UUID       `json:"to_location_id"`
	Quantity        int64            `json:"quantity" binding:"required,gt=0"`
	UnitCost        *decimal.Decimal `json:"unit_cost"`
	Reason          string           `json:"reason" binding:"max=500"`
	ReferenceNumber string           `json:"reference_number" binding:"max=100"`
	BatchNumber     string           `json:"batch_number" binding:"max=100"`
	Priority        string           `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	ScheduledAt     *time.Time       `json:"scheduled_at"`
	RequestedBy     string           `json:"requested_by" binding:"max=100"`
	IdempotencyKey  string           `json:"idempotency_key" binding:"max=200"`
}

func (r SubmitMovementRequest) toSpec() inventory.MovementSpec {
	spec := inventory.MovementSpec{
		ItemID:          r.ItemID,
		Type:            inventory.MovementType(r.Type),
		Quantity:        r.Quantity,
		FromLocationID:  r.FromLocationID,
		ToLocationID:    r.ToLocationID,
		Reason:          r.Reason,
		ReferenceNumber: r.ReferenceNumber,
		BatchNumber:     r.BatchNumber,
		Priority:        inventory.MovementPriority(r.Priority),
		ScheduledAt:     r.ScheduledAt,
		RequestedBy:     r.RequestedBy,
	}
	if r.UnitCost != nil {
		spec.UnitCost = decimal.NewNullDecimal(*r.UnitCost)
	}
	if spec.ScheduledAt != nil {
		at := spec.ScheduledAt.UTC()
		spec.ScheduledAt = &at
	}
	return spec
}

// ApproveMovementRequest represents a request to approve a movement
type ApproveMovementRequest struct {
	ApprovedBy string `json:"approved_by" binding:"required,max=100"`
}

// RejectMovementRequest represents a request to reject a movement
type RejectMovementRequest struct {
	RejectedBy string `json:"rejected_by" binding:"required,max=100"`
	Reason     string `json:"reason" binding:"required,max=500"`
}

// CancelMovementRequest represents a request to cancel a movement
type CancelMovementRequest struct {
	CancelledBy string `json:"cancelled_by" binding:"required,max=100"`
	Reason      string `json:"reason" binding:"max=500"`
}

// MovementResponse represents a movement in API responses
type MovementResponse struct {
	ID              uuid.UUID        `json:"id"`
	ItemID          uuid.UUID        `json:"item_id"`
	Type            string           `json:"type"`
	Status          string           `json:"status"`
	Priority        string           `json:"priority"`
	Quantity        int64            `json:"quantity"`
	FromLocationID  *uuid.UUID       `json:"from_location_id,omitempty"`
	ToLocationID    *uuid.UUID       `json:"to_location_id,omitempty"`
	UnitCost        *decimal.Decimal `json:"unit_cost,omitempty"`
	AppliedUnitCost *decimal.Decimal `json:"applied_unit_cost,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	ReferenceNumber string           `json:"reference_number,omitempty"`
	BatchNumber     string           `json:"batch_number,omitempty"`
	RequestedBy     string           `json:"requested_by,omitempty"`
	ApprovedBy      string           `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time       `json:"approved_at,omitempty"`
	RejectedBy      string           `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time       `json:"rejected_at,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	CancelledBy     string           `json:"cancelled_by,omitempty"`
	CancelledAt     *time.Time       `json:"cancelled_at,omitempty"`
	CancelReason    string           `json:"cancel_reason,omitempty"`
	ScheduledAt     *time.Time       `json:"scheduled_at,omitempty"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	FailedAt        *time.Time       `json:"failed_at,omitempty"`
	FailureReason   string           `json:"failure_reason,omitempty"`
	AttemptCount    int              `json:"attempt_count"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Version         int              `json:"version"`
	Replayed        bool             `json:"replayed,omitempty"`
}

// MovementListFilter represents filter options for movement lists
type MovementListFilter struct {
	ItemID     *uuid.UUID `form:"-"`
	LocationID *uuid.UUID `form:"-"`
	Status     string     `form:"status" binding:"omitempty,oneof=PENDING APPROVED IN_PROGRESS COMPLETED FAILED CANCELLED REJECTED"`
	Type       string     `form:"type" binding:"omitempty,oneof=IN OUT TRANSFER ADJUSTMENT"`
	Reference  string     `form:"reference"`
	Page       int        `form:"page" binding:"omitempty,min=1"`
	PageSize   int        `form:"page_size" binding:"omitempty,min=1,max=500"`
	OrderBy    string     `form:"order_by"`
	OrderDir   string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// BulkSubmitRequest represents a bulk movement submission
type BulkSubmitRequest struct {
	Movements []SubmitMovementRequest `json:"movements" binding:"required,min=1,dive"`
	Atomic    bool                    `json:"atomic"`
}

// BulkItemError describes why one bulk item was not persisted
type BulkItemError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// BulkItemResult is the outcome of one bulk item
type BulkItemResult struct {
	Index    int               `json:"index"`
	Movement *MovementResponse `json:"movement,omitempty"`
	Error    *BulkItemError    `json:"error,omitempty"`
}

// BulkSubmitResponse reports the outcome of a bulk submission
type BulkSubmitResponse struct {
	Atomic    bool             `json:"atomic"`
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []BulkItemResult `json:"results"`
}

// ReserveStockRequest represents a request to place a hold on available stock
type ReserveStockRequest struct {
	ItemID        uuid.UUID  `json:"item_id" binding:"required"`
	LocationID    uuid.UUID  `json:"location_id" binding:"required"`
	Quantity      int64      `json:"quantity" binding:"required,gt=0"`
	ReferenceType string     `json:"reference_type" binding:"required,max=50"`
	ReferenceID   string     `json:"reference_id" binding:"required,max=100"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// ReservationResponse represents a reservation in API responses
type ReservationResponse struct {
	ID            uuid.UUID  `json:"id"`
	ItemID        uuid.UUID  `json:"item_id"`
	LocationID    uuid.UUID  `json:"location_id"`
	Quantity      int64      `json:"quantity"`
	ReferenceType string     `json:"reference_type"`
	ReferenceID   string     `json:"reference_id"`
	Status        string     `json:"status"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	ReleaseReason string     `json:"release_reason,omitempty"`
	FulfilledAt   *time.Time `json:"fulfilled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Version       int        `json:"version"`
}

// ReservationListFilter represents filter options for reservation lists
type ReservationListFilter struct {
	ItemID        *uuid.UUID `form:"-"`
	LocationID    *uuid.UUID `form:"-"`
	Status        string     `form:"status" binding:"omitempty,oneof=ACTIVE RELEASED FULFILLED"`
	ReferenceType string     `form:"reference_type"`
	ReferenceID   string     `form:"reference_id"`
	Page          int        `form:"page" binding:"omitempty,min=1"`
	PageSize      int        `form:"page_size" binding:"omitempty,min=1,max=500"`
	OrderBy       string     `form:"order_by"`
	OrderDir      string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// CreateBatchRequest represents a request to register a batch
type CreateBatchRequest struct {
	ItemID           uuid.UUID        `json:"item_id" binding:"required"`
	LocationID       uuid.UUID        `json:"location_id" binding:"required"`
	BatchNumber      string           `json:"batch_number" binding:"max=100"`
	Quantity         int64            `json:"quantity" binding:"min=0"`
	ManufacturedDate *time.Time       `json:"manufactured_date"`
	ExpiryDate       *time.Time       `json:"expiry_date"`
	SupplierID       *uuid.UUID       `json:"supplier_id"`
	UnitCost         *decimal.Decimal `json:"unit_cost"`
}

// BatchResponse represents a batch in API responses
type BatchResponse struct {
	ID               uuid.UUID        `json:"id"`
	ItemID           uuid.UUID        `json:"item_id"`
	LocationID       uuid.UUID        `json:"location_id"`
	BatchNumber      string           `json:"batch_number"`
	Quantity         int64            `json:"quantity"`
	ManufacturedDate *time.Time       `json:"manufactured_date,omitempty"`
	ExpiryDate       time.Time        `json:"expiry_date"`
	DaysUntilExpiry  int              `json:"days_until_expiry"`
	SupplierID       *uuid.UUID       `json:"supplier_id,omitempty"`
	UnitCost         *decimal.Decimal `json:"unit_cost,omitempty"`
	IsActive         bool             `json:"is_active"`
	DeactivatedAt    *time.Time       `json:"deactivated_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// BatchHistoryResponse represents a batch history entry
type BatchHistoryResponse struct {
	ID          uuid.UUID `json:"id"`
	BatchID     uuid.UUID `json:"batch_id"`
	BatchNumber string    `json:"batch_number"`
	Action      string    `json:"action"`
	Quantity    int64     `json:"quantity"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValuationQuery selects what a valuation covers
type ValuationQuery struct {
	ItemID     uuid.UUID  `json:"item_id" form:"-"`
	Method     string     `json:"method" form:"method" binding:"omitempty,oneof=FIFO LIFO AVERAGE"`
	AsOf       *time.Time `json:"as_of" form:"as_of" time_format:"2006-01-02T15:04:05Z07:00"`
	LocationID *uuid.UUID `json:"location_id" form:"-"`
}

// ValuationResponse represents a computed or stored valuation
type ValuationResponse struct {
	ID             *uuid.UUID      `json:"id,omitempty"`
	ItemID         uuid.UUID       `json:"item_id"`
	LocationID     *uuid.UUID      `json:"location_id,omitempty"`
	Method         string          `json:"method"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	QuantityOnHand int64           `json:"quantity_on_hand"`
	TotalValue     decimal.Decimal `json:"total_value"`
	EventCount     int             `json:"event_count"`
	AsOf           *time.Time      `json:"as_of,omitempty"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
}

// AlertResponse represents a stock alert in API responses
type AlertResponse struct {
	ID                uuid.UUID  `json:"id"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	ItemID            uuid.UUID  `json:"item_id"`
	LocationID        uuid.UUID  `json:"location_id"`
	Message           string     `json:"message"`
	CurrentQuantity   int64      `json:"current_quantity"`
	ThresholdQuantity int64      `json:"threshold_quantity"`
	SourceID          *uuid.UUID `json:"source_id,omitempty"`
	AcknowledgedBy    string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt    *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy        string     `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// AlertListFilter represents filter options for alert lists
type AlertListFilter struct {
	ItemID     *uuid.UUID `form:"-"`
	LocationID *uuid.UUID `form:"-"`
	Type       string     `form:"type" binding:"omitempty,oneof=LOW_STOCK OUT_OF_STOCK OVERSTOCK EXPIRY_WARNING MOVEMENT_FAILED"`
	Status     string     `form:"status" binding:"omitempty,oneof=ACTIVE ACKNOWLEDGED RESOLVED"`
	OpenOnly   bool       `form:"open_only"`
	Page       int        `form:"page" binding:"omitempty,min=1"`
	PageSize   int        `form:"page_size" binding:"omitempty,min=1,max=500"`
	OrderBy    string     `form:"order_by"`
	OrderDir   string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// AlertActionRequest carries the operator performing an alert transition
type AlertActionRequest struct {
	PerformedBy string `json:"performed_by" binding:"required,max=100"`
}

func listFilter(page, pageSize int, orderBy, orderDir string) shared.Filter {
	f := shared.DefaultFilter()
	if page > 0 {
		f.Page = page
	}
	if pageSize > 0 {
		f.PageSize = pageSize
	}
	if orderBy != "" {
		f.OrderBy = orderBy
	}
	if orderDir != "" {
		f.OrderDir = orderDir
	}
	return f
}

func nullDecimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// ToStockLevelResponse converts a domain StockLevel to a response
func ToStockLevelResponse(s *inventory.StockLevel) StockLevelResponse {
	return StockLevelResponse{
		ID:                s.ID,
		ItemID:            s.ItemID,
		LocationID:        s.LocationID,
		Quantity:          s.Quantity,
		ReservedQuantity:  s.ReservedQuantity,
		AvailableQuantity: s.AvailableQuantity,
		MinStockLevel:     s.MinStockLevel,
		MaxStockLevel:     s.MaxStockLevel,
		ReorderPoint:      s.ReorderPoint,
		AverageCost:       s.AverageCost,
		LastCost:          s.LastCost,
		TotalValue:        s.TotalValue().Round(strategy.ValuationScale),
		LowStockSource:    string(s.LowStockSource),
		IsLowStock:        s.IsLowStock,
		IsOutOfStock:      s.IsOutOfStock,
		LastMovementAt:    s.LastMovementAt,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		Version:           s.Version,
	}
}

// ToStockLevelResponses converts a slice of stock levels
func ToStockLevelResponses(levels []inventory.StockLevel) []StockLevelResponse {
	out := make([]StockLevelResponse, len(levels))
	for i := range levels {
		out[i] = ToStockLevelResponse(&levels[i])
	}
	return out
}

// ToMovementResponse converts a domain Movement to a response
func ToMovementResponse(m *inventory.Movement) MovementResponse {
	return MovementResponse{
		ID:              m.ID,
		ItemID:          m.ItemID,
		Type:            string(m.Type),
		Status:          string(m.Status),
		Priority:        string(m.Priority),
		Quantity:        m.Quantity,
		FromLocationID:  m.FromLocationID,
		ToLocationID:    m.ToLocationID,
		UnitCost:        nullDecimalPtr(m.UnitCost),
		AppliedUnitCost: nullDecimalPtr(m.AppliedUnitCost),
		Reason:          m.Reason,
		ReferenceNumber: m.ReferenceNumber,
		BatchNumber:     m.BatchNumber,
		RequestedBy:     m.RequestedBy,
		ApprovedBy:      m.ApprovedBy,
		ApprovedAt:      m.ApprovedAt,
		RejectedBy:      m.RejectedBy,
		RejectedAt:      m.RejectedAt,
		RejectionReason: m.RejectionReason,
		CancelledBy:     m.CancelledBy,
		CancelledAt:     m.CancelledAt,
		CancelReason:    m.CancelReason,
		ScheduledAt:     m.ScheduledAt,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
		FailedAt:        m.FailedAt,
		FailureReason:   m.FailureReason,
		AttemptCount:    m.AttemptCount,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		Version:         m.Version,
	}
}

// ToMovementResponses converts a slice of movements
func ToMovementResponses(movements []inventory.Movement) []MovementResponse {
	out := make([]MovementResponse, len(movements))
	for i := range movements {
		out[i] = ToMovementResponse(&movements[i])
	}
	return out
}

// ToReservationResponse converts a domain Reservation to a response
func ToReservationResponse(r *inventory.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:            r.ID,
		ItemID:        r.ItemID,
		LocationID:    r.LocationID,
		Quantity:      r.Quantity,
		ReferenceType: r.ReferenceType,
		ReferenceID:   r.ReferenceID,
		Status:        string(r.Status),
		ExpiresAt:     r.ExpiresAt,
		ReleasedAt:    r.ReleasedAt,
		ReleaseReason: r.ReleaseReason,
		FulfilledAt:   r.FulfilledAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		Version:       r.Version,
	}
}

// ToReservationResponses converts a slice of reservations
func ToReservationResponses(reservations []inventory.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, len(reservations))
	for i := range reservations {
		out[i] = ToReservationResponse(&reservations[i])
	}
	return out
}

// ToBatchResponse converts a domain Batch to a response
func ToBatchResponse(b *inventory.Batch, now time.Time) BatchResponse {
	return BatchResponse{
		ID:               b.ID,
		ItemID:           b.ItemID,
		LocationID:       b.LocationID,
		BatchNumber:      b.BatchNumber,
		Quantity:         b.Quantity,
		ManufacturedDate: b.ManufacturedDate,
		ExpiryDate:       b.ExpiryDate,
		DaysUntilExpiry:  b.DaysUntilExpiry(now),
		SupplierID:       b.SupplierID,
		UnitCost:         nullDecimalPtr(b.UnitCost),
		IsActive:         b.IsActive,
		DeactivatedAt:    b.DeactivatedAt,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

// ToBatchResponses converts a slice of batches
func ToBatchResponses(batches []inventory.Batch, now time.Time) []BatchResponse {
	out := make([]BatchResponse, len(batches))
	for i := range batches {
		out[i] = ToBatchResponse(&batches[i], now)
	}
	return out
}

// ToBatchHistoryResponses converts batch history entries
func ToBatchHistoryResponses(entries []inventory.BatchHistory) []BatchHistoryResponse {
	out := make([]BatchHistoryResponse, len(entries))
	for i, h := range entries {
		out[i] = BatchHistoryResponse{
			ID:          h.ID,
			BatchID:     h.BatchID,
			BatchNumber: h.BatchNumber,
			Action:      string(h.Action),
			Quantity:    h.Quantity,
			Note:        h.Note,
			CreatedAt:   h.CreatedAt,
		}
	}
	return out
}

// ToValuationRecordResponse converts a stored valuation snapshot
func ToValuationRecordResponse(r *inventory.ValuationRecord) ValuationResponse {
	id := r.ID
	created := r.CreatedAt
	return ValuationResponse{
		ID:             &id,
		ItemID:         r.ItemID,
		LocationID:     r.LocationID,
		Method:         string(r.Method),
		UnitCost:       r.UnitCost,
		QuantityOnHand: r.QuantityOnHand,
		TotalValue:     r.TotalValue,
		EventCount:     r.EventCount,
		AsOf:           r.AsOf,
		CreatedAt:      &created,
	}
}

// ToAlertResponse converts a domain StockAlert to a response
func ToAlertResponse(a *inventory.StockAlert) AlertResponse {
	return AlertResponse{
		ID:                a.ID,
		Type:              string(a.Type),
		Status:            string(a.Status),
		ItemID:            a.ItemID,
		LocationID:        a.LocationID,
		Message:           a.Message,
		CurrentQuantity:   a.CurrentQuantity,
		ThresholdQuantity: a.ThresholdQuantity,
		SourceID:          a.SourceID,
		AcknowledgedBy:    a.AcknowledgedBy,
		AcknowledgedAt:    a.AcknowledgedAt,
		ResolvedBy:        a.ResolvedBy,
		ResolvedAt:        a.ResolvedAt,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

// ToAlertResponses converts a slice of alerts
func ToAlertResponses(alerts []inventory.StockAlert) []AlertResponse {
	out := make([]AlertResponse, len(alerts))
	for i := range alerts {
		out[i] = ToAlertResponse(&alerts[i])
	}
	return out
}

package inventory

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockLevelService exposes the StockLevel rows and their thresholds
type StockLevelService struct {
	levels         inventory.StockLevelRepository
	scope          TransactionScope
	clock          shared.Clock
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewStockLevelService creates a new StockLevelService
func NewStockLevelService(
	levels inventory.StockLevelRepository,
	scope TransactionScope,
	clock shared.Clock,
	logger *zap.Logger,
) *StockLevelService {
	return &StockLevelService{
		levels: levels,
		scope:  scope,
		clock:  clock,
		logger: logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *StockLevelService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// Get returns the stock level of an item at a location
func (s *StockLevelService) Get(ctx context.Context, itemID, locationID uuid.UUID) (*StockLevelResponse, error) {
	level, err := s.levels.FindByKey(ctx, itemID, locationID)
	if err != nil {
		return nil, err
	}
	resp := ToStockLevelResponse(level)
	return &resp, nil
}

// List returns a page of stock levels
func (s *StockLevelService) List(ctx context.Context, filter StockLevelListFilter) (*shared.Paginated[StockLevelResponse], error) {
	f := listFilter(filter.Page, filter.PageSize, filter.OrderBy, filter.OrderDir)
	levels, total, err := s.levels.FindAll(ctx, inventory.StockLevelFilter{
		Filter:     f,
		ItemID:     filter.ItemID,
		LocationID: filter.LocationID,
		LowStock:   filter.LowStock,
		OutOfStock: filter.OutOfStock,
	})
	if err != nil {
		return nil, err
	}
	page := shared.NewPaginated(ToStockLevelResponses(levels), total, f.Page, f.Limit())
	return &page, nil
}

// ListBelowThreshold returns rows flagged low on stock
func (s *StockLevelService) ListBelowThreshold(ctx context.Context, filter StockLevelListFilter) (*shared.Paginated[StockLevelResponse], error) {
	low := true
	filter.LowStock = &low
	return s.List(ctx, filter)
}

// SetThresholds updates the alerting thresholds of a row, creating it when
// the pair has never been stocked. Alerts are re-evaluated through the
// StockLevelChanged event.
func (s *StockLevelService) SetThresholds(ctx context.Context, itemID, locationID uuid.UUID, req SetThresholdsRequest) (*StockLevelResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock_level", "set_thresholds",
		telemetry.AttrItemID, itemID.String(),
		telemetry.AttrLocationID, locationID.String(),
	)
	defer span.End()

	var (
		updated *inventory.StockLevel
		events  pendingEvents
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		now := s.clock.Now()
		level, err := repos.StockLevels().GetOrCreateForUpdate(ctx, itemID, locationID, now)
		if err != nil {
			return err
		}
		if err := level.SetThresholds(req.MinStockLevel, req.MaxStockLevel, req.ReorderPoint, now); err != nil {
			return err
		}
		if err := repos.StockLevels().Save(ctx, level); err != nil {
			return err
		}
		events.collect(level)
		updated = level
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.Enrich(ctx, s.logger).Info("Stock thresholds updated",
		zap.String("item_id", itemID.String()),
		zap.String("location_id", locationID.String()),
		zap.Int64("min_stock_level", req.MinStockLevel),
		zap.Int64("max_stock_level", req.MaxStockLevel),
		zap.Int64("reorder_point", req.ReorderPoint),
	)
	events.publish(ctx, s.eventPublisher, s.logger)

	resp := ToStockLevelResponse(updated)
	return &resp, nil
}

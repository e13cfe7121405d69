package handler

import (
	"context"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StockLevelService reads stock rows and updates their thresholds
type StockLevelService interface {
	Get(ctx context.Context, itemID, locationID uuid.UUID) (*appinv.StockLevelResponse, error)
	List(ctx context.Context, filter appinv.StockLevelListFilter) (*shared.Paginated[appinv.StockLevelResponse], error)
	SetThresholds(ctx context.Context, itemID, locationID uuid.UUID, req appinv.SetThresholdsRequest) (*appinv.StockLevelResponse, error)
}

// StockLevelHandler handles the stock level endpoints
type StockLevelHandler struct {
	BaseHandler
	levels StockLevelService
}

// NewStockLevelHandler creates a new StockLevelHandler
func NewStockLevelHandler(levels StockLevelService) *StockLevelHandler {
	return &StockLevelHandler{levels: levels}
}

// List handles GET /stock-levels
func (h *StockLevelHandler) List(c *gin.Context) {
	var filter appinv.StockLevelListFilter
	if !h.bindQuery(c, &filter) || !h.scopeQuery(c, &filter.ItemID, &filter.LocationID) {
		return
	}
	page, err := h.levels.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// Get handles GET /stock-levels/:item_id/:location_id
func (h *StockLevelHandler) Get(c *gin.Context) {
	itemID, locationID, ok := h.key(c)
	if !ok {
		return
	}
	level, err := h.levels.Get(c.Request.Context(), itemID, locationID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, level)
}

// SetThresholds handles PUT /stock-levels/:item_id/:location_id/thresholds
func (h *StockLevelHandler) SetThresholds(c *gin.Context) {
	itemID, locationID, ok := h.key(c)
	if !ok {
		return
	}
	var req appinv.SetThresholdsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	level, err := h.levels.SetThresholds(c.Request.Context(), itemID, locationID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, level)
}

func (h *StockLevelHandler) key(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	itemID, ok := h.uuidParam(c, "item_id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	locationID, ok := h.uuidParam(c, "location_id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return itemID, locationID, true
}

// RegisterRoutes mounts the stock level endpoints on rg
func (h *StockLevelHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/stock-levels")
	g.GET("", h.List)
	g.GET("/:item_id/:location_id", h.Get)
	g.PUT("/:item_id/:location_id/thresholds", h.SetThresholds)
}

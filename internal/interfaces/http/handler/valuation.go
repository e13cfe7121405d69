package handler

import (
	"context"
	"strconv"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ValuationService values an item's on-hand stock
type ValuationService interface {
	Compute(ctx context.Context, q appinv.ValuationQuery) (*appinv.ValuationResponse, error)
	Snapshot(ctx context.Context, q appinv.ValuationQuery) (*appinv.ValuationResponse, error)
	ListSnapshots(ctx context.Context, itemID uuid.UUID, limit int) ([]appinv.ValuationResponse, error)
}

// ValuationHandler handles the valuation endpoints
type ValuationHandler struct {
	BaseHandler
	valuation ValuationService
}

// NewValuationHandler creates a new ValuationHandler
func NewValuationHandler(valuation ValuationService) *ValuationHandler {
	return &ValuationHandler{valuation: valuation}
}

// Compute handles GET /items/:item_id/valuation
func (h *ValuationHandler) Compute(c *gin.Context) {
	q, ok := h.query(c)
	if !ok {
		return
	}
	v, err := h.valuation.Compute(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, v)
}

// Snapshot handles POST /items/:item_id/valuation/snapshots.
// The selection comes from the query string, like Compute.
func (h *ValuationHandler) Snapshot(c *gin.Context) {
	q, ok := h.query(c)
	if !ok {
		return
	}
	v, err := h.valuation.Snapshot(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, v)
}

// ListSnapshots handles GET /items/:item_id/valuation/snapshots
func (h *ValuationHandler) ListSnapshots(c *gin.Context) {
	itemID, ok := h.uuidParam(c, "item_id")
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	snapshots, err := h.valuation.ListSnapshots(c.Request.Context(), itemID, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, snapshots)
}

func (h *ValuationHandler) query(c *gin.Context) (appinv.ValuationQuery, bool) {
	var q appinv.ValuationQuery
	itemID, ok := h.uuidParam(c, "item_id")
	if !ok {
		return q, false
	}
	if !h.bindQuery(c, &q) || !h.uuidQuery(c, "location_id", &q.LocationID) {
		return q, false
	}
	q.ItemID = itemID
	return q, true
}

// RegisterRoutes mounts the valuation endpoints on rg
func (h *ValuationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/items/:item_id/valuation")
	g.GET("", h.Compute)
	g.POST("/snapshots", h.Snapshot)
	g.GET("/snapshots", h.ListSnapshots)
}

package handler

import (
	"context"
	"strconv"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BatchService registers batches and reports on their expiry
type BatchService interface {
	CreateBatch(ctx context.Context, req appinv.CreateBatchRequest) (*appinv.BatchResponse, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*appinv.BatchResponse, error)
	History(ctx context.Context, batchID uuid.UUID) ([]appinv.BatchHistoryResponse, error)
	GetExpiringBatches(ctx context.Context, withinDays int) ([]appinv.BatchResponse, error)
}

// BatchHandler handles the batch endpoints
type BatchHandler struct {
	BaseHandler
	batches           BatchService
	defaultWithinDays int
}

// NewBatchHandler creates a new BatchHandler. defaultWithinDays applies
// when /batches/expiring is called without within_days.
func NewBatchHandler(batches BatchService, defaultWithinDays int) *BatchHandler {
	return &BatchHandler{batches: batches, defaultWithinDays: defaultWithinDays}
}

// Create handles POST /batches
func (h *BatchHandler) Create(c *gin.Context) {
	var req appinv.CreateBatchRequest
	if !h.bindJSON(c, &req) {
		return
	}
	b, err := h.batches.CreateBatch(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, b)
}

// Expiring handles GET /batches/expiring
func (h *BatchHandler) Expiring(c *gin.Context) {
	days := h.defaultWithinDays
	if raw := c.Query("within_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.BadRequest(c, "within_days must be an integer")
			return
		}
		days = n
	}
	batches, err := h.batches.GetExpiringBatches(c.Request.Context(), days)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batches)
}

// Get handles GET /batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	b, err := h.batches.GetBatch(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, b)
}

// History handles GET /batches/:id/history
func (h *BatchHandler) History(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	entries, err := h.batches.History(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}

// RegisterRoutes mounts the batch endpoints on rg
func (h *BatchHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/batches")
	g.POST("", h.Create)
	g.GET("/expiring", h.Expiring)
	g.GET("/:id", h.Get)
	g.GET("/:id/history", h.History)
}

package handler

import (
	"context"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReservationService places and settles holds on available stock
type ReservationService interface {
	Reserve(ctx context.Context, req appinv.ReserveStockRequest) (*appinv.ReservationResponse, error)
	Release(ctx context.Context, id uuid.UUID) (*appinv.ReservationResponse, error)
	Fulfill(ctx context.Context, id uuid.UUID) (*appinv.ReservationResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*appinv.ReservationResponse, error)
	List(ctx context.Context, filter appinv.ReservationListFilter) (*shared.Paginated[appinv.ReservationResponse], error)
}

// ReservationHandler handles the reservation endpoints
type ReservationHandler struct {
	BaseHandler
	reservations ReservationService
}

// NewReservationHandler creates a new ReservationHandler
func NewReservationHandler(reservations ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

// Reserve handles POST /reservations
func (h *ReservationHandler) Reserve(c *gin.Context) {
	var req appinv.ReserveStockRequest
	if !h.bindJSON(c, &req) {
		return
	}
	r, err := h.reservations.Reserve(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, r)
}

// List handles GET /reservations
func (h *ReservationHandler) List(c *gin.Context) {
	var filter appinv.ReservationListFilter
	if !h.bindQuery(c, &filter) || !h.scopeQuery(c, &filter.ItemID, &filter.LocationID) {
		return
	}
	page, err := h.reservations.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// Get handles GET /reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	h.byID(c, h.reservations.Get)
}

// Release handles POST /reservations/:id/release
func (h *ReservationHandler) Release(c *gin.Context) {
	h.byID(c, h.reservations.Release)
}

// Fulfill handles POST /reservations/:id/fulfill
func (h *ReservationHandler) Fulfill(c *gin.Context) {
	h.byID(c, h.reservations.Fulfill)
}

func (h *ReservationHandler) byID(c *gin.Context, fn func(context.Context, uuid.UUID) (*appinv.ReservationResponse, error)) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	r, err := fn(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, r)
}

// RegisterRoutes mounts the reservation endpoints on rg
func (h *ReservationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/reservations")
	g.POST("", h.Reserve)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/release", h.Release)
	g.POST("/:id/fulfill", h.Fulfill)
}

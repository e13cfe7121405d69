package handler

import (
	"context"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AlertService lists alerts and applies operator transitions
type AlertService interface {
	List(ctx context.Context, filter appinv.AlertListFilter) (*shared.Paginated[appinv.AlertResponse], error)
	Acknowledge(ctx context.Context, id uuid.UUID, by string) (*appinv.AlertResponse, error)
	Resolve(ctx context.Context, id uuid.UUID, by string) (*appinv.AlertResponse, error)
}

// AlertHandler handles the alert endpoints
type AlertHandler struct {
	BaseHandler
	alerts AlertService
}

// NewAlertHandler creates a new AlertHandler
func NewAlertHandler(alerts AlertService) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// List handles GET /alerts
func (h *AlertHandler) List(c *gin.Context) {
	var filter appinv.AlertListFilter
	if !h.bindQuery(c, &filter) || !h.scopeQuery(c, &filter.ItemID, &filter.LocationID) {
		return
	}
	page, err := h.alerts.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// Acknowledge handles POST /alerts/:id/acknowledge
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	h.transition(c, h.alerts.Acknowledge)
}

// Resolve handles POST /alerts/:id/resolve
func (h *AlertHandler) Resolve(c *gin.Context) {
	h.transition(c, h.alerts.Resolve)
}

func (h *AlertHandler) transition(c *gin.Context, fn func(context.Context, uuid.UUID, string) (*appinv.AlertResponse, error)) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	req := appinv.AlertActionRequest{PerformedBy: middleware.GetActor(c)}
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	a, err := fn(c.Request.Context(), id, req.PerformedBy)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, a)
}

// RegisterRoutes mounts the alert endpoints on rg
func (h *AlertHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/alerts")
	g.GET("", h.List)
	g.POST("/:id/acknowledge", h.Acknowledge)
	g.POST("/:id/resolve", h.Resolve)
}

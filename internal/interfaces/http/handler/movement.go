package handler

import (
	"context"
	"strconv"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader deduplicates retried movement submissions
const IdempotencyKeyHeader = "Idempotency-Key"

// MovementService is the ledger surface the movement endpoints drive
type MovementService interface {
	Submit(ctx context.Context, req appinv.SubmitMovementRequest) (*appinv.MovementResponse, error)
	SubmitBulk(ctx context.Context, req appinv.BulkSubmitRequest) (*appinv.BulkSubmitResponse, error)
	Approve(ctx context.Context, id uuid.UUID, req appinv.ApproveMovementRequest) (*appinv.MovementResponse, error)
	Reject(ctx context.Context, id uuid.UUID, req appinv.RejectMovementRequest) (*appinv.MovementResponse, error)
	Cancel(ctx context.Context, id uuid.UUID, req appinv.CancelMovementRequest) (*appinv.MovementResponse, error)
	Process(ctx context.Context, id uuid.UUID) (*appinv.MovementResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*appinv.MovementResponse, error)
	List(ctx context.Context, filter appinv.MovementListFilter) (*shared.Paginated[appinv.MovementResponse], error)
}

// MovementHandler handles the stock movement endpoints
type MovementHandler struct {
	BaseHandler
	ledger MovementService
}

// NewMovementHandler creates a new MovementHandler
func NewMovementHandler(ledger MovementService) *MovementHandler {
	return &MovementHandler{ledger: ledger}
}

// Submit handles POST /movements.
// A replayed idempotent submission answers 200 with the original movement.
func (h *MovementHandler) Submit(c *gin.Context) {
	req := appinv.SubmitMovementRequest{
		RequestedBy:    middleware.GetActor(c),
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	}
	if !h.bindJSON(c, &req) {
		return
	}

	m, err := h.ledger.Submit(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if m.Replayed {
		h.Success(c, m)
		return
	}
	h.Created(c, m)
}

// SubmitBulk handles POST /movements/bulk. The atomic query flag overrides the body.
func (h *MovementHandler) SubmitBulk(c *gin.Context) {
	var req appinv.BulkSubmitRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if raw, ok := c.GetQuery("atomic"); ok {
		atomic, err := strconv.ParseBool(raw)
		if err != nil {
			h.BadRequest(c, "atomic must be a boolean")
			return
		}
		req.Atomic = atomic
	}
	if actor := middleware.GetActor(c); actor != "" {
		for i := range req.Movements {
			if req.Movements[i].RequestedBy == "" {
				req.Movements[i].RequestedBy = actor
			}
		}
	}

	resp, err := h.ledger.SubmitBulk(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// List handles GET /movements
func (h *MovementHandler) List(c *gin.Context) {
	var filter appinv.MovementListFilter
	if !h.bindQuery(c, &filter) || !h.scopeQuery(c, &filter.ItemID, &filter.LocationID) {
		return
	}
	page, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// Get handles GET /movements/:id
func (h *MovementHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	m, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, m)
}

// Approve handles POST /movements/:id/approve
func (h *MovementHandler) Approve(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	req := appinv.ApproveMovementRequest{ApprovedBy: middleware.GetActor(c)}
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	h.respond(c)(h.ledger.Approve(c.Request.Context(), id, req))
}

// Reject handles POST /movements/:id/reject
func (h *MovementHandler) Reject(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	req := appinv.RejectMovementRequest{RejectedBy: middleware.GetActor(c)}
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	h.respond(c)(h.ledger.Reject(c.Request.Context(), id, req))
}

// Cancel handles POST /movements/:id/cancel
func (h *MovementHandler) Cancel(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	req := appinv.CancelMovementRequest{CancelledBy: middleware.GetActor(c)}
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	h.respond(c)(h.ledger.Cancel(c.Request.Context(), id, req))
}

// Process handles POST /movements/:id/process.
// When applying fails the movement is left FAILED and the error details carry its id.
func (h *MovementHandler) Process(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	h.respond(c)(h.ledger.Process(c.Request.Context(), id))
}

func (h *MovementHandler) respond(c *gin.Context) func(*appinv.MovementResponse, error) {
	return func(m *appinv.MovementResponse, err error) {
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, m)
	}
}

// RegisterRoutes mounts the movement endpoints on rg
func (h *MovementHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/movements")
	g.POST("", h.Submit)
	g.POST("/bulk", h.SubmitBulk)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/process", h.Process)
}

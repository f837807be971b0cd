package handler

import (
	"context"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdjustmentService is the slice of the ledger the adjustment routes use
type AdjustmentService interface {
	Create(ctx context.Context, req ledger.CreateAdjustmentRequest) (*ledger.AdjustmentResponse, error)
	Process(ctx context.Context, id uuid.UUID) (*ledger.AdjustmentResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ledger.AdjustmentResponse, error)
	ListPending(ctx context.Context) ([]ledger.AdjustmentResponse, error)
}

// AdjustmentHandler handles purchase order item adjustment endpoints
type AdjustmentHandler struct {
	BaseHandler
	service AdjustmentService
}

// NewAdjustmentHandler creates a new AdjustmentHandler
func NewAdjustmentHandler(service AdjustmentService) *AdjustmentHandler {
	return &AdjustmentHandler{service: service}
}

// Create handles POST /adjustments. The adjustment stays pending until processed.
func (h *AdjustmentHandler) Create(c *gin.Context) {
	var req ledger.CreateAdjustmentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	adj, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, adj)
}

// Process handles POST /adjustments/:id/process
func (h *AdjustmentHandler) Process(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	adj, err := h.service.Process(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, adj)
}

// GetByID handles GET /adjustments/:id
func (h *AdjustmentHandler) GetByID(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	adj, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, adj)
}

// ListPending handles GET /adjustments
func (h *AdjustmentHandler) ListPending(c *gin.Context) {
	adjs, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if adjs == nil {
		adjs = []ledger.AdjustmentResponse{}
	}
	h.Success(c, adjs)
}

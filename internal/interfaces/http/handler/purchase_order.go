package handler

import (
	"context"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PurchaseOrderService is the slice of the ledger the purchase order routes use
type PurchaseOrderService interface {
	Create(ctx context.Context, req ledger.CreatePurchaseOrderRequest) (*ledger.PurchaseOrderResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ledger.PurchaseOrderResponse, error)
	ConfirmItem(ctx context.Context, poiID uuid.UUID) (*ledger.ConfirmationResult, error)
	CancelItem(ctx context.Context, poiID uuid.UUID) (*ledger.PurchaseOrderItemResponse, error)
}

// PurchaseOrderHandler handles purchase order endpoints
type PurchaseOrderHandler struct {
	BaseHandler
	service PurchaseOrderService
}

// NewPurchaseOrderHandler creates a new PurchaseOrderHandler
func NewPurchaseOrderHandler(service PurchaseOrderService) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{service: service}
}

// Create handles POST /purchase-orders
func (h *PurchaseOrderHandler) Create(c *gin.Context) {
	var req ledger.CreatePurchaseOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	po, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, po)
}

// GetByID handles GET /purchase-orders/:id
func (h *PurchaseOrderHandler) GetByID(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	po, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, po)
}

// ConfirmItem handles POST /purchase-order-items/:id/confirm.
// The response lists the orders that became confirmable and were confirmed.
func (h *PurchaseOrderHandler) ConfirmItem(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	result, err := h.service.ConfirmItem(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// CancelItem handles POST /purchase-order-items/:id/cancel
func (h *PurchaseOrderHandler) CancelItem(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	item, err := h.service.CancelItem(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, item)
}

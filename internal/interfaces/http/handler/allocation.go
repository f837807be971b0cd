package handler

import (
	"context"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AllocationService is the slice of the ledger the allocation and order routes use
type AllocationService interface {
	Allocate(ctx context.Context, req ledger.AllocateRequest) ([]ledger.AllocationResponse, error)
	Deallocate(ctx context.Context, req ledger.DeallocateRequest) error
	DeallocateOrder(ctx context.Context, orderID uuid.UUID) error
	CanConfirmOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	GetOrderLineAllocations(ctx context.Context, orderLineID uuid.UUID) ([]ledger.AllocationResponse, error)
}

// AllocationHandler handles stock reservation endpoints
type AllocationHandler struct {
	BaseHandler
	service AllocationService
}

// NewAllocationHandler creates a new AllocationHandler
func NewAllocationHandler(service AllocationService) *AllocationHandler {
	return &AllocationHandler{service: service}
}

// CanConfirmResponse answers whether every line of an order is fully sourced
type CanConfirmResponse struct {
	OrderID    uuid.UUID `json:"order_id"`
	CanConfirm bool      `json:"can_confirm"`
}

// Allocate handles POST /allocations
func (h *AllocationHandler) Allocate(c *gin.Context) {
	var req ledger.AllocateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	allocs, err := h.service.Allocate(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, allocs)
}

// Deallocate handles POST /allocations/release
func (h *AllocationHandler) Deallocate(c *gin.Context) {
	var req ledger.DeallocateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if err := h.service.Deallocate(c.Request.Context(), req); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// GetOrderLineAllocations handles GET /order-lines/:id/allocations
func (h *AllocationHandler) GetOrderLineAllocations(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	allocs, err := h.service.GetOrderLineAllocations(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if allocs == nil {
		allocs = []ledger.AllocationResponse{}
	}
	h.Success(c, allocs)
}

// CanConfirmOrder handles GET /orders/:id/can-confirm
func (h *AllocationHandler) CanConfirmOrder(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	can, err := h.service.CanConfirmOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CanConfirmResponse{OrderID: id, CanConfirm: can})
}

// DeallocateOrder handles POST /orders/:id/deallocate
func (h *AllocationHandler) DeallocateOrder(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeallocateOrder(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

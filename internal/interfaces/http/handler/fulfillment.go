package handler

import (
	"context"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// FulfillmentService approves fulfillments waiting for inbound stock
type FulfillmentService interface {
	Approve(ctx context.Context, id uuid.UUID) (*ledger.FulfillmentResponse, error)
}

// FulfillmentHandler handles fulfillment endpoints
type FulfillmentHandler struct {
	BaseHandler
	service FulfillmentService
}

// NewFulfillmentHandler creates a new FulfillmentHandler
func NewFulfillmentHandler(service FulfillmentService) *FulfillmentHandler {
	return &FulfillmentHandler{service: service}
}

// Approve handles POST /fulfillments/:id/approve
func (h *FulfillmentHandler) Approve(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	f, err := h.service.Approve(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, f)
}

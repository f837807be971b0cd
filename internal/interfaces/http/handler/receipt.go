package handler

import (
	"context"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReceiptService is the slice of the ledger the inbound shipment routes use
type ReceiptService interface {
	CreateShipment(ctx context.Context, req ledger.CreateShipmentRequest) (*ledger.ShipmentResponse, error)
	StartReceipt(ctx context.Context, req ledger.StartReceiptRequest) (*ledger.ReceiptResponse, error)
	ReceiveItem(ctx context.Context, req ledger.ReceiveItemRequest) (*ledger.ReceiptLineResponse, error)
	GetReceipt(ctx context.Context, id uuid.UUID) (*ledger.ReceiptResponse, error)
	DeleteReceipt(ctx context.Context, id uuid.UUID) error
	DeleteReceiptLine(ctx context.Context, lineID uuid.UUID) error
	CompleteReceipt(ctx context.Context, req ledger.CompleteReceiptRequest) (*ledger.ReceiptCompletion, error)
}

// ReceiptHandler handles shipment and receipt endpoints
type ReceiptHandler struct {
	BaseHandler
	service ReceiptService
}

// NewReceiptHandler creates a new ReceiptHandler
func NewReceiptHandler(service ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{service: service}
}

// userBody carries the optional warehouse user acting on a receipt
type userBody struct {
	UserID *uuid.UUID `json:"user_id"`
}

type receiveItemBody struct {
	VariantID uuid.UUID  `json:"variant_id" binding:"required"`
	Quantity  int        `json:"quantity" binding:"required,min=1"`
	Notes     string     `json:"notes" binding:"max=1000"`
	UserID    *uuid.UUID `json:"user_id"`
}

// bindOptionalUser accepts an empty body
func (h *ReceiptHandler) bindOptionalUser(c *gin.Context) (*uuid.UUID, bool) {
	var body userBody
	if c.Request.ContentLength == 0 {
		return nil, true
	}
	if !h.BindJSON(c, &body) {
		return nil, false
	}
	return body.UserID, true
}

// CreateShipment handles POST /shipments
func (h *ReceiptHandler) CreateShipment(c *gin.Context) {
	var req ledger.CreateShipmentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	shipment, err := h.service.CreateShipment(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, shipment)
}

// StartReceipt handles POST /shipments/:id/receipt. Starting twice returns
// the receipt already in progress.
func (h *ReceiptHandler) StartReceipt(c *gin.Context) {
	shipmentID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	userID, ok := h.bindOptionalUser(c)
	if !ok {
		return
	}
	receipt, err := h.service.StartReceipt(c.Request.Context(), ledger.StartReceiptRequest{
		ShipmentID: shipmentID,
		UserID:     userID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, receipt)
}

// ReceiveItem handles POST /receipts/:id/items
func (h *ReceiptHandler) ReceiveItem(c *gin.Context) {
	receiptID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var body receiveItemBody
	if !h.BindJSON(c, &body) {
		return
	}
	line, err := h.service.ReceiveItem(c.Request.Context(), ledger.ReceiveItemRequest{
		ReceiptID: receiptID,
		VariantID: body.VariantID,
		Quantity:  body.Quantity,
		Notes:     body.Notes,
		UserID:    body.UserID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, line)
}

// GetReceipt handles GET /receipts/:id
func (h *ReceiptHandler) GetReceipt(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	receipt, err := h.service.GetReceipt(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, receipt)
}

// CompleteReceipt handles POST /receipts/:id/complete
func (h *ReceiptHandler) CompleteReceipt(c *gin.Context) {
	receiptID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	userID, ok := h.bindOptionalUser(c)
	if !ok {
		return
	}
	completion, err := h.service.CompleteReceipt(c.Request.Context(), ledger.CompleteReceiptRequest{
		ReceiptID: receiptID,
		UserID:    userID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, completion)
}

// DeleteReceipt handles DELETE /receipts/:id
func (h *ReceiptHandler) DeleteReceipt(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteReceipt(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// DeleteReceiptLine handles DELETE /receipt-lines/:id
func (h *ReceiptHandler) DeleteReceiptLine(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteReceiptLine(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

package ledger

import (
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/order"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocateRequest reserves stock for an order line
type AllocateRequest struct {
	OrderLineID uuid.UUID `json:"order_line_id" binding:"required"`
	Quantity    int       `json:"quantity" binding:"required,min=1"`
	CountryCode string    `json:"country_code" binding:"omitempty,len=2"`
}

// DeallocateRequest releases part of an order line's reservation
type DeallocateRequest struct {
	OrderLineID uuid.UUID `json:"order_line_id" binding:"required"`
	Quantity    int       `json:"quantity" binding:"required,min=1"`
}

// AllocationResponse represents an allocation in API responses
type AllocationResponse struct {
	ID                uuid.UUID                  `json:"id"`
	OrderLineID       uuid.UUID                  `json:"order_line_id"`
	StockID           uuid.UUID                  `json:"stock_id"`
	QuantityAllocated int                        `json:"quantity_allocated"`
	Sources           []AllocationSourceResponse `json:"sources,omitempty"`
}

// AllocationSourceResponse represents one batch attribution of an allocation
type AllocationSourceResponse struct {
	PurchaseOrderItemID uuid.UUID `json:"purchase_order_item_id"`
	Quantity            int       `json:"quantity"`
}

// ToAllocationResponse converts an allocation and its sources to a response
func ToAllocationResponse(a *inventory.Allocation, sources []*inventory.AllocationSource) AllocationResponse {
	resp := AllocationResponse{
		ID:                a.ID,
		OrderLineID:       a.OrderLineID,
		StockID:           a.StockID,
		QuantityAllocated: a.QuantityAllocated,
	}
	for _, s := range sources {
		if s.AllocationID == a.ID {
			resp.Sources = append(resp.Sources, AllocationSourceResponse{
				PurchaseOrderItemID: s.PurchaseOrderItemID,
				Quantity:            s.Quantity,
			})
		}
	}
	return resp
}

// StockResponse represents a stock row in API responses
type StockResponse struct {
	ID                uuid.UUID `json:"id"`
	WarehouseID       uuid.UUID `json:"warehouse_id"`
	VariantID         uuid.UUID `json:"variant_id"`
	Quantity          int       `json:"quantity"`
	QuantityAllocated int       `json:"quantity_allocated"`
	QuantityAvailable int       `json:"quantity_available"`
}

// ToStockResponse converts a stock row to a response
func ToStockResponse(s *inventory.Stock) StockResponse {
	return StockResponse{
		ID:                s.ID,
		WarehouseID:       s.WarehouseID,
		VariantID:         s.VariantID,
		Quantity:          s.Quantity,
		QuantityAllocated: s.QuantityAllocated,
		QuantityAvailable: s.AvailableQuantity(),
	}
}

// PurchaseOrderItemRequest describes one batch of a new purchase order
type PurchaseOrderItemRequest struct {
	VariantID       uuid.UUID       `json:"variant_id" binding:"required"`
	Quantity        int             `json:"quantity" binding:"required,min=1"`
	TotalPrice      decimal.Decimal `json:"total_price" binding:"required"`
	Currency        string          `json:"currency" binding:"required,len=3"`
	CountryOfOrigin string          `json:"country_of_origin" binding:"omitempty,len=2"`
}

// CreatePurchaseOrderRequest creates a purchase order with its items in DRAFT
type CreatePurchaseOrderRequest struct {
	SourceWarehouseID      uuid.UUID                  `json:"source_warehouse_id" binding:"required"`
	DestinationWarehouseID uuid.UUID                  `json:"destination_warehouse_id" binding:"required"`
	Items                  []PurchaseOrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// PurchaseOrderItemResponse represents a batch in API responses
type PurchaseOrderItemResponse struct {
	ID                uuid.UUID       `json:"id"`
	PurchaseOrderID   uuid.UUID       `json:"purchase_order_id"`
	VariantID         uuid.UUID       `json:"variant_id"`
	Status            string          `json:"status"`
	QuantityOrdered   int             `json:"quantity_ordered"`
	QuantityReceived  int             `json:"quantity_received"`
	QuantityAdjusted  int             `json:"quantity_adjusted"`
	QuantityAllocated int             `json:"quantity_allocated"`
	QuantityFulfilled int             `json:"quantity_fulfilled"`
	QuantityAvailable int             `json:"quantity_available"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Currency          string          `json:"currency"`
	ShipmentID        *uuid.UUID      `json:"shipment_id,omitempty"`
	ConfirmedAt       *time.Time      `json:"confirmed_at,omitempty"`
}

// ToPurchaseOrderItemResponse converts a batch to a response
func ToPurchaseOrderItemResponse(i *purchasing.PurchaseOrderItem) PurchaseOrderItemResponse {
	return PurchaseOrderItemResponse{
		ID:                i.ID,
		PurchaseOrderID:   i.PurchaseOrderID,
		VariantID:         i.VariantID,
		Status:            i.Status.String(),
		QuantityOrdered:   i.QuantityOrdered,
		QuantityAdjusted:  i.QuantityAdjusted,
		QuantityAllocated: i.QuantityAllocated,
		QuantityFulfilled: i.QuantityFulfilled,
		QuantityAvailable: i.AvailableQuantity(),
		TotalPrice:        i.TotalPrice,
		UnitPrice:         i.UnitPrice(),
		Currency:          i.Currency,
		ShipmentID:        i.ShipmentID,
		ConfirmedAt:       i.ConfirmedAt,
	}
}

// PurchaseOrderResponse represents a purchase order in API responses
type PurchaseOrderResponse struct {
	ID                     uuid.UUID                   `json:"id"`
	SourceWarehouseID      uuid.UUID                   `json:"source_warehouse_id"`
	DestinationWarehouseID uuid.UUID                   `json:"destination_warehouse_id"`
	Items                  []PurchaseOrderItemResponse `json:"items"`
	CreatedAt              time.Time                   `json:"created_at"`
}

// ToPurchaseOrderResponse converts a purchase order to a response
func ToPurchaseOrderResponse(o *purchasing.PurchaseOrder) PurchaseOrderResponse {
	items := make([]PurchaseOrderItemResponse, len(o.Items))
	for i := range o.Items {
		items[i] = ToPurchaseOrderItemResponse(&o.Items[i])
	}
	return PurchaseOrderResponse{
		ID:                     o.ID,
		SourceWarehouseID:      o.SourceWarehouseID,
		DestinationWarehouseID: o.DestinationWarehouseID,
		Items:                  items,
		CreatedAt:              o.CreatedAt,
	}
}

// ConfirmationResult summarizes a purchase order item confirmation
type ConfirmationResult struct {
	Item                PurchaseOrderItemResponse `json:"item"`
	AllocationsMigrated int                       `json:"allocations_migrated"`
	QuantityMigrated    int                       `json:"quantity_migrated"`
	OrdersAutoConfirmed []string                  `json:"orders_auto_confirmed"`
}

// CreateAdjustmentRequest records a quantity change against a batch
type CreateAdjustmentRequest struct {
	PurchaseOrderItemID uuid.UUID  `json:"purchase_order_item_id" binding:"required"`
	QuantityChange      int        `json:"quantity_change" binding:"required"`
	Reason              string     `json:"reason" binding:"required"`
	AffectsPayable      bool       `json:"affects_payable"`
	Notes               string     `json:"notes" binding:"max=1000"`
	CreatedBy           *uuid.UUID `json:"created_by"`
}

// AdjustmentResponse represents an adjustment in API responses
type AdjustmentResponse struct {
	ID                  uuid.UUID       `json:"id"`
	PurchaseOrderItemID uuid.UUID       `json:"purchase_order_item_id"`
	QuantityChange      int             `json:"quantity_change"`
	Reason              string          `json:"reason"`
	AffectsPayable      bool            `json:"affects_payable"`
	FinancialImpact     decimal.Decimal `json:"financial_impact"`
	Notes               string          `json:"notes,omitempty"`
	ProcessedAt         *time.Time      `json:"processed_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// ToAdjustmentResponse converts an adjustment to a response
func ToAdjustmentResponse(a *purchasing.Adjustment, poi *purchasing.PurchaseOrderItem) AdjustmentResponse {
	resp := AdjustmentResponse{
		ID:                  a.ID,
		PurchaseOrderItemID: a.PurchaseOrderItemID,
		QuantityChange:      a.QuantityChange,
		Reason:              string(a.Reason),
		AffectsPayable:      a.AffectsPayable,
		Notes:               a.Notes,
		ProcessedAt:         a.ProcessedAt,
		CreatedAt:           a.CreatedAt,
	}
	if poi != nil {
		resp.FinancialImpact = a.FinancialImpact(poi)
	}
	return resp
}

// CreateShipmentRequest creates an inbound shipment for confirmed batches
type CreateShipmentRequest struct {
	Carrier              string          `json:"carrier" binding:"max=100"`
	TrackingURL          string          `json:"tracking_url" binding:"omitempty,url"`
	ShippingCost         decimal.Decimal `json:"shipping_cost"`
	Currency             string          `json:"currency" binding:"required,len=3"`
	PurchaseOrderItemIDs []uuid.UUID     `json:"purchase_order_item_ids" binding:"required,min=1"`
}

// ShipmentResponse represents a shipment in API responses
type ShipmentResponse struct {
	ID           uuid.UUID       `json:"id"`
	Carrier      string          `json:"carrier"`
	TrackingURL  string          `json:"tracking_url,omitempty"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Currency     string          `json:"currency"`
	ArrivedAt    *time.Time      `json:"arrived_at,omitempty"`
}

// ToShipmentResponse converts a shipment to a response
func ToShipmentResponse(s *purchasing.Shipment) ShipmentResponse {
	return ShipmentResponse{
		ID:           s.ID,
		Carrier:      s.Carrier,
		TrackingURL:  s.TrackingURL,
		ShippingCost: s.ShippingCost,
		Currency:     s.Currency,
		ArrivedAt:    s.ArrivedAt,
	}
}

// StartReceiptRequest opens or resumes a receipt for a shipment
type StartReceiptRequest struct {
	ShipmentID uuid.UUID  `json:"shipment_id" binding:"required"`
	UserID     *uuid.UUID `json:"user_id"`
}

// ReceiveItemRequest scans units of a variant into a receipt
type ReceiveItemRequest struct {
	ReceiptID uuid.UUID  `json:"receipt_id" binding:"required"`
	VariantID uuid.UUID  `json:"variant_id" binding:"required"`
	Quantity  int        `json:"quantity" binding:"required,min=1"`
	Notes     string     `json:"notes" binding:"max=1000"`
	UserID    *uuid.UUID `json:"user_id"`
}

// CompleteReceiptRequest closes a receipt
type CompleteReceiptRequest struct {
	ReceiptID uuid.UUID  `json:"receipt_id" binding:"required"`
	UserID    *uuid.UUID `json:"user_id"`
}

// ReceiptLineResponse represents a receipt line in API responses
type ReceiptLineResponse struct {
	ID                  uuid.UUID `json:"id"`
	PurchaseOrderItemID uuid.UUID `json:"purchase_order_item_id"`
	QuantityReceived    int       `json:"quantity_received"`
	Notes               string    `json:"notes,omitempty"`
	ReceivedAt          time.Time `json:"received_at"`
}

// ReceiptResponse represents a receipt in API responses
type ReceiptResponse struct {
	ID          uuid.UUID             `json:"id"`
	ShipmentID  uuid.UUID             `json:"shipment_id"`
	Status      string                `json:"status"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Lines       []ReceiptLineResponse `json:"lines"`
	Resumed     bool                  `json:"resumed,omitempty"`
}

// ToReceiptResponse converts a receipt and its lines to a response
func ToReceiptResponse(r *purchasing.Receipt) ReceiptResponse {
	lines := make([]ReceiptLineResponse, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = ToReceiptLineResponse(&l)
	}
	return ReceiptResponse{
		ID:          r.ID,
		ShipmentID:  r.ShipmentID,
		Status:      string(r.Status),
		CompletedAt: r.CompletedAt,
		Lines:       lines,
	}
}

// ToReceiptLineResponse converts a receipt line to a response
func ToReceiptLineResponse(l *purchasing.ReceiptLine) ReceiptLineResponse {
	return ReceiptLineResponse{
		ID:                  l.ID,
		PurchaseOrderItemID: l.PurchaseOrderItemID,
		QuantityReceived:    l.QuantityReceived,
		Notes:               l.Notes,
		ReceivedAt:          l.ReceivedAt,
	}
}

// ReceiptCompletion summarizes a completed receipt
type ReceiptCompletion struct {
	Receipt            ReceiptResponse          `json:"receipt"`
	Discrepancies      []purchasing.Discrepancy `json:"discrepancies"`
	AdjustmentsCreated []AdjustmentResponse     `json:"adjustments_created"`
	AdjustmentsPending []AdjustmentResponse     `json:"adjustments_pending"`
	Fulfillments       []FulfillmentResponse    `json:"fulfillments"`
}

// FulfillmentResponse represents a fulfillment in API responses
type FulfillmentResponse struct {
	ID               uuid.UUID                 `json:"id"`
	OrderID          uuid.UUID                 `json:"order_id"`
	WarehouseID      uuid.UUID                 `json:"warehouse_id"`
	Status           string                    `json:"status"`
	FulfillmentOrder int                       `json:"fulfillment_order"`
	Lines            []FulfillmentLineResponse `json:"lines"`
}

// FulfillmentLineResponse represents one line of a fulfillment
type FulfillmentLineResponse struct {
	OrderLineID uuid.UUID `json:"order_line_id"`
	StockID     uuid.UUID `json:"stock_id"`
	Quantity    int       `json:"quantity"`
}

// ToFulfillmentResponse converts a fulfillment to a response
func ToFulfillmentResponse(f *order.Fulfillment) FulfillmentResponse {
	lines := make([]FulfillmentLineResponse, len(f.Lines))
	for i, l := range f.Lines {
		lines[i] = FulfillmentLineResponse{OrderLineID: l.OrderLineID, StockID: l.StockID, Quantity: l.Quantity}
	}
	return FulfillmentResponse{
		ID:               f.ID,
		OrderID:          f.OrderID,
		WarehouseID:      f.WarehouseID,
		Status:           string(f.Status),
		FulfillmentOrder: f.FulfillmentOrder,
		Lines:            lines,
	}
}

// InvariantReport describes a stock row whose batch totals disagree with it
type InvariantReport struct {
	StockID     uuid.UUID `json:"stock_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	VariantID   uuid.UUID `json:"variant_id"`
	Violations  []string  `json:"violations"`
}

// IsValid reports whether no violation was found
func (r InvariantReport) IsValid() bool {
	return len(r.Violations) == 0
}

package purchasing

import (
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constants
const (
	AggregateTypePurchaseOrder = "PurchaseOrder"
	AggregateTypeAdjustment    = "PurchaseOrderItemAdjustment"
	AggregateTypeShipment      = "Shipment"
	AggregateTypeReceipt       = "Receipt"
)

// Event type constants
const (
	EventTypePurchaseOrderCreated       = "PurchaseOrderCreated"
	EventTypePurchaseOrderItemConfirmed = "PurchaseOrderItemConfirmed"
	EventTypePurchaseOrderItemCancelled = "PurchaseOrderItemCancelled"
	EventTypeShipmentAssigned           = "ShipmentAssigned"
	EventTypeAdjustmentCreated          = "AdjustmentCreated"
	EventTypeAdjustmentProcessed        = "AdjustmentProcessed"
	EventTypeReceiptCompleted           = "ReceiptCompleted"
)

// AuditSubject is implemented by events that belong in the purchase-order audit trail
type AuditSubject interface {
	shared.DomainEvent
	PurchaseOrderRef() uuid.UUID
	PurchaseOrderItemRef() *uuid.UUID
}

// PurchaseOrderItemInfo represents item information for events
type PurchaseOrderItemInfo struct {
	ItemID          uuid.UUID       `json:"item_id"`
	VariantID       uuid.UUID       `json:"variant_id"`
	QuantityOrdered int             `json:"quantity_ordered"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Currency        string          `json:"currency"`
}

// PurchaseOrderCreatedEvent is raised when a purchase order is created
type PurchaseOrderCreatedEvent struct {
	shared.BaseDomainEvent
	PurchaseOrderID        uuid.UUID               `json:"purchase_order_id"`
	SourceWarehouseID      uuid.UUID               `json:"source_warehouse_id"`
	DestinationWarehouseID uuid.UUID               `json:"destination_warehouse_id"`
	Items                  []PurchaseOrderItemInfo `json:"items"`
}

// NewPurchaseOrderCreatedEvent creates a new PurchaseOrderCreatedEvent
func NewPurchaseOrderCreatedEvent(order *PurchaseOrder) *PurchaseOrderCreatedEvent {
	items := make([]PurchaseOrderItemInfo, len(order.Items))
	for i, item := range order.Items {
		items[i] = PurchaseOrderItemInfo{
			ItemID:          item.ID,
			VariantID:       item.VariantID,
			QuantityOrdered: item.QuantityOrdered,
			TotalPrice:      item.TotalPrice,
			Currency:        item.Currency,
		}
	}
	return &PurchaseOrderCreatedEvent{
		BaseDomainEvent:        shared.NewBaseDomainEvent(EventTypePurchaseOrderCreated, AggregateTypePurchaseOrder, order.ID),
		PurchaseOrderID:        order.ID,
		SourceWarehouseID:      order.SourceWarehouseID,
		DestinationWarehouseID: order.DestinationWarehouseID,
		Items:                  items,
	}
}

func (e *PurchaseOrderCreatedEvent) PurchaseOrderRef() uuid.UUID { return e.PurchaseOrderID }
func (e *PurchaseOrderCreatedEvent) PurchaseOrderItemRef() *uuid.UUID { return nil }

// PurchaseOrderItemConfirmedEvent is raised when a batch is confirmed and its
// stock moved into the owned warehouse
type PurchaseOrderItemConfirmedEvent struct {
	shared.BaseDomainEvent
	PurchaseOrderID     uuid.UUID `json:"purchase_order_id"`
	PurchaseOrderItemID uuid.UUID `json:"purchase_order_item_id"`
	VariantID           uuid.UUID `json:"variant_id"`
	Quantity            int       `json:"quantity"`
	SourceStockID       uuid.UUID `json:"source_stock_id"`
	DestinationStockID  uuid.UUID `json:"destination_stock_id"`
	AllocationsMigrated int       `json:"allocations_migrated"`
	QuantityMigrated    int       `json:"quantity_migrated"`
	OrdersAutoConfirmed []string  `json:"orders_auto_confirmed,omitempty"`
}

// NewPurchaseOrderItemConfirmedEvent creates a new PurchaseOrderItemConfirmedEvent
func NewPurchaseOrderItemConfirmedEvent(poi *PurchaseOrderItem, sourceStockID, destinationStockID uuid.UUID) *PurchaseOrderItemConfirmedEvent {
	return &PurchaseOrderItemConfirmedEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypePurchaseOrderItemConfirmed, AggregateTypePurchaseOrder, poi.PurchaseOrderID),
		PurchaseOrderID:     poi.PurchaseOrderID,
		PurchaseOrderItemID: poi.ID,
		VariantID:           poi.VariantID,
		Quantity:            poi.QuantityOrdered,
		SourceStockID:       sourceStockID,
		DestinationStockID:  destinationStockID,
	}
}

func (e *PurchaseOrderItemConfirmedEvent) PurchaseOrderRef() uuid.UUID { return e.PurchaseOrderID }
func (e *PurchaseOrderItemConfirmedEvent) PurchaseOrderItemRef() *uuid.UUID {
	return &e.PurchaseOrderItemID
}

// PurchaseOrderItemCancelledEvent is raised when a draft batch is dropped
type PurchaseOrderItemCancelledEvent struct {
	shared.BaseDomainEvent
	PurchaseOrderID     uuid.UUID `json:"purchase_order_id"`
	PurchaseOrderItemID uuid.UUID `json:"purchase_order_item_id"`
}

// NewPurchaseOrderItemCancelledEvent creates a new PurchaseOrderItemCancelledEvent
func NewPurchaseOrderItemCancelledEvent(poi *PurchaseOrderItem) *PurchaseOrderItemCancelledEvent {
	return &PurchaseOrderItemCancelledEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypePurchaseOrderItemCancelled, AggregateTypePurchaseOrder, poi.PurchaseOrderID),
		PurchaseOrderID:     poi.PurchaseOrderID,
		PurchaseOrderItemID: poi.ID,
	}
}

func (e *PurchaseOrderItemCancelledEvent) PurchaseOrderRef() uuid.UUID { return e.PurchaseOrderID }
func (e *PurchaseOrderItemCancelledEvent) PurchaseOrderItemRef() *uuid.UUID {
	return &e.PurchaseOrderItemID
}

// ShipmentAssignedEvent is raised for every batch attached to a shipment
type ShipmentAssignedEvent struct {
	shared.BaseDomainEvent
	ShipmentID          uuid.UUID `json:"shipment_id"`
	PurchaseOrderID     uuid.UUID `json:"purchase_order_id"`
	PurchaseOrderItemID uuid.UUID `json:"purchase_order_item_id"`
	Carrier             string    `json:"carrier,omitempty"`
}

// NewShipmentAssignedEvent creates a new ShipmentAssignedEvent
func NewShipmentAssignedEvent(shipment *Shipment, poi *PurchaseOrderItem) *ShipmentAssignedEvent {
	return &ShipmentAssignedEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypeShipmentAssigned, AggregateTypeShipment, shipment.ID),
		ShipmentID:          shipment.ID,
		PurchaseOrderID:     poi.PurchaseOrderID,
		PurchaseOrderItemID: poi.ID,
		Carrier:             shipment.Carrier,
	}
}

func (e *ShipmentAssignedEvent) PurchaseOrderRef() uuid.UUID { return e.PurchaseOrderID }
func (e *ShipmentAssignedEvent) PurchaseOrderItemRef() *uuid.UUID { return &e.PurchaseOrderItemID }

// AdjustmentCreatedEvent is raised when a correction is recorded
type AdjustmentCreatedEvent struct {
	shared.BaseDomainEvent
	AdjustmentID        uuid.UUID        `json:"adjustment_id"`
	PurchaseOrderID     uuid.UUID        `json:"purchase_order_id"`
	PurchaseOrderItemID uuid.UUID        `json:"purchase_order_item_id"`
	QuantityChange      int              `json:"quantity_change"`
	Reason              AdjustmentReason `json:"reason"`
	AffectsPayable      bool             `json:"affects_payable"`
	FinancialImpact     decimal.Decimal  `json:"financial_impact"`
}

// NewAdjustmentCreatedEvent creates a new AdjustmentCreatedEvent
func NewAdjustmentCreatedEvent(adj *Adjustment, poi *PurchaseOrderItem) *AdjustmentCreatedEvent {
	return &AdjustmentCreatedEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypeAdjustmentCreated, AggregateTypeAdjustment, adj.ID),
		AdjustmentID:        adj.ID,
		PurchaseOrderID:     poi.PurchaseOrderID,
		PurchaseOrderItemID: poi.ID,
		QuantityChange:      adj.QuantityChange,
		Reason:              adj.Reason,
		AffectsPayable:      adj.AffectsPayable,
		FinancialImpact:     adj.FinancialImpact(poi),
	}
}

func (e *AdjustmentCreatedEvent) PurchaseOrderRef() uuid.UUID { return e.PurchaseOrderID }
func (e *AdjustmentCreatedEvent) PurchaseOrderItemRef() *uuid.UUID { return &e.PurchaseOrderItemID }

// AdjustmentProcessedEvent is raised when a correction is applied to the ledger
type AdjustmentProcessedEvent struct {
	shared.BaseDomainEvent
	AdjustmentID        uuid.UUID       `json:"adjustment_id"`
	PurchaseOrderID     uuid.UUID       `json:"purchase_order_id"`
	PurchaseOrderItemID uuid.UUID       `json:"purchase_order_item_id"`
	QuantityChange      int             `json:"quantity_change"`
	FinancialImpact     decimal.Decimal `json:"financial_impact"`
}

// NewAdjustmentProcessedEvent creates a new AdjustmentProcessedEvent
func NewAdjustmentProcessedEvent(adj *Adjustment, poi *PurchaseOrderItem) *AdjustmentProcessedEvent {
	return &AdjustmentProcessedEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypeAdjustmentProcessed, AggregateTypeAdjustment, adj.ID),
		AdjustmentID:        adj.ID,
		PurchaseOrderID:     poi.PurchaseOrderID,
		PurchaseOrderItemID: poi.ID,
		QuantityChange:      adj.QuantityChange,
		FinancialImpact:     adj.FinancialImpact(poi),
	}
}

func (e *AdjustmentProcessedEvent) PurchaseOrderRef() uuid.UUID { return e.PurchaseOrderID }
func (e *AdjustmentProcessedEvent) PurchaseOrderItemRef() *uuid.UUID { return &e.PurchaseOrderItemID }

// ReceiptCompletedEvent is raised once per batch when its receipt completes
type ReceiptCompletedEvent struct {
	shared.BaseDomainEvent
	ReceiptID           uuid.UUID `json:"receipt_id"`
	ShipmentID          uuid.UUID `json:"shipment_id"`
	PurchaseOrderID     uuid.UUID `json:"purchase_order_id"`
	PurchaseOrderItemID uuid.UUID `json:"purchase_order_item_id"`
	QuantityOrdered     int       `json:"quantity_ordered"`
	QuantityReceived    int       `json:"quantity_received"`
}

// NewReceiptCompletedEvent creates a new ReceiptCompletedEvent
func NewReceiptCompletedEvent(receipt *Receipt, poi *PurchaseOrderItem, received int) *ReceiptCompletedEvent {
	return &ReceiptCompletedEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypeReceiptCompleted, AggregateTypeReceipt, receipt.ID),
		ReceiptID:           receipt.ID,
		ShipmentID:          receipt.ShipmentID,
		PurchaseOrderID:     poi.PurchaseOrderID,
		PurchaseOrderItemID: poi.ID,
		QuantityOrdered:     poi.QuantityOrdered,
		QuantityReceived:    received,
	}
}

func (e *ReceiptCompletedEvent) PurchaseOrderRef() uuid.UUID { return e.PurchaseOrderID }
func (e *ReceiptCompletedEvent) PurchaseOrderItemRef() *uuid.UUID { return &e.PurchaseOrderItemID }

package purchasing

import (
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrder groups the batches bought from one supplier into one owned warehouse
type PurchaseOrder struct {
	shared.BaseAggregateRoot
	SourceWarehouseID      uuid.UUID           `gorm:"type:uuid;not null;index"`
	DestinationWarehouseID uuid.UUID           `gorm:"type:uuid;not null;index"`
	Items                  []PurchaseOrderItem `gorm:"foreignKey:PurchaseOrderID;references:ID"`
}

// TableName returns the table name for GORM
func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}

// NewPurchaseOrder creates a purchase order moving stock from a supplier
// warehouse into an owned one
func NewPurchaseOrder(source, destination *inventory.Warehouse) (*PurchaseOrder, error) {
	if source == nil || destination == nil {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Source and destination warehouses are required")
	}
	if source.IsOwned {
		return nil, shared.NewDomainErrorf("VALIDATION_FAILED",
			"Source warehouse %s must be a supplier warehouse", source.Slug)
	}
	if !destination.IsOwned {
		return nil, shared.NewDomainErrorf("VALIDATION_FAILED",
			"Destination warehouse %s must be an owned warehouse", destination.Slug)
	}
	return &PurchaseOrder{
		BaseAggregateRoot:      shared.NewBaseAggregateRoot(),
		SourceWarehouseID:      source.ID,
		DestinationWarehouseID: destination.ID,
		Items:                  make([]PurchaseOrderItem, 0),
	}, nil
}

// AddItem appends a DRAFT batch to the order
func (o *PurchaseOrder) AddItem(variantID uuid.UUID, quantity int, totalPrice decimal.Decimal, currency, countryOfOrigin string) (*PurchaseOrderItem, error) {
	if variantID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Variant ID cannot be empty")
	}
	if quantity <= 0 {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Ordered quantity must be positive")
	}
	if totalPrice.IsNegative() {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Total price cannot be negative")
	}
	if len(currency) != 3 {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Currency must be a 3-letter code")
	}

	item := PurchaseOrderItem{
		BaseEntity:      shared.NewBaseEntity(),
		PurchaseOrderID: o.ID,
		VariantID:       variantID,
		QuantityOrdered: quantity,
		TotalPrice:      totalPrice,
		Currency:        strings.ToUpper(currency),
		CountryOfOrigin: strings.ToUpper(countryOfOrigin),
		Status:          PurchaseOrderItemStatusDraft,
	}
	o.Items = append(o.Items, item)
	o.Touch()
	return &o.Items[len(o.Items)-1], nil
}

// MarkCreated records the creation event once items have been added
func (o *PurchaseOrder) MarkCreated() {
	o.AddDomainEvent(NewPurchaseOrderCreatedEvent(o))
}

// PurchaseOrderItem is one batch of a purchase order: the unit of FIFO
// ordering and of cost attribution.
type PurchaseOrderItem struct {
	shared.BaseEntity
	PurchaseOrderID   uuid.UUID               `gorm:"type:uuid;not null;index"`
	VariantID         uuid.UUID               `gorm:"type:uuid;not null;index"`
	QuantityOrdered   int                     `gorm:"not null"`
	QuantityAdjusted  int                     `gorm:"not null;default:0"` // sum of processed adjustments
	QuantityAllocated int                     `gorm:"not null;default:0"`
	QuantityFulfilled int                     `gorm:"not null;default:0"`
	TotalPrice        decimal.Decimal         `gorm:"type:decimal(18,4);not null;default:0"`
	Currency          string                  `gorm:"type:varchar(3);not null"`
	CountryOfOrigin   string                  `gorm:"type:varchar(2)"`
	ShipmentID        *uuid.UUID              `gorm:"type:uuid;index"`
	Status            PurchaseOrderItemStatus `gorm:"type:varchar(32);not null;default:'DRAFT';index"`
	ConfirmedAt       *time.Time              `gorm:"index"`
}

// TableName returns the table name for GORM
func (PurchaseOrderItem) TableName() string {
	return "purchase_order_items"
}

// BaseQuantity is the batch size after processed adjustments.
// Once a receipt discrepancy is processed this equals the received quantity.
func (i *PurchaseOrderItem) BaseQuantity() int {
	return i.QuantityOrdered + i.QuantityAdjusted
}

// AvailableQuantity returns the units neither reserved nor shipped, never negative
func (i *PurchaseOrderItem) AvailableQuantity() int {
	if avail := i.BaseQuantity() - i.QuantityAllocated - i.QuantityFulfilled; avail > 0 {
		return avail
	}
	return 0
}

// OnHandQuantity is what the batch contributes to its stock row's quantity
func (i *PurchaseOrderItem) OnHandQuantity() int {
	return i.BaseQuantity() - i.QuantityFulfilled
}

// UnitPrice is the original unit price, total price over ordered quantity
func (i *PurchaseOrderItem) UnitPrice() decimal.Decimal {
	if i.QuantityOrdered == 0 {
		return decimal.Zero
	}
	return i.TotalPrice.Div(decimal.NewFromInt(int64(i.QuantityOrdered)))
}

// IsActive reports whether the batch backs owned stock
func (i *PurchaseOrderItem) IsActive() bool {
	return i.Status.IsActive()
}

func (i *PurchaseOrderItem) transition(target PurchaseOrderItemStatus, expected ...PurchaseOrderItemStatus) error {
	if !i.Status.CanTransitionTo(target) {
		return NewInvalidPurchaseOrderItemStatusError(i, expected...)
	}
	i.Status = target
	i.Touch()
	return nil
}

// Confirm moves a DRAFT batch to CONFIRMED, starting its FIFO clock
func (i *PurchaseOrderItem) Confirm(at time.Time) error {
	if i.Status != PurchaseOrderItemStatusDraft {
		return NewInvalidPurchaseOrderItemStatusError(i, PurchaseOrderItemStatusDraft)
	}
	if err := i.transition(PurchaseOrderItemStatusConfirmed, PurchaseOrderItemStatusDraft); err != nil {
		return err
	}
	i.ConfirmedAt = &at
	return nil
}

// Cancel drops a batch that was never confirmed
func (i *PurchaseOrderItem) Cancel() error {
	if i.Status != PurchaseOrderItemStatusDraft {
		return NewInvalidPurchaseOrderItemStatusError(i, PurchaseOrderItemStatusDraft)
	}
	return i.transition(PurchaseOrderItemStatusCancelled, PurchaseOrderItemStatusDraft)
}

// MarkReceived records the physical arrival of the batch
func (i *PurchaseOrderItem) MarkReceived() error {
	return i.transition(PurchaseOrderItemStatusReceived,
		PurchaseOrderItemStatusConfirmed, PurchaseOrderItemStatusRequiresAttention)
}

// AssignShipment attaches a confirmed, unassigned batch to an inbound shipment
func (i *PurchaseOrderItem) AssignShipment(shipmentID uuid.UUID) error {
	if i.Status != PurchaseOrderItemStatusConfirmed {
		return NewInvalidPurchaseOrderItemStatusError(i, PurchaseOrderItemStatusConfirmed)
	}
	if i.ShipmentID != nil {
		return shared.NewDomainErrorf("VALIDATION_FAILED",
			"Purchase order item %s is already assigned to shipment %s", i.ID, *i.ShipmentID)
	}
	i.ShipmentID = &shipmentID
	i.Touch()
	return nil
}

// Allocate reserves qty units of the batch
func (i *PurchaseOrderItem) Allocate(qty int) error {
	if qty <= 0 || qty > i.AvailableQuantity() {
		return inventory.NewInsufficientStockError(i.VariantID, qty, i.AvailableQuantity())
	}
	i.QuantityAllocated += qty
	i.Touch()
	return nil
}

// ReleaseAllocation returns qty reserved units to the batch
func (i *PurchaseOrderItem) ReleaseAllocation(qty int) error {
	if qty < 0 || qty > i.QuantityAllocated {
		return shared.NewDomainErrorf("ALLOCATION_EXCEEDED",
			"Cannot release %d units from purchase order item %s: only %d allocated", qty, i.ID, i.QuantityAllocated)
	}
	i.QuantityAllocated -= qty
	i.Touch()
	return nil
}

// Fulfill converts qty reserved units into shipped units
func (i *PurchaseOrderItem) Fulfill(qty int) error {
	if err := i.ReleaseAllocation(qty); err != nil {
		return err
	}
	i.QuantityFulfilled += qty
	return nil
}

// ApplyGain adds found units to the batch
func (i *PurchaseOrderItem) ApplyGain(qty int) {
	i.QuantityAdjusted += qty
	i.Touch()
}

// ApplyLoss removes lost units from the batch. Reserved units the loss hits
// must have been released before calling.
func (i *PurchaseOrderItem) ApplyLoss(qty int) error {
	if qty > i.AvailableQuantity() {
		return inventory.NewInsufficientStockError(i.VariantID, qty, i.AvailableQuantity())
	}
	i.QuantityAdjusted -= qty
	i.Touch()
	return nil
}

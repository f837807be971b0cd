package inventory

import (
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Allocation reserves QuantityAllocated units of one stock row for one order line.
// A line split across warehouses has one allocation per stock row.
type Allocation struct {
	shared.BaseEntity
	OrderLineID       uuid.UUID `gorm:"type:uuid;not null;index"`
	StockID           uuid.UUID `gorm:"type:uuid;not null;index"`
	QuantityAllocated int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (Allocation) TableName() string {
	return "allocations"
}

// NewAllocation creates an allocation of qty units
func NewAllocation(orderLineID, stockID uuid.UUID, qty int) (*Allocation, error) {
	if orderLineID == uuid.Nil || stockID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ALLOCATION", "Order line and stock are required")
	}
	if qty <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Allocation quantity must be positive")
	}
	return &Allocation{
		BaseEntity:        shared.NewBaseEntity(),
		OrderLineID:       orderLineID,
		StockID:           stockID,
		QuantityAllocated: qty,
	}, nil
}

// Increase extends the reservation
func (a *Allocation) Increase(qty int) {
	a.QuantityAllocated += qty
	a.Touch()
}

// Decrease shrinks the reservation
func (a *Allocation) Decrease(qty int) error {
	if qty < 0 || qty > a.QuantityAllocated {
		return shared.NewDomainErrorf("ALLOCATION_EXCEEDED",
			"Cannot release %d units from allocation %s: only %d allocated", qty, a.ID, a.QuantityAllocated)
	}
	a.QuantityAllocated -= qty
	a.Touch()
	return nil
}

// IsEmpty reports whether nothing is reserved anymore
func (a *Allocation) IsEmpty() bool {
	return a.QuantityAllocated == 0
}

// MoveTo re-points the allocation at another stock row
func (a *Allocation) MoveTo(stockID uuid.UUID) {
	a.StockID = stockID
	a.Touch()
}

// AllocationSource attributes part of an allocation to a purchase-order batch
type AllocationSource struct {
	shared.BaseEntity
	AllocationID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_allocation_source_batch,priority:1"`
	PurchaseOrderItemID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_allocation_source_batch,priority:2"`
	Quantity            int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (AllocationSource) TableName() string {
	return "allocation_sources"
}

// NewAllocationSource creates a batch attribution
func NewAllocationSource(allocationID, poiID uuid.UUID, qty int) (*AllocationSource, error) {
	if qty <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Source quantity must be positive")
	}
	return &AllocationSource{
		BaseEntity:          shared.NewBaseEntity(),
		AllocationID:        allocationID,
		PurchaseOrderItemID: poiID,
		Quantity:            qty,
	}, nil
}

// Grow adds qty units to the attribution
func (s *AllocationSource) Grow(qty int) {
	s.Quantity += qty
	s.Touch()
}

// Shrink removes qty units from the attribution
func (s *AllocationSource) Shrink(qty int) error {
	if qty < 0 || qty > s.Quantity {
		return shared.NewDomainErrorf("ALLOCATION_EXCEEDED",
			"Cannot remove %d units from allocation source %s holding %d", qty, s.ID, s.Quantity)
	}
	s.Quantity -= qty
	s.Touch()
	return nil
}

// FulfillmentSource attributes shipped units of a fulfillment line to a batch
type FulfillmentSource struct {
	shared.BaseEntity
	FulfillmentLineID   uuid.UUID `gorm:"type:uuid;not null;index"`
	PurchaseOrderItemID uuid.UUID `gorm:"type:uuid;not null;index"`
	Quantity            int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (FulfillmentSource) TableName() string {
	return "fulfillment_sources"
}

// NewFulfillmentSource creates a shipped-batch attribution
func NewFulfillmentSource(fulfillmentLineID, poiID uuid.UUID, qty int) (*FulfillmentSource, error) {
	if qty <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Source quantity must be positive")
	}
	return &FulfillmentSource{
		BaseEntity:          shared.NewBaseEntity(),
		FulfillmentLineID:   fulfillmentLineID,
		PurchaseOrderItemID: poiID,
		Quantity:            qty,
	}, nil
}

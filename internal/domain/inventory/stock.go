package inventory

import (
	"fmt"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Stock is the ledger row for one (warehouse, variant) pair.
// Quantity is the total units present, QuantityAllocated the units reserved
// for order lines. For owned warehouses 0 <= QuantityAllocated <= Quantity.
//
// Stock is never mutated directly by callers: the allocation, confirmation,
// adjustment and fulfillment services change it while holding its row lock.
type Stock struct {
	shared.BaseEntity
	WarehouseID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_warehouse_variant,priority:1"`
	VariantID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_warehouse_variant,priority:2;index"`
	Quantity          int       `gorm:"not null;default:0"`
	QuantityAllocated int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (Stock) TableName() string {
	return "stocks"
}

// NewStock creates an empty stock row for a warehouse-variant combination
func NewStock(warehouseID, variantID uuid.UUID) (*Stock, error) {
	if warehouseID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_WAREHOUSE", "Warehouse ID cannot be empty")
	}
	if variantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_VARIANT", "Variant ID cannot be empty")
	}
	return &Stock{
		BaseEntity:  shared.NewBaseEntity(),
		WarehouseID: warehouseID,
		VariantID:   variantID,
	}, nil
}

// AvailableQuantity returns the unreserved units, never negative
func (s *Stock) AvailableQuantity() int {
	if avail := s.Quantity - s.QuantityAllocated; avail > 0 {
		return avail
	}
	return 0
}

// Reserve marks qty units as allocated
func (s *Stock) Reserve(qty int) error {
	if qty <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Reserve quantity must be positive")
	}
	if qty > s.AvailableQuantity() {
		return NewInsufficientStockError(s.VariantID, qty, s.AvailableQuantity())
	}
	s.QuantityAllocated += qty
	s.Touch()
	return nil
}

// Release returns qty allocated units to the available pool
func (s *Stock) Release(qty int) error {
	if qty < 0 || qty > s.QuantityAllocated {
		return shared.NewDomainErrorf("ALLOCATION_EXCEEDED",
			"Cannot release %d units from stock %s: only %d allocated", qty, s.ID, s.QuantityAllocated)
	}
	s.QuantityAllocated -= qty
	s.Touch()
	return nil
}

// Increase adds qty physical units
func (s *Stock) Increase(qty int) {
	s.Quantity += qty
	s.Touch()
}

// Decrease removes qty physical units. The caller must have released any
// allocation those units backed first.
func (s *Stock) Decrease(qty int) error {
	if qty < 0 || qty > s.Quantity {
		return NewInsufficientStockError(s.VariantID, qty, s.Quantity)
	}
	s.Quantity -= qty
	s.Touch()
	return nil
}

// Withdraw removes up to qty physical units, flooring at zero.
// Used for supplier stock handed over on purchase-order confirmation.
func (s *Stock) Withdraw(qty int) {
	if qty >= s.Quantity {
		s.Quantity = 0
	} else {
		s.Quantity -= qty
	}
	s.Touch()
}

// Ship removes qty units that were allocated and are now leaving the warehouse
func (s *Stock) Ship(qty int) error {
	if qty > s.QuantityAllocated || qty > s.Quantity {
		return NewInsufficientStockError(s.VariantID, qty, s.QuantityAllocated)
	}
	s.Quantity -= qty
	s.QuantityAllocated -= qty
	s.Touch()
	return nil
}

// Validate checks 0 <= QuantityAllocated <= Quantity
func (s *Stock) Validate() error {
	if s.QuantityAllocated < 0 || s.QuantityAllocated > s.Quantity {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Stock %s has %d allocated of %d units", s.ID, s.QuantityAllocated, s.Quantity))
	}
	return nil
}

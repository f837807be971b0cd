package inventory

import (
	"context"

	"github.com/google/uuid"
)

// WarehouseRepository defines the interface for warehouse persistence
type WarehouseRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Warehouse, error)

	// FindByIDs returns the warehouses keyed by id; missing ids are skipped
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Warehouse, error)

	// FindByChannel lists the warehouses linked to a channel, most preferred first
	FindByChannel(ctx context.Context, channelID uuid.UUID) ([]Warehouse, error)

	Save(ctx context.Context, warehouse *Warehouse) error

	// LinkChannel makes the warehouse eligible for a channel's allocations
	LinkChannel(ctx context.Context, link *ChannelWarehouse) error
}

// StockRepository defines the interface for stock ledger rows.
// Every *ForUpdate method takes an exclusive row lock for the enclosing transaction.
type StockRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Stock, error)

	// FindByIDForUpdate locks a stock row by id
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Stock, error)

	// FindForUpdate locks the row of a warehouse-variant pair
	FindForUpdate(ctx context.Context, warehouseID, variantID uuid.UUID) (*Stock, error)

	// GetOrCreateForUpdate inserts the row if missing and returns it locked
	GetOrCreateForUpdate(ctx context.Context, warehouseID, variantID uuid.UUID) (*Stock, error)

	// LockByVariant locks the variant's rows in the given warehouses, in id order
	LockByVariant(ctx context.Context, variantID uuid.UUID, warehouseIDs []uuid.UUID) ([]*Stock, error)

	// LockByIDs locks rows in id order
	LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*Stock, error)

	// FindByIDs returns stock rows keyed by id without locking
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Stock, error)

	// FindInOwnedWarehouses lists every stock row held in an owned warehouse
	FindInOwnedWarehouses(ctx context.Context) ([]*Stock, error)

	Save(ctx context.Context, stock *Stock) error
}

// AllocationRepository defines the interface for allocation persistence
type AllocationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Allocation, error)

	// FindByOrderLine lists a line's allocations, oldest first
	FindByOrderLine(ctx context.Context, orderLineID uuid.UUID) ([]*Allocation, error)

	// FindByOrderLines lists allocations for several lines, oldest first
	FindByOrderLines(ctx context.Context, orderLineIDs []uuid.UUID) ([]*Allocation, error)

	// FindByOrderLineAndStock returns the line's allocation on a stock row, or ErrNotFound
	FindByOrderLineAndStock(ctx context.Context, orderLineID, stockID uuid.UUID) (*Allocation, error)

	// FindByStock lists the allocations on a stock row, oldest first
	FindByStock(ctx context.Context, stockID uuid.UUID) ([]*Allocation, error)

	// FindByStockForUpdate locks the allocations on a stock row,
	// ordered by the creation time of their order lines
	FindByStockForUpdate(ctx context.Context, stockID uuid.UUID) ([]*Allocation, error)

	Save(ctx context.Context, allocation *Allocation) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// AllocationSourceRepository defines the interface for batch attributions
type AllocationSourceRepository interface {
	// FindByAllocation lists an allocation's sources, oldest first
	FindByAllocation(ctx context.Context, allocationID uuid.UUID) ([]*AllocationSource, error)

	// FindByAllocations lists sources for several allocations, oldest first
	FindByAllocations(ctx context.Context, allocationIDs []uuid.UUID) ([]*AllocationSource, error)

	// FindByPurchaseOrderItem lists the sources drawing on a batch, oldest first
	FindByPurchaseOrderItem(ctx context.Context, poiID uuid.UUID) ([]*AllocationSource, error)

	Save(ctx context.Context, source *AllocationSource) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// FulfillmentSourceRepository defines the interface for shipped-batch attributions
type FulfillmentSourceRepository interface {
	FindByFulfillmentLine(ctx context.Context, fulfillmentLineID uuid.UUID) ([]*FulfillmentSource, error)
	Save(ctx context.Context, source *FulfillmentSource) error
}

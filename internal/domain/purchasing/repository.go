package purchasing

import (
	"context"

	"github.com/google/uuid"
)

// PurchaseOrderRepository defines the interface for purchase order persistence
type PurchaseOrderRepository interface {
	// FindByID loads the order with its items
	FindByID(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error)

	// Save creates or updates the order and its items
	Save(ctx context.Context, order *PurchaseOrder) error
}

// PurchaseOrderItemRepository defines the interface for batch persistence.
// Every *ForUpdate / Lock* method takes an exclusive row lock for the enclosing transaction.
type PurchaseOrderItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PurchaseOrderItem, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*PurchaseOrderItem, error)

	// FindByIDs returns the items keyed by id without locking
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*PurchaseOrderItem, error)

	// LockByIDs locks items in id order
	LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*PurchaseOrderItem, error)

	// LockActiveForSourcing locks the active batches of a variant delivered to
	// a warehouse, oldest confirmation first
	LockActiveForSourcing(ctx context.Context, warehouseID, variantID uuid.UUID) ([]*PurchaseOrderItem, error)

	// FindActive lists the active batches of a variant delivered to a warehouse
	FindActive(ctx context.Context, warehouseID, variantID uuid.UUID) ([]*PurchaseOrderItem, error)

	// FindByShipment lists the items assigned to a shipment, in id order
	FindByShipment(ctx context.Context, shipmentID uuid.UUID) ([]*PurchaseOrderItem, error)

	// FindByShipmentAndVariant returns the shipment's batch for a variant, or ErrNotFound
	FindByShipmentAndVariant(ctx context.Context, shipmentID, variantID uuid.UUID) (*PurchaseOrderItem, error)

	Save(ctx context.Context, item *PurchaseOrderItem) error
}

// AdjustmentRepository defines the interface for adjustment persistence
type AdjustmentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Adjustment, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Adjustment, error)

	// FindPending lists unprocessed adjustments, oldest first
	FindPending(ctx context.Context) ([]*Adjustment, error)

	Save(ctx context.Context, adj *Adjustment) error
}

// ShipmentRepository defines the interface for shipment persistence
type ShipmentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Shipment, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Shipment, error)
	Save(ctx context.Context, shipment *Shipment) error
}

// ReceiptRepository defines the interface for receipt persistence
type ReceiptRepository interface {
	// FindByID loads the receipt with its lines
	FindByID(ctx context.Context, id uuid.UUID) (*Receipt, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Receipt, error)

	// FindByShipment lists the shipment's receipts, newest first
	FindByShipment(ctx context.Context, shipmentID uuid.UUID) ([]*Receipt, error)

	Save(ctx context.Context, receipt *Receipt) error

	// Delete removes the receipt and its lines
	Delete(ctx context.Context, id uuid.UUID) error
}

// ReceiptLineRepository defines the interface for receipt line persistence
type ReceiptLineRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*ReceiptLine, error)
	FindByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*ReceiptLine, error)

	// SumReceived totals the received units per batch over every
	// receipt that was not cancelled
	SumReceived(ctx context.Context, poiIDs []uuid.UUID) (map[uuid.UUID]int, error)

	Save(ctx context.Context, line *ReceiptLine) error
	Delete(ctx context.Context, id uuid.UUID) error
}

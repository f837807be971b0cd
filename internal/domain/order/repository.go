package order

import (
	"context"

	"github.com/google/uuid"
)

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	// FindByID loads the order with its lines
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByIDForUpdate locks the order row and loads its lines
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByIDs returns orders keyed by id, without lines
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Order, error)

	// FindByStatus lists orders in a status, oldest first
	FindByStatus(ctx context.Context, status Status) ([]*Order, error)

	FindLineByID(ctx context.Context, id uuid.UUID) (*OrderLine, error)

	// FindLinesByIDs returns order lines keyed by id
	FindLinesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*OrderLine, error)

	// Save creates or updates the order and its lines
	Save(ctx context.Context, order *Order) error

	SaveLine(ctx context.Context, line *OrderLine) error
}

// ChannelRepository defines the interface for channel persistence
type ChannelRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Channel, error)
	Save(ctx context.Context, channel *Channel) error
}

// FulfillmentRepository defines the interface for fulfillment persistence
type FulfillmentRepository interface {
	// FindByIDForUpdate locks the fulfillment and loads its lines
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Fulfillment, error)

	// CountByOrder counts the order's fulfillments in any status
	CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)

	// Save creates or updates the fulfillment and its lines
	Save(ctx context.Context, fulfillment *Fulfillment) error
}

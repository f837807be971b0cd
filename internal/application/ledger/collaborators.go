package ledger

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/order"
	"github.com/google/uuid"
)

// Notification event names
const (
	NotificationOrderConfirmed          = "order_confirmed"
	NotificationPendingAdjustments      = "pending_adjustments"
	NotificationStockInvariantViolation = "stock_invariant_violation"
)

// Notifier dispatches staff and customer notifications.
// The payload function is only evaluated if the notification is actually sent.
type Notifier interface {
	Notify(ctx context.Context, event string, payload func() map[string]any) error
}

// WarehouseRouter decides which warehouses may serve a channel and
// destination country, most preferred first. It reads through the caller's
// transaction.
type WarehouseRouter interface {
	EligibleWarehouses(ctx context.Context, warehouses inventory.WarehouseRepository, channelID uuid.UUID, countryCode string) ([]uuid.UUID, error)
}

// FulfillmentLineDraft is one order line's share of a fulfillment to create
type FulfillmentLineDraft struct {
	OrderLineID uuid.UUID
	StockID     uuid.UUID
	Quantity    int
}

// FulfillmentCreator creates fulfillments for an order, one per warehouse,
// inside the caller's transaction
type FulfillmentCreator interface {
	CreateFulfillments(ctx context.Context, repos TransactionalRepositories, ord *order.Order, lines map[uuid.UUID][]FulfillmentLineDraft) ([]*order.Fulfillment, error)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, func() map[string]any) error { return nil }

package ledger

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/order"
	"github.com/erp/stockledger/internal/domain/purchasing"
)

// TransactionScope provides transactional access to the ledger repositories.
// Every public ledger operation runs inside exactly one Execute call: all row
// locks are taken through the repositories it hands out and released on
// commit or rollback.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back and the queued
	// after-commit callbacks are discarded. Otherwise the transaction is
	// committed and the callbacks run in the order they were queued.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all ledger repositories within a transaction.
// All repositories returned share the same underlying database transaction.
//
// Lock order: stock rows before purchase-order item rows; within stock rows,
// supplier (non-owned) warehouses before owned ones, then by id.
type TransactionalRepositories interface {
	WarehouseRepo() inventory.WarehouseRepository
	StockRepo() inventory.StockRepository
	AllocationRepo() inventory.AllocationRepository
	AllocationSourceRepo() inventory.AllocationSourceRepository
	FulfillmentSourceRepo() inventory.FulfillmentSourceRepository

	PurchaseOrderRepo() purchasing.PurchaseOrderRepository
	PurchaseOrderItemRepo() purchasing.PurchaseOrderItemRepository
	AdjustmentRepo() purchasing.AdjustmentRepository
	ShipmentRepo() purchasing.ShipmentRepository
	ReceiptRepo() purchasing.ReceiptRepository
	ReceiptLineRepo() purchasing.ReceiptLineRepository

	OrderRepo() order.OrderRepository
	ChannelRepo() order.ChannelRepository
	FulfillmentRepo() order.FulfillmentRepository

	// AfterCommit queues fn to run once the outermost transaction has committed.
	// Callback failures are logged and never affect the committed ledger state.
	AfterCommit(fn func(ctx context.Context) error)

	// Nested runs fn inside a savepoint. When fn fails, only its own writes
	// and its own queued callbacks are discarded.
	Nested(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

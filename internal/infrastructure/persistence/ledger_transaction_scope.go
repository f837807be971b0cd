package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/order"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormTransactionScope implements ledger.TransactionScope using GORM transactions.
// Callbacks queued through AfterCommit run once the outermost transaction commits.
type GormTransactionScope struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB, logger *zap.Logger) *GormTransactionScope {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormTransactionScope{db: db, logger: logger}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back and every
// queued callback is dropped. If it succeeds, the transaction is committed
// and the callbacks run in order.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos ledger.TransactionalRepositories) error) error {
	queue := ledger.NewCommitQueue()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, queue: queue})
	})
	if err != nil {
		return err
	}
	if failed := queue.Drain(ctx, s.logger); failed > 0 {
		s.logger.Warn("after-commit callbacks failed", zap.Int("failed", failed))
	}
	return nil
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx    *gorm.DB
	queue *ledger.CommitQueue
}

// WarehouseRepo returns the warehouse repository scoped to the current transaction.
func (r *gormTransactionalRepositories) WarehouseRepo() inventory.WarehouseRepository {
	return NewGormWarehouseRepository(r.tx)
}

// StockRepo returns the stock repository scoped to the current transaction.
func (r *gormTransactionalRepositories) StockRepo() inventory.StockRepository {
	return NewGormStockRepository(r.tx)
}

// AllocationRepo returns the allocation repository scoped to the current transaction.
func (r *gormTransactionalRepositories) AllocationRepo() inventory.AllocationRepository {
	return NewGormAllocationRepository(r.tx)
}

// AllocationSourceRepo returns the allocation source repository scoped to the current transaction.
func (r *gormTransactionalRepositories) AllocationSourceRepo() inventory.AllocationSourceRepository {
	return NewGormAllocationSourceRepository(r.tx)
}

// FulfillmentSourceRepo returns the fulfillment source repository scoped to the current transaction.
func (r *gormTransactionalRepositories) FulfillmentSourceRepo() inventory.FulfillmentSourceRepository {
	return NewGormFulfillmentSourceRepository(r.tx)
}

// PurchaseOrderRepo returns the purchase order repository scoped to the current transaction.
func (r *gormTransactionalRepositories) PurchaseOrderRepo() purchasing.PurchaseOrderRepository {
	return NewGormPurchaseOrderRepository(r.tx)
}

// PurchaseOrderItemRepo returns the purchase order item repository scoped to the current transaction.
func (r *gormTransactionalRepositories) PurchaseOrderItemRepo() purchasing.PurchaseOrderItemRepository {
	return NewGormPurchaseOrderItemRepository(r.tx)
}

// AdjustmentRepo returns the adjustment repository scoped to the current transaction.
func (r *gormTransactionalRepositories) AdjustmentRepo() purchasing.AdjustmentRepository {
	return NewGormAdjustmentRepository(r.tx)
}

// ShipmentRepo returns the shipment repository scoped to the current transaction.
func (r *gormTransactionalRepositories) ShipmentRepo() purchasing.ShipmentRepository {
	return NewGormShipmentRepository(r.tx)
}

// ReceiptRepo returns the receipt repository scoped to the current transaction.
func (r *gormTransactionalRepositories) ReceiptRepo() purchasing.ReceiptRepository {
	return NewGormReceiptRepository(r.tx)
}

// ReceiptLineRepo returns the receipt line repository scoped to the current transaction.
func (r *gormTransactionalRepositories) ReceiptLineRepo() purchasing.ReceiptLineRepository {
	return NewGormReceiptLineRepository(r.tx)
}

// OrderRepo returns the order repository scoped to the current transaction.
func (r *gormTransactionalRepositories) OrderRepo() order.OrderRepository {
	return NewGormOrderRepository(r.tx)
}

// ChannelRepo returns the channel repository scoped to the current transaction.
func (r *gormTransactionalRepositories) ChannelRepo() order.ChannelRepository {
	return NewGormChannelRepository(r.tx)
}

// FulfillmentRepo returns the fulfillment repository scoped to the current transaction.
func (r *gormTransactionalRepositories) FulfillmentRepo() order.FulfillmentRepository {
	return NewGormFulfillmentRepository(r.tx)
}

// AfterCommit queues fn until the outermost transaction commits.
func (r *gormTransactionalRepositories) AfterCommit(fn func(ctx context.Context) error) {
	r.queue.Add(fn)
}

// Nested runs fn inside a savepoint. Callbacks queued by fn are dropped
// together with its writes when it fails.
func (r *gormTransactionalRepositories) Nested(ctx context.Context, fn func(repos ledger.TransactionalRepositories) error) error {
	mark := r.queue.Len()
	err := r.tx.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, queue: r.queue})
	})
	if err != nil {
		r.queue.Truncate(mark)
	}
	return err
}

// Ensure GormTransactionScope implements TransactionScope
var _ ledger.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ ledger.TransactionalRepositories = (*gormTransactionalRepositories)(nil)

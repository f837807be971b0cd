package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/order"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ledgerWorld is a fresh in-memory ledger with one supplier warehouse, one
// owned warehouse and an auto-confirming channel routed to both
type ledgerWorld struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	scope    *persistence.GormTransactionScope
	notifier *recordingNotifier
	channel  *order.Channel
	supplier *inventory.Warehouse
	owned    *inventory.Warehouse
}

func newLedgerWorld(t *testing.T) *ledgerWorld {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(persistence.LedgerModels()...))
	return newLedgerWorldOn(t, db)
}

// newLedgerWorldOn seeds the channel and warehouses into an already migrated database
func newLedgerWorldOn(t *testing.T, db *gorm.DB) *ledgerWorld {
	t.Helper()
	w := &ledgerWorld{
		t:        t,
		ctx:      context.Background(),
		db:       db,
		scope:    persistence.NewGormTransactionScope(db, nil),
		notifier: &recordingNotifier{},
	}

	var err error
	w.channel, err = order.NewChannel("web-"+uuid.NewString()[:8], true)
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormChannelRepository(db).Save(w.ctx, w.channel))

	w.owned = w.warehouse("owned", true)
	w.supplier = w.warehouse("supplier", false)
	return w
}

// warehouse stores a warehouse and routes the channel to it after the
// warehouses already linked
func (w *ledgerWorld) warehouse(slug string, owned bool) *inventory.Warehouse {
	w.t.Helper()
	wh, err := inventory.NewWarehouse(slug, slug, owned)
	require.NoError(w.t, err)
	repo := persistence.NewGormWarehouseRepository(w.db)
	require.NoError(w.t, repo.Save(w.ctx, wh))

	var linked int64
	require.NoError(w.t, w.db.Model(&inventory.ChannelWarehouse{}).Where("channel_id = ?", w.channel.ID).Count(&linked).Error)
	require.NoError(w.t, repo.LinkChannel(w.ctx, &inventory.ChannelWarehouse{
		ChannelID:   w.channel.ID,
		WarehouseID: wh.ID,
		SortOrder:   int(linked),
	}))
	return wh
}

func (w *ledgerWorld) stock(warehouseID, variantID uuid.UUID, qty int) *inventory.Stock {
	w.t.Helper()
	s, err := inventory.NewStock(warehouseID, variantID)
	require.NoError(w.t, err)
	s.Quantity = qty
	require.NoError(w.t, w.db.Create(s).Error)
	return s
}

// batches stores one purchase order per quantity, shipped from the supplier
// into the owned warehouse and confirmed a minute apart, plus the owned stock
// row holding all of them
func (w *ledgerWorld) batches(variantID uuid.UUID, status purchasing.PurchaseOrderItemStatus, quantities ...int) (*inventory.Stock, []*purchasing.PurchaseOrderItem) {
	w.t.Helper()
	total := 0
	items := make([]*purchasing.PurchaseOrderItem, 0, len(quantities))
	for i, qty := range quantities {
		po, err := purchasing.NewPurchaseOrder(w.supplier, w.owned)
		require.NoError(w.t, err)
		_, err = po.AddItem(variantID, qty, decimal.NewFromInt(int64(qty)*10), "USD", "CN")
		require.NoError(w.t, err)
		confirmedAt := time.Date(2026, 1, 1, 8, i, 0, 0, time.UTC)
		po.Items[0].Status = status
		po.Items[0].ConfirmedAt = &confirmedAt
		require.NoError(w.t, persistence.NewGormPurchaseOrderRepository(w.db).Save(w.ctx, po))
		items = append(items, &po.Items[0])
		total += qty
	}
	return w.stock(w.owned.ID, variantID, total), items
}

// order stores an UNCONFIRMED order with one line per quantity
func (w *ledgerWorld) order(variantID uuid.UUID, quantities ...int) *order.Order {
	w.t.Helper()
	ord, err := order.NewOrder(fmt.Sprintf("ORD-%s", uuid.NewString()[:8]), w.channel.ID, "USD")
	require.NoError(w.t, err)
	for _, qty := range quantities {
		_, err := ord.AddLine(variantID, qty)
		require.NoError(w.t, err)
	}
	require.NoError(w.t, persistence.NewGormOrderRepository(w.db).Save(w.ctx, ord))
	return ord
}

func (w *ledgerWorld) allocations() *ledger.AllocationService {
	svc := ledger.NewAllocationService(w.scope, ledger.ShippingZoneRouter{})
	svc.SetNotifier(w.notifier)
	return svc
}

func (w *ledgerWorld) purchaseOrders() *ledger.PurchaseOrderService {
	svc := ledger.NewPurchaseOrderService(w.scope)
	svc.SetNotifier(w.notifier)
	return svc
}

func (w *ledgerWorld) adjustments() *ledger.AdjustmentService {
	svc := ledger.NewAdjustmentService(w.scope)
	svc.SetNotifier(w.notifier)
	return svc
}

func (w *ledgerWorld) receipts() *ledger.ReceiptService {
	svc := ledger.NewReceiptService(w.scope, ledger.WaitingFulfillmentCreator{})
	svc.SetNotifier(w.notifier)
	return svc
}

func (w *ledgerWorld) allocate(line order.OrderLine, qty int) []ledger.AllocationResponse {
	w.t.Helper()
	resp, err := w.allocations().Allocate(w.ctx, ledger.AllocateRequest{OrderLineID: line.ID, Quantity: qty})
	require.NoError(w.t, err)
	return resp
}

// setOrder rewrites an order's status and payment totals
func (w *ledgerWorld) setOrder(ord *order.Order, status order.Status, gross, charged int64) {
	w.t.Helper()
	require.NoError(w.t, w.db.Model(&order.Order{}).Where("id = ?", ord.ID).Updates(map[string]any{
		"status":        status,
		"total_gross":   decimal.NewFromInt(gross),
		"total_charged": decimal.NewFromInt(charged),
	}).Error)
}

func (w *ledgerWorld) reloadStock(id uuid.UUID) *inventory.Stock {
	w.t.Helper()
	s, err := persistence.NewGormStockRepository(w.db).FindByID(w.ctx, id)
	require.NoError(w.t, err)
	return s
}

func (w *ledgerWorld) reloadBatch(id uuid.UUID) *purchasing.PurchaseOrderItem {
	w.t.Helper()
	p, err := persistence.NewGormPurchaseOrderItemRepository(w.db).FindByID(w.ctx, id)
	require.NoError(w.t, err)
	return p
}

func (w *ledgerWorld) reloadOrder(id uuid.UUID) *order.Order {
	w.t.Helper()
	o, err := persistence.NewGormOrderRepository(w.db).FindByID(w.ctx, id)
	require.NoError(w.t, err)
	return o
}

func (w *ledgerWorld) lineAllocations(lineID uuid.UUID) []ledger.AllocationResponse {
	w.t.Helper()
	resp, err := w.allocations().GetOrderLineAllocations(w.ctx, lineID)
	require.NoError(w.t, err)
	return resp
}

// recordingNotifier keeps every notification it is asked to send
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	last   map[string]map[string]any
}

func (n *recordingNotifier) Notify(_ context.Context, event string, payload func() map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	if n.last == nil {
		n.last = make(map[string]map[string]any)
	}
	n.last[event] = payload()
	return nil
}

func (n *recordingNotifier) sent(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.events {
		if e == event {
			count++
		}
	}
	return count
}

func (n *recordingNotifier) payload(event string) map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last[event]
}

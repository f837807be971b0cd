package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/order"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newSQLiteDB opens an in-memory database holding the ledger schema.
// A single connection keeps every statement on the same memory database.
func newSQLiteDB(t *testing.T) *gorm.DB {
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

	require.NoError(t, db.AutoMigrate(LedgerModels()...))
	return db
}

func seedWarehouse(t *testing.T, db *gorm.DB, slug string, owned bool, zones ...string) *inventory.Warehouse {
	t.Helper()
	w, err := inventory.NewWarehouse(slug, slug, owned, zones...)
	require.NoError(t, err)
	require.NoError(t, NewGormWarehouseRepository(db).Save(context.Background(), w))
	return w
}

func seedStock(t *testing.T, db *gorm.DB, warehouseID, variantID uuid.UUID, qty, allocated int) *inventory.Stock {
	t.Helper()
	s, err := inventory.NewStock(warehouseID, variantID)
	require.NoError(t, err)
	s.Quantity = qty
	s.QuantityAllocated = allocated
	require.NoError(t, db.Create(s).Error)
	return s
}

func seedChannel(t *testing.T, db *gorm.DB, slug string) *order.Channel {
	t.Helper()
	ch, err := order.NewChannel(slug, true)
	require.NoError(t, err)
	require.NoError(t, NewGormChannelRepository(db).Save(context.Background(), ch))
	return ch
}

// seedOrderLine stores a one-line order whose line was created at createdAt
func seedOrderLine(t *testing.T, db *gorm.DB, channelID, variantID uuid.UUID, qty int, createdAt time.Time) (*order.Order, *order.OrderLine) {
	t.Helper()
	ord, err := order.NewOrder(fmt.Sprintf("ORD-%s", uuid.NewString()[:8]), channelID, "USD")
	require.NoError(t, err)
	line, err := ord.AddLine(variantID, qty)
	require.NoError(t, err)
	line.CreatedAt = createdAt
	require.NoError(t, NewGormOrderRepository(db).Save(context.Background(), ord))
	return ord, &ord.Lines[0]
}

// seedBatch stores a purchase order with one batch in the given status
func seedBatch(t *testing.T, db *gorm.DB, source, destination *inventory.Warehouse, variantID uuid.UUID, qty int, status purchasing.PurchaseOrderItemStatus, confirmedAt *time.Time) *purchasing.PurchaseOrderItem {
	t.Helper()
	po, err := purchasing.NewPurchaseOrder(source, destination)
	require.NoError(t, err)
	_, err = po.AddItem(variantID, qty, decimal.NewFromInt(int64(qty)*10), "USD", "CN")
	require.NoError(t, err)
	po.Items[0].Status = status
	po.Items[0].ConfirmedAt = confirmedAt
	require.NoError(t, NewGormPurchaseOrderRepository(db).Save(context.Background(), po))
	return &po.Items[0]
}

func timeAt(minutes int) time.Time {
	return time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

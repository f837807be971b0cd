package persistence

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDatabase creates a Database instance with a mocked SQL connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

func TestDatabase_Stats(t *testing.T) {
	t.Run("returns ConnectionStats from underlying DB", func(t *testing.T) {
		db, _, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		stats, err := db.Stats()
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, stats.MaxOpenConnections, 0)
		assert.GreaterOrEqual(t, stats.OpenConnections, 0)
		assert.GreaterOrEqual(t, stats.WaitCount, int64(0))
		assert.GreaterOrEqual(t, stats.WaitDuration, time.Duration(0))
	})
}

func TestDatabase_Ping(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectPing()

	assert.NoError(t, db.Ping())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newMockDatabase(t)

	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerModels_AutoMigrate(t *testing.T) {
	db := newSQLiteDB(t)

	for _, table := range []string{
		"warehouses", "channel_warehouses", "stocks", "channels", "orders", "order_lines",
		"purchase_orders", "purchase_order_items", "shipments", "purchase_order_item_adjustments",
		"receipts", "receipt_lines", "allocations", "allocation_sources",
		"fulfillments", "fulfillment_lines", "fulfillment_sources", "purchase_order_audit_entries",
	} {
		assert.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
	assert.True(t, db.Migrator().HasIndex("stocks", "idx_stock_warehouse_variant"))
}

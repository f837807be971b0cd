package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockStockRepository creates a GormStockRepository with a mocked SQL connection
func newMockStockRepository(t *testing.T) (*GormStockRepository, sqlmock.Sqlmock, *sql.DB) {
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

	return NewGormStockRepository(gormDB), mock, mockDB
}

func TestGormStockRepository_LockByVariant_SQL(t *testing.T) {
	t.Run("locks only stock rows, supplier rows first", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRepository(t)
		defer mockDB.Close()

		variantID := uuid.New()
		w1, w2 := uuid.New(), uuid.New()

		mock.ExpectQuery(`SELECT stocks\.\* FROM "stocks" JOIN warehouses ON warehouses\.id = stocks\.warehouse_id WHERE .*ORDER BY warehouses\.is_owned ASC, stocks\.id ASC FOR UPDATE OF "stocks"`).
			WithArgs(variantID, w1, w2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "warehouse_id", "variant_id", "quantity", "quantity_allocated"}))

		stocks, err := repo.LockByVariant(context.Background(), variantID, []uuid.UUID{w1, w2})
		require.NoError(t, err)
		assert.Empty(t, stocks)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no warehouses issues no query", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRepository(t)
		defer mockDB.Close()

		stocks, err := repo.LockByVariant(context.Background(), uuid.New(), nil)
		require.NoError(t, err)
		assert.Nil(t, stocks)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStockRepository_FindForUpdate_SQL(t *testing.T) {
	repo, mock, mockDB := newMockStockRepository(t)
	defer mockDB.Close()

	warehouseID, variantID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "stocks" WHERE warehouse_id = \$1 AND variant_id = \$2 .*FOR UPDATE`).
		WithArgs(warehouseID, variantID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindForUpdate(context.Background(), warehouseID, variantID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStockRepository_GetOrCreateForUpdate(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormStockRepository(db)
	ctx := context.Background()

	supplier := seedWarehouse(t, db, "supplier", false)
	variantID := uuid.New()

	first, err := repo.GetOrCreateForUpdate(ctx, supplier.ID, variantID)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Quantity)
	assert.Equal(t, 0, first.QuantityAllocated)

	second, err := repo.GetOrCreateForUpdate(ctx, supplier.ID, variantID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Table("stocks").Where("warehouse_id = ? AND variant_id = ?", supplier.ID, variantID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormStockRepository_LockByVariant_Order(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormStockRepository(db)
	ctx := context.Background()

	owned := seedWarehouse(t, db, "owned", true)
	supplier := seedWarehouse(t, db, "supplier", false)
	other := seedWarehouse(t, db, "other", true)
	variantID := uuid.New()

	ownedStock := seedStock(t, db, owned.ID, variantID, 10, 0)
	supplierStock := seedStock(t, db, supplier.ID, variantID, 0, 5)
	seedStock(t, db, other.ID, variantID, 7, 0)
	seedStock(t, db, owned.ID, uuid.New(), 3, 0)

	stocks, err := repo.LockByVariant(ctx, variantID, []uuid.UUID{owned.ID, supplier.ID})
	require.NoError(t, err)
	require.Len(t, stocks, 2)
	assert.Equal(t, supplierStock.ID, stocks[0].ID)
	assert.Equal(t, ownedStock.ID, stocks[1].ID)

	locked, err := repo.LockByIDs(ctx, []uuid.UUID{ownedStock.ID, supplierStock.ID})
	require.NoError(t, err)
	require.Len(t, locked, 2)
	assert.Equal(t, supplierStock.ID, locked[0].ID)
}

func TestGormStockRepository_FindInOwnedWarehouses(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormStockRepository(db)
	ctx := context.Background()

	owned := seedWarehouse(t, db, "owned", true)
	supplier := seedWarehouse(t, db, "supplier", false)
	variantID := uuid.New()

	ownedStock := seedStock(t, db, owned.ID, variantID, 10, 2)
	seedStock(t, db, supplier.ID, variantID, 0, 5)

	stocks, err := repo.FindInOwnedWarehouses(ctx)
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, ownedStock.ID, stocks[0].ID)
	assert.Equal(t, 10, stocks[0].Quantity)
	assert.Equal(t, 2, stocks[0].QuantityAllocated)

	byID, err := repo.FindByIDs(ctx, []uuid.UUID{ownedStock.ID})
	require.NoError(t, err)
	assert.Contains(t, byID, ownedStock.ID)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

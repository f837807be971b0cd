package persistence

import (
	"context"
	"errors"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// stockRowLock is the row lock taken on stock rows. Scoped to the stocks table
// so joined warehouse rows stay unlocked.
var stockRowLock = clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "stocks"}}

// stockLockOrder puts supplier rows before owned rows, then orders by id.
// Every query locking more than one stock row uses it.
const stockLockOrder = "warehouses.is_owned ASC, stocks.id ASC"

// GormStockRepository implements StockRepository using GORM
type GormStockRepository struct {
	db *gorm.DB
}

// NewGormStockRepository creates a new GormStockRepository
func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

// FindByID finds a stock row by its ID
func (r *GormStockRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Stock, error) {
	var stock inventory.Stock
	if err := r.db.WithContext(ctx).First(&stock, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &stock, nil
}

// FindByIDForUpdate locks a stock row by id
func (r *GormStockRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Stock, error) {
	var stock inventory.Stock
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&stock, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &stock, nil
}

// FindForUpdate locks the stock row of a warehouse-variant pair
func (r *GormStockRepository) FindForUpdate(ctx context.Context, warehouseID, variantID uuid.UUID) (*inventory.Stock, error) {
	var stock inventory.Stock
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("warehouse_id = ? AND variant_id = ?", warehouseID, variantID).
		First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &stock, nil
}

// GetOrCreateForUpdate returns the locked stock row of a warehouse-variant
// pair, inserting an empty row first if there is none.
// A concurrent insert of the same pair is absorbed by the unique index.
func (r *GormStockRepository) GetOrCreateForUpdate(ctx context.Context, warehouseID, variantID uuid.UUID) (*inventory.Stock, error) {
	stock, err := r.FindForUpdate(ctx, warehouseID, variantID)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	stock, err = inventory.NewStock(warehouseID, variantID)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "warehouse_id"}, {Name: "variant_id"}},
			DoNothing: true,
		}).
		Create(stock).Error; err != nil {
		return nil, err
	}

	// Re-read under lock whether or not this call inserted the row
	return r.FindForUpdate(ctx, warehouseID, variantID)
}

// LockByVariant locks the variant's rows in the given warehouses
func (r *GormStockRepository) LockByVariant(ctx context.Context, variantID uuid.UUID, warehouseIDs []uuid.UUID) ([]*inventory.Stock, error) {
	if len(warehouseIDs) == 0 {
		return nil, nil
	}
	var stocks []*inventory.Stock
	if err := r.db.WithContext(ctx).
		Select("stocks.*").
		Joins("JOIN warehouses ON warehouses.id = stocks.warehouse_id").
		Where("stocks.variant_id = ? AND stocks.warehouse_id IN ?", variantID, warehouseIDs).
		Order(stockLockOrder).
		Clauses(stockRowLock).
		Find(&stocks).Error; err != nil {
		return nil, err
	}
	return stocks, nil
}

// LockByIDs locks stock rows
func (r *GormStockRepository) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*inventory.Stock, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var stocks []*inventory.Stock
	if err := r.db.WithContext(ctx).
		Select("stocks.*").
		Joins("JOIN warehouses ON warehouses.id = stocks.warehouse_id").
		Where("stocks.id IN ?", ids).
		Order(stockLockOrder).
		Clauses(stockRowLock).
		Find(&stocks).Error; err != nil {
		return nil, err
	}
	return stocks, nil
}

// FindByIDs returns stock rows keyed by id without locking
func (r *GormStockRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*inventory.Stock, error) {
	result := make(map[uuid.UUID]*inventory.Stock, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var stocks []*inventory.Stock
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&stocks).Error; err != nil {
		return nil, err
	}
	for _, s := range stocks {
		result[s.ID] = s
	}
	return result, nil
}

// FindInOwnedWarehouses lists every stock row held in an owned warehouse
func (r *GormStockRepository) FindInOwnedWarehouses(ctx context.Context) ([]*inventory.Stock, error) {
	var stocks []*inventory.Stock
	if err := r.db.WithContext(ctx).
		Select("stocks.*").
		Joins("JOIN warehouses ON warehouses.id = stocks.warehouse_id").
		Where("warehouses.is_owned = ?", true).
		Order("stocks.id ASC").
		Find(&stocks).Error; err != nil {
		return nil, err
	}
	return stocks, nil
}

// Save updates a stock row
func (r *GormStockRepository) Save(ctx context.Context, stock *inventory.Stock) error {
	return r.db.WithContext(ctx).Save(stock).Error
}

// Ensure GormStockRepository implements StockRepository
var _ inventory.StockRepository = (*GormStockRepository)(nil)

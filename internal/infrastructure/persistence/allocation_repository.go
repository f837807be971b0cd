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

// GormAllocationRepository implements AllocationRepository using GORM
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GormAllocationRepository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// FindByID finds an allocation by its ID
func (r *GormAllocationRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Allocation, error) {
	var alloc inventory.Allocation
	if err := r.db.WithContext(ctx).First(&alloc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &alloc, nil
}

// FindByOrderLine lists a line's allocations, oldest first
func (r *GormAllocationRepository) FindByOrderLine(ctx context.Context, orderLineID uuid.UUID) ([]*inventory.Allocation, error) {
	var allocs []*inventory.Allocation
	if err := r.db.WithContext(ctx).
		Where("order_line_id = ?", orderLineID).
		Order("created_at ASC, id ASC").
		Find(&allocs).Error; err != nil {
		return nil, err
	}
	return allocs, nil
}

// FindByOrderLines lists allocations for several lines, oldest first
func (r *GormAllocationRepository) FindByOrderLines(ctx context.Context, orderLineIDs []uuid.UUID) ([]*inventory.Allocation, error) {
	if len(orderLineIDs) == 0 {
		return nil, nil
	}
	var allocs []*inventory.Allocation
	if err := r.db.WithContext(ctx).
		Where("order_line_id IN ?", orderLineIDs).
		Order("created_at ASC, id ASC").
		Find(&allocs).Error; err != nil {
		return nil, err
	}
	return allocs, nil
}

// FindByOrderLineAndStock returns the line's allocation on a stock row
func (r *GormAllocationRepository) FindByOrderLineAndStock(ctx context.Context, orderLineID, stockID uuid.UUID) (*inventory.Allocation, error) {
	var alloc inventory.Allocation
	if err := r.db.WithContext(ctx).
		Where("order_line_id = ? AND stock_id = ?", orderLineID, stockID).
		First(&alloc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &alloc, nil
}

// FindByStock lists the allocations on a stock row, oldest first
func (r *GormAllocationRepository) FindByStock(ctx context.Context, stockID uuid.UUID) ([]*inventory.Allocation, error) {
	var allocs []*inventory.Allocation
	if err := r.db.WithContext(ctx).
		Where("stock_id = ?", stockID).
		Order("created_at ASC, id ASC").
		Find(&allocs).Error; err != nil {
		return nil, err
	}
	return allocs, nil
}

// FindByStockForUpdate locks the allocations on a stock row, ordered by the
// creation time of their order lines so older orders migrate first
func (r *GormAllocationRepository) FindByStockForUpdate(ctx context.Context, stockID uuid.UUID) ([]*inventory.Allocation, error) {
	var allocs []*inventory.Allocation
	if err := r.db.WithContext(ctx).
		Select("allocations.*").
		Joins("JOIN order_lines ON order_lines.id = allocations.order_line_id").
		Where("allocations.stock_id = ?", stockID).
		Order("order_lines.created_at ASC, allocations.id ASC").
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "allocations"}}).
		Find(&allocs).Error; err != nil {
		return nil, err
	}
	return allocs, nil
}

// Save creates or updates an allocation
func (r *GormAllocationRepository) Save(ctx context.Context, allocation *inventory.Allocation) error {
	return r.db.WithContext(ctx).Save(allocation).Error
}

// Delete removes an allocation together with its batch attributions
func (r *GormAllocationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("allocation_id = ?", id).
		Delete(&inventory.AllocationSource{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&inventory.Allocation{}, "id = ?", id).Error
}

// GormAllocationSourceRepository implements AllocationSourceRepository using GORM
type GormAllocationSourceRepository struct {
	db *gorm.DB
}

// NewGormAllocationSourceRepository creates a new GormAllocationSourceRepository
func NewGormAllocationSourceRepository(db *gorm.DB) *GormAllocationSourceRepository {
	return &GormAllocationSourceRepository{db: db}
}

// FindByAllocation lists an allocation's sources, oldest first
func (r *GormAllocationSourceRepository) FindByAllocation(ctx context.Context, allocationID uuid.UUID) ([]*inventory.AllocationSource, error) {
	var sources []*inventory.AllocationSource
	if err := r.db.WithContext(ctx).
		Where("allocation_id = ?", allocationID).
		Order("created_at ASC, id ASC").
		Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// FindByAllocations lists sources for several allocations, oldest first
func (r *GormAllocationSourceRepository) FindByAllocations(ctx context.Context, allocationIDs []uuid.UUID) ([]*inventory.AllocationSource, error) {
	if len(allocationIDs) == 0 {
		return nil, nil
	}
	var sources []*inventory.AllocationSource
	if err := r.db.WithContext(ctx).
		Where("allocation_id IN ?", allocationIDs).
		Order("created_at ASC, id ASC").
		Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// FindByPurchaseOrderItem lists the sources drawing on a batch, oldest first
func (r *GormAllocationSourceRepository) FindByPurchaseOrderItem(ctx context.Context, poiID uuid.UUID) ([]*inventory.AllocationSource, error) {
	var sources []*inventory.AllocationSource
	if err := r.db.WithContext(ctx).
		Where("purchase_order_item_id = ?", poiID).
		Order("created_at ASC, id ASC").
		Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// Save creates or updates a source
func (r *GormAllocationSourceRepository) Save(ctx context.Context, source *inventory.AllocationSource) error {
	return r.db.WithContext(ctx).Save(source).Error
}

// Delete removes a source
func (r *GormAllocationSourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&inventory.AllocationSource{}, "id = ?", id).Error
}

// GormFulfillmentSourceRepository implements FulfillmentSourceRepository using GORM
type GormFulfillmentSourceRepository struct {
	db *gorm.DB
}

// NewGormFulfillmentSourceRepository creates a new GormFulfillmentSourceRepository
func NewGormFulfillmentSourceRepository(db *gorm.DB) *GormFulfillmentSourceRepository {
	return &GormFulfillmentSourceRepository{db: db}
}

// FindByFulfillmentLine lists the batches a fulfillment line shipped from
func (r *GormFulfillmentSourceRepository) FindByFulfillmentLine(ctx context.Context, fulfillmentLineID uuid.UUID) ([]*inventory.FulfillmentSource, error) {
	var sources []*inventory.FulfillmentSource
	if err := r.db.WithContext(ctx).
		Where("fulfillment_line_id = ?", fulfillmentLineID).
		Order("created_at ASC, id ASC").
		Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// Save creates or updates a source
func (r *GormFulfillmentSourceRepository) Save(ctx context.Context, source *inventory.FulfillmentSource) error {
	return r.db.WithContext(ctx).Save(source).Error
}

var (
	_ inventory.AllocationRepository        = (*GormAllocationRepository)(nil)
	_ inventory.AllocationSourceRepository  = (*GormAllocationSourceRepository)(nil)
	_ inventory.FulfillmentSourceRepository = (*GormFulfillmentSourceRepository)(nil)
)

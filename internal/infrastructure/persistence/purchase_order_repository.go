package persistence

import (
	"context"
	"errors"

	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPurchaseOrderRepository implements PurchaseOrderRepository using GORM
type GormPurchaseOrderRepository struct {
	db *gorm.DB
}

// NewGormPurchaseOrderRepository creates a new GormPurchaseOrderRepository
func NewGormPurchaseOrderRepository(db *gorm.DB) *GormPurchaseOrderRepository {
	return &GormPurchaseOrderRepository{db: db}
}

// FindByID finds a purchase order by its ID
func (r *GormPurchaseOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*purchasing.PurchaseOrder, error) {
	var po purchasing.PurchaseOrder
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&po, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &po, nil
}

// Save creates or updates a purchase order and its items
func (r *GormPurchaseOrderRepository) Save(ctx context.Context, po *purchasing.PurchaseOrder) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit("Items").Save(po).Error; err != nil {
		return err
	}
	for i := range po.Items {
		po.Items[i].PurchaseOrderID = po.ID
		if err := db.Save(&po.Items[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// GormPurchaseOrderItemRepository implements PurchaseOrderItemRepository using GORM
type GormPurchaseOrderItemRepository struct {
	db *gorm.DB
}

// NewGormPurchaseOrderItemRepository creates a new GormPurchaseOrderItemRepository
func NewGormPurchaseOrderItemRepository(db *gorm.DB) *GormPurchaseOrderItemRepository {
	return &GormPurchaseOrderItemRepository{db: db}
}

// FindByID finds a purchase order item by its ID
func (r *GormPurchaseOrderItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*purchasing.PurchaseOrderItem, error) {
	var item purchasing.PurchaseOrderItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// FindByIDForUpdate locks a purchase order item
func (r *GormPurchaseOrderItemRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*purchasing.PurchaseOrderItem, error) {
	var item purchasing.PurchaseOrderItem
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// FindByIDs returns the items keyed by id without locking
func (r *GormPurchaseOrderItemRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*purchasing.PurchaseOrderItem, error) {
	result := make(map[uuid.UUID]*purchasing.PurchaseOrderItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var items []*purchasing.PurchaseOrderItem
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, item := range items {
		result[item.ID] = item
	}
	return result, nil
}

// LockByIDs locks items in id order
func (r *GormPurchaseOrderItemRepository) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*purchasing.PurchaseOrderItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []*purchasing.PurchaseOrderItem
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// activeBatches selects the active batches of a variant delivered to a warehouse
func (r *GormPurchaseOrderItemRepository) activeBatches(ctx context.Context, warehouseID, variantID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Select("purchase_order_items.*").
		Joins("JOIN purchase_orders ON purchase_orders.id = purchase_order_items.purchase_order_id").
		Where("purchase_orders.destination_warehouse_id = ?", warehouseID).
		Where("purchase_order_items.variant_id = ?", variantID).
		Where("purchase_order_items.status IN ?", purchasing.ActiveStatuses).
		Order("purchase_order_items.confirmed_at ASC, purchase_order_items.id ASC")
}

// LockActiveForSourcing locks the active batches of a variant delivered to a
// warehouse, oldest confirmation first
func (r *GormPurchaseOrderItemRepository) LockActiveForSourcing(ctx context.Context, warehouseID, variantID uuid.UUID) ([]*purchasing.PurchaseOrderItem, error) {
	var items []*purchasing.PurchaseOrderItem
	if err := r.activeBatches(ctx, warehouseID, variantID).
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "purchase_order_items"}}).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FindActive lists the active batches of a variant delivered to a warehouse
func (r *GormPurchaseOrderItemRepository) FindActive(ctx context.Context, warehouseID, variantID uuid.UUID) ([]*purchasing.PurchaseOrderItem, error) {
	var items []*purchasing.PurchaseOrderItem
	if err := r.activeBatches(ctx, warehouseID, variantID).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FindByShipment lists the items assigned to a shipment, in id order
func (r *GormPurchaseOrderItemRepository) FindByShipment(ctx context.Context, shipmentID uuid.UUID) ([]*purchasing.PurchaseOrderItem, error) {
	var items []*purchasing.PurchaseOrderItem
	if err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FindByShipmentAndVariant returns the shipment's batch for a variant
func (r *GormPurchaseOrderItemRepository) FindByShipmentAndVariant(ctx context.Context, shipmentID, variantID uuid.UUID) (*purchasing.PurchaseOrderItem, error) {
	var item purchasing.PurchaseOrderItem
	if err := r.db.WithContext(ctx).
		Where("shipment_id = ? AND variant_id = ?", shipmentID, variantID).
		First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// Save creates or updates a purchase order item
func (r *GormPurchaseOrderItemRepository) Save(ctx context.Context, item *purchasing.PurchaseOrderItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

var (
	_ purchasing.PurchaseOrderRepository     = (*GormPurchaseOrderRepository)(nil)
	_ purchasing.PurchaseOrderItemRepository = (*GormPurchaseOrderItemRepository)(nil)
)

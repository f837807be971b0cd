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

// GormWarehouseRepository implements WarehouseRepository using GORM
type GormWarehouseRepository struct {
	db *gorm.DB
}

// NewGormWarehouseRepository creates a new GormWarehouseRepository
func NewGormWarehouseRepository(db *gorm.DB) *GormWarehouseRepository {
	return &GormWarehouseRepository{db: db}
}

// FindByID finds a warehouse by its ID
func (r *GormWarehouseRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Warehouse, error) {
	var warehouse inventory.Warehouse
	if err := r.db.WithContext(ctx).First(&warehouse, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &warehouse, nil
}

// FindByIDs returns the warehouses keyed by id
func (r *GormWarehouseRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*inventory.Warehouse, error) {
	result := make(map[uuid.UUID]*inventory.Warehouse, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var warehouses []inventory.Warehouse
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&warehouses).Error; err != nil {
		return nil, err
	}
	for i := range warehouses {
		result[warehouses[i].ID] = &warehouses[i]
	}
	return result, nil
}

// FindByChannel lists the warehouses linked to a channel, most preferred first
func (r *GormWarehouseRepository) FindByChannel(ctx context.Context, channelID uuid.UUID) ([]inventory.Warehouse, error) {
	var warehouses []inventory.Warehouse
	if err := r.db.WithContext(ctx).
		Joins("JOIN channel_warehouses ON channel_warehouses.warehouse_id = warehouses.id").
		Where("channel_warehouses.channel_id = ?", channelID).
		Order("channel_warehouses.sort_order ASC, warehouses.id ASC").
		Find(&warehouses).Error; err != nil {
		return nil, err
	}
	return warehouses, nil
}

// Save creates or updates a warehouse
func (r *GormWarehouseRepository) Save(ctx context.Context, warehouse *inventory.Warehouse) error {
	return r.db.WithContext(ctx).Save(warehouse).Error
}

// LinkChannel creates or updates a channel-warehouse link
func (r *GormWarehouseRepository) LinkChannel(ctx context.Context, link *inventory.ChannelWarehouse) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel_id"}, {Name: "warehouse_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"sort_order"}),
		}).
		Create(link).Error
}

// Ensure GormWarehouseRepository implements WarehouseRepository
var _ inventory.WarehouseRepository = (*GormWarehouseRepository)(nil)

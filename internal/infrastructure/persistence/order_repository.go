package persistence

import (
	"context"
	"errors"

	"github.com/erp/stockledger/internal/domain/order"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func orderLinesInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC, id ASC")
}

// FindByID loads an order with its lines
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var ord order.Order
	if err := r.db.WithContext(ctx).
		Preload("Lines", orderLinesInOrder).
		First(&ord, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ord, nil
}

// FindByIDForUpdate locks the order row and loads its lines
func (r *GormOrderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var ord order.Order
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&ord, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if err := orderLinesInOrder(r.db.WithContext(ctx)).
		Where("order_id = ?", ord.ID).
		Find(&ord.Lines).Error; err != nil {
		return nil, err
	}
	return &ord, nil
}

// FindByIDs returns orders keyed by id, without lines
func (r *GormOrderRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*order.Order, error) {
	result := make(map[uuid.UUID]*order.Order, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var orders []*order.Order
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&orders).Error; err != nil {
		return nil, err
	}
	for _, o := range orders {
		result[o.ID] = o
	}
	return result, nil
}

// FindByStatus lists orders in a status, oldest first
func (r *GormOrderRepository) FindByStatus(ctx context.Context, status order.Status) ([]*order.Order, error) {
	var orders []*order.Order
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindLineByID finds an order line by its ID
func (r *GormOrderRepository) FindLineByID(ctx context.Context, id uuid.UUID) (*order.OrderLine, error) {
	var line order.OrderLine
	if err := r.db.WithContext(ctx).First(&line, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

// FindLinesByIDs returns order lines keyed by id
func (r *GormOrderRepository) FindLinesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*order.OrderLine, error) {
	result := make(map[uuid.UUID]*order.OrderLine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var lines []*order.OrderLine
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&lines).Error; err != nil {
		return nil, err
	}
	for _, l := range lines {
		result[l.ID] = l
	}
	return result, nil
}

// Save creates or updates an order and its lines
func (r *GormOrderRepository) Save(ctx context.Context, ord *order.Order) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit("Lines").Save(ord).Error; err != nil {
		return err
	}
	for i := range ord.Lines {
		ord.Lines[i].OrderID = ord.ID
		if err := db.Save(&ord.Lines[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// SaveLine creates or updates a single order line
func (r *GormOrderRepository) SaveLine(ctx context.Context, line *order.OrderLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

// GormChannelRepository implements ChannelRepository using GORM
type GormChannelRepository struct {
	db *gorm.DB
}

// NewGormChannelRepository creates a new GormChannelRepository
func NewGormChannelRepository(db *gorm.DB) *GormChannelRepository {
	return &GormChannelRepository{db: db}
}

// FindByID finds a channel by its ID
func (r *GormChannelRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Channel, error) {
	var channel order.Channel
	if err := r.db.WithContext(ctx).First(&channel, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &channel, nil
}

// Save creates or updates a channel
func (r *GormChannelRepository) Save(ctx context.Context, channel *order.Channel) error {
	return r.db.WithContext(ctx).Save(channel).Error
}

// GormFulfillmentRepository implements FulfillmentRepository using GORM
type GormFulfillmentRepository struct {
	db *gorm.DB
}

// NewGormFulfillmentRepository creates a new GormFulfillmentRepository
func NewGormFulfillmentRepository(db *gorm.DB) *GormFulfillmentRepository {
	return &GormFulfillmentRepository{db: db}
}

// FindByIDForUpdate locks a fulfillment and loads its lines
func (r *GormFulfillmentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*order.Fulfillment, error) {
	var f order.Fulfillment
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&f, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Where("fulfillment_id = ?", f.ID).
		Order("created_at ASC, id ASC").
		Find(&f.Lines).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// FindByOrder lists an order's fulfillments with their lines
func (r *GormFulfillmentRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*order.Fulfillment, error) {
	var fulfillments []*order.Fulfillment
	if err := r.db.WithContext(ctx).
		Preload("Lines", orderLinesInOrder).
		Where("order_id = ?", orderID).
		Order("fulfillment_order ASC").
		Find(&fulfillments).Error; err != nil {
		return nil, err
	}
	return fulfillments, nil
}

// CountByOrder counts the order's fulfillments in any status
func (r *GormFulfillmentRepository) CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&order.Fulfillment{}).
		Where("order_id = ?", orderID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save creates or updates a fulfillment and its lines
func (r *GormFulfillmentRepository) Save(ctx context.Context, f *order.Fulfillment) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit("Lines").Save(f).Error; err != nil {
		return err
	}
	for i := range f.Lines {
		f.Lines[i].FulfillmentID = f.ID
		if err := db.Save(&f.Lines[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

var (
	_ order.OrderRepository       = (*GormOrderRepository)(nil)
	_ order.ChannelRepository     = (*GormChannelRepository)(nil)
	_ order.FulfillmentRepository = (*GormFulfillmentRepository)(nil)
)

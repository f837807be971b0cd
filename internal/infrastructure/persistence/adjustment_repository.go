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

// GormAdjustmentRepository implements AdjustmentRepository using GORM
type GormAdjustmentRepository struct {
	db *gorm.DB
}

// NewGormAdjustmentRepository creates a new GormAdjustmentRepository
func NewGormAdjustmentRepository(db *gorm.DB) *GormAdjustmentRepository {
	return &GormAdjustmentRepository{db: db}
}

// FindByID finds an adjustment by its ID
func (r *GormAdjustmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*purchasing.Adjustment, error) {
	var adj purchasing.Adjustment
	if err := r.db.WithContext(ctx).First(&adj, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &adj, nil
}

// FindByIDForUpdate locks an adjustment
func (r *GormAdjustmentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*purchasing.Adjustment, error) {
	var adj purchasing.Adjustment
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&adj, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &adj, nil
}

// FindPending lists unprocessed adjustments, oldest first
func (r *GormAdjustmentRepository) FindPending(ctx context.Context) ([]*purchasing.Adjustment, error) {
	var adjs []*purchasing.Adjustment
	if err := r.db.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("created_at ASC, id ASC").
		Find(&adjs).Error; err != nil {
		return nil, err
	}
	return adjs, nil
}

// Save creates or updates an adjustment
func (r *GormAdjustmentRepository) Save(ctx context.Context, adj *purchasing.Adjustment) error {
	return r.db.WithContext(ctx).Save(adj).Error
}

var _ purchasing.AdjustmentRepository = (*GormAdjustmentRepository)(nil)

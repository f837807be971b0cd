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

// GormShipmentRepository implements ShipmentRepository using GORM
type GormShipmentRepository struct {
	db *gorm.DB
}

// NewGormShipmentRepository creates a new GormShipmentRepository
func NewGormShipmentRepository(db *gorm.DB) *GormShipmentRepository {
	return &GormShipmentRepository{db: db}
}

// FindByID finds a shipment by its ID
func (r *GormShipmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*purchasing.Shipment, error) {
	var shipment purchasing.Shipment
	if err := r.db.WithContext(ctx).First(&shipment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &shipment, nil
}

// FindByIDForUpdate locks a shipment
func (r *GormShipmentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*purchasing.Shipment, error) {
	var shipment purchasing.Shipment
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&shipment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &shipment, nil
}

// Save creates or updates a shipment
func (r *GormShipmentRepository) Save(ctx context.Context, shipment *purchasing.Shipment) error {
	return r.db.WithContext(ctx).Save(shipment).Error
}

// GormReceiptRepository implements ReceiptRepository using GORM
type GormReceiptRepository struct {
	db *gorm.DB
}

// NewGormReceiptRepository creates a new GormReceiptRepository
func NewGormReceiptRepository(db *gorm.DB) *GormReceiptRepository {
	return &GormReceiptRepository{db: db}
}

func preloadReceiptLines(db *gorm.DB) *gorm.DB {
	return db.Order("received_at ASC, id ASC")
}

// FindByID loads a receipt with its lines
func (r *GormReceiptRepository) FindByID(ctx context.Context, id uuid.UUID) (*purchasing.Receipt, error) {
	var receipt purchasing.Receipt
	if err := r.db.WithContext(ctx).
		Preload("Lines", preloadReceiptLines).
		First(&receipt, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

// FindByIDForUpdate locks a receipt and loads its lines
func (r *GormReceiptRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*purchasing.Receipt, error) {
	var receipt purchasing.Receipt
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&receipt, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Where("receipt_id = ?", receipt.ID).
		Order("received_at ASC, id ASC").
		Find(&receipt.Lines).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

// FindByShipment lists the shipment's receipts, newest first
func (r *GormReceiptRepository) FindByShipment(ctx context.Context, shipmentID uuid.UUID) ([]*purchasing.Receipt, error) {
	var receipts []*purchasing.Receipt
	if err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("created_at DESC, id DESC").
		Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

// Save creates or updates a receipt. Lines are saved through the line repository.
func (r *GormReceiptRepository) Save(ctx context.Context, receipt *purchasing.Receipt) error {
	return r.db.WithContext(ctx).Omit("Lines").Save(receipt).Error
}

// Delete removes a receipt and its lines
func (r *GormReceiptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("receipt_id = ?", id).
		Delete(&purchasing.ReceiptLine{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&purchasing.Receipt{}, "id = ?", id).Error
}

// GormReceiptLineRepository implements ReceiptLineRepository using GORM
type GormReceiptLineRepository struct {
	db *gorm.DB
}

// NewGormReceiptLineRepository creates a new GormReceiptLineRepository
func NewGormReceiptLineRepository(db *gorm.DB) *GormReceiptLineRepository {
	return &GormReceiptLineRepository{db: db}
}

// FindByID finds a receipt line by its ID
func (r *GormReceiptLineRepository) FindByID(ctx context.Context, id uuid.UUID) (*purchasing.ReceiptLine, error) {
	var line purchasing.ReceiptLine
	if err := r.db.WithContext(ctx).First(&line, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

// FindByReceipt lists a receipt's lines in the order they were scanned
func (r *GormReceiptLineRepository) FindByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*purchasing.ReceiptLine, error) {
	var lines []*purchasing.ReceiptLine
	if err := r.db.WithContext(ctx).
		Where("receipt_id = ?", receiptID).
		Order("received_at ASC, id ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// receivedTotal is one row of the SumReceived aggregate
type receivedTotal struct {
	PurchaseOrderItemID uuid.UUID
	Total               int
}

// SumReceived totals the received units per batch over every receipt that
// was not cancelled
func (r *GormReceiptLineRepository) SumReceived(ctx context.Context, poiIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	result := make(map[uuid.UUID]int, len(poiIDs))
	if len(poiIDs) == 0 {
		return result, nil
	}
	var rows []receivedTotal
	if err := r.db.WithContext(ctx).
		Model(&purchasing.ReceiptLine{}).
		Select("receipt_lines.purchase_order_item_id AS purchase_order_item_id, COALESCE(SUM(receipt_lines.quantity_received), 0) AS total").
		Joins("JOIN receipts ON receipts.id = receipt_lines.receipt_id").
		Where("receipt_lines.purchase_order_item_id IN ?", poiIDs).
		Where("receipts.status <> ?", purchasing.ReceiptStatusCancelled).
		Group("receipt_lines.purchase_order_item_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.PurchaseOrderItemID] = row.Total
	}
	return result, nil
}

// Save creates or updates a receipt line
func (r *GormReceiptLineRepository) Save(ctx context.Context, line *purchasing.ReceiptLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

// Delete removes a receipt line
func (r *GormReceiptLineRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&purchasing.ReceiptLine{}, "id = ?", id).Error
}

var (
	_ purchasing.ShipmentRepository    = (*GormShipmentRepository)(nil)
	_ purchasing.ReceiptRepository     = (*GormReceiptRepository)(nil)
	_ purchasing.ReceiptLineRepository = (*GormReceiptLineRepository)(nil)
)

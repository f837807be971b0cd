package purchasing

import (
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Adjustment is a one-time correction to a batch's quantity discovered after
// confirmation or receipt. Once processed it is immutable.
type Adjustment struct {
	shared.BaseAggregateRoot
	PurchaseOrderItemID uuid.UUID        `gorm:"type:uuid;not null;index"`
	QuantityChange      int              `gorm:"not null"`
	Reason              AdjustmentReason `gorm:"type:varchar(32);not null"`
	AffectsPayable      bool             `gorm:"not null;default:false"`
	Notes               string           `gorm:"type:text"`
	ProcessedAt         *time.Time       `gorm:"index"`
	CreatedBy           *uuid.UUID       `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (Adjustment) TableName() string {
	return "purchase_order_item_adjustments"
}

// NewAdjustment records an unprocessed correction of change units
func NewAdjustment(poi *PurchaseOrderItem, change int, reason AdjustmentReason, affectsPayable bool, notes string, createdBy *uuid.UUID) (*Adjustment, error) {
	if poi == nil {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Purchase order item is required")
	}
	if change == 0 {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Quantity change cannot be zero")
	}
	if !reason.IsValid() {
		return nil, shared.NewDomainErrorf("VALIDATION_FAILED", "Unknown adjustment reason %q", reason)
	}
	adj := &Adjustment{
		BaseAggregateRoot:   shared.NewBaseAggregateRoot(),
		PurchaseOrderItemID: poi.ID,
		QuantityChange:      change,
		Reason:              reason,
		AffectsPayable:      affectsPayable,
		Notes:               notes,
		CreatedBy:           createdBy,
	}
	adj.AddDomainEvent(NewAdjustmentCreatedEvent(adj, poi))
	return adj, nil
}

// NewDiscrepancyAdjustment builds the adjustment a receipt produces for a batch,
// or nil when the received quantity matches. Shortfalls are charged back to the
// supplier, surpluses are not.
func NewDiscrepancyAdjustment(poi *PurchaseOrderItem, received int, createdBy *uuid.UUID) (*Adjustment, error) {
	discrepancy := received - poi.BaseQuantity()
	switch {
	case discrepancy < 0:
		return NewAdjustment(poi, discrepancy, AdjustmentReasonDeliveryShort, true,
			"Auto-generated from receipt: delivery short", createdBy)
	case discrepancy > 0:
		return NewAdjustment(poi, discrepancy, AdjustmentReasonCycleCountPositive, false,
			"Auto-generated from receipt: delivery over", createdBy)
	}
	return nil, nil
}

// IsProcessed reports whether the adjustment was applied
func (a *Adjustment) IsProcessed() bool {
	return a.ProcessedAt != nil
}

// IsLoss reports whether the adjustment removes units
func (a *Adjustment) IsLoss() bool {
	return a.QuantityChange < 0
}

// Loss returns the units removed, zero for gains
func (a *Adjustment) Loss() int {
	if a.QuantityChange < 0 {
		return -a.QuantityChange
	}
	return 0
}

// EnsureUnprocessed fails if the adjustment was already applied
func (a *Adjustment) EnsureUnprocessed() error {
	if a.IsProcessed() {
		return NewAdjustmentAlreadyProcessedError(a)
	}
	return nil
}

// MarkProcessed stamps processed_at
func (a *Adjustment) MarkProcessed(at time.Time, poi *PurchaseOrderItem) error {
	if err := a.EnsureUnprocessed(); err != nil {
		return err
	}
	a.ProcessedAt = &at
	a.Touch()
	a.AddDomainEvent(NewAdjustmentProcessedEvent(a, poi))
	return nil
}

// FinancialImpact is the signed value of the change at the batch's original
// unit price, so the sum over many adjustments does not depend on their order
func (a *Adjustment) FinancialImpact(poi *PurchaseOrderItem) decimal.Decimal {
	return poi.UnitPrice().Mul(decimal.NewFromInt(int64(a.QuantityChange)))
}

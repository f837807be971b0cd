package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEntry is one row of the purchase-order audit trail
type AuditEntry struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Type                string         `gorm:"type:varchar(64);not null;index"`
	PurchaseOrderID     *uuid.UUID     `gorm:"type:uuid;index"`
	PurchaseOrderItemID *uuid.UUID     `gorm:"type:uuid;index"`
	Payload             datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt           time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AuditEntry) TableName() string {
	return "purchase_order_audit_entries"
}

// AuditLogHandler appends purchase-order events to the audit trail.
// Subscribe it to the event bus; events that do not belong to a purchase
// order are ignored.
type AuditLogHandler struct {
	db *gorm.DB
}

// NewAuditLogHandler creates a new AuditLogHandler
func NewAuditLogHandler(db *gorm.DB) *AuditLogHandler {
	return &AuditLogHandler{db: db}
}

// EventTypes returns the purchase-order event types
func (h *AuditLogHandler) EventTypes() []string {
	return []string{
		purchasing.EventTypePurchaseOrderCreated,
		purchasing.EventTypePurchaseOrderItemConfirmed,
		purchasing.EventTypePurchaseOrderItemCancelled,
		purchasing.EventTypeShipmentAssigned,
		purchasing.EventTypeAdjustmentCreated,
		purchasing.EventTypeAdjustmentProcessed,
		purchasing.EventTypeReceiptCompleted,
	}
}

// Handle writes one audit entry for the event
func (h *AuditLogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	subject, ok := event.(purchasing.AuditSubject)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	poID := subject.PurchaseOrderRef()
	entry := &AuditEntry{
		ID:                  event.EventID(),
		Type:                event.EventType(),
		PurchaseOrderID:     &poID,
		PurchaseOrderItemID: subject.PurchaseOrderItemRef(),
		Payload:             datatypes.JSON(payload),
		CreatedAt:           event.OccurredAt(),
	}
	return h.db.WithContext(ctx).Create(entry).Error
}

// FindByPurchaseOrder lists a purchase order's audit trail, oldest first
func (h *AuditLogHandler) FindByPurchaseOrder(ctx context.Context, purchaseOrderID uuid.UUID) ([]AuditEntry, error) {
	var entries []AuditEntry
	if err := h.db.WithContext(ctx).
		Where("purchase_order_id = ?", purchaseOrderID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

var _ shared.EventHandler = (*AuditLogHandler)(nil)

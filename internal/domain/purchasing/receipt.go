package purchasing

import (
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Shipment is an inbound delivery carrying one or more confirmed batches
type Shipment struct {
	shared.BaseAggregateRoot
	Carrier      string          `gorm:"type:varchar(100)"`
	TrackingURL  string          `gorm:"type:varchar(2048)"`
	ShippingCost decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Currency     string          `gorm:"type:varchar(3)"`
	ArrivedAt    *time.Time
}

// TableName returns the table name for GORM
func (Shipment) TableName() string {
	return "shipments"
}

// NewShipment creates an inbound shipment
func NewShipment(carrier, trackingURL string, shippingCost decimal.Decimal, currency string) (*Shipment, error) {
	if shippingCost.IsNegative() {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Shipping cost cannot be negative")
	}
	return &Shipment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Carrier:           carrier,
		TrackingURL:       trackingURL,
		ShippingCost:      shippingCost,
		Currency:          currency,
	}, nil
}

// HasArrived reports whether the shipment was received
func (s *Shipment) HasArrived() bool {
	return s.ArrivedAt != nil
}

// MarkArrived stamps the arrival time once; later calls keep the first stamp
func (s *Shipment) MarkArrived(at time.Time) {
	if s.ArrivedAt != nil {
		return
	}
	s.ArrivedAt = &at
	s.Touch()
}

// Receipt is a goods-receiving session against one shipment
type Receipt struct {
	shared.BaseAggregateRoot
	ShipmentID  uuid.UUID     `gorm:"type:uuid;not null;index"`
	Status      ReceiptStatus `gorm:"type:varchar(20);not null;default:'IN_PROGRESS'"`
	CreatedBy   *uuid.UUID    `gorm:"type:uuid"`
	CompletedBy *uuid.UUID    `gorm:"type:uuid"`
	CompletedAt *time.Time
	Lines       []ReceiptLine `gorm:"foreignKey:ReceiptID;references:ID"`
}

// TableName returns the table name for GORM
func (Receipt) TableName() string {
	return "receipts"
}

// NewReceipt opens a receiving session for a shipment that has not arrived
func NewReceipt(shipment *Shipment, createdBy *uuid.UUID) (*Receipt, error) {
	if shipment.HasArrived() {
		return nil, shared.NewDomainErrorf("INVALID_STATE",
			"Shipment %s is already marked as received", shipment.ID)
	}
	return &Receipt{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ShipmentID:        shipment.ID,
		Status:            ReceiptStatusInProgress,
		CreatedBy:         createdBy,
	}, nil
}

// IsInProgress reports whether scans can still be recorded
func (r *Receipt) IsInProgress() bool {
	return r.Status == ReceiptStatusInProgress
}

// EnsureInProgress fails unless the receipt is IN_PROGRESS
func (r *Receipt) EnsureInProgress() error {
	if !r.IsInProgress() {
		return NewReceiptNotInProgressError(r)
	}
	return nil
}

// Complete closes the session
func (r *Receipt) Complete(by *uuid.UUID, at time.Time) error {
	if err := r.EnsureInProgress(); err != nil {
		return err
	}
	r.Status = ReceiptStatusCompleted
	r.CompletedBy = by
	r.CompletedAt = &at
	r.Touch()
	return nil
}

// ReceiptLine is one scan of received units for a batch
type ReceiptLine struct {
	shared.BaseEntity
	ReceiptID           uuid.UUID  `gorm:"type:uuid;not null;index"`
	PurchaseOrderItemID uuid.UUID  `gorm:"type:uuid;not null;index"`
	QuantityReceived    int        `gorm:"not null"`
	Notes               string     `gorm:"type:text"`
	ReceivedBy          *uuid.UUID `gorm:"type:uuid"`
	ReceivedAt          time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReceiptLine) TableName() string {
	return "receipt_lines"
}

// NewReceiptLine records a scan on an in-progress receipt
func NewReceiptLine(receipt *Receipt, poi *PurchaseOrderItem, qty int, notes string, by *uuid.UUID) (*ReceiptLine, error) {
	if err := receipt.EnsureInProgress(); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Received quantity must be positive")
	}
	line := &ReceiptLine{
		BaseEntity:          shared.NewBaseEntity(),
		ReceiptID:           receipt.ID,
		PurchaseOrderItemID: poi.ID,
		QuantityReceived:    qty,
		Notes:               notes,
		ReceivedBy:          by,
	}
	line.ReceivedAt = line.CreatedAt
	return line, nil
}

// Discrepancy is the ordered-versus-received difference found for a batch
type Discrepancy struct {
	PurchaseOrderItemID uuid.UUID `json:"purchase_order_item_id"`
	VariantID           uuid.UUID `json:"variant_id"`
	Expected            int       `json:"expected"`
	Received            int       `json:"received"`
	Change              int       `json:"change"`
}

package order

import (
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// FulfillmentStatus represents the status of a fulfillment
type FulfillmentStatus string

const (
	FulfillmentStatusWaitingForApproval FulfillmentStatus = "WAITING_FOR_APPROVAL"
	FulfillmentStatusFulfilled          FulfillmentStatus = "FULFILLED"
	FulfillmentStatusCanceled           FulfillmentStatus = "CANCELED"
)

// Fulfillment is a group of order lines shipped together from one warehouse
type Fulfillment struct {
	shared.BaseEntity
	OrderID          uuid.UUID         `gorm:"type:uuid;not null;index"`
	WarehouseID      uuid.UUID         `gorm:"type:uuid;not null"`
	Status           FulfillmentStatus `gorm:"type:varchar(32);not null;default:'WAITING_FOR_APPROVAL'"`
	FulfillmentOrder int               `gorm:"not null;default:1"`
	Lines            []FulfillmentLine `gorm:"foreignKey:FulfillmentID;references:ID"`
}

// TableName returns the table name for GORM
func (Fulfillment) TableName() string {
	return "fulfillments"
}

// NewFulfillment creates a fulfillment awaiting approval
func NewFulfillment(orderID, warehouseID uuid.UUID, sequence int) *Fulfillment {
	return &Fulfillment{
		BaseEntity:       shared.NewBaseEntity(),
		OrderID:          orderID,
		WarehouseID:      warehouseID,
		Status:           FulfillmentStatusWaitingForApproval,
		FulfillmentOrder: sequence,
		Lines:            make([]FulfillmentLine, 0),
	}
}

// AddLine adds qty units of an order line picked from a stock row
func (f *Fulfillment) AddLine(orderLineID, stockID uuid.UUID, qty int) (*FulfillmentLine, error) {
	if qty <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Fulfillment line quantity must be positive")
	}
	f.Lines = append(f.Lines, FulfillmentLine{
		BaseEntity:    shared.NewBaseEntity(),
		FulfillmentID: f.ID,
		OrderLineID:   orderLineID,
		StockID:       stockID,
		Quantity:      qty,
	})
	return &f.Lines[len(f.Lines)-1], nil
}

// Approve marks a waiting fulfillment as shipped
func (f *Fulfillment) Approve() error {
	if f.Status != FulfillmentStatusWaitingForApproval {
		return shared.NewDomainErrorf("INVALID_STATE",
			"Fulfillment %s is %s, not waiting for approval", f.ID, f.Status)
	}
	f.Status = FulfillmentStatusFulfilled
	f.Touch()
	return nil
}

// FulfillmentLine is one order line's share of a fulfillment
type FulfillmentLine struct {
	shared.BaseEntity
	FulfillmentID uuid.UUID `gorm:"type:uuid;not null;index"`
	OrderLineID   uuid.UUID `gorm:"type:uuid;not null;index"`
	StockID       uuid.UUID `gorm:"type:uuid;not null"`
	Quantity      int       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FulfillmentLine) TableName() string {
	return "fulfillment_lines"
}

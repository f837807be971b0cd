package order

import (
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the status of a customer order
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusUnconfirmed        Status = "UNCONFIRMED"
	StatusUnfulfilled        Status = "UNFULFILLED"
	StatusPartiallyFulfilled Status = "PARTIALLY_FULFILLED"
	StatusFulfilled          Status = "FULFILLED"
	StatusCanceled           Status = "CANCELED"
	StatusExpired            Status = "EXPIRED"
	StatusReturned           Status = "RETURNED"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusUnconfirmed, StatusUnfulfilled, StatusPartiallyFulfilled,
		StatusFulfilled, StatusCanceled, StatusExpired, StatusReturned:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsLocked reports whether the order is past the point where its
// reservations may change without customer-facing consequences
func (s Status) IsLocked() bool {
	return s != StatusDraft && s != StatusUnconfirmed
}

// Order is a customer order as seen by the stock ledger
type Order struct {
	shared.BaseEntity
	Number       string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	ChannelID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Status       Status          `gorm:"type:varchar(32);not null;default:'UNCONFIRMED';index"`
	TotalGross   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TotalCharged decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Currency     string          `gorm:"type:varchar(3);not null"`
	Lines        []OrderLine     `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// NewOrder creates an UNCONFIRMED order
func NewOrder(number string, channelID uuid.UUID, currency string) (*Order, error) {
	if strings.TrimSpace(number) == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot be empty")
	}
	if channelID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CHANNEL", "Channel ID cannot be empty")
	}
	return &Order{
		BaseEntity:   shared.NewBaseEntity(),
		Number:       number,
		ChannelID:    channelID,
		Status:       StatusUnconfirmed,
		TotalGross:   decimal.Zero,
		TotalCharged: decimal.Zero,
		Currency:     strings.ToUpper(currency),
		Lines:        make([]OrderLine, 0),
	}, nil
}

// AddLine appends a line for qty units of a variant
func (o *Order) AddLine(variantID uuid.UUID, qty int) (*OrderLine, error) {
	if qty <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Line quantity must be positive")
	}
	o.Lines = append(o.Lines, OrderLine{
		BaseEntity: shared.NewBaseEntity(),
		OrderID:    o.ID,
		VariantID:  variantID,
		Quantity:   qty,
	})
	return &o.Lines[len(o.Lines)-1], nil
}

// IsLocked reports whether the order's status forbids silent reservation changes
func (o *Order) IsLocked() bool {
	return o.Status.IsLocked()
}

// IsFullyPaid reports whether the customer has been charged the full total
func (o *Order) IsFullyPaid() bool {
	return o.TotalGross.IsPositive() && o.TotalCharged.GreaterThanOrEqual(o.TotalGross)
}

// Confirm moves an UNCONFIRMED order to UNFULFILLED
func (o *Order) Confirm() error {
	if o.Status != StatusUnconfirmed {
		return shared.NewDomainErrorf("INVALID_STATE", "Cannot confirm order %s in %s status", o.Number, o.Status)
	}
	o.Status = StatusUnfulfilled
	o.Touch()
	return nil
}

// DemoteToDraft returns an UNCONFIRMED order that lost its stock to DRAFT
func (o *Order) DemoteToDraft() error {
	if o.Status != StatusUnconfirmed {
		return shared.NewDomainErrorf("INVALID_STATE", "Cannot demote order %s in %s status", o.Number, o.Status)
	}
	o.Status = StatusDraft
	o.Touch()
	return nil
}

// RefreshFulfillmentStatus sets FULFILLED or PARTIALLY_FULFILLED from the lines
func (o *Order) RefreshFulfillmentStatus() {
	total, fulfilled := 0, 0
	for _, l := range o.Lines {
		total += l.Quantity
		fulfilled += l.QuantityFulfilled
	}
	switch {
	case fulfilled == 0:
		return
	case fulfilled >= total:
		o.Status = StatusFulfilled
	default:
		o.Status = StatusPartiallyFulfilled
	}
	o.Touch()
}

// OrderLine is one variant line of an order
type OrderLine struct {
	shared.BaseEntity
	OrderID           uuid.UUID `gorm:"type:uuid;not null;index"`
	VariantID         uuid.UUID `gorm:"type:uuid;not null;index"`
	Quantity          int       `gorm:"not null"`
	QuantityFulfilled int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (OrderLine) TableName() string {
	return "order_lines"
}

// Fulfill records qty shipped units
func (l *OrderLine) Fulfill(qty int) error {
	if qty <= 0 || l.QuantityFulfilled+qty > l.Quantity {
		return shared.NewDomainErrorf("VALIDATION_FAILED",
			"Cannot fulfill %d units of line %s: %d of %d already fulfilled", qty, l.ID, l.QuantityFulfilled, l.Quantity)
	}
	l.QuantityFulfilled += qty
	l.Touch()
	return nil
}

// Channel is the sales channel an order was placed through
type Channel struct {
	shared.BaseEntity
	Slug                             string `gorm:"type:varchar(255);not null;uniqueIndex"`
	AutomaticallyConfirmAllNewOrders bool   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (Channel) TableName() string {
	return "channels"
}

// NewChannel creates a channel
func NewChannel(slug string, autoConfirm bool) (*Channel, error) {
	if strings.TrimSpace(slug) == "" {
		return nil, shared.NewDomainError("INVALID_CHANNEL", "Channel slug cannot be empty")
	}
	return &Channel{
		BaseEntity:                       shared.NewBaseEntity(),
		Slug:                             slug,
		AutomaticallyConfirmAllNewOrders: autoConfirm,
	}, nil
}

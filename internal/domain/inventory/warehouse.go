package inventory

import (
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Warehouse is a location stock can be kept in.
// Owned warehouses hold stock in our physical custody. Non-owned (supplier)
// warehouses are bookkeeping stand-ins for stock still at a supplier.
type Warehouse struct {
	shared.BaseEntity
	Name          string   `gorm:"type:varchar(250);not null"`
	Slug          string   `gorm:"type:varchar(255);not null;uniqueIndex"`
	IsOwned       bool     `gorm:"not null;default:false"`
	ShippingZones []string `gorm:"serializer:json"` // ISO country codes; empty ships everywhere
}

// TableName returns the table name for GORM
func (Warehouse) TableName() string {
	return "warehouses"
}

// NewWarehouse creates a new warehouse
func NewWarehouse(name, slug string, isOwned bool, zones ...string) (*Warehouse, error) {
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_WAREHOUSE", "Warehouse name cannot be empty")
	}
	if strings.TrimSpace(slug) == "" {
		return nil, shared.NewDomainError("INVALID_WAREHOUSE", "Warehouse slug cannot be empty")
	}
	normalized := make([]string, 0, len(zones))
	for _, z := range zones {
		if z = strings.ToUpper(strings.TrimSpace(z)); z != "" {
			normalized = append(normalized, z)
		}
	}
	return &Warehouse{
		BaseEntity:    shared.NewBaseEntity(),
		Name:          name,
		Slug:          slug,
		IsOwned:       isOwned,
		ShippingZones: normalized,
	}, nil
}

// ShipsTo reports whether the warehouse can ship to the given country
func (w *Warehouse) ShipsTo(countryCode string) bool {
	if len(w.ShippingZones) == 0 || countryCode == "" {
		return true
	}
	countryCode = strings.ToUpper(countryCode)
	for _, z := range w.ShippingZones {
		if z == countryCode {
			return true
		}
	}
	return false
}

// ChannelWarehouse links a sales channel to a warehouse it may allocate from.
// Lower SortOrder is preferred.
type ChannelWarehouse struct {
	ChannelID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	WarehouseID uuid.UUID `gorm:"type:uuid;primaryKey"`
	SortOrder   int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (ChannelWarehouse) TableName() string {
	return "channel_warehouses"
}

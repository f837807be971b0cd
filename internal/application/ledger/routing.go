package ledger

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
)

// ShippingZoneRouter serves a channel from its linked warehouses in link
// order, skipping warehouses whose shipping zones exclude the destination
type ShippingZoneRouter struct{}

// EligibleWarehouses implements WarehouseRouter
func (ShippingZoneRouter) EligibleWarehouses(ctx context.Context, warehouses inventory.WarehouseRepository, channelID uuid.UUID, countryCode string) ([]uuid.UUID, error) {
	linked, err := warehouses.FindByChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load channel warehouses: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(linked))
	for i := range linked {
		if linked[i].ShipsTo(countryCode) {
			ids = append(ids, linked[i].ID)
		}
	}
	return ids, nil
}

var _ WarehouseRouter = ShippingZoneRouter{}

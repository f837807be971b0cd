package inventory

import (
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// ErrAllocationExceeded is returned when more is released than was reserved
var ErrAllocationExceeded = shared.NewDomainError("ALLOCATION_EXCEEDED", "Release exceeds allocated quantity")

// NewInsufficientStockError reports a capacity shortfall for a variant
func NewInsufficientStockError(variantID uuid.UUID, requested, available int) *shared.DomainError {
	err := shared.NewDomainErrorf(shared.ErrInsufficientStock.Code,
		"Insufficient stock for variant %s: requested %d, available %d", variantID, requested, available)
	err.Details = map[string]any{
		"variant_id": variantID.String(),
		"requested":  requested,
		"available":  available,
	}
	return err
}

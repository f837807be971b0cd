package purchasing

import (
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Error codes
const (
	CodeInvalidPurchaseOrderItemStatus   = "INVALID_PURCHASE_ORDER_ITEM_STATUS"
	CodeAllocationInvariantViolation     = "ALLOCATION_INVARIANT_VIOLATION"
	CodeAdjustmentAlreadyProcessed       = "ADJUSTMENT_ALREADY_PROCESSED"
	CodeAdjustmentAffectsFulfilledOrders = "ADJUSTMENT_AFFECTS_FULFILLED_ORDERS"
	CodeAdjustmentAffectsPaidOrders      = "ADJUSTMENT_AFFECTS_PAID_ORDERS"
	CodeReceiptNotInProgress             = "RECEIPT_NOT_IN_PROGRESS"
	CodeReceiptLineNotInProgress         = "RECEIPT_LINE_NOT_IN_PROGRESS"
)

// Sentinels for errors.Is; instances returned by the constructors below carry details
var (
	ErrInvalidPurchaseOrderItemStatus   = shared.NewDomainError(CodeInvalidPurchaseOrderItemStatus, "Invalid purchase order item status")
	ErrAllocationInvariantViolation     = shared.NewDomainError(CodeAllocationInvariantViolation, "Allocation invariant violated")
	ErrAdjustmentAlreadyProcessed       = shared.NewDomainError(CodeAdjustmentAlreadyProcessed, "Adjustment already processed")
	ErrAdjustmentAffectsFulfilledOrders = shared.NewDomainError(CodeAdjustmentAffectsFulfilledOrders, "Adjustment affects fulfilled orders")
	ErrAdjustmentAffectsPaidOrders      = shared.NewDomainError(CodeAdjustmentAffectsPaidOrders, "Adjustment affects paid orders")
	ErrReceiptNotInProgress             = shared.NewDomainError(CodeReceiptNotInProgress, "Receipt is not in progress")
	ErrReceiptLineNotInProgress         = shared.NewDomainError(CodeReceiptLineNotInProgress, "Receipt line is not in progress")
)

// NewInvalidPurchaseOrderItemStatusError reports a POI in the wrong state for an operation
func NewInvalidPurchaseOrderItemStatusError(poi *PurchaseOrderItem, expected ...PurchaseOrderItemStatus) *shared.DomainError {
	err := shared.NewDomainErrorf(CodeInvalidPurchaseOrderItemStatus,
		"Purchase order item %s has status %s", poi.ID, poi.Status)
	exp := make([]string, len(expected))
	for i, s := range expected {
		exp[i] = s.String()
	}
	err.Details = map[string]any{
		"purchase_order_item_id": poi.ID.String(),
		"status":                 poi.Status.String(),
		"expected":               exp,
	}
	return err
}

// NewAllocationInvariantViolationError reports a locked order allocated against supplier stock
func NewAllocationInvariantViolationError(stockID uuid.UUID, orderNumber, orderStatus string) *shared.DomainError {
	err := shared.NewDomainErrorf(CodeAllocationInvariantViolation,
		"Order %s in status %s is allocated against non-owned stock %s", orderNumber, orderStatus, stockID)
	err.Details = map[string]any{
		"stock_id":     stockID.String(),
		"order_number": orderNumber,
		"order_status": orderStatus,
	}
	return err
}

// NewAdjustmentAlreadyProcessedError reports a second processing attempt
func NewAdjustmentAlreadyProcessedError(adj *Adjustment) *shared.DomainError {
	err := shared.NewDomainErrorf(CodeAdjustmentAlreadyProcessed,
		"Adjustment %s was already processed", adj.ID)
	err.Details = map[string]any{
		"adjustment_id":          adj.ID.String(),
		"purchase_order_item_id": adj.PurchaseOrderItemID.String(),
	}
	if adj.ProcessedAt != nil {
		err.Details["processed_at"] = *adj.ProcessedAt
	}
	return err
}

// NewAdjustmentAffectsFulfilledOrdersError blocks a loss that would touch locked orders
func NewAdjustmentAffectsFulfilledOrdersError(adj *Adjustment, orderNumbers []string) *shared.DomainError {
	err := shared.NewDomainErrorf(CodeAdjustmentAffectsFulfilledOrders,
		"Adjustment %s affects confirmed or fulfilled orders: %v", adj.ID, orderNumbers)
	err.Details = adjustmentDetails(adj, orderNumbers)
	return err
}

// NewAdjustmentAffectsPaidOrdersError blocks a loss that would touch fully paid orders
func NewAdjustmentAffectsPaidOrdersError(adj *Adjustment, orderNumbers []string) *shared.DomainError {
	err := shared.NewDomainErrorf(CodeAdjustmentAffectsPaidOrders,
		"Adjustment %s affects fully paid orders: %v", adj.ID, orderNumbers)
	err.Details = adjustmentDetails(adj, orderNumbers)
	return err
}

func adjustmentDetails(adj *Adjustment, orderNumbers []string) map[string]any {
	return map[string]any{
		"adjustment_id":          adj.ID.String(),
		"purchase_order_item_id": adj.PurchaseOrderItemID.String(),
		"quantity_change":        adj.QuantityChange,
		"order_numbers":          orderNumbers,
	}
}

// NewReceiptNotInProgressError reports an operation on a closed receipt
func NewReceiptNotInProgressError(receipt *Receipt) *shared.DomainError {
	err := shared.NewDomainErrorf(CodeReceiptNotInProgress,
		"Receipt %s is %s, not in progress", receipt.ID, receipt.Status)
	err.Details = map[string]any{
		"receipt_id": receipt.ID.String(),
		"status":     string(receipt.Status),
	}
	return err
}

// NewReceiptLineNotInProgressError reports a line edit on a closed receipt
func NewReceiptLineNotInProgressError(line *ReceiptLine, receipt *Receipt) *shared.DomainError {
	err := shared.NewDomainErrorf(CodeReceiptLineNotInProgress,
		"Receipt line %s belongs to receipt %s which is %s", line.ID, receipt.ID, receipt.Status)
	err.Details = map[string]any{
		"receipt_line_id": line.ID.String(),
		"receipt_id":      receipt.ID.String(),
		"status":          string(receipt.Status),
	}
	return err
}

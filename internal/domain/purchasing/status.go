package purchasing

// PurchaseOrderItemStatus represents the lifecycle state of a purchase-order batch
type PurchaseOrderItemStatus string

const (
	PurchaseOrderItemStatusDraft             PurchaseOrderItemStatus = "DRAFT"
	PurchaseOrderItemStatusConfirmed         PurchaseOrderItemStatus = "CONFIRMED"
	PurchaseOrderItemStatusReceived          PurchaseOrderItemStatus = "RECEIVED"
	PurchaseOrderItemStatusCancelled         PurchaseOrderItemStatus = "CANCELLED"
	PurchaseOrderItemStatusRequiresAttention PurchaseOrderItemStatus = "REQUIRES_ATTENTION"
)

// ActiveStatuses are the statuses whose batches back owned-warehouse stock
var ActiveStatuses = []PurchaseOrderItemStatus{
	PurchaseOrderItemStatusConfirmed,
	PurchaseOrderItemStatusReceived,
}

// IsValid checks if the status is a valid PurchaseOrderItemStatus
func (s PurchaseOrderItemStatus) IsValid() bool {
	switch s {
	case PurchaseOrderItemStatusDraft, PurchaseOrderItemStatusConfirmed, PurchaseOrderItemStatusReceived,
		PurchaseOrderItemStatusCancelled, PurchaseOrderItemStatusRequiresAttention:
		return true
	}
	return false
}

// String returns the string representation of PurchaseOrderItemStatus
func (s PurchaseOrderItemStatus) String() string {
	return string(s)
}

// IsActive reports whether the batch counts towards owned stock
func (s PurchaseOrderItemStatus) IsActive() bool {
	return s == PurchaseOrderItemStatusConfirmed || s == PurchaseOrderItemStatusReceived
}

// CanTransitionTo checks if the status can transition to the target status
func (s PurchaseOrderItemStatus) CanTransitionTo(target PurchaseOrderItemStatus) bool {
	switch s {
	case PurchaseOrderItemStatusDraft:
		return target == PurchaseOrderItemStatusConfirmed || target == PurchaseOrderItemStatusCancelled
	case PurchaseOrderItemStatusConfirmed:
		return target == PurchaseOrderItemStatusReceived ||
			target == PurchaseOrderItemStatusRequiresAttention ||
			target == PurchaseOrderItemStatusCancelled
	case PurchaseOrderItemStatusRequiresAttention:
		return target == PurchaseOrderItemStatusConfirmed ||
			target == PurchaseOrderItemStatusReceived ||
			target == PurchaseOrderItemStatusCancelled
	case PurchaseOrderItemStatusReceived, PurchaseOrderItemStatusCancelled:
		return false
	}
	return false
}

// ReceiptStatus represents the state of a goods-receiving session
type ReceiptStatus string

const (
	ReceiptStatusInProgress ReceiptStatus = "IN_PROGRESS"
	ReceiptStatusCompleted  ReceiptStatus = "COMPLETED"
	ReceiptStatusCancelled  ReceiptStatus = "CANCELLED"
)

// IsValid checks if the status is a valid ReceiptStatus
func (s ReceiptStatus) IsValid() bool {
	switch s {
	case ReceiptStatusInProgress, ReceiptStatusCompleted, ReceiptStatusCancelled:
		return true
	}
	return false
}

// AdjustmentReason classifies a quantity correction
type AdjustmentReason string

const (
	AdjustmentReasonInvoiceVariance    AdjustmentReason = "INVOICE_VARIANCE"
	AdjustmentReasonDeliveryShort      AdjustmentReason = "DELIVERY_SHORT"
	AdjustmentReasonDamage             AdjustmentReason = "DAMAGE"
	AdjustmentReasonShrinkage          AdjustmentReason = "SHRINKAGE"
	AdjustmentReasonCycleCountPositive AdjustmentReason = "CYCLE_COUNT_POSITIVE"
	AdjustmentReasonCycleCountNegative AdjustmentReason = "CYCLE_COUNT_NEGATIVE"
	AdjustmentReasonReturn             AdjustmentReason = "RETURN"
	AdjustmentReasonOther              AdjustmentReason = "OTHER"
)

// IsValid checks if the reason is a valid AdjustmentReason
func (r AdjustmentReason) IsValid() bool {
	switch r {
	case AdjustmentReasonInvoiceVariance, AdjustmentReasonDeliveryShort, AdjustmentReasonDamage,
		AdjustmentReasonShrinkage, AdjustmentReasonCycleCountPositive, AdjustmentReasonCycleCountNegative,
		AdjustmentReasonReturn, AdjustmentReasonOther:
		return true
	}
	return false
}

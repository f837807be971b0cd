package dto

import "net/http"

// General error codes. Domain errors keep their own codes; these cover the
// failures raised by the HTTP layer itself.
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeValidation      = "VALIDATION_FAILED"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeRequestTooBig   = "REQUEST_TOO_LARGE"
	ErrCodeInProgress      = "REQUEST_IN_PROGRESS"
	ErrCodeConflict        = "CONCURRENCY_CONFLICT"
	ErrCodeInvalidState    = "INVALID_STATE"
	ErrCodeInvalidQuantity = "INVALID_QUANTITY"
)

// Ledger error codes
const (
	ErrCodeInsufficientStock                = "INSUFFICIENT_STOCK"
	ErrCodeAllocationExceeded               = "ALLOCATION_EXCEEDED"
	ErrCodeAllocationInvariantViolation     = "ALLOCATION_INVARIANT_VIOLATION"
	ErrCodeInvalidPurchaseOrderItemStatus   = "INVALID_PURCHASE_ORDER_ITEM_STATUS"
	ErrCodeAdjustmentAlreadyProcessed       = "ADJUSTMENT_ALREADY_PROCESSED"
	ErrCodeAdjustmentAffectsFulfilledOrders = "ADJUSTMENT_AFFECTS_FULFILLED_ORDERS"
	ErrCodeAdjustmentAffectsPaidOrders      = "ADJUSTMENT_AFFECTS_PAID_ORDERS"
	ErrCodeReceiptNotInProgress             = "RECEIPT_NOT_IN_PROGRESS"
	ErrCodeReceiptLineNotInProgress         = "RECEIPT_LINE_NOT_IN_PROGRESS"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeInvalidQuantity: http.StatusBadRequest,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeRequestTooBig:   http.StatusRequestEntityTooLarge,

	// the target is not in a state that allows the operation
	ErrCodeInvalidState:                   http.StatusConflict,
	ErrCodeInProgress:                     http.StatusConflict,
	ErrCodeConflict:                       http.StatusConflict,
	ErrCodeInvalidPurchaseOrderItemStatus: http.StatusConflict,
	ErrCodeAdjustmentAlreadyProcessed:     http.StatusConflict,
	ErrCodeReceiptNotInProgress:           http.StatusConflict,
	ErrCodeReceiptLineNotInProgress:       http.StatusConflict,

	// the request is well formed but a ledger guardrail refuses it
	ErrCodeInsufficientStock:                http.StatusUnprocessableEntity,
	ErrCodeAllocationExceeded:               http.StatusUnprocessableEntity,
	ErrCodeAllocationInvariantViolation:     http.StatusUnprocessableEntity,
	ErrCodeAdjustmentAffectsFulfilledOrders: http.StatusUnprocessableEntity,
	ErrCodeAdjustmentAffectsPaidOrders:      http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status for an error code. Codes without an
// explicit mapping are business rule failures and map to 422.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusUnprocessableEntity
}

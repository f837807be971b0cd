package dto

import "time"

// Response represents a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Details   map[string]any     `json:"details,omitempty"`
	Fields    []ValidationDetail `json:"fields,omitempty"`
}

// ValidationDetail describes one rejected request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message, requestID string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      code,
			Message:   message,
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		},
	}
}

// NewDetailedErrorResponse creates an error response carrying structured details
// such as the order numbers that blocked an adjustment
func NewDetailedErrorResponse(code, message, requestID string, details map[string]any) Response {
	resp := NewErrorResponse(code, message, requestID)
	resp.Error.Details = details
	return resp
}

// NewValidationErrorResponse creates a VALIDATION_FAILED response listing the rejected fields
func NewValidationErrorResponse(message, requestID string, fields []ValidationDetail) Response {
	resp := NewErrorResponse(ErrCodeValidation, message, requestID)
	resp.Error.Fields = fields
	return resp
}

// IDRequest binds an :id path parameter
type IDRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}

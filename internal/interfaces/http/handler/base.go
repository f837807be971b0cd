// Package handler exposes the ledger services over HTTP.
package handler

import (
	"errors"
	"net/http"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

func requestID(c *gin.Context) string {
	return logger.RequestID(c.Request.Context())
}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, message, requestID(c)))
}

// BindJSON binds the request body and writes the validation failure if any
func (h *BaseHandler) BindJSON(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// PathID parses a uuid path parameter, answering 400 when it is malformed
func (h *BaseHandler) PathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// HandleError maps domain errors onto their HTTP status and hides anything
// else behind a 500
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		status := dto.GetHTTPStatus(domainErr.Code)
		if len(domainErr.Details) > 0 {
			c.JSON(status, dto.NewDetailedErrorResponse(domainErr.Code, domainErr.Message, requestID(c), domainErr.Details))
			return
		}
		c.JSON(status, dto.NewErrorResponse(domainErr.Code, domainErr.Message, requestID(c)))
		return
	}

	logger.Traced(c.Request.Context(), nil).Error("unhandled error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID(c),
	))
}

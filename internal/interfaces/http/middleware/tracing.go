// Package middleware holds the gin middleware of the ledger API.
package middleware

import (
	"net/http"

	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength bounds the request ID copied onto spans
const MaxRequestIDLength = 128

// Tracing starts a server span per request via otelgin
func Tracing(serviceName string, enabled bool, opts ...otelgin.Option) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return otelgin.Middleware(serviceName, opts...)
}

// SpanAttributes copies the request ID and actor onto the span started by
// Tracing. otelgin calls c.Next itself, so this must be registered after it
// and after logger.GinMiddleware.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			ctx := c.Request.Context()
			if id := logger.RequestID(ctx); id != "" {
				if len(id) > MaxRequestIDLength {
					id = id[:MaxRequestIDLength]
				}
				span.SetAttributes(attribute.String("request_id", id))
			}
			span.SetAttributes(attribute.String("actor", logger.Actor(ctx)))
		}
		c.Next()
	}
}

// SpanErrorMarker marks the span as failed for 4xx and 5xx responses
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		message := "Client Error"
		switch {
		case status >= http.StatusInternalServerError:
			message = "Internal Server Error"
		case status == http.StatusNotFound:
			message = "Not Found"
		case status == http.StatusConflict:
			message = "Conflict"
		case status == http.StatusUnprocessableEntity:
			message = "Unprocessable Entity"
		}
		span.SetStatus(codes.Error, message)
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
}

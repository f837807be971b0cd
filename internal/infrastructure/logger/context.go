package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
	actorKey
)

// WithContext returns a copy of ctx carrying the logger
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger carried by ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// WithRequestID stores the request ID and a logger tagged with it
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	tagged := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, tagged), tagged
}

// WithActor records who triggered the operation (a staff user or a job name).
// Audit entries read it back with Actor.
func WithActor(ctx context.Context, actor string) context.Context {
	ctx = context.WithValue(ctx, actorKey, actor)
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		ctx = WithContext(ctx, l.With(zap.String("actor", actor)))
	}
	return ctx
}

// RequestID returns the request ID carried by ctx
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Actor returns the actor carried by ctx, or "system"
func Actor(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok && actor != "" {
		return actor
	}
	return "system"
}

// Traced returns the logger carried by ctx, falling back to fallback, tagged
// with the trace and span of the active span when there is one
func Traced(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	l, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok || l == nil {
		l = fallback
	}
	if l == nil {
		return zap.NewNop()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

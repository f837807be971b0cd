package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader names the client supplied retry key
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader is set on responses served from the store
	IdempotentReplayHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLength = 255
	// pendingTTL bounds how long a crashed request keeps its key locked
	pendingTTL = time.Minute
)

// IdempotencyConfig configures Idempotency
type IdempotencyConfig struct {
	Store cache.IdempotencyStore
	TTL   time.Duration
}

// Idempotency replays the stored response of a POST or DELETE that already
// completed with the same Idempotency-Key. Requests without the header pass
// through. A retry that arrives while the first attempt is still running gets
// 409 REQUEST_IN_PROGRESS. Responses with a 5xx status are not stored so the
// client can retry them.
func Idempotency(cfg IdempotencyConfig, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader(IdempotencyKeyHeader)
		if cfg.Store == nil || header == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		requestID := logger.RequestID(ctx)
		if len(header) > maxIdempotencyKeyLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest,
				"Idempotency-Key must not exceed 255 characters", requestID))
			return
		}

		key := idempotencyKey(c.Request.Method, c.Request.URL.Path, logger.Actor(ctx), header)
		claimed, err := cfg.Store.Claim(ctx, key, pendingTTL)
		if err != nil {
			// the store being down must not block writes
			logger.Traced(ctx, log).Warn("idempotency claim failed", zap.Error(err))
			c.Next()
			return
		}

		if !claimed {
			replay(c, cfg.Store, key, log)
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		// store with a fresh context so a cancelled client still records the outcome
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			if err := cfg.Store.Release(storeCtx, key); err != nil {
				logger.Traced(ctx, log).Warn("idempotency release failed", zap.Error(err))
			}
			return
		}
		err = cfg.Store.Store(storeCtx, key, cache.CachedResponse{
			Status:      status,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
		}, cfg.TTL)
		if err != nil {
			logger.Traced(ctx, log).Warn("idempotency store failed", zap.Error(err))
		}
	}
}

func replay(c *gin.Context, store cache.IdempotencyStore, key string, log *zap.Logger) {
	ctx := c.Request.Context()
	resp, err := store.Load(ctx, key)
	switch {
	case errors.Is(err, cache.ErrNotCached):
		c.AbortWithStatusJSON(http.StatusConflict, dto.NewErrorResponse(dto.ErrCodeInProgress,
			"A request with this Idempotency-Key is still being processed", logger.RequestID(ctx)))
	case err != nil:
		logger.Traced(ctx, log).Error("idempotency load failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal,
			"An unexpected error occurred", logger.RequestID(ctx)))
	default:
		c.Header(IdempotentReplayHeader, "true")
		contentType := resp.ContentType
		if contentType == "" {
			contentType = "application/json; charset=utf-8"
		}
		c.Data(resp.Status, contentType, resp.Body)
		c.Abort()
	}
}

func mutating(method string) bool {
	return method == http.MethodPost || method == http.MethodDelete
}

func idempotencyKey(method, path, actor, header string) string {
	sum := sha256.Sum256([]byte(method + "\n" + path + "\n" + actor + "\n" + header))
	return hex.EncodeToString(sum[:])
}

// bodyRecorder tees the response body so it can be stored after the handler ran
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

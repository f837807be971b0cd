package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/interfaces/http/handler"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.Register(group)
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup_Middleware(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("guarded", "/guarded").
		Use(func(c *gin.Context) { c.AbortWithStatus(http.StatusTeapot) }).
		DELETE("/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	g.RegisterRoutes(engine.Group("/api/v1"))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/guarded/1", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "guarded", g.Name())
	assert.Equal(t, "/guarded", g.Prefix())
}

type pinger struct{}

func (pinger) PingContext(context.Context) error { return nil }

type allocations struct {
	handler.AllocationService
	canConfirm  bool
	deallocated *int
}

func (a allocations) DeallocateOrder(context.Context, uuid.UUID) error {
	*a.deallocated++
	return nil
}

func (a allocations) CanConfirmOrder(context.Context, uuid.UUID) (bool, error) {
	return a.canConfirm, nil
}

func newTestEngine(t *testing.T, opts EngineOptions) *gin.Engine {
	t.Helper()
	engine, err := NewEngine(opts)
	require.NoError(t, err)
	Mount(engine, Handlers{
		Health:      handler.NewHealthHandler(pinger{}, "test"),
		Allocations: handler.NewAllocationHandler(allocations{canConfirm: true, deallocated: new(int)}),
	})
	return engine
}

func TestMount(t *testing.T) {
	engine := newTestEngine(t, EngineOptions{Logger: zap.NewNop()})

	t.Run("health at root and under api", func(t *testing.T) {
		for _, path := range []string{"/health", "/api/v1/health"} {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code, path)
		}
	})

	t.Run("ledger route", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString()+"/can-confirm", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"can_confirm":true`)
		assert.NotEmpty(t, w.Header().Get(logger.HeaderRequestID))
	})

	t.Run("unknown route", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), `"NOT_FOUND"`)
	})

	t.Run("unmounted handlers are skipped", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/adjustments", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestNewEngine_BodyLimit(t *testing.T) {
	engine := newTestEngine(t, EngineOptions{MaxBodySize: 8})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/allocations",
		strings.NewReader(`{"order_line_id":"x","quantity":1}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString()+"/can-confirm", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewEngine_Idempotency(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore(time.Hour)
	defer store.Close()

	engine, err := NewEngine(EngineOptions{Idempotency: middleware.IdempotencyConfig{Store: store, TTL: time.Hour}})
	require.NoError(t, err)
	calls := 0
	Mount(engine, Handlers{Allocations: handler.NewAllocationHandler(allocations{deallocated: &calls})})

	path := "/api/v1/orders/" + uuid.NewString() + "/deallocate"
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(middleware.IdempotencyKeyHeader, "retry-1")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
	assert.Equal(t, 1, calls)
}

func TestNewEngine_WithMeter(t *testing.T) {
	meter := sdkmetric.NewMeterProvider().Meter("test")
	engine := newTestEngine(t, EngineOptions{Meter: meter, TracingEnabled: true, ServiceName: "stockledger"})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewEngine_BadTrustedProxy(t *testing.T) {
	_, err := NewEngine(EngineOptions{TrustedProxies: []string{"not-an-ip"}})
	assert.Error(t, err)
}


// Package router assembles the gin engine and the ledger's /api routes.
package router

import (
	"net/http"

	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/erp/stockledger/internal/interfaces/http/handler"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered by Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes under /api/<version>
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// EngineOptions configures the middleware stack of NewEngine
type EngineOptions struct {
	Logger         *zap.Logger
	ServiceName    string
	TracingEnabled bool
	// Meter enables HTTP metrics when set
	Meter          metric.Meter
	MaxBodySize    int64
	TrustedProxies []string
	// Idempotency enables Idempotency-Key replay when its store is set
	Idempotency middleware.IdempotencyConfig
}

// NewEngine builds a gin engine with request logging, recovery, tracing,
// metrics, body limits and idempotency replay installed in that order
func NewEngine(opts EngineOptions) (*gin.Engine, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	middleware.SetupValidator()

	metrics, err := middleware.HTTPMetrics(opts.Meter)
	if err != nil {
		return nil, err
	}

	engine.Use(
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(opts.ServiceName, opts.TracingEnabled),
		middleware.SpanAttributes(),
		middleware.SpanErrorMarker(),
		metrics,
		middleware.BodyLimit(opts.MaxBodySize),
		middleware.Idempotency(opts.Idempotency, log),
	)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, "Route not found",
			logger.RequestID(c.Request.Context())))
	})
	return engine, nil
}

// Handlers groups the ledger's HTTP handlers
type Handlers struct {
	PurchaseOrders *handler.PurchaseOrderHandler
	Receipts       *handler.ReceiptHandler
	Adjustments    *handler.AdjustmentHandler
	Allocations    *handler.AllocationHandler
	Fulfillments   *handler.FulfillmentHandler
	Invariants     *handler.InvariantHandler
	Health         *handler.HealthHandler
}

// Mount registers every ledger route on engine
func Mount(engine *gin.Engine, h Handlers) {
	if h.Health != nil {
		engine.GET("/health", h.Health.Health)
	}

	r := NewRouter(engine)
	for _, g := range ledgerGroups(h) {
		r.Register(g)
	}
	r.Setup()
}

func ledgerGroups(h Handlers) []*DomainGroup {
	var groups []*DomainGroup

	if h.Health != nil {
		groups = append(groups, NewDomainGroup("health", "/health").GET("", h.Health.Health))
	}
	if po := h.PurchaseOrders; po != nil {
		groups = append(groups,
			NewDomainGroup("purchase-orders", "/purchase-orders").
				POST("", po.Create).
				GET("/:id", po.GetByID),
			NewDomainGroup("purchase-order-items", "/purchase-order-items").
				POST("/:id/confirm", po.ConfirmItem).
				POST("/:id/cancel", po.CancelItem),
		)
	}
	if rc := h.Receipts; rc != nil {
		groups = append(groups,
			NewDomainGroup("shipments", "/shipments").
				POST("", rc.CreateShipment).
				POST("/:id/receipt", rc.StartReceipt),
			NewDomainGroup("receipts", "/receipts").
				GET("/:id", rc.GetReceipt).
				POST("/:id/items", rc.ReceiveItem).
				POST("/:id/complete", rc.CompleteReceipt).
				DELETE("/:id", rc.DeleteReceipt),
			NewDomainGroup("receipt-lines", "/receipt-lines").
				DELETE("/:id", rc.DeleteReceiptLine),
		)
	}
	if adj := h.Adjustments; adj != nil {
		groups = append(groups, NewDomainGroup("adjustments", "/adjustments").
			POST("", adj.Create).
			GET("", adj.ListPending).
			GET("/:id", adj.GetByID).
			POST("/:id/process", adj.Process))
	}
	if al := h.Allocations; al != nil {
		groups = append(groups,
			NewDomainGroup("allocations", "/allocations").
				POST("", al.Allocate).
				POST("/release", al.Deallocate),
			NewDomainGroup("order-lines", "/order-lines").
				GET("/:id/allocations", al.GetOrderLineAllocations),
			NewDomainGroup("orders", "/orders").
				GET("/:id/can-confirm", al.CanConfirmOrder).
				POST("/:id/deallocate", al.DeallocateOrder),
		)
	}
	if f := h.Fulfillments; f != nil {
		groups = append(groups, NewDomainGroup("fulfillments", "/fulfillments").
			POST("/:id/approve", f.Approve))
	}
	if inv := h.Invariants; inv != nil {
		groups = append(groups,
			NewDomainGroup("stocks", "/stocks").
				GET("/invariants", inv.CheckAll),
			NewDomainGroup("warehouses", "/warehouses").
				GET("/:warehouse_id/variants/:variant_id/invariants", inv.Check),
		)
	}
	return groups
}

// DomainGroup collects the routes of one resource before they are mounted
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new resource route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

// DELETE registers a DELETE route
func (dg *DomainGroup) DELETE(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodDelete, path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

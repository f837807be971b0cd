package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/migration"
	"github.com/erp/stockledger/internal/infrastructure/notification"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/scheduler"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/erp/stockledger/internal/interfaces/http/handler"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/erp/stockledger/internal/interfaces/http/router"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// ledgerRuntime is the collaborator wiring every ledger service accepts
type ledgerRuntime interface {
	SetEventPublisher(shared.EventPublisher)
	SetNotifier(ledger.Notifier)
	SetMetrics(*telemetry.LedgerMetrics)
	SetLogger(*zap.Logger)
}

func main() {
	skipMigrations := flag.Bool("skip-migrations", false, "Do not apply pending schema migrations on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logCfg := &logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	providers, err := telemetry.NewProviders(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	log, err := logger.New(logCfg, telemetry.NewZapCore(providers, level))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting stock ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:              cfg.Profiling.Enabled,
		ServerAddress:        cfg.Profiling.ServerAddress,
		ApplicationName:      cfg.Profiling.ApplicationName,
		BasicAuthUser:        cfg.Profiling.BasicAuthUser,
		BasicAuthPassword:    cfg.Profiling.BasicAuthPassword,
		Types:                cfg.Profiling.Types,
		MutexProfileFraction: cfg.Profiling.MutexProfileFraction,
		BlockProfileRate:     cfg.Profiling.BlockProfileRate,
	}, log.Named("profiler"))
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() && cfg.Profiling.SpanProfiles {
		providers.EnableSpanProfiles()
	}

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, log.Named("gorm"), cfg.Telemetry.DBSlowQueryThresh)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to access connection pool", zap.Error(err))
	}

	if !*skipMigrations {
		if err := migrate(ctx, cfg.Database.DSN(), log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	dbInst, err := telemetry.InstrumentDB(db.DB, providers.Meter("stockledger.db"), telemetry.DBConfig{
		TraceEnabled:       cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	dbInst.StartPoolStats(ctx)
	defer dbInst.Stop()

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(persistence.NewAuditLogHandler(db.DB))

	notifier, closeNotifier, err := notification.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize notifications", zap.Error(err))
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			log.Warn("Error closing notification transport", zap.Error(err))
		}
	}()

	metrics, err := telemetry.NewLedgerMetrics(providers.Meter("stockledger.ledger"))
	if err != nil {
		log.Fatal("Failed to create ledger metrics", zap.Error(err))
	}

	txScope := persistence.NewGormTransactionScope(db.DB, log)
	allocations := ledger.NewAllocationService(txScope, ledger.ShippingZoneRouter{})
	purchaseOrders := ledger.NewPurchaseOrderService(txScope)
	adjustments := ledger.NewAdjustmentService(txScope)
	receipts := ledger.NewReceiptService(txScope, ledger.WaitingFulfillmentCreator{})
	fulfillments := ledger.NewFulfillmentService(txScope)
	invariants := ledger.NewInvariantChecker(txScope)

	for _, svc := range []ledgerRuntime{allocations, purchaseOrders, adjustments, receipts, fulfillments, invariants} {
		svc.SetEventPublisher(bus)
		svc.SetNotifier(notifier)
		svc.SetMetrics(metrics)
		svc.SetLogger(log)
	}

	var idempotency middleware.IdempotencyConfig
	if cfg.Idempotency.Enabled {
		store, err := cache.NewStore(ctx, cfg, log)
		if err != nil {
			log.Fatal("Failed to initialize idempotency store", zap.Error(err))
		}
		defer func() { _ = store.Close() }()
		idempotency = middleware.IdempotencyConfig{Store: store, TTL: cfg.Idempotency.TTL}
	}

	reconciler := scheduler.NewReconciler(invariants, cfg.Reconcile, log)
	if err := reconciler.Start(ctx); err != nil {
		log.Fatal("Failed to start reconciler", zap.Error(err))
	}

	engine, err := router.NewEngine(router.EngineOptions{
		Logger:         log,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: providers.IsEnabled(),
		Meter:          providers.Meter("stockledger.http"),
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Idempotency:    idempotency,
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}
	router.Mount(engine, router.Handlers{
		PurchaseOrders: handler.NewPurchaseOrderHandler(purchaseOrders),
		Receipts:       handler.NewReceiptHandler(receipts),
		Adjustments:    handler.NewAdjustmentHandler(adjustments),
		Allocations:    handler.NewAllocationHandler(allocations),
		Fulfillments:   handler.NewFulfillmentHandler(fulfillments),
		Invariants:     handler.NewInvariantHandler(invariants),
		Health:         handler.NewHealthHandler(sqlDB, version),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serveErr:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := reconciler.Stop(shutdownCtx); err != nil {
		log.Warn("Reconciler did not stop in time", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("Telemetry shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// migrate applies pending migrations on a dedicated connection, since closing
// the migrator also closes the database handle it was given
func migrate(ctx context.Context, dsn string, log *zap.Logger) error {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return err
	}

	m, err := migration.New(conn, log.Named("migrate"))
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}

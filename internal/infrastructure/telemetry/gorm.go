package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig controls database tracing and metrics
type DBConfig struct {
	TraceEnabled       bool
	LogFullSQL         bool          // include bound variables in span statements
	SlowQueryThreshold time.Duration // default 200ms
	PoolStatsInterval  time.Duration // default 15s
}

// DBInstrumentation records query metrics through GORM callbacks and samples
// connection pool statistics in the background
type DBInstrumentation struct {
	config DBConfig
	logger *zap.Logger

	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
	poolConns      *Gauge

	sqlDB    *sql.DB
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type queryStartKey struct{}

// InstrumentDB registers otelgorm (when tracing is enabled) and the query
// metric callbacks on db
func InstrumentDB(db *gorm.DB, meter metric.Meter, cfg DBConfig, logger *zap.Logger) (*DBInstrumentation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	d := &DBInstrumentation{config: cfg, logger: logger, stopCh: make(chan struct{})}
	var err error
	if d.queryTotal, err = NewCounter(meter, "db_query_total", "Database queries by operation", "{query}"); err != nil {
		return nil, err
	}
	if d.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if d.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Queries slower than the slow query threshold", "{query}"); err != nil {
		return nil, err
	}
	if d.poolConns, err = NewGauge(meter, "db_pool_connections", "Connections in the pool by state", "{connection}"); err != nil {
		return nil, err
	}

	if cfg.TraceEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName("postgresql")}
		if !cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return nil, err
		}
	}
	if err := d.registerCallbacks(db); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		d.sqlDB = sqlDB
	}

	logger.Info("Database instrumentation enabled",
		zap.Bool("tracing", cfg.TraceEnabled),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
	)
	return d, nil
}

func (d *DBInstrumentation) registerCallbacks(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) { d.afterQuery(tx, op) }
	}

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("metrics:before_create", before),
		cb.Query().Before("gorm:query").Register("metrics:before_query", before),
		cb.Update().Before("gorm:update").Register("metrics:before_update", before),
		cb.Delete().Before("gorm:delete").Register("metrics:before_delete", before),
		cb.Row().Before("gorm:row").Register("metrics:before_row", before),
		cb.Raw().Before("gorm:raw").Register("metrics:before_raw", before),
		cb.Create().After("gorm:create").Register("metrics:after_create", after("insert")),
		cb.Query().After("gorm:query").Register("metrics:after_query", after("select")),
		cb.Update().After("gorm:update").Register("metrics:after_update", after("update")),
		cb.Delete().After("gorm:delete").Register("metrics:after_delete", after("delete")),
		cb.Row().After("gorm:row").Register("metrics:after_row", after("select")),
		cb.Raw().After("gorm:raw").Register("metrics:after_raw", after("")),
	)
}

func (d *DBInstrumentation) afterQuery(tx *gorm.DB, op string) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if op == "" {
		op = operationOf(tx.Statement.SQL.String())
	}
	elapsed := time.Since(start)
	d.RecordQuery(ctx, op, tx.Statement.Table, elapsed)

	if elapsed < d.config.SlowQueryThreshold {
		return
	}
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", d.config.SlowQueryThreshold.Milliseconds()),
		))
	}
}

// RecordQuery records one query of op against table that took elapsed
func (d *DBInstrumentation) RecordQuery(ctx context.Context, op, table string, elapsed time.Duration) {
	attrs := []attribute.KeyValue{AttrDBOperation.String(op)}
	if table != "" {
		attrs = append(attrs, AttrDBTable.String(table))
	}
	d.queryTotal.Inc(ctx, attrs...)
	d.queryDuration.RecordDuration(ctx, elapsed, attrs...)
	if elapsed >= d.config.SlowQueryThreshold {
		d.slowQueryTotal.Inc(ctx, attrs...)
	}
}

// StartPoolStats samples pool statistics until Stop is called
func (d *DBInstrumentation) StartPoolStats(ctx context.Context) {
	if d.sqlDB == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.config.PoolStatsInterval)
		defer ticker.Stop()
		for {
			d.collectPoolStats(ctx)
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (d *DBInstrumentation) collectPoolStats(ctx context.Context) {
	stats := d.sqlDB.Stats()
	d.poolConns.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	d.poolConns.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	d.poolConns.Record(ctx, int64(stats.MaxOpenConnections), AttrDBState.String("max"))
}

// Stop ends pool sampling. Safe to call more than once.
func (d *DBInstrumentation) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

func operationOf(statement string) string {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return "other"
	}
	switch op := strings.ToLower(fields[0]); op {
	case "select", "insert", "update", "delete":
		return op
	default:
		return "other"
	}
}

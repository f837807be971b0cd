package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Ledger metric attribute keys
var (
	AttrOperation = attribute.Key("operation")
	AttrOutcome   = attribute.Key("outcome")
	AttrOwned     = attribute.Key("owned")
)

// Adjustment outcomes
const (
	AdjustmentOutcomeProcessed = "processed"
	AdjustmentOutcomePending   = "pending"
	AdjustmentOutcomeRejected  = "rejected"
)

// LedgerMetrics records allocation and purchase-order activity.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	allocatedUnits      *Counter
	deallocatedUnits    *Counter
	poiConfirmations    *Counter
	migratedAllocations *Counter
	ordersAutoConfirmed *Counter
	adjustments         *Counter
	invariantViolations *Gauge
	operationDuration   *Histogram
}

// NewLedgerMetrics creates the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &LedgerMetrics{}
	var err error

	if m.allocatedUnits, err = NewCounter(meter,
		"ledger_allocated_units_total", "Units reserved for order lines", "{units}"); err != nil {
		return nil, err
	}
	if m.deallocatedUnits, err = NewCounter(meter,
		"ledger_deallocated_units_total", "Units released from order lines", "{units}"); err != nil {
		return nil, err
	}
	if m.poiConfirmations, err = NewCounter(meter,
		"ledger_poi_confirmations_total", "Purchase order items confirmed", "{items}"); err != nil {
		return nil, err
	}
	if m.migratedAllocations, err = NewCounter(meter,
		"ledger_migrated_allocations_total", "Allocations moved from supplier to owned stock", "{allocations}"); err != nil {
		return nil, err
	}
	if m.ordersAutoConfirmed, err = NewCounter(meter,
		"ledger_orders_auto_confirmed_total", "Orders confirmed automatically after sourcing", "{orders}"); err != nil {
		return nil, err
	}
	if m.adjustments, err = NewCounter(meter,
		"ledger_adjustments_total", "Adjustment processing attempts by outcome", "{adjustments}"); err != nil {
		return nil, err
	}
	if m.invariantViolations, err = NewGauge(meter,
		"ledger_invariant_violations", "Stock rows failing the last invariant check", "{rows}"); err != nil {
		return nil, err
	}
	if m.operationDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_operation_duration_seconds",
		Description: "Duration of ledger operations",
		Unit:        "s",
		Boundaries:  []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordAllocated counts units reserved on a stock row
func (m *LedgerMetrics) RecordAllocated(ctx context.Context, units int, owned bool) {
	if m == nil || units <= 0 {
		return
	}
	m.allocatedUnits.Add(ctx, int64(units), AttrOwned.Bool(owned))
}

// RecordDeallocated counts released units
func (m *LedgerMetrics) RecordDeallocated(ctx context.Context, units int) {
	if m == nil || units <= 0 {
		return
	}
	m.deallocatedUnits.Add(ctx, int64(units))
}

// RecordConfirmation counts one confirmed item with its migrated allocations and auto-confirmed orders
func (m *LedgerMetrics) RecordConfirmation(ctx context.Context, migrated, autoConfirmed int) {
	if m == nil {
		return
	}
	m.poiConfirmations.Inc(ctx)
	if migrated > 0 {
		m.migratedAllocations.Add(ctx, int64(migrated))
	}
	if autoConfirmed > 0 {
		m.ordersAutoConfirmed.Add(ctx, int64(autoConfirmed))
	}
}

// RecordAdjustment counts one adjustment attempt
func (m *LedgerMetrics) RecordAdjustment(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.adjustments.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordInvariantViolations sets the violation gauge
func (m *LedgerMetrics) RecordInvariantViolations(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.invariantViolations.Record(ctx, int64(count))
}

// ObserveOperation records the duration of a ledger operation since start
func (m *LedgerMetrics) ObserveOperation(ctx context.Context, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operationDuration.RecordDuration(ctx, time.Since(start), AttrOperation.String(op), AttrOutcome.String(outcome))
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// Package telemetry wires OpenTelemetry tracing, metrics and log export for the ledger.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	ServiceVersion    string
	Insecure          bool
	MetricsInterval   time.Duration // default 60s
}

// Providers owns the SDK tracer, meter and logger providers. When telemetry is
// disabled every provider is nil and the global no-op implementations are used.
type Providers struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
	logs   *sdklog.LoggerProvider
	config Config
	logger *zap.Logger

	mu       sync.RWMutex
	profiled trace.TracerProvider // tracer wrapped with span profiles, nil until enabled
}

// NewProviders creates the OTLP exporters and registers the providers globally
func NewProviders(ctx context.Context, cfg Config, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Providers{config: cfg, logger: logger}
	if !cfg.Enabled {
		logger.Info("Telemetry disabled, using no-op providers")
		return p, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
	}
	logExporter, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	interval := cfg.MetricsInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	p.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SamplingRatio))),
	)
	p.meter = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
	)
	p.logs = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)

	otel.SetTracerProvider(p.tracer)
	otel.SetMeterProvider(p.meter)
	global.SetLoggerProvider(p.logs)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry providers initialized",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
		zap.Duration("metrics_interval", interval),
		zap.String("service_name", cfg.ServiceName),
	)
	return p, nil
}

func newResource(cfg Config) (*resource.Resource, error) {
	version := cfg.ServiceVersion
	if version == "" {
		version = "dev"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

// IsEnabled reports whether the SDK providers were created
func (p *Providers) IsEnabled() bool {
	return p.tracer != nil
}

// EnableSpanProfiles wraps the tracer provider so every root span carries its
// span id as a pprof label, linking Pyroscope CPU profiles to traces. The
// profiler must already be running. It reports whether span profiles are on.
func (p *Providers) EnableSpanProfiles() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tracer == nil {
		p.logger.Debug("Cannot enable span profiles: telemetry disabled")
		return false
	}
	if p.profiled != nil {
		return true
	}
	p.profiled = otelpyroscope.NewTracerProvider(p.tracer)
	otel.SetTracerProvider(p.profiled)
	p.logger.Info("Span profiles enabled", zap.String("service_name", p.config.ServiceName))
	return true
}

// SpanProfilesEnabled reports whether EnableSpanProfiles took effect
func (p *Providers) SpanProfilesEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.profiled != nil
}

// Tracer returns a named tracer
func (p *Providers) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch {
	case p.profiled != nil:
		return p.profiled.Tracer(name, opts...)
	case p.tracer != nil:
		return p.tracer.Tracer(name, opts...)
	default:
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
}

// Meter returns a named meter
func (p *Providers) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if p.meter == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return p.meter.Meter(name, opts...)
}

// LoggerProvider returns the SDK logger provider, nil when disabled
func (p *Providers) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// ForceFlush exports everything buffered so far
func (p *Providers) ForceFlush(ctx context.Context) error {
	if !p.IsEnabled() {
		return nil
	}
	return errors.Join(
		p.tracer.ForceFlush(ctx),
		p.meter.ForceFlush(ctx),
		p.logs.ForceFlush(ctx),
	)
}

// Shutdown flushes and stops every provider
func (p *Providers) Shutdown(ctx context.Context) error {
	if !p.IsEnabled() {
		return nil
	}
	p.logger.Info("Shutting down OpenTelemetry providers...")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := errors.Join(
		p.tracer.Shutdown(ctx),
		p.meter.Shutdown(ctx),
		p.logs.Shutdown(ctx),
	)
	if err != nil {
		p.logger.Error("Error shutting down OpenTelemetry providers", zap.Error(err))
		return fmt.Errorf("failed to shutdown telemetry: %w", err)
	}
	p.logger.Info("OpenTelemetry providers shutdown complete")
	return nil
}

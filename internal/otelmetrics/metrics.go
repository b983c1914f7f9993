// Package otelmetrics provides OpenTelemetry metrics integration for the
// MAAS MCP bridge.
package otelmetrics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ExporterType selects the metrics exporter backend.
type ExporterType string

const (
	ExporterNone     ExporterType = "none"
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	ExporterOTLPHTTP ExporterType = "otlp-http"
)

// Config holds configuration for the OpenTelemetry metrics pipeline.
type Config struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	ServiceName    string
	ServiceVersion string
	ExporterType   ExporterType

	OTLPEndpoint string
	OTLPInsecure bool
}

// DefaultConfig returns a configuration with metrics disabled.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      false,
		ServiceName:  "maas-mcp-bridge",
		ExporterType: ExporterNone,
	}
}

// Metrics wraps the bridge's OpenTelemetry instruments: operation lifecycle
// counts (started/completed/failed/cancelled), cache hit/miss counts, and a
// dispatcher latency histogram.
type Metrics struct {
	config        *Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	shutdown      func(context.Context) error
	mu            sync.Mutex

	dispatchLatency  metric.Float64Histogram
	operationCounter metric.Int64Counter
	cacheHits        metric.Int64Counter
	cacheMisses      metric.Int64Counter
	activeOperations metric.Int64UpDownCounter

	activeOpsGauge int64
	_              atomic.Int64 // reserved for future observable callbacks
}

// New creates a Metrics instance from cfg. A nil/disabled cfg yields a no-op
// meter so instrumentation calls are always safe.
func New(ctx context.Context, cfg *Config) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	m := &Metrics{config: cfg}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, m.registerInstruments()
	}

	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metrics exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", semconv.ServiceName(cfg.ServiceName), semconv.ServiceVersion(cfg.ServiceVersion)),
	)
	if err != nil {
		return nil, fmt.Errorf("create metrics resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	m.meterProvider = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shutdown = mp.Shutdown

	return m, m.registerInstruments()
}

func (m *Metrics) createExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()
	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

func (m *Metrics) registerInstruments() error {
	var err error

	m.dispatchLatency, err = m.meter.Float64Histogram(
		"maasbridge.dispatch.latency",
		metric.WithDescription("Latency of dispatcher tool/resource invocations"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("create dispatch latency histogram: %w", err)
	}

	m.operationCounter, err = m.meter.Int64Counter(
		"maasbridge.operations",
		metric.WithDescription("Count of long-running operation lifecycle events"),
	)
	if err != nil {
		return fmt.Errorf("create operation counter: %w", err)
	}

	m.cacheHits, err = m.meter.Int64Counter(
		"maasbridge.cache.hits",
		metric.WithDescription("Resource cache hits"),
	)
	if err != nil {
		return fmt.Errorf("create cache hit counter: %w", err)
	}

	m.cacheMisses, err = m.meter.Int64Counter(
		"maasbridge.cache.misses",
		metric.WithDescription("Resource cache misses"),
	)
	if err != nil {
		return fmt.Errorf("create cache miss counter: %w", err)
	}

	m.activeOperations, err = m.meter.Int64UpDownCounter(
		"maasbridge.operations.active",
		metric.WithDescription("Number of tracked long-running operations"),
	)
	if err != nil {
		return fmt.Errorf("create active operations counter: %w", err)
	}

	return nil
}

// RecordDispatch records the latency and outcome of a tool/resource call.
func (m *Metrics) RecordDispatch(ctx context.Context, kind, name string, latencyMs float64, isError bool) {
	if m.dispatchLatency == nil {
		return
	}
	m.dispatchLatency.Record(ctx, latencyMs, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("name", name),
		attribute.Bool("is_error", isError),
	))
}

// RecordOperationEvent increments the operation lifecycle counter for the
// given event kind (started, completed, failed, cancelled).
func (m *Metrics) RecordOperationEvent(ctx context.Context, event string) {
	if m.operationCounter == nil {
		return
	}
	m.operationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
	switch event {
	case "started":
		m.activeOperations.Add(ctx, 1)
	case "completed", "failed", "cancelled":
		m.activeOperations.Add(ctx, -1)
	}
}

// RecordCacheResult increments either the hit or miss counter for resourceType.
func (m *Metrics) RecordCacheResult(ctx context.Context, resourceType string, hit bool) {
	if hit {
		if m.cacheHits != nil {
			m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("resource_type", resourceType)))
		}
		return
	}
	if m.cacheMisses != nil {
		m.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("resource_type", resourceType)))
	}
}

// Shutdown flushes and tears down the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled reports whether a real exporter is wired up.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// SetGlobal installs m as the process-wide OpenTelemetry meter provider.
func SetGlobal(m *Metrics) {
	if m != nil && m.Enabled() {
		otel.SetMeterProvider(m.meterProvider)
	}
}

// Noop returns a Metrics instance that discards everything, for tests and
// for components constructed before the real pipeline is wired in main.
func Noop() *Metrics {
	m, err := New(context.Background(), DefaultConfig())
	if err != nil {
		// DefaultConfig never touches a real exporter; this cannot fail.
		panic(err)
	}
	return m
}

package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics and Prometheus integration
// for the feed gateway.
type MetricsProvider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	registry      *prometheus.Registry

	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	ingestMessagesTotal  metric.Int64Counter
	ingestRate           metric.Int64ObservableGauge
	broadcastSubscribers metric.Int64ObservableGauge
	broadcastLagEvents   metric.Int64Counter
	tailCacheSize        metric.Int64ObservableGauge

	rateCallback         func() int64
	subscriberCallback   func() int64
	tailCacheSizeCallback func() int64
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Namespace      string
	Port           int
	Enabled        bool
}

// NewMetricsProvider creates a new metrics provider.
func NewMetricsProvider(cfg MetricsConfig) (*MetricsProvider, error) {
	if !cfg.Enabled {
		return &MetricsProvider{}, nil
	}

	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(cfg.ServiceName)

	mp := &MetricsProvider{
		meterProvider: meterProvider,
		meter:         meter,
		registry:      registry,
	}

	if err := mp.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return mp, nil
}

// initializeMetrics creates all application metrics.
func (mp *MetricsProvider) initializeMetrics() error {
	var err error

	mp.httpRequestsTotal, err = mp.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	mp.httpRequestDuration, err = mp.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	mp.ingestMessagesTotal, err = mp.meter.Int64Counter(
		"ingest_messages_total",
		metric.WithDescription("Total number of MBO events ingested"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create ingest_messages_total counter: %w", err)
	}

	mp.ingestRate, err = mp.meter.Int64ObservableGauge(
		"ingest_rate_messages_per_second",
		metric.WithDescription("Most recent rate-monitor sample, in messages per second"),
		metric.WithUnit("1"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			if mp.rateCallback != nil {
				obs.Observe(mp.rateCallback())
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create ingest_rate gauge: %w", err)
	}

	mp.broadcastSubscribers, err = mp.meter.Int64ObservableGauge(
		"broadcast_subscribers",
		metric.WithDescription("Number of connected push subscribers"),
		metric.WithUnit("1"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			if mp.subscriberCallback != nil {
				obs.Observe(mp.subscriberCallback())
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create broadcast_subscribers gauge: %w", err)
	}

	mp.broadcastLagEvents, err = mp.meter.Int64Counter(
		"broadcast_lag_events_total",
		metric.WithDescription("Total number of times a subscriber fell behind and had messages dropped"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create broadcast_lag_events_total counter: %w", err)
	}

	mp.tailCacheSize, err = mp.meter.Int64ObservableGauge(
		"tail_cache_size",
		metric.WithDescription("Number of populated slots in the tail cache"),
		metric.WithUnit("1"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			if mp.tailCacheSizeCallback != nil {
				obs.Observe(mp.tailCacheSizeCallback())
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create tail_cache_size gauge: %w", err)
	}

	return nil
}

// RecordHTTPRequest records an HTTP request metric.
func (mp *MetricsProvider) RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration) {
	if mp.httpRequestsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	}

	mp.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mp.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordIngestMessage records one ingested MBO event.
func (mp *MetricsProvider) RecordIngestMessage(ctx context.Context) {
	if mp.ingestMessagesTotal == nil {
		return
	}
	mp.ingestMessagesTotal.Add(ctx, 1)
}

// RecordBroadcastLag records that a subscriber fell behind.
func (mp *MetricsProvider) RecordBroadcastLag(ctx context.Context, dropped uint64) {
	if mp.broadcastLagEvents == nil || dropped == 0 {
		return
	}
	mp.broadcastLagEvents.Add(ctx, 1)
}

// SetRateCallback wires the rate monitor's latest sample into the
// ingest_rate_messages_per_second gauge.
func (mp *MetricsProvider) SetRateCallback(fn func() int64) {
	mp.rateCallback = fn
}

// SetSubscriberCountCallback wires the broadcaster's live subscriber
// count into the broadcast_subscribers gauge.
func (mp *MetricsProvider) SetSubscriberCountCallback(fn func() int64) {
	mp.subscriberCallback = fn
}

// SetTailCacheSizeCallback wires the tail cache's populated-slot count
// into the tail_cache_size gauge.
func (mp *MetricsProvider) SetTailCacheSizeCallback(fn func() int64) {
	mp.tailCacheSizeCallback = fn
}

// StartMetricsServer starts the Prometheus metrics HTTP server.
func (mp *MetricsProvider) StartMetricsServer(port int) error {
	if mp.registry == nil {
		return fmt.Errorf("metrics not enabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(mp.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics provider.
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp.meterProvider == nil {
		return nil
	}
	return mp.meterProvider.Shutdown(ctx)
}

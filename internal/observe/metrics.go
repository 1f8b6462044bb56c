// Package observe provides application-wide observability primitives for the
// scorecard proxy: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all proxy metrics.
const meterName = "github.com/MrWong99/scorecard-proxy"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// UpstreamDuration tracks the latency of a single completion call.
	UpstreamDuration metric.Float64Histogram

	// PageFetchDuration tracks scorecard page fetch and reduction latency.
	PageFetchDuration metric.Float64Histogram

	// --- Counters ---

	// UpstreamRequests counts completion calls. Use with attribute:
	//   attribute.String("status", ...)
	UpstreamRequests metric.Int64Counter

	// PageFetches counts scorecard page fetches. Use with attribute:
	//   attribute.String("status", ...)
	PageFetches metric.Int64Counter

	// ProxyErrors counts requests answered with an error. Use with attribute:
	//   attribute.String("kind", ...)
	ProxyErrors metric.Int64Counter

	// --- Distributions ---

	// ContinuationRounds records how many upstream rounds each proxied
	// request needed. Use with attribute:
	//   attribute.String("outcome", ...)
	ContinuationRounds metric.Int64Histogram

	// --- Gauges ---

	// ActiveRequests tracks the number of in-flight proxied requests.
	ActiveRequests metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Completion
// calls with server tools routinely run for tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120,
}

// roundBuckets covers 1 through 5 continuation rounds.
var roundBuckets = []float64{1, 2, 3, 4, 5}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.UpstreamDuration, err = m.Float64Histogram("scorecard.upstream.duration",
		metric.WithDescription("Latency of a single completion API call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PageFetchDuration, err = m.Float64Histogram("scorecard.pagefetch.duration",
		metric.WithDescription("Latency of fetching and reducing the scorecard page."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ContinuationRounds, err = m.Int64Histogram("scorecard.continuation.rounds",
		metric.WithDescription("Upstream rounds used per proxied request by outcome."),
		metric.WithExplicitBucketBoundaries(roundBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.UpstreamRequests, err = m.Int64Counter("scorecard.upstream.requests",
		metric.WithDescription("Total completion API calls by status."),
	); err != nil {
		return nil, err
	}
	if met.PageFetches, err = m.Int64Counter("scorecard.pagefetch.requests",
		metric.WithDescription("Total scorecard page fetches by status."),
	); err != nil {
		return nil, err
	}
	if met.ProxyErrors, err = m.Int64Counter("scorecard.proxy.errors",
		metric.WithDescription("Total requests answered with an error by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRequests, err = m.Int64UpDownCounter("scorecard.active_requests",
		metric.WithDescription("Number of in-flight proxied requests."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("scorecard.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordUpstream records one completion call with its latency in seconds.
func (m *Metrics) RecordUpstream(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.UpstreamRequests.Add(ctx, 1, attrs)
	m.UpstreamDuration.Record(ctx, seconds, attrs)
}

// RecordPageFetch records one scorecard page fetch with its latency in seconds.
func (m *Metrics) RecordPageFetch(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.PageFetches.Add(ctx, 1, attrs)
	m.PageFetchDuration.Record(ctx, seconds, attrs)
}

// RecordRounds records how many upstream rounds a request used.
func (m *Metrics) RecordRounds(ctx context.Context, outcome string, rounds int) {
	m.ContinuationRounds.Record(ctx, int64(rounds),
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordProxyError records a request answered with an error.
func (m *Metrics) RecordProxyError(ctx context.Context, kind string) {
	m.ProxyErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

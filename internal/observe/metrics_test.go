package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the int64 sum data point carrying key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordUpstream(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUpstream(ctx, "200", 1.2)
	m.RecordUpstream(ctx, "200", 3.4)
	m.RecordUpstream(ctx, "529", 0.3)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "scorecard.upstream.requests", "status", "200"); got != 2 {
		t.Errorf("status=200 count = %d, want 2", got)
	}
	if got := sumFor(t, rm, "scorecard.upstream.requests", "status", "529"); got != 1 {
		t.Errorf("status=529 count = %d, want 1", got)
	}

	met := findMetric(rm, "scorecard.upstream.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration metric is not a histogram")
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("duration sample count = %d, want 3", total)
	}
}

func TestRecordPageFetch(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPageFetch(ctx, "ok", 0.4)
	m.RecordPageFetch(ctx, "404", 0.1)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "scorecard.pagefetch.requests", "status", "ok"); got != 1 {
		t.Errorf("status=ok count = %d, want 1", got)
	}
	if findMetric(rm, "scorecard.pagefetch.duration") == nil {
		t.Error("pagefetch duration metric not found")
	}
}

func TestRecordRounds(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRounds(ctx, "done", 1)
	m.RecordRounds(ctx, "done", 4)
	m.RecordRounds(ctx, "exhausted", 5)

	rm := collect(t, reader)
	met := findMetric(rm, "scorecard.continuation.rounds")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[int64])
	if !ok {
		t.Fatal("metric is not an int64 histogram")
	}
	for _, dp := range hist.DataPoints {
		v, _ := dp.Attributes.Value("outcome")
		switch v.AsString() {
		case "done":
			if dp.Count != 2 || dp.Sum != 5 {
				t.Errorf("done: count=%d sum=%d, want 2/5", dp.Count, dp.Sum)
			}
		case "exhausted":
			if dp.Count != 1 || dp.Sum != 5 {
				t.Errorf("exhausted: count=%d sum=%d, want 1/5", dp.Count, dp.Sum)
			}
		default:
			t.Errorf("unexpected outcome %q", v.AsString())
		}
	}
}

func TestRecordProxyError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProxyError(ctx, "pagefetch")
	m.RecordProxyError(ctx, "pagefetch")
	m.RecordProxyError(ctx, "config")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "scorecard.proxy.errors", "kind", "pagefetch"); got != 2 {
		t.Errorf("kind=pagefetch count = %d, want 2", got)
	}
}

func TestActiveRequestsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveRequests.Add(ctx, 1)
	m.ActiveRequests.Add(ctx, 1)
	m.ActiveRequests.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "scorecard.active_requests")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("gauge value = %d, want 1", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "scorecard.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}

package middleware_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	mw "github.com/xraph/queuectl/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

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

func hasAttr(set attribute.Set, key, want string) bool {
	v, ok := set.Value(attribute.Key(key))
	return ok && v.Emit() == want
}

func TestMetrics_RecordsDuration(t *testing.T) {
	reader, mp := setupTestMeter()
	m := mw.MetricsWithMeter(mp.Meter("test"))

	_ = m(context.Background(), newTestJob(), func(_ context.Context) int { return 0 })

	metric := findMetric(collectMetrics(t, reader), "queuectl.job.duration")
	if metric == nil {
		t.Fatal("queuectl.job.duration metric not found")
	}
	hist, ok := metric.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("expected Histogram[float64] data type")
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("unexpected data points: %+v", hist.DataPoints)
	}
}

func TestMetrics_RecordsExecutions(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		attempts   int
		wantStatus string
		wantRetry  string
	}{
		{"success", 0, 0, "ok", "false"},
		{"failure", 1, 0, "error", "false"},
		{"retry failure", 2, 1, "error", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, mp := setupTestMeter()
			m := mw.MetricsWithMeter(mp.Meter("test"))
			j := newTestJob()
			j.Attempts = tt.attempts

			got := m(context.Background(), j, func(_ context.Context) int { return tt.code })
			if got != tt.code {
				t.Fatalf("code = %d, want %d", got, tt.code)
			}

			metric := findMetric(collectMetrics(t, reader), "queuectl.job.executions")
			if metric == nil {
				t.Fatal("queuectl.job.executions metric not found")
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatal("expected Sum[int64] data type")
			}
			if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
				t.Fatalf("unexpected data points: %+v", sum.DataPoints)
			}
			attrs := sum.DataPoints[0].Attributes
			if !hasAttr(attrs, "status", tt.wantStatus) {
				t.Errorf("missing status=%s", tt.wantStatus)
			}
			if !hasAttr(attrs, "retry", tt.wantRetry) {
				t.Errorf("missing retry=%s", tt.wantRetry)
			}
		})
	}
}

func TestMetrics_DefaultNoopSafe(t *testing.T) {
	m := mw.Metrics()

	called := false
	code := m(context.Background(), newTestJob(), func(_ context.Context) int {
		called = true
		return 0
	})
	if code != 0 || !called {
		t.Fatalf("code=%d called=%v", code, called)
	}
}

package observability_test

import (
	"context"
	"testing"

	"github.com/xraph/queuectl/observability"
)

// These tests replace the global tracer provider and must not run in
// parallel.

func TestSetupTracing_Exporters(t *testing.T) {
	tests := []struct {
		name     string
		exporter string
		wantErr  bool
	}{
		{"empty means none", "", false},
		{"none", "none", false},
		{"stdout", "stdout", false},
		{"case insensitive", " STDOUT ", false},
		{"otlphttp", "otlphttp", false},
		{"otlpgrpc", "otlpgrpc", false},
		{"unknown", "zipkin", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
				Exporter:    tt.exporter,
				Insecure:    true,
				ServiceName: "queuectl-test",
			})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("SetupTracing: %v", err)
			}
			if shutdown == nil {
				t.Fatal("expected shutdown func")
			}
			// Nothing was exported, so shutdown does not contact a collector.
			_ = shutdown(ctx)
		})
	}
}

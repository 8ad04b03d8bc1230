package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "valid configuration", cfg: Config{ServiceName: "smart-meds-api", ServiceVersion: "1.0.0", Endpoint: "localhost:4318", Insecure: true}},
		{name: "empty service name", cfg: Config{Endpoint: "localhost:4318", Insecure: true}},
		{name: "sampled", cfg: Config{ServiceName: "smart-meds-worker", Endpoint: "localhost:4318", SampleRatio: 0.25}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tp, err := InitTracer(ctx, tt.cfg)
			if err != nil {
				t.Fatalf("InitTracer() error = %v", err)
			}
			// Nothing was exported, so shutdown does not need the collector
			if err := Shutdown(ctx, tp); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestShutdown_NilProvider(t *testing.T) {
	if err := Shutdown(context.Background(), nil); err != nil {
		t.Errorf("Shutdown() with nil provider should not error, got: %v", err)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{ratio: 0, want: "AlwaysOnSampler"},
		{ratio: 1, want: "AlwaysOnSampler"},
		{ratio: 0.5, want: "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		got := Sampler(tt.ratio).Description()
		if !strings.Contains(got, tt.want) {
			t.Errorf("Sampler(%v).Description() = %q, want it to contain %q", tt.ratio, got, tt.want)
		}
	}
}

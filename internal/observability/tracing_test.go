package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace/noop"
)

func resetGlobalTracing(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
	})
}

func TestTracingConfigDefaults(t *testing.T) {
	cfg := tracingConfigFrom(func(string) string { return "" })
	if cfg.Enabled {
		t.Fatalf("tracing should default to disabled")
	}
	if cfg.Exporter != "stdout" || cfg.ServiceName != "livedemo" || cfg.SampleRatio != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestTracingConfigFromEnvironment(t *testing.T) {
	env := map[string]string{
		"LIVEDEMO_TRACING_ENABLED":      "TRUE",
		"LIVEDEMO_TRACING_EXPORTER":     "OTLP",
		"LIVEDEMO_TRACING_ENDPOINT":     "collector:4317",
		"LIVEDEMO_TRACING_SERVICE_NAME": "demo-edge",
		"LIVEDEMO_TRACING_SAMPLE_RATIO": "0.25",
	}
	cfg := tracingConfigFrom(func(k string) string { return env[k] })
	want := TracingConfig{
		Enabled:     true,
		ServiceName: "demo-edge",
		Exporter:    "otlp",
		Endpoint:    "collector:4317",
		SampleRatio: 0.25,
	}
	if cfg != want {
		t.Fatalf("config = %+v, want %+v", cfg, want)
	}
}

func TestTracingConfigIgnoresBadRatio(t *testing.T) {
	for _, raw := range []string{"1.5", "-0.1", "half"} {
		cfg := tracingConfigFrom(func(k string) string {
			if k == "LIVEDEMO_TRACING_SAMPLE_RATIO" {
				return raw
			}
			return ""
		})
		if cfg.SampleRatio != 1 {
			t.Errorf("ratio %q parsed to %v, want default 1", raw, cfg.SampleRatio)
		}
	}
}

func TestInitTracingDisabled(t *testing.T) {
	resetGlobalTracing(t)

	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingStdoutExportsSpans(t *testing.T) {
	resetGlobalTracing(t)

	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "livedemo-test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Output:      &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "widget.cycle")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	if !strings.Contains(buf.String(), "widget.cycle") {
		t.Fatalf("expected exported span in output, got %q", buf.String())
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	resetGlobalTracing(t)

	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	if err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

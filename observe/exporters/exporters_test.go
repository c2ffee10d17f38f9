package exporters

import (
	"context"
	"os"
	"strings"
	"testing"
)

// TestExporter_InvalidName verifies unknown exporter name returns error.
func TestExporter_InvalidName(t *testing.T) {
	_, err := NewTracingExporter(context.Background(), "invalid")
	if err == nil {
		t.Fatal("expected error for invalid exporter name")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "unknown exporter") {
		t.Errorf("expected error to contain 'unknown exporter', got: %v", err)
	}
}

// TestExporter_StdoutTracing verifies stdout tracing exporter.
func TestExporter_StdoutTracing(t *testing.T) {
	exp, err := NewTracingExporter(context.Background(), "stdout")
	if err != nil {
		t.Fatalf("failed to create stdout tracing exporter: %v", err)
	}
	if exp == nil {
		t.Fatal("expected non-nil exporter")
	}
}

// TestExporter_StdoutMetrics verifies stdout metrics reader.
func TestExporter_StdoutMetrics(t *testing.T) {
	reader, err := NewMetricsReader(context.Background(), "stdout")
	if err != nil {
		t.Fatalf("failed to create stdout metrics reader: %v", err)
	}
	if reader == nil {
		t.Fatal("expected non-nil reader")
	}
}

// TestExporter_NoneTracing verifies the discard exporter is returned.
func TestExporter_NoneTracing(t *testing.T) {
	for _, name := range []string{"none", ""} {
		exp, err := NewTracingExporter(context.Background(), name)
		if err != nil {
			t.Fatalf("NewTracingExporter(%q) error = %v", name, err)
		}
		if exp == nil {
			t.Fatalf("NewTracingExporter(%q) = nil", name)
		}
	}
}

// TestExporter_NoneMetrics verifies the discard reader is returned.
func TestExporter_NoneMetrics(t *testing.T) {
	for _, name := range []string{"none", ""} {
		reader, err := NewMetricsReader(context.Background(), name)
		if err != nil {
			t.Fatalf("NewMetricsReader(%q) error = %v", name, err)
		}
		if reader == nil {
			t.Fatalf("NewMetricsReader(%q) = nil", name)
		}
	}
}

// TestExporter_OtlpMissingEndpoint verifies OTLP without endpoint env fails.
func TestExporter_OtlpMissingEndpoint(t *testing.T) {
	// Ensure env vars are not set
	os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	os.Unsetenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")

	_, err := NewTracingExporter(context.Background(), "otlp")
	if err == nil {
		t.Fatal("expected error when OTLP endpoint not configured")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "endpoint") {
		t.Errorf("expected error to contain 'endpoint', got: %v", err)
	}
}

// TestExporter_OtlpMetricsMissingEndpoint verifies OTLP metrics without endpoint fails.
func TestExporter_OtlpMetricsMissingEndpoint(t *testing.T) {
	os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	os.Unsetenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")

	_, err := NewMetricsReader(context.Background(), "otlp")
	if err == nil {
		t.Fatal("expected error when OTLP metrics endpoint not configured")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "endpoint") {
		t.Errorf("expected error to contain 'endpoint', got: %v", err)
	}
}

// TestExporter_JaegerMissingEndpoint verifies Jaeger without endpoint env fails.
func TestExporter_JaegerMissingEndpoint(t *testing.T) {
	os.Unsetenv("OTEL_EXPORTER_JAEGER_ENDPOINT")

	_, err := NewTracingExporter(context.Background(), "jaeger")
	if err == nil {
		t.Fatal("expected error when Jaeger endpoint not configured")
	}
}

// TestExporter_Prometheus verifies the Prometheus reader is created.
func TestExporter_Prometheus(t *testing.T) {
	reader, err := NewMetricsReader(context.Background(), "prometheus")
	if err != nil {
		t.Fatalf("failed to create Prometheus reader: %v", err)
	}
	if reader == nil {
		t.Fatal("expected non-nil reader")
	}
}

package otel

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("test-service")

	if config.ServiceName != "test-service" {
		t.Errorf("Expected service name 'test-service', got '%s'", config.ServiceName)
	}

	if config.CollectorEndpoint == "" {
		t.Error("Collector endpoint should not be empty")
	}

	if config.SamplingRate < 0.0 || config.SamplingRate > 1.0 {
		t.Errorf("Sampling rate out of bounds: %.2f", config.SamplingRate)
	}
}

func TestScoreAttributes(t *testing.T) {
	attrs := ScoreAttributes("gbt-v1", 712, "Good")

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}

	found := false
	for _, attr := range attrs {
		if attr.Key == AttrScore && attr.Value.AsInt64() == 712 {
			found = true
		}
	}
	if !found {
		t.Error("score attribute not found")
	}
}

func TestStartSpan(t *testing.T) {
	// Uses the global no-op tracer since InitTracer was not called
	ctx, span := StartSpan(context.Background(), "test-tracer", "test-span",
		attribute.String("test.key", "test.value"),
	)

	if ctx == nil {
		t.Error("Context should not be nil")
	}
	if span == nil {
		t.Fatal("Span should not be nil")
	}

	SetScoreAttributes(span, "gbt-v1", 640, "Poor")
	span.End()
}

func TestRecordError(t *testing.T) {
	_, span := StartSpan(context.Background(), "test-tracer", "test-span")
	defer span.End()

	// Must not panic on nil inputs
	RecordError(span, nil, "ignored")
	RecordError(nil, errors.New("boom"), "ignored")
	RecordError(span, errors.New("boom"), "")
	RecordError(span, errors.New("boom"), "with message")
	SetScoreAttributes(nil, "v", 1, "x")
}

func TestShutdownNilProvider(t *testing.T) {
	if err := Shutdown(context.Background(), nil); err != nil {
		t.Errorf("Shutdown(nil) = %v, want nil", err)
	}
}

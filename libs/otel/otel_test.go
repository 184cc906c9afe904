package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "ledger.earn")
	defer span.End()

	tp1, ts := TraceContextStrings(ctx)
	if tp1 == "" {
		t.Fatal("expected traceparent")
	}
	restored := ContextWithTraceContext(context.Background(), tp1, ts)
	if got := trace.SpanContextFromContext(restored).TraceID(); got != span.SpanContext().TraceID() {
		t.Fatalf("trace id mismatch: %s vs %s", got, span.SpanContext().TraceID())
	}
}

func TestContextWithEmptyTraceContext(t *testing.T) {
	ctx := context.Background()
	if got := ContextWithTraceContext(ctx, "", ""); got != ctx {
		t.Fatal("expected unchanged context")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "2")
	cfg := ConfigFromEnv("loyalty-service")
	if cfg.Enabled {
		t.Fatal("expected disabled")
	}
	if cfg.SampleRatio != 1 {
		t.Fatalf("out of range ratio must fall back to 1, got %v", cfg.SampleRatio)
	}

	shutdown, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestConfigFromEnvWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("DEPLOY_ENV", "staging")
	cfg := ConfigFromEnv("loyalty-service")
	if cfg.Enabled {
		t.Fatal("tracing must stay off without a collector endpoint")
	}
	if cfg.Environment != "staging" {
		t.Fatalf("environment = %q", cfg.Environment)
	}
}

package telemetry

import (
	"context"
	"testing"
)

func TestExtractTraceContextIsEmptyWhenDisabled(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tc := ExtractTraceContext(context.Background())
	if tc.TraceParent != "" {
		t.Fatalf("expected empty trace context when telemetry is disabled, got %+v", tc)
	}
}

func TestInjectTraceContextIsNoopWithoutTraceParent(t *testing.T) {
	ctx := context.Background()
	got := InjectTraceContext(ctx, TraceContext{})
	if got != ctx {
		t.Fatal("expected InjectTraceContext to return the same context when TraceParent is empty")
	}
}

func TestExtractThenInjectRoundTripsAnActiveSpan(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: true, Exporter: "stdout", ServiceName: "labthings-test", SampleRate: 1.0}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Shutdown(context.Background())

	ctx, span := StartSpan(context.Background(), "parent-op")
	defer span.End()

	tc := ExtractTraceContext(ctx)
	if tc.TraceParent == "" {
		t.Fatal("expected a non-empty traceparent while a span is active")
	}

	restored := InjectTraceContext(context.Background(), tc)
	if GetTraceID(restored) != GetTraceID(ctx) {
		t.Fatalf("expected restored context to carry the same trace ID, got %q want %q", GetTraceID(restored), GetTraceID(ctx))
	}
}

func TestGetTraceIDAndSpanIDEmptyWithoutActiveSpan(t *testing.T) {
	if GetTraceID(context.Background()) != "" {
		t.Fatal("expected empty trace ID without an active span")
	}
	if GetSpanID(context.Background()) != "" {
		t.Fatal("expected empty span ID without an active span")
	}
}

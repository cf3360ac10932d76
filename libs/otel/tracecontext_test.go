package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := ContextWithTraceContext(context.Background(), parent, "")
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("span context not restored: %v", sc)
	}

	tp, _ := TraceContextStrings(ctx)
	if tp != parent {
		t.Fatalf("traceparent = %q", tp)
	}
}

func TestContextWithoutTraceparent(t *testing.T) {
	ctx := context.Background()
	if got := ContextWithTraceContext(ctx, "", "x=1"); got != ctx {
		t.Fatalf("expected unchanged context")
	}
}

func TestSampleRatio(t *testing.T) {
	cases := map[string]float64{"0.25": 0.25, " 0 ": 0, "1": 1, "2": 1, "-1": 1, "abc": 1, "": 1}
	for in, want := range cases {
		if got := sampleRatio(in); got != want {
			t.Fatalf("sampleRatio(%q) = %v, want %v", in, got, want)
		}
	}
}

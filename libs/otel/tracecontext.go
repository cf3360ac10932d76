package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	keyTraceparent = "traceparent"
	keyTracestate  = "tracestate"
)

// TraceContextStrings serialises the span in ctx for storage on a row (outbox
// events, scheduled notifications). Both are empty when ctx carries no span.
func TraceContextStrings(ctx context.Context) (traceparent string, tracestate string) {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	return c.Get(keyTraceparent), c.Get(keyTracestate)
}

// ContextWithTraceContext resumes a trace stored by TraceContextStrings.
func ContextWithTraceContext(ctx context.Context, traceparent string, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	c := propagation.MapCarrier{keyTraceparent: traceparent}
	if tracestate != "" {
		c.Set(keyTracestate, tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, c)
}

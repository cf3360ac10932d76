package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InjectTraceHeaders adds the W3C trace context of ctx to headers.
func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &headers})
	return headers
}

// ExtractTraceContext continues the trace carried on msg.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	headers := msg.Headers
	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &headers})
}

type headerCarrier struct {
	headers *[]kafka.Header
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string { return header(*c.headers, key) }

func (c headerCarrier) Set(key, value string) { *c.headers = setHeader(*c.headers, key, value) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(*c.headers))
	for i, h := range *c.headers {
		keys[i] = h.Key
	}
	return keys
}

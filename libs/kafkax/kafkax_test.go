package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092 ,")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestNewMessageCarriesMeta(t *testing.T) {
	msg := NewMessage(context.Background(), "topic.v1", "agg-1", []byte("{}"), EventMeta{EventID: "e1", EventType: "topic.v1"})
	meta := MessageMeta(msg)
	if meta.EventID != "e1" || meta.EventType != "topic.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if string(msg.Key) != "agg-1" {
		t.Fatalf("unexpected key %s", msg.Key)
	}
}

func TestMessageMetaFallsBackToPosition(t *testing.T) {
	meta := MessageMeta(kafka.Message{Topic: "t", Partition: 2, Offset: 40, Key: []byte("k")})
	if meta.EventID != "t/2/40" || meta.EventType != "t" {
		t.Fatalf("unexpected fallback %+v", meta)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	const tp = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	in := otel.GetTextMapPropagator().Extract(context.Background(), propagation.MapCarrier{"traceparent": tp})
	headers := InjectTraceHeaders(in, []kafka.Header{{Key: "traceparent", Value: []byte("stale")}})
	if len(headers) != 1 || string(headers[0].Value) != tp {
		t.Fatalf("unexpected headers %+v", headers)
	}

	out := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	if got := trace.SpanContextFromContext(out).TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("trace id = %s", got)
	}
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	if err := ReadyCheck(" , ")(context.Background()); err == nil {
		t.Fatal("expected error without brokers")
	}
}

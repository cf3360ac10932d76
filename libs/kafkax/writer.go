package kafkax

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer producers depend on.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a keyed writer: messages with the same key (aggregate id)
// land on the same partition and keep their order.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// NewMessage builds a message for topic carrying the event metadata headers
// and the trace context found in ctx.
func NewMessage(ctx context.Context, topic, key string, value []byte, meta EventMeta) kafka.Message {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(meta.EventID)},
			{Key: HeaderEventType, Value: []byte(meta.EventType)},
		},
	}
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)
	return msg
}

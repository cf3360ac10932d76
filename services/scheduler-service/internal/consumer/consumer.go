package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Inbox deduplicates events by id.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

// NewReader joins the consumer group on every topic in cfg.Topics. Offsets are
// committed explicitly after each message.
func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
}

type Options struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	// Permanent reports handler errors that retrying cannot fix.
	Permanent func(error) bool
}

type Consumer struct {
	reader  Reader
	inbox   Inbox
	logger  *slog.Logger
	handler Handler
	opts    Options
}

func New(reader Reader, inbox Inbox, logger *slog.Logger, handler Handler, opts Options) *Consumer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.Permanent == nil {
		opts.Permanent = func(error) bool { return false }
	}
	return &Consumer{reader: reader, inbox: inbox, logger: logger, handler: handler, opts: opts}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		// The partition stalls on a failing event rather than skipping it.
		for {
			err := c.Process(ctx, msg)
			if err == nil {
				break
			}
			c.logger.Error("event processing failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
			if !sleep(ctx, c.opts.RetryBackoff*time.Duration(c.opts.MaxAttempts)) {
				return
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err)
		}
	}
}

// EventID returns the event_id header, or the message position when the
// producer did not set one.
func EventID(msg kafka.Message) string {
	return kafkax.MessageMeta(msg).EventID
}

// Process handles one message. A nil return means the message may be
// committed, including when it was a duplicate or failed for good.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.MessageMeta(msg)
	eventID, eventType := meta.EventID, meta.EventType

	ok, err := c.inbox.Record(ctxSpan, eventID, eventType)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("inbox record: %w", err)
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", eventID, "event_type", eventType)
		return nil
	}

	err = c.handle(ctxSpan, msg)
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "handler failed")
	if ctx.Err() != nil {
		_ = c.inbox.Forget(context.WithoutCancel(ctx), eventID)
		return err
	}
	if c.opts.Permanent(err) {
		c.logger.Error("event rejected", "err", err, "event_id", eventID, "event_type", eventType)
		return nil
	}
	// Let a redelivery of the same event run again.
	if ferr := c.inbox.Forget(ctxSpan, eventID); ferr != nil {
		c.logger.Error("inbox forget failed", "err", ferr, "event_id", eventID)
	}
	return err
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if err = c.handler(ctx, msg); err == nil || c.opts.Permanent(err) {
			return err
		}
		c.logger.Warn("handler error", "err", err, "attempt", attempt, "topic", msg.Topic)
		if attempt < c.opts.MaxAttempts && !sleep(ctx, c.opts.RetryBackoff*time.Duration(attempt)) {
			return ctx.Err()
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
)

type batchSource interface {
	Batch(ctx context.Context, limit int, fn func([]Record) error) (int, error)
}

type Publisher struct {
	src       batchSource
	writer    kafkax.MessageWriter
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

// NewPublisher returns nil when writer is nil (no brokers configured); events
// then stay in the outbox until a publisher runs.
func NewPublisher(src batchSource, writer kafkax.MessageWriter, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if writer == nil {
		return nil
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		src:       src,
		writer:    writer,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if p == nil {
		return
	}
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain while full batches keep coming back.
			for {
				n, err := p.PublishOnce(ctx)
				if err != nil {
					p.logger.Error("outbox publish failed", "err", err)
					break
				}
				if n < p.batchSize {
					break
				}
			}
		}
	}
}

// PublishOnce sends one batch and returns how many events were published.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	return p.src.Batch(ctx, p.batchSize, func(records []Record) error {
		for _, r := range records {
			msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
			msg := kafkax.NewMessage(msgCtx, r.EventType, r.AggregateID, r.Payload, kafkax.EventMeta{
				EventID:   r.EventID,
				EventType: r.EventType,
			})
			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

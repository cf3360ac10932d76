package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/sender"
)

// Queue hands out due notifications. Rows are claimed under a lease in one
// short transaction and their outcomes recorded in another, so no transaction
// stays open across a network send.
type Queue interface {
	WithinTx(ctx context.Context, fn func(tx QueueTx) error) error
}

type QueueTx interface {
	// FetchDue locks scheduled rows with send_at <= now and failed rows still
	// under their retry bound whose next attempt is due.
	// Rows under an unexpired lease are skipped.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]model.Notification, error)
	// Claim leases rows until the given time. A worker that dies mid-batch
	// leaves them to be picked up again once the lease lapses.
	Claim(ctx context.Context, ids []string, until time.Time) error
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, f Failure) error
	MarkCancelled(ctx context.Context, id, reason string, at time.Time) error
}

// Failure is one failed delivery attempt. NextAttemptAt is nil once the retry
// bound is reached.
type Failure struct {
	Reason        string
	RetryCount    int
	NextAttemptAt *time.Time
	At            time.Time
}

// Recipients reports the clinic settings and patient opt-outs that apply at
// send time.
type Recipients interface {
	Settings(ctx context.Context, clinicID string) (model.ClinicSettings, error)
	Preferences(ctx context.Context, clinicID, patientID string) (model.Preferences, error)
}

type Worker struct {
	queue       Queue
	recipients  Recipients
	senders     map[model.Channel]sender.Sender
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	sendTimeout time.Duration
	lease       time.Duration
	now         func() time.Time
}

type WorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	SendTimeout time.Duration
	// Lease defaults to enough time to send a whole batch one by one.
	Lease time.Duration
	Now   func() time.Time
}

func NewWorker(queue Queue, recipients Recipients, senders map[model.Channel]sender.Sender, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Duration(cfg.BatchSize)*cfg.SendTimeout + time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{
		queue:       queue,
		recipients:  recipients,
		senders:     senders,
		logger:      logger,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		sendTimeout: cfg.SendTimeout,
		lease:       cfg.Lease,
		now:         cfg.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				n, err := w.RunOnce(ctx)
				if err != nil {
					w.logger.Error("dispatch batch failed", "err", err)
					break
				}
				if n < w.batchSize {
					break
				}
			}
		}
	}
}

// RunOnce dispatches one batch and returns how many rows it handled.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	due, err := w.claim(ctx)
	if err != nil {
		return 0, err
	}
	settings := map[string]model.ClinicSettings{}
	for i, n := range due {
		if err := w.dispatch(ctx, n, settings); err != nil {
			return i, err
		}
	}
	return len(due), nil
}

func (w *Worker) claim(ctx context.Context) ([]model.Notification, error) {
	var due []model.Notification
	err := w.queue.WithinTx(ctx, func(tx QueueTx) error {
		now := w.now().UTC()
		rows, err := tx.FetchDue(ctx, now, w.batchSize)
		if err != nil || len(rows) == 0 {
			return err
		}
		ids := make([]string, len(rows))
		for i, n := range rows {
			ids[i] = n.ID
		}
		if err := tx.Claim(ctx, ids, now.Add(w.lease)); err != nil {
			return err
		}
		due = rows
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim due notifications: %w", err)
	}
	return due, nil
}

// dispatch delivers one claimed notification and records the outcome. Only a
// failure to record the outcome is returned.
func (w *Worker) dispatch(ctx context.Context, n model.Notification, settings map[string]model.ClinicSettings) error {
	rowCtx := otelx.ContextWithTraceContext(ctx, n.Traceparent, n.Tracestate)
	rowCtx, span := otel.Tracer("scheduler-service/jobs").Start(rowCtx, "notify.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("notification.id", n.ID),
		attribute.String("notification.channel", string(n.Channel)),
		attribute.Int("notification.retry_count", n.RetryCount),
	)

	prefs, err := w.recipients.Preferences(rowCtx, n.ClinicID, n.PatientID)
	if err != nil {
		return err
	}
	if !prefs.Allows(n.Type) {
		w.logger.Info("notification cancelled, patient opted out", "notification_id", n.ID, "type", n.Type)
		return w.record(rowCtx, func(tx QueueTx) error {
			return tx.MarkCancelled(rowCtx, n.ID, notify.ReasonOptedOut, w.now().UTC())
		})
	}

	sendErr := w.send(rowCtx, n)
	now := w.now().UTC()
	if sendErr == nil {
		return w.record(rowCtx, func(tx QueueTx) error {
			return tx.MarkSent(rowCtx, n.ID, now)
		})
	}
	span.RecordError(sendErr)
	span.SetStatus(codes.Error, "delivery failed")

	cs, ok := settings[n.ClinicID]
	if !ok {
		if cs, err = w.recipients.Settings(rowCtx, n.ClinicID); err != nil {
			return err
		}
		cs = model.ApplyDefaults(cs)
		settings[n.ClinicID] = cs
	}
	f := NextFailure(n, sendErr, cs.RetryBackoff, now)
	w.logger.Warn("notification delivery failed",
		"notification_id", n.ID,
		"channel", n.Channel,
		"retry_count", f.RetryCount,
		"final", f.NextAttemptAt == nil,
		"err", sendErr,
	)
	return w.record(rowCtx, func(tx QueueTx) error {
		return tx.MarkFailed(rowCtx, n.ID, f)
	})
}

func (w *Worker) record(ctx context.Context, fn func(tx QueueTx) error) error {
	return w.queue.WithinTx(ctx, fn)
}

func (w *Worker) send(ctx context.Context, n model.Notification) error {
	s, ok := w.senders[n.Channel]
	if !ok || s == nil {
		return fmt.Errorf("no sender for channel %q", n.Channel)
	}
	ctx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()
	return s.Send(ctx, sender.Message{To: n.Recipient, Subject: n.Subject, Body: n.Message})
}

const (
	maxReasonLen = 500
	// MaxRetryDelay bounds the doubled backoff between two attempts.
	MaxRetryDelay = 24 * time.Hour
	maxShift      = 20
)

// NextFailure computes the failed state after err. The backoff doubles with
// every retry up to MaxRetryDelay. A permanent error exhausts the retry bound at once.
func NextFailure(n model.Notification, err error, backoff time.Duration, now time.Time) Failure {
	maxRetries := n.MaxRetries
	if maxRetries <= 0 {
		maxRetries = model.DefaultMaxRetries
	}
	retry := n.RetryCount + 1
	if errors.Is(err, sender.ErrPermanent) && retry < maxRetries {
		retry = maxRetries
	}
	reason := err.Error()
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	f := Failure{Reason: reason, RetryCount: retry, At: now}
	if retry < maxRetries {
		next := now.Add(retryDelay(backoff, retry))
		f.NextAttemptAt = &next
	}
	return f
}

func retryDelay(backoff time.Duration, retry int) time.Duration {
	shift := retry - 1
	if shift > maxShift {
		shift = maxShift
	}
	d := backoff << uint(shift)
	if d <= 0 || d > MaxRetryDelay {
		return MaxRetryDelay
	}
	return d
}

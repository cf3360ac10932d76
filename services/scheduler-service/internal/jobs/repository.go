package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/storage"
)

// Repository is the Postgres-backed dispatch queue over scheduled_notifications.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(tx QueueTx) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&queueTx{tx: tx})
	})
}

type queueTx struct {
	tx pgx.Tx
}

func (q *queueTx) FetchDue(ctx context.Context, now time.Time, limit int) ([]model.Notification, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT `+storage.NotificationColumns+`
		FROM scheduled_notifications
		WHERE ((status = 'scheduled' AND send_at <= $1)
		   OR (status = 'failed' AND retry_count < max_retries AND next_attempt_at <= $1))
		  AND (lease_until IS NULL OR lease_until <= $1)
		ORDER BY send_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return storage.ScanNotifications(rows)
}

func (q *queueTx) Claim(ctx context.Context, ids []string, until time.Time) error {
	_, err := q.tx.Exec(ctx, `
		UPDATE scheduled_notifications SET lease_until = $2 WHERE id = ANY($1)
	`, ids, until)
	return err
}

func (q *queueTx) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := q.tx.Exec(ctx, `
		UPDATE scheduled_notifications
		SET status = 'sent', sent_at = $2, next_attempt_at = NULL, failure_reason = NULL,
		    lease_until = NULL, updated_at = $2
		WHERE id = $1
	`, id, at)
	return err
}

func (q *queueTx) MarkFailed(ctx context.Context, id string, f Failure) error {
	_, err := q.tx.Exec(ctx, `
		UPDATE scheduled_notifications
		SET status = 'failed',
		    retry_count = $2,
		    next_attempt_at = $3,
		    failure_reason = $4,
		    lease_until = NULL,
		    updated_at = $5
		WHERE id = $1 AND status IN ('scheduled', 'failed')
	`, id, f.RetryCount, f.NextAttemptAt, f.Reason, f.At)
	return err
}

func (q *queueTx) MarkCancelled(ctx context.Context, id, reason string, at time.Time) error {
	_, err := q.tx.Exec(ctx, `
		UPDATE scheduled_notifications
		SET status = 'cancelled', failure_reason = $2, next_attempt_at = NULL, lease_until = NULL, updated_at = $3
		WHERE id = $1 AND status IN ('scheduled', 'failed')
	`, id, reason, at)
	return err
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/notify"
)

// NotificationColumns is the select list ScanNotifications expects.
const NotificationColumns = `id::text, clinic_id, patient_id, appointment_id, template_id, type, channel,
	recipient, subject, message, send_at, status, is_auto_reminder, retry_count, max_retries,
	next_attempt_at, COALESCE(failure_reason, ''), sent_at, COALESCE(traceparent, ''),
	COALESCE(tracestate, ''), created_at, updated_at`

func ScanNotifications(rows pgx.Rows) ([]model.Notification, error) {
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var typ, channel, status string
		if err := rows.Scan(&n.ID, &n.ClinicID, &n.PatientID, &n.AppointmentID, &n.TemplateID, &typ, &channel,
			&n.Recipient, &n.Subject, &n.Message, &n.SendAt, &status, &n.IsAutoReminder, &n.RetryCount, &n.MaxRetries,
			&n.NextAttemptAt, &n.FailureReason, &n.SentAt, &n.Traceparent,
			&n.Tracestate, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		n.Type = model.NotificationType(typ)
		n.Channel = model.Channel(channel)
		n.Status = model.Status(status)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Repository is the scheduler's Postgres store.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(tx notify.Tx) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&notifyTx{tx: tx})
	})
}

// ListNotifications returns a patient's notifications, newest send time first.
func (r *Repository) ListNotifications(ctx context.Context, clinicID, patientID string, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+NotificationColumns+`
		FROM scheduled_notifications
		WHERE clinic_id = $1 AND patient_id = $2
		ORDER BY send_at DESC
		LIMIT $3
	`, clinicID, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return ScanNotifications(rows)
}

type notifyTx struct {
	tx pgx.Tx
}

// InsertNotification stores n with the trace context of ctx so dispatch can
// continue the trace.
func (t *notifyTx) InsertNotification(ctx context.Context, n model.Notification) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := t.tx.Exec(ctx, `
		INSERT INTO scheduled_notifications (
			id, clinic_id, patient_id, appointment_id, template_id, type, channel, recipient,
			subject, message, send_at, status, is_auto_reminder, retry_count, max_retries,
			traceparent, tracestate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
	`, n.ID, n.ClinicID, n.PatientID, n.AppointmentID, n.TemplateID, string(n.Type), string(n.Channel), n.Recipient,
		n.Subject, n.Message, n.SendAt, string(n.Status), n.IsAutoReminder, n.RetryCount, n.MaxRetries,
		traceparent, tracestate, n.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("insert notification: active reminder exists for appointment %s: %w", n.AppointmentID, err)
	}
	return err
}

func (t *notifyTx) ActiveAutoReminder(ctx context.Context, patientID, appointmentID string) (model.Notification, bool, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+NotificationColumns+`
		FROM scheduled_notifications
		WHERE patient_id = $1 AND appointment_id = $2
		  AND status = 'scheduled' AND is_auto_reminder
		FOR UPDATE
	`, patientID, appointmentID)
	if err != nil {
		return model.Notification{}, false, err
	}
	found, err := ScanNotifications(rows)
	if err != nil || len(found) == 0 {
		return model.Notification{}, false, err
	}
	return found[0], true, nil
}

func (t *notifyTx) CancelScheduled(ctx context.Context, appointmentID string, autoOnly bool, reason string, at time.Time) (int, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE scheduled_notifications
		SET status = 'cancelled', failure_reason = $3, next_attempt_at = NULL, updated_at = $4
		WHERE appointment_id = $1
		  AND (status = 'scheduled' OR (status = 'failed' AND next_attempt_at IS NOT NULL))
		  AND (NOT $2 OR is_auto_reminder)
	`, appointmentID, autoOnly, reason, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *notifyTx) TrackAppointment(ctx context.Context, appointmentID string, status model.AppointmentStatus, at time.Time) (model.AppointmentStatus, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointment_states (appointment_id, status, status_rank, occurred_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (appointment_id) DO UPDATE
		SET status = EXCLUDED.status, status_rank = EXCLUDED.status_rank,
		    occurred_at = EXCLUDED.occurred_at, updated_at = now()
		WHERE appointment_states.status_rank < EXCLUDED.status_rank
	`, appointmentID, string(status), status.Rank(), at)
	if err != nil {
		return "", fmt.Errorf("track appointment %s: %w", appointmentID, err)
	}
	var current string
	err = t.tx.QueryRow(ctx, `
		SELECT status FROM appointment_states WHERE appointment_id = $1 FOR UPDATE
	`, appointmentID).Scan(&current)
	if err != nil {
		return "", fmt.Errorf("track appointment %s: %w", appointmentID, err)
	}
	return model.AppointmentStatus(current), nil
}

func (t *notifyTx) CancelNotification(ctx context.Context, id, reason string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE scheduled_notifications
		SET status = 'cancelled', failure_reason = $2, updated_at = $3
		WHERE id = $1
	`, id, reason, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

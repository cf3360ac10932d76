package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
)

func (r *Repository) Templates(ctx context.Context, clinicID string) ([]model.Template, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, clinic_id, name, type, body, line_body, email_subject, email_body, sms_body,
			auto_send, trigger, offset_value, offset_unit
		FROM notification_templates
		WHERE clinic_id = $1 AND active
		ORDER BY created_at, id
	`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		var t model.Template
		var typ, trigger, unit string
		if err := rows.Scan(&t.ID, &t.ClinicID, &t.Name, &typ, &t.Body, &t.LineBody, &t.EmailSubject, &t.EmailBody, &t.SMSBody,
			&t.AutoSend, &trigger, &t.OffsetValue, &unit); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t.Type = model.NotificationType(typ)
		t.Trigger = model.Trigger(trigger)
		t.OffsetUnit = model.OffsetUnit(unit)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) PutTemplate(ctx context.Context, t model.Template) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_templates (id, clinic_id, name, type, body, line_body, email_subject, email_body,
			sms_body, auto_send, trigger, offset_value, offset_unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, body = EXCLUDED.body, line_body = EXCLUDED.line_body,
			email_subject = EXCLUDED.email_subject, email_body = EXCLUDED.email_body, sms_body = EXCLUDED.sms_body,
			auto_send = EXCLUDED.auto_send, trigger = EXCLUDED.trigger, offset_value = EXCLUDED.offset_value,
			offset_unit = EXCLUDED.offset_unit, active = true, updated_at = now()
		WHERE notification_templates.clinic_id = EXCLUDED.clinic_id
	`, t.ID, t.ClinicID, t.Name, string(t.Type), t.Body, t.LineBody, t.EmailSubject, t.EmailBody,
		t.SMSBody, t.AutoSend, string(t.Trigger), t.OffsetValue, string(t.OffsetUnit))
	if err != nil {
		return fmt.Errorf("put template: %w", err)
	}
	return nil
}

// Settings returns the zero value when the clinic has no row.
func (r *Repository) Settings(ctx context.Context, clinicID string) (model.ClinicSettings, error) {
	s := model.ClinicSettings{ClinicID: clinicID}
	var backoffSeconds int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(timezone, ''), COALESCE(send_hour, 0), COALESCE(max_retries, 0), COALESCE(retry_backoff_seconds, 0)
		FROM clinic_notification_settings
		WHERE clinic_id = $1
	`, clinicID).Scan(&s.Timezone, &s.SendHour, &s.MaxRetries, &backoffSeconds)
	if db.IsNoRows(err) {
		return model.ClinicSettings{ClinicID: clinicID}, nil
	}
	if err != nil {
		return model.ClinicSettings{}, fmt.Errorf("load settings: %w", err)
	}
	s.RetryBackoff = time.Duration(backoffSeconds) * time.Second
	return s, nil
}

func (r *Repository) PutSettings(ctx context.Context, s model.ClinicSettings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO clinic_notification_settings (clinic_id, timezone, send_hour, max_retries, retry_backoff_seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (clinic_id) DO UPDATE SET
			timezone = EXCLUDED.timezone, send_hour = EXCLUDED.send_hour, max_retries = EXCLUDED.max_retries,
			retry_backoff_seconds = EXCLUDED.retry_backoff_seconds, updated_at = now()
	`, s.ClinicID, s.Timezone, s.SendHour, s.MaxRetries, int(s.RetryBackoff/time.Second))
	if err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}

func (r *Repository) Preferences(ctx context.Context, clinicID, patientID string) (model.Preferences, error) {
	p := model.Preferences{ClinicID: clinicID, PatientID: patientID, Enabled: map[model.NotificationType]bool{}}
	rows, err := r.pool.Query(ctx, `
		SELECT notification_type, enabled
		FROM patient_notification_preferences
		WHERE clinic_id = $1 AND patient_id = $2
	`, clinicID, patientID)
	if err != nil {
		return model.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var enabled bool
		if err := rows.Scan(&typ, &enabled); err != nil {
			return model.Preferences{}, fmt.Errorf("scan preference: %w", err)
		}
		p.Enabled[model.NotificationType(typ)] = enabled
	}
	return p, rows.Err()
}

// PutPreferences upserts every entry of p.Enabled. Types not mentioned keep
// their stored value.
func (r *Repository) PutPreferences(ctx context.Context, p model.Preferences) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		for typ, enabled := range p.Enabled {
			_, err := tx.Exec(ctx, `
				INSERT INTO patient_notification_preferences (clinic_id, patient_id, notification_type, enabled)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (clinic_id, patient_id, notification_type)
				DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()
			`, p.ClinicID, p.PatientID, string(typ), enabled)
			if err != nil {
				return fmt.Errorf("put preference %s: %w", typ, err)
			}
		}
		return nil
	})
}

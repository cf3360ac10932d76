package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

// AppointmentStore is the transactional side of lifecycle.Store.
type AppointmentStore struct {
	pool *db.Pool
	repo *Repository
}

func NewAppointmentStore(pool *db.Pool, repo *Repository) *AppointmentStore {
	return &AppointmentStore{pool: pool, repo: repo}
}

func (s *AppointmentStore) WithinTx(ctx context.Context, fn func(tx lifecycle.Tx) error) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&appointmentTx{tx: tx})
	})
}

func (s *AppointmentStore) GetAppointment(ctx context.Context, clinicID, id string) (model.Appointment, error) {
	return s.repo.GetAppointment(ctx, clinicID, id)
}

type appointmentTx struct {
	tx pgx.Tx
}

func (t *appointmentTx) ClaimIdempotencyKey(ctx context.Context, clinicID, key string) (string, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (clinic_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (clinic_id, idempotency_key) DO NOTHING
	`, clinicID, key)
	if err != nil {
		return "", classify("claim idempotency key", err)
	}
	var apptID string
	err = t.tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM booking_idempotency_keys
		WHERE clinic_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, clinicID, key).Scan(&apptID)
	if err != nil {
		return "", classify("lock idempotency key", err)
	}
	return apptID, nil
}

func (t *appointmentTx) SaveIdempotencyKey(ctx context.Context, clinicID, key, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3, updated_at = now()
		WHERE clinic_id = $1 AND idempotency_key = $2
	`, clinicID, key, appointmentID)
	return classify("save idempotency key", err)
}

func (t *appointmentTx) GetAppointmentForUpdate(ctx context.Context, clinicID, id string) (model.Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND id::text = $2
		FOR UPDATE
	`, clinicID, id)
	if err != nil {
		return model.Appointment{}, classify("lock appointment", err)
	}
	appts, err := scanAppointments(rows)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(appts) == 0 {
		return model.Appointment{}, classify("lock appointment", pgx.ErrNoRows)
	}
	appts, err = attachAssignments(ctx, t.tx, appts)
	if err != nil {
		return model.Appointment{}, err
	}
	return appts[0], nil
}

func (t *appointmentTx) BookingData(ctx context.Context, clinicID string, date time.Time) (availability.Data, error) {
	staff, err := t.staff(ctx, clinicID)
	if err != nil {
		return availability.Data{}, err
	}
	duty, err := dutyRecords(ctx, t.tx, clinicID, date, date)
	if err != nil {
		return availability.Data{}, err
	}
	appts, err := activeAppointments(ctx, t.tx, clinicID, date, date)
	if err != nil {
		return availability.Data{}, err
	}
	return availability.Data{Staff: staff, Duty: duty, Appointments: appts}, nil
}

func (t *appointmentTx) staff(ctx context.Context, clinicID string) ([]model.Staff, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, clinic_id, name, active FROM staff WHERE clinic_id = $1`, clinicID)
	if err != nil {
		return nil, classify("load staff", err)
	}
	defer rows.Close()
	var out []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.ID, &s.ClinicID, &s.Name, &s.Active); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertAppointment writes the appointment and one appointment_staff row per
// assignment. The exclusion constraint on appointment_staff rejects overlaps
// that slipped past the application check.
func (t *appointmentTx) InsertAppointment(ctx context.Context, a model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, clinic_id, patient_id, patient_name, patient_email, patient_phone, patient_line_id,
			 preferred_channel, treatment_id, treatment_name, date, start_minute, end_minute, staff_id,
			 secondary_staff_ids, status, is_block, rescheduled_from, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
			NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13, NULLIF($14, ''), $15, $16, $17,
			NULLIF($18, '')::uuid, $19, $19)
	`, a.ID, a.ClinicID, a.PatientID, a.PatientName, a.PatientEmail, a.PatientPhone, a.PatientLineID,
		a.PreferredChannel, a.TreatmentID, a.TreatmentName, a.Date, int(a.Start), int(a.End), a.StaffID,
		a.SecondaryStaff, string(a.Status), a.IsBlock, a.RescheduledFrom, a.CreatedAt)
	if err != nil {
		return classify("insert appointment", err)
	}

	assignments := a.Assignments
	if len(assignments) == 0 {
		for i, id := range a.StaffIDs() {
			assignments = append(assignments, model.Assignment{StaffID: id, Step: i, Start: a.Start, End: a.End})
		}
	}
	for _, as := range assignments {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO appointment_staff (appointment_id, clinic_id, staff_id, date, step, start_minute, end_minute, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		`, a.ID, a.ClinicID, as.StaffID, a.Date, as.Step, int(as.Start), int(as.End))
		if err != nil {
			return classify("insert appointment staff", err)
		}
	}
	return nil
}

func (t *appointmentTx) UpdateStatus(ctx context.Context, clinicID, id string, to model.Status, reason string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3,
			cancel_reason = CASE WHEN $3 = 'cancelled' THEN NULLIF($4, '') ELSE cancel_reason END,
			cancelled_at = CASE WHEN $3 = 'cancelled' THEN $5 ELSE cancelled_at END,
			updated_at = $5
		WHERE clinic_id = $1 AND id::text = $2
	`, clinicID, id, string(to), reason, at)
	if err != nil {
		return classify("update status", err)
	}
	if tag.RowsAffected() == 0 {
		return classify("update status", pgx.ErrNoRows)
	}
	if to == model.StatusCancelled {
		// Cancelled bookings stop occupying staff time.
		if _, err := t.tx.Exec(ctx, `UPDATE appointment_staff SET active = false WHERE appointment_id::text = $1`, id); err != nil {
			return classify("release appointment staff", err)
		}
	}
	return nil
}

func (t *appointmentTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return outbox.Insert(ctx, t.tx, evt)
}

var _ lifecycle.Store = (*AppointmentStore)(nil)

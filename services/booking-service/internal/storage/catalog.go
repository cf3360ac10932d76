package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Repository reads clinic configuration and appointments from PostgreSQL.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Clinic(ctx context.Context, clinicID string) (model.Clinic, error) {
	var c model.Clinic
	var defaultHours []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(timezone, ''), COALESCE(slot_minutes, 0), default_hours
		FROM clinics
		WHERE id = $1
	`, clinicID).Scan(&c.ID, &c.Name, &c.Timezone, &c.SlotMinutes, &defaultHours)
	if err != nil {
		return model.Clinic{}, classify("load clinic", err)
	}
	if c.DefaultHours, err = decodeIntervals(defaultHours); err != nil {
		return model.Clinic{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT weekday, closed, open_intervals, breaks
		FROM clinic_weekly_hours
		WHERE clinic_id = $1
	`, clinicID)
	if err != nil {
		return model.Clinic{}, classify("load weekly hours", err)
	}
	for rows.Next() {
		var wd int
		var closed bool
		var open, breaks []byte
		if err := rows.Scan(&wd, &closed, &open, &breaks); err != nil {
			rows.Close()
			return model.Clinic{}, err
		}
		if wd < 0 || wd > 6 {
			continue
		}
		day := model.DaySchedule{Closed: closed}
		if day.Open, err = decodeIntervals(open); err != nil {
			rows.Close()
			return model.Clinic{}, err
		}
		c.Weekly[wd] = day
		if c.Breaks[wd], err = decodeIntervals(breaks); err != nil {
			rows.Close()
			return model.Clinic{}, err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.Clinic{}, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT date, kind, hours, breaks, COALESCE(reason, '')
		FROM clinic_date_overrides
		WHERE clinic_id = $1 AND date >= CURRENT_DATE - 1
	`, clinicID)
	if err != nil {
		return model.Clinic{}, classify("load overrides", err)
	}
	defer rows.Close()
	c.Overrides = map[string]model.DateOverride{}
	for rows.Next() {
		var ov model.DateOverride
		var kind string
		var hours, breaks []byte
		if err := rows.Scan(&ov.Date, &kind, &hours, &breaks, &ov.Reason); err != nil {
			return model.Clinic{}, err
		}
		ov.Kind = model.OverrideKind(kind)
		if ov.Hours, err = decodeIntervals(hours); err != nil {
			return model.Clinic{}, err
		}
		if ov.Breaks, err = decodeIntervals(breaks); err != nil {
			return model.Clinic{}, err
		}
		ov.Date = model.DateOf(ov.Date)
		c.Overrides[model.FormatDate(ov.Date)] = ov
	}
	if err := rows.Err(); err != nil {
		return model.Clinic{}, err
	}
	return c, nil
}

// UpsertOverride stores a per-date override. Callers holding a cache must
// invalidate the clinic afterwards.
func (r *Repository) UpsertOverride(ctx context.Context, clinicID string, ov model.DateOverride) error {
	hours, err := encodeIntervals(ov.Hours)
	if err != nil {
		return err
	}
	breaks, err := encodeIntervals(ov.Breaks)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO clinic_date_overrides (clinic_id, date, kind, hours, breaks, reason)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (clinic_id, date) DO UPDATE
		SET kind = EXCLUDED.kind, hours = EXCLUDED.hours, breaks = EXCLUDED.breaks, reason = EXCLUDED.reason
	`, clinicID, ov.Date, string(ov.Kind), hours, breaks, ov.Reason)
	return classify("upsert override", err)
}

func (r *Repository) Treatment(ctx context.Context, clinicID, treatmentID string) (model.Treatment, error) {
	var t model.Treatment
	err := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, name, duration_minutes, allows_new_patient, allows_returning_patient,
			web_bookable, COALESCE(staff_ids, '{}')
		FROM treatments
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, treatmentID).Scan(&t.ID, &t.ClinicID, &t.Name, &t.DurationMinutes, &t.AllowsNewPatient,
		&t.AllowsReturningPatient, &t.WebBookable, &t.StaffIDs)
	if err != nil {
		return model.Treatment{}, classify("load treatment", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(step_treatment_id, ''), name, duration_minutes, COALESCE(staff_ids, '{}')
		FROM treatment_steps
		WHERE treatment_id = $1
		ORDER BY position
	`, treatmentID)
	if err != nil {
		return model.Treatment{}, classify("load treatment steps", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s model.Step
		if err := rows.Scan(&s.TreatmentID, &s.Name, &s.DurationMinutes, &s.StaffIDs); err != nil {
			return model.Treatment{}, err
		}
		t.Steps = append(t.Steps, s)
	}
	return t, rows.Err()
}

func (r *Repository) Staff(ctx context.Context, clinicID string) ([]model.Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, clinic_id, name, active
		FROM staff
		WHERE clinic_id = $1
		ORDER BY id
	`, clinicID)
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

func (r *Repository) DutyRecords(ctx context.Context, clinicID string, from, to time.Time) ([]model.DutyRecord, error) {
	return dutyRecords(ctx, r.pool, clinicID, from, to)
}

// Appointments returns non-cancelled appointments and blocks in [from, to].
func (r *Repository) Appointments(ctx context.Context, clinicID string, from, to time.Time) ([]model.Appointment, error) {
	return activeAppointments(ctx, r.pool, clinicID, from, to)
}

// ListAppointments returns every appointment on date, cancelled ones included.
func (r *Repository) ListAppointments(ctx context.Context, clinicID string, date time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND date = $2
		ORDER BY start_minute, id
		LIMIT $3
	`, clinicID, date, limit)
	if err != nil {
		return nil, classify("list appointments", err)
	}
	return scanAppointments(rows)
}

func (r *Repository) GetAppointment(ctx context.Context, clinicID, id string) (model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id)
	if err != nil {
		return model.Appointment{}, classify("load appointment", err)
	}
	appts, err := scanAppointments(rows)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(appts) == 0 {
		return model.Appointment{}, classify("load appointment", pgx.ErrNoRows)
	}
	return appts[0], nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func dutyRecords(ctx context.Context, q querier, clinicID string, from, to time.Time) ([]model.DutyRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT d.staff_id, d.date, d.is_off,
			p.name, p.start_minute, p.end_minute, p.break_start_minute, p.break_end_minute
		FROM duty_records d
		JOIN staff s ON s.id = d.staff_id
		LEFT JOIN shift_patterns p ON p.id = d.shift_pattern_id
		WHERE s.clinic_id = $1 AND d.date BETWEEN $2 AND $3
	`, clinicID, from, to)
	if err != nil {
		return nil, classify("load duty records", err)
	}
	defer rows.Close()

	var out []model.DutyRecord
	for rows.Next() {
		var d model.DutyRecord
		var name *string
		var start, end, breakStart, breakEnd *int
		if err := rows.Scan(&d.StaffID, &d.Date, &d.Off, &name, &start, &end, &breakStart, &breakEnd); err != nil {
			return nil, err
		}
		d.Date = model.DateOf(d.Date)
		if !d.Off && name != nil {
			shift := &model.ShiftPattern{Name: *name}
			if start != nil && end != nil {
				shift.Hours = model.Interval{Start: model.Minute(*start), End: model.Minute(*end)}
			}
			if breakStart != nil && breakEnd != nil {
				shift.Break = &model.Interval{Start: model.Minute(*breakStart), End: model.Minute(*breakEnd)}
			}
			d.Shift = shift
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func activeAppointments(ctx context.Context, q querier, clinicID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND date BETWEEN $2 AND $3 AND status <> 'cancelled'
		ORDER BY date, start_minute
	`, clinicID, from, to)
	if err != nil {
		return nil, classify("load appointments", err)
	}
	appts, err := scanAppointments(rows)
	if err != nil {
		return nil, err
	}
	return attachAssignments(ctx, q, appts)
}

const appointmentColumns = `id::text, clinic_id, patient_id, patient_name, COALESCE(patient_email, ''),
	COALESCE(patient_phone, ''), COALESCE(patient_line_id, ''), COALESCE(preferred_channel, ''),
	COALESCE(treatment_id, ''), COALESCE(treatment_name, ''), date, start_minute, end_minute,
	COALESCE(staff_id, ''), COALESCE(secondary_staff_ids, '{}'), status, is_block,
	COALESCE(rescheduled_from::text, ''), cancelled_at, COALESCE(cancel_reason, ''), created_at, updated_at`

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		var a model.Appointment
		var start, end int
		var status string
		if err := rows.Scan(
			&a.ID,
			&a.ClinicID,
			&a.PatientID,
			&a.PatientName,
			&a.PatientEmail,
			&a.PatientPhone,
			&a.PatientLineID,
			&a.PreferredChannel,
			&a.TreatmentID,
			&a.TreatmentName,
			&a.Date,
			&start,
			&end,
			&a.StaffID,
			&a.SecondaryStaff,
			&status,
			&a.IsBlock,
			&a.RescheduledFrom,
			&a.CancelledAt,
			&a.CancelReason,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.Date = model.DateOf(a.Date)
		a.Start = model.Minute(start)
		a.End = model.Minute(end)
		a.Status = model.Status(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// attachAssignments loads per-step staff windows for appts.
func attachAssignments(ctx context.Context, q querier, appts []model.Appointment) ([]model.Appointment, error) {
	if len(appts) == 0 {
		return appts, nil
	}
	ids := make([]string, 0, len(appts))
	pos := make(map[string]int, len(appts))
	for i, a := range appts {
		ids = append(ids, a.ID)
		pos[a.ID] = i
	}
	rows, err := q.Query(ctx, `
		SELECT appointment_id::text, staff_id, step, start_minute, end_minute
		FROM appointment_staff
		WHERE appointment_id::text = ANY($1)
		ORDER BY appointment_id, step
	`, ids)
	if err != nil {
		return nil, classify("load assignments", err)
	}
	defer rows.Close()
	for rows.Next() {
		var apptID string
		var as model.Assignment
		var start, end int
		if err := rows.Scan(&apptID, &as.StaffID, &as.Step, &start, &end); err != nil {
			return nil, err
		}
		as.Start = model.Minute(start)
		as.End = model.Minute(end)
		if i, ok := pos[apptID]; ok {
			appts[i].Assignments = append(appts[i].Assignments, as)
		}
	}
	return appts, rows.Err()
}

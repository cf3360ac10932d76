package availability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Source reads the clinic configuration and bookings a grid is built from.
// Appointments returns non-cancelled rows, blocks included, for [from, to].
type Source interface {
	Clinic(ctx context.Context, clinicID string) (model.Clinic, error)
	Treatment(ctx context.Context, clinicID, treatmentID string) (model.Treatment, error)
	Staff(ctx context.Context, clinicID string) ([]model.Staff, error)
	DutyRecords(ctx context.Context, clinicID string, from, to time.Time) ([]model.DutyRecord, error)
	Appointments(ctx context.Context, clinicID string, from, to time.Time) ([]model.Appointment, error)
}

type Engine struct {
	src Source
	now func() time.Time
}

func NewEngine(src Source, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{src: src, now: now}
}

type WeeklyQuery struct {
	ClinicID    string
	TreatmentID string
	PatientType string
	StartDate   string
}

type RescheduleRequest struct {
	ClinicID             string
	DurationMinutes      int
	StaffID              string
	ExcludeAppointmentID string
	StartDate            string
}

func (e *Engine) WeeklyGrid(ctx context.Context, q WeeklyQuery) ([]Slot, error) {
	q.ClinicID = strings.TrimSpace(q.ClinicID)
	q.TreatmentID = strings.TrimSpace(q.TreatmentID)
	if q.ClinicID == "" || q.TreatmentID == "" {
		return nil, fmt.Errorf("clinic_id and treatment_id required: %w", model.ErrInvalidInput)
	}
	pt, ok := model.ParsePatientType(q.PatientType)
	if !ok {
		return nil, fmt.Errorf("patient_type must be new or returning: %w", model.ErrInvalidInput)
	}
	start, err := model.ParseDate(q.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	}

	ctx, span := otel.Tracer("booking-service/availability").Start(ctx, "availability.weekly_grid")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.id", q.ClinicID),
		attribute.String("treatment.id", q.TreatmentID),
		attribute.String("grid.start", q.StartDate),
	)

	clinic, err := e.src.Clinic(ctx, q.ClinicID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	t, err := e.src.Treatment(ctx, q.ClinicID, q.TreatmentID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !t.AllowsPatient(pt) || !t.Bookable() {
		return nil, nil
	}
	data, err := e.load(ctx, q.ClinicID, start)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	slots := BuildWeeklyGrid(model.ApplyDefaults(clinic), t, pt, start, data, e.now())
	span.SetAttributes(attribute.Int("grid.slots", len(slots)))
	return slots, nil
}

func (e *Engine) RescheduleGrid(ctx context.Context, req RescheduleRequest) ([]Slot, error) {
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	if req.ClinicID == "" {
		return nil, fmt.Errorf("clinic_id required: %w", model.ErrInvalidInput)
	}
	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("duration must be positive: %w", model.ErrInvalidInput)
	}
	start, err := model.ParseDate(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	}

	ctx, span := otel.Tracer("booking-service/availability").Start(ctx, "availability.reschedule_grid")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.id", req.ClinicID), attribute.String("grid.start", req.StartDate))

	clinic, err := e.src.Clinic(ctx, req.ClinicID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	data, err := e.load(ctx, req.ClinicID, start)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return BuildRescheduleGrid(model.ApplyDefaults(clinic), RescheduleQuery{
		DurationMinutes:      req.DurationMinutes,
		StaffID:              strings.TrimSpace(req.StaffID),
		ExcludeAppointmentID: strings.TrimSpace(req.ExcludeAppointmentID),
		StartDate:            start,
	}, data, e.now()), nil
}

func (e *Engine) load(ctx context.Context, clinicID string, start time.Time) (Data, error) {
	end := start.AddDate(0, 0, GridDays-1)
	staff, err := e.src.Staff(ctx, clinicID)
	if err != nil {
		return Data{}, fmt.Errorf("load staff: %w", err)
	}
	duty, err := e.src.DutyRecords(ctx, clinicID, start, end)
	if err != nil {
		return Data{}, fmt.Errorf("load duty records: %w", err)
	}
	appts, err := e.src.Appointments(ctx, clinicID, start, end)
	if err != nil {
		return Data{}, fmt.Errorf("load appointments: %w", err)
	}
	return Data{Staff: staff, Duty: duty, Appointments: appts}, nil
}

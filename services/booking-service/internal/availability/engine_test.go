package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

type fakeSource struct {
	clinic     model.Clinic
	treatments map[string]model.Treatment
	staff      []model.Staff
	duty       []model.DutyRecord
	appts      []model.Appointment
	apptCalls  int
}

func (f *fakeSource) Clinic(_ context.Context, clinicID string) (model.Clinic, error) {
	if clinicID != f.clinic.ID {
		return model.Clinic{}, model.ErrNotFound
	}
	return f.clinic, nil
}

func (f *fakeSource) Treatment(_ context.Context, _ string, treatmentID string) (model.Treatment, error) {
	t, ok := f.treatments[treatmentID]
	if !ok {
		return model.Treatment{}, model.ErrNotFound
	}
	return t, nil
}

func (f *fakeSource) Staff(context.Context, string) ([]model.Staff, error) { return f.staff, nil }

func (f *fakeSource) DutyRecords(_ context.Context, _ string, from, to time.Time) ([]model.DutyRecord, error) {
	var out []model.DutyRecord
	for _, d := range f.duty {
		if !d.Date.Before(from) && !d.Date.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeSource) Appointments(context.Context, string, time.Time, time.Time) ([]model.Appointment, error) {
	f.apptCalls++
	return f.appts, nil
}

func newFakeSource() *fakeSource {
	clinic := openEveryDay(iv("09:00", "12:00"))
	clinic.ID = "c1"
	staff, duty := onDuty(monday, "s1")
	restricted := simpleTreatment(30, "s1")
	restricted.ID = "returning-only"
	restricted.AllowsNewPatient = false
	return &fakeSource{
		clinic: clinic,
		treatments: map[string]model.Treatment{
			"t1":             simpleTreatment(30, "s1"),
			"returning-only": restricted,
		},
		staff: staff,
		duty:  duty,
	}
}

func TestEngine_WeeklyGrid(t *testing.T) {
	src := newFakeSource()
	e := NewEngine(src, func() time.Time { return longAgo })

	slots, err := e.WeeklyGrid(context.Background(), WeeklyQuery{ClinicID: "c1", TreatmentID: "t1", PatientType: "new", StartDate: "2025-01-06"})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	if len(slots) != 11 {
		t.Fatalf("expected 11 slots, got %d", len(slots))
	}
}

func TestEngine_IneligiblePatientSkipsBookingLoad(t *testing.T) {
	src := newFakeSource()
	e := NewEngine(src, func() time.Time { return longAgo })

	slots, err := e.WeeklyGrid(context.Background(), WeeklyQuery{ClinicID: "c1", TreatmentID: "returning-only", PatientType: "new", StartDate: "2025-01-06"})
	if err != nil || len(slots) != 0 {
		t.Fatalf("expected empty grid, got %d slots err %v", len(slots), err)
	}
	if src.apptCalls != 0 {
		t.Fatalf("appointments should not be loaded for an inapplicable menu")
	}
}

func TestEngine_RejectsInvalidInput(t *testing.T) {
	e := NewEngine(newFakeSource(), nil)
	tests := []WeeklyQuery{
		{TreatmentID: "t1", PatientType: "new", StartDate: "2025-01-06"},
		{ClinicID: "c1", PatientType: "new", StartDate: "2025-01-06"},
		{ClinicID: "c1", TreatmentID: "t1", PatientType: "vip", StartDate: "2025-01-06"},
		{ClinicID: "c1", TreatmentID: "t1", PatientType: "new", StartDate: "06/01/2025"},
	}
	for _, q := range tests {
		if _, err := e.WeeklyGrid(context.Background(), q); !errors.Is(err, model.ErrInvalidInput) {
			t.Fatalf("%+v: expected invalid input, got %v", q, err)
		}
	}
	if _, err := e.RescheduleGrid(context.Background(), RescheduleRequest{ClinicID: "c1", StartDate: "2025-01-06"}); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("zero duration must be rejected, got %v", err)
	}
}

func TestEngine_UnknownTreatment(t *testing.T) {
	e := NewEngine(newFakeSource(), nil)
	_, err := e.WeeklyGrid(context.Background(), WeeklyQuery{ClinicID: "c1", TreatmentID: "nope", PatientType: "new", StartDate: "2025-01-06"})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEngine_RescheduleGrid(t *testing.T) {
	src := newFakeSource()
	src.appts = []model.Appointment{booked("a1", "s1", monday, "09:00", "09:30", model.StatusConfirmed)}
	e := NewEngine(src, func() time.Time { return longAgo })

	slots, err := e.RescheduleGrid(context.Background(), RescheduleRequest{
		ClinicID:             "c1",
		DurationMinutes:      30,
		StaffID:              "s1",
		ExcludeAppointmentID: "a1",
		StartDate:            "2025-01-06",
	})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	if len(slots) == 0 || !slots[0].Available || slots[0].Time != clock("09:00") {
		t.Fatalf("moved appointment's own slot should be free, got %+v", slots)
	}
}

package availability

import (
	"testing"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

func TestRescheduleGrid_ExcludesMovedAppointment(t *testing.T) {
	clinic := openEveryDay(iv("09:00", "10:00"))
	staff, duty := onDuty(monday, "s1")
	moving := booked("move-me", "s1", monday, "09:00", "09:30", model.StatusConfirmed)
	other := booked("other", "s1", monday, "09:30", "09:45", model.StatusConfirmed)
	data := Data{Staff: staff, Duty: duty, Appointments: []model.Appointment{moving, other}}

	slots := BuildRescheduleGrid(clinic, RescheduleQuery{
		DurationMinutes:      30,
		StaffID:              "s1",
		ExcludeAppointmentID: "move-me",
		StartDate:            monday,
	}, data, longAgo)

	if got := times(slots, true); !sameStrings(got, []string{"09:00"}) {
		t.Fatalf("unexpected available %v", got)
	}
	for _, s := range slots {
		if s.Available && !sameStrings(s.AvailableStaffIDs, []string{"s1"}) {
			t.Fatalf("expected staff s1, got %v", s.AvailableStaffIDs)
		}
	}
}

func TestRescheduleGrid_WithoutStaffListsFreeStaff(t *testing.T) {
	clinic := openEveryDay(iv("09:00", "10:00"))
	clinic.Breaks[monday.Weekday()] = []model.Interval{iv("09:15", "09:30")}
	staff, duty := onDuty(monday, "s1", "s2")
	data := Data{Staff: staff, Duty: duty, Appointments: []model.Appointment{
		booked("busy", "s1", monday, "09:00", "09:45", model.StatusConfirmed),
		booked("busy2", "s2", monday, "09:00", "09:15", model.StatusConfirmed),
	}}

	slots := BuildRescheduleGrid(clinic, RescheduleQuery{DurationMinutes: 15, StartDate: monday}, data, longAgo)

	want := map[string][]string{"09:30": {"s2"}, "09:45": {"s1", "s2"}}
	got := map[string][]string{}
	for _, s := range slots {
		if !s.Date.Equal(monday) || !s.Available {
			continue
		}
		got[s.Time.String()] = s.AvailableStaffIDs
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected available %v", got)
	}
	for at, ids := range want {
		if !sameStrings(got[at], ids) {
			t.Fatalf("%s: expected %v, got %v", at, ids, got[at])
		}
	}
}

func TestRescheduleGrid_WithoutStaffNobodyOnDuty(t *testing.T) {
	clinic := openEveryDay(iv("09:00", "10:00"))

	slots := BuildRescheduleGrid(clinic, RescheduleQuery{DurationMinutes: 15, StartDate: monday}, Data{}, longAgo)
	if len(slots) != 4*GridDays {
		t.Fatalf("every open day should produce rows, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Available || len(s.AvailableStaffIDs) != 0 {
			t.Fatalf("no staff on duty, slot %s should be unavailable", s.Time.String())
		}
		if s.Reason != ReasonNoStaff {
			t.Fatalf("expected no_staff, got %q", s.Reason)
		}
	}
}

func TestRescheduleGrid_SkipsDaysStaffIsOff(t *testing.T) {
	clinic := openEveryDay(iv("09:00", "10:00"))
	staff, duty := onDuty(monday, "s1")

	slots := BuildRescheduleGrid(clinic, RescheduleQuery{DurationMinutes: 30, StaffID: "s1", StartDate: monday}, Data{Staff: staff, Duty: duty}, longAgo)
	for _, s := range slots {
		if !s.Date.Equal(monday) {
			t.Fatalf("staff works only on monday, got %s", model.FormatDate(s.Date))
		}
	}
}

package availability

import (
	"errors"
	"testing"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

func TestAssign_PriorityOrderPerStep(t *testing.T) {
	clinic := openEveryDay(iv("09:00", "12:00"))
	staff, duty := onDuty(monday, "hyg1", "hyg2", "doc")
	data := Data{Staff: staff, Duty: duty, Appointments: []model.Appointment{
		booked("a1", "hyg1", monday, "09:00", "09:15", model.StatusConfirmed),
	}}

	as, err := Assign(clinic, multiStep(), monday, clock("09:00"), "", data, "")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(as) != 2 || as[0].StaffID != "hyg2" || as[1].StaffID != "doc" {
		t.Fatalf("unexpected assignments %+v", as)
	}
	if as[1].Start != clock("09:30") || as[1].End != clock("09:45") {
		t.Fatalf("second step window wrong: %+v", as[1])
	}

	var appt model.Appointment
	ApplyAssignments(&appt, as)
	if appt.StaffID != "hyg2" || !sameStrings(appt.SecondaryStaff, []string{"doc"}) {
		t.Fatalf("unexpected staff %s %v", appt.StaffID, appt.SecondaryStaff)
	}
}

func TestAssign_PreferredStaff(t *testing.T) {
	clinic := openEveryDay(iv("09:00", "12:00"))
	staff, duty := onDuty(monday, "s1", "s2")
	data := Data{Staff: staff, Duty: duty, Appointments: []model.Appointment{
		booked("a1", "s2", monday, "09:00", "09:30", model.StatusConfirmed),
	}}
	tr := simpleTreatment(30, "s1", "s2")

	as, err := Assign(clinic, tr, monday, clock("10:00"), "s2", data, "")
	if err != nil || as[0].StaffID != "s2" {
		t.Fatalf("expected s2, got %+v %v", as, err)
	}
	if _, err := Assign(clinic, tr, monday, clock("09:00"), "s2", data, ""); !errors.Is(err, model.ErrSlotUnavailable) {
		t.Fatalf("busy preferred staff must fail, got %v", err)
	}
	if _, err := Assign(clinic, tr, monday, clock("09:00"), "stranger", data, ""); !errors.Is(err, model.ErrSlotUnavailable) {
		t.Fatalf("ineligible preferred staff must fail, got %v", err)
	}
}

func TestAssign_Rejections(t *testing.T) {
	clinic := openEveryDay(iv("09:00", "12:00"))
	clinic.Breaks[monday.Weekday()] = []model.Interval{iv("10:00", "10:15")}
	staff, duty := onDuty(monday, "s1")
	tr := simpleTreatment(30, "s1")
	data := Data{Staff: staff, Duty: duty, Appointments: []model.Appointment{
		booked("a1", "s1", monday, "09:00", "09:30", model.StatusConfirmed),
	}}

	for _, start := range []string{"09:15", "10:00", "11:45", "08:45"} {
		if _, err := Assign(clinic, tr, monday, clock(start), "", data, ""); !errors.Is(err, model.ErrSlotUnavailable) {
			t.Fatalf("%s: expected slot unavailable, got %v", start, err)
		}
	}
	if _, err := Assign(clinic, tr, monday, clock("09:15"), "", data, "a1"); err != nil {
		t.Fatalf("excluding the conflicting booking should free the slot: %v", err)
	}
}

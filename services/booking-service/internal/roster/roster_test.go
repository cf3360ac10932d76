package roster

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

func TestResolveEligibleWorkingStaff(t *testing.T) {
	day := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	staff := []model.Staff{
		{ID: "a", Active: true},
		{ID: "b", Active: true},
		{ID: "c", Active: false},
		{ID: "d", Active: true},
		{ID: "e", Active: true},
	}
	shift := &model.ShiftPattern{Name: "day"}
	duty := []model.DutyRecord{
		{StaffID: "a", Date: day, Shift: shift},
		{StaffID: "b", Date: day, Off: true},
		{StaffID: "c", Date: day, Shift: shift},
		{StaffID: "d", Date: day.AddDate(0, 0, 1), Shift: shift},
		{StaffID: "e", Date: day, Shift: shift},
	}
	tr := model.Treatment{
		ID:              "t",
		DurationMinutes: 30,
		StaffIDs:        []string{"a", "b"},
		Steps: []model.Step{
			{DurationMinutes: 15, StaffIDs: []string{"c", "d"}},
			{DurationMinutes: 15, StaffIDs: []string{"e", "a"}},
		},
	}

	got := ResolveEligibleWorkingStaff(tr, day, staff, duty)
	want := []string{"a", "e"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("want %v got %v", want, got)
	}
}

func TestRoster_NoRecordMeansNotWorking(t *testing.T) {
	day := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	r := New(day, []model.Staff{{ID: "a", Active: true}}, nil)
	if r.Working("a") {
		t.Fatalf("staff without duty record must not be working")
	}
	tr := model.Treatment{DurationMinutes: 30, StaffIDs: []string{"a"}}
	if len(r.EligibleWorking(tr)) != 0 {
		t.Fatalf("expected nobody eligible")
	}
}

func TestRoster_CoversShiftWindow(t *testing.T) {
	day := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	r := New(day, []model.Staff{{ID: "a", Active: true}}, []model.DutyRecord{{
		StaffID: "a",
		Date:    day,
		Shift:   &model.ShiftPattern{Name: "late", Hours: model.Interval{Start: 13 * 60, End: 18 * 60}},
	}})
	if r.Covers("a", model.Interval{Start: 9 * 60, End: 9*60 + 30}) {
		t.Fatalf("morning window is outside late shift")
	}
	if !r.Covers("a", model.Interval{Start: 13 * 60, End: 13*60 + 30}) {
		t.Fatalf("expected window covered")
	}
}

package availability

import (
	"testing"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

func TestHasConflict(t *testing.T) {
	appts := []model.Appointment{
		booked("a1", "s1", monday, "10:00", "10:30", model.StatusConfirmed),
		booked("a2", "s1", monday, "11:00", "11:30", model.StatusCancelled),
		booked("a3", "s2", monday, "09:00", "09:30", model.StatusPending),
		{ID: "a4", Date: monday, Start: clock("12:00"), End: clock("12:30"), StaffID: "s3", SecondaryStaff: []string{"s1"}, Status: model.StatusConfirmed},
	}
	tests := []struct {
		name  string
		staff string
		start string
		end   string
		want  bool
	}{
		{"overlap start", "s1", "09:45", "10:15", true},
		{"touching before", "s1", "09:30", "10:00", false},
		{"touching after", "s1", "10:30", "11:00", false},
		{"cancelled ignored", "s1", "11:00", "11:30", false},
		{"other staff", "s2", "10:00", "10:30", false},
		{"secondary staff", "s1", "12:15", "12:45", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HasConflict(tt.staff, monday, clock(tt.start), clock(tt.end), appts)
			if got != tt.want {
				t.Fatalf("want %v got %v", tt.want, got)
			}
			idx := NewConflictIndex(appts, "")
			if idx.HasConflict(tt.staff, monday, model.Interval{Start: clock(tt.start), End: clock(tt.end)}) != tt.want {
				t.Fatalf("index disagrees with linear check")
			}
		})
	}
	if HasConflict("s1", monday.AddDate(0, 0, 1), clock("10:00"), clock("10:30"), appts) {
		t.Fatalf("other date must not conflict")
	}
}

func TestConflictIndex_ExcludeAndAssignments(t *testing.T) {
	appt := model.Appointment{
		ID:     "multi",
		Date:   monday,
		Start:  clock("09:00"),
		End:    clock("09:45"),
		Status: model.StatusConfirmed,
		Assignments: []model.Assignment{
			{StaffID: "hyg", Step: 0, Start: clock("09:00"), End: clock("09:30")},
			{StaffID: "doc", Step: 1, Start: clock("09:30"), End: clock("09:45")},
		},
	}
	idx := NewConflictIndex([]model.Appointment{appt}, "")
	if idx.HasConflict("doc", monday, iv("09:00", "09:30")) {
		t.Fatalf("doc is only busy for the second step")
	}
	if !idx.HasConflict("doc", monday, iv("09:30", "09:45")) {
		t.Fatalf("doc should be busy for the second step")
	}

	idx = NewConflictIndex([]model.Appointment{appt}, "multi")
	if idx.HasConflict("hyg", monday, iv("09:00", "09:30")) {
		t.Fatalf("excluded appointment must not conflict")
	}
}

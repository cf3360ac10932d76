package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/roster"
)

// Assign chooses staff for a booking of t starting at start on date. For each
// step the first staff member by priority who is working and free wins.
// preferred, when set, must be free for the first step and is used for it.
// Returns model.ErrSlotUnavailable when the booking cannot be placed.
func Assign(clinic model.Clinic, t model.Treatment, date time.Time, start model.Minute, preferred string, data Data, exclude string) ([]model.Assignment, error) {
	if !t.Bookable() {
		return nil, fmt.Errorf("treatment %s has no bookable staff: %w", t.ID, model.ErrSlotUnavailable)
	}
	day := calendar.Resolve(clinic, date)
	window := model.Interval{Start: start, End: start + model.Minute(t.TotalMinutes())}
	if !day.Fits(window) || day.InBreak(start) {
		return nil, fmt.Errorf("%s %s is outside opening hours: %w", model.FormatDate(date), window, model.ErrSlotUnavailable)
	}
	idx := NewConflictIndex(data.Appointments, exclude)
	if idx.ClinicBlocked(date, window) {
		return nil, fmt.Errorf("%s %s is blocked: %w", model.FormatDate(date), window, model.ErrSlotUnavailable)
	}

	r := roster.New(date, data.Staff, data.Duty)
	free := func(id string, w model.Interval) bool {
		return r.Covers(id, w) && !idx.HasConflict(id, date, w)
	}

	windows := StepWindows(t, start)
	out := make([]model.Assignment, 0, len(windows))
	for i, w := range windows {
		chosen := ""
		if i == 0 && preferred != "" {
			if !contains(StepCandidates(t, i), preferred) || !free(preferred, w) {
				return nil, fmt.Errorf("staff %s is not free at %s: %w", preferred, w, model.ErrSlotUnavailable)
			}
			chosen = preferred
		} else {
			for _, id := range StepCandidates(t, i) {
				if free(id, w) {
					chosen = id
					break
				}
			}
		}
		if chosen == "" {
			return nil, fmt.Errorf("no staff free for step %d at %s: %w", i+1, w, model.ErrSlotUnavailable)
		}
		out = append(out, model.Assignment{StaffID: chosen, Step: i, Start: w.Start, End: w.End})
	}
	if len(distinctStaff(out)) > 1+model.MaxSecondaryStaff {
		return nil, fmt.Errorf("booking needs more than %d staff: %w", 1+model.MaxSecondaryStaff, model.ErrSlotUnavailable)
	}
	return out, nil
}

// ApplyAssignments sets primary and secondary staff from assignments.
func ApplyAssignments(a *model.Appointment, as []model.Assignment) {
	ids := distinctStaff(as)
	a.Assignments = as
	a.StaffID = ""
	a.SecondaryStaff = nil
	if len(ids) > 0 {
		a.StaffID = ids[0]
		a.SecondaryStaff = ids[1:]
	}
}

func distinctStaff(as []model.Assignment) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, a := range as {
		if _, ok := seen[a.StaffID]; ok {
			continue
		}
		seen[a.StaffID] = struct{}{}
		out = append(out, a.StaffID)
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

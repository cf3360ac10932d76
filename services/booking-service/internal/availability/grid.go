package availability

import (
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/roster"
)

// GridDays is the length of a slot grid.
const GridDays = 7

// Reasons a slot is not bookable.
const (
	ReasonBreak   = "break"
	ReasonPast    = "past"
	ReasonBlocked = "blocked"
	ReasonNoStaff = "no_staff"
)

type Slot struct {
	Date      time.Time
	Time      model.Minute
	End       model.Minute
	Available bool
	// AvailableStaffIDs is empty when the slot is unavailable.
	AvailableStaffIDs []string
	// StepStaff lists, per treatment step, the free staff in priority order.
	StepStaff [][]string
	Reason    string
}

// Data is everything a grid needs besides the clinic and the request.
type Data struct {
	Staff        []model.Staff
	Duty         []model.DutyRecord
	Appointments []model.Appointment
}

// BuildWeeklyGrid returns the slots for startDate..startDate+6. Closed days and
// days with no eligible working staff contribute no rows. A treatment the
// patient type may not book yields an empty grid.
func BuildWeeklyGrid(clinic model.Clinic, t model.Treatment, pt model.PatientType, startDate time.Time, data Data, now time.Time) []Slot {
	if !t.AllowsPatient(pt) || !t.Bookable() {
		return nil
	}
	idx := NewConflictIndex(data.Appointments, "")
	start := model.DateOf(startDate)

	var out []Slot
	for i := 0; i < GridDays; i++ {
		date := start.AddDate(0, 0, i)
		out = append(out, buildDay(clinic, t, date, data, idx, now)...)
	}
	return out
}

func buildDay(clinic model.Clinic, t model.Treatment, date time.Time, data Data, idx *ConflictIndex, now time.Time) []Slot {
	day := calendar.Resolve(clinic, date)
	if !day.IsOpen {
		return nil
	}
	r := roster.New(date, data.Staff, data.Duty)
	if len(r.EligibleWorking(t)) == 0 {
		return nil
	}

	total := model.Minute(t.TotalMinutes())
	var out []Slot
	walk(day, total, model.Minute(clinic.SlotMinutes), func(start model.Minute) {
		slot := Slot{Date: date, Time: start, End: start + total}
		switch {
		case day.InBreak(start):
			slot.Reason = ReasonBreak
		case model.At(date, start, clinic.Location()).Before(now):
			slot.Reason = ReasonPast
		case idx.ClinicBlocked(date, model.Interval{Start: start, End: start + total}):
			slot.Reason = ReasonBlocked
		default:
			steps, ok := freeStaffPerStep(t, r, idx, date, start)
			if !ok {
				slot.Reason = ReasonNoStaff
				break
			}
			slot.Available = true
			slot.StepStaff = steps
			slot.AvailableStaffIDs = flatten(steps)
		}
		out = append(out, slot)
	})
	return out
}

// walk calls fn for each slot start in each open interval. A slot may not run
// past the end of the interval it starts in.
func walk(day calendar.Day, duration, step model.Minute, fn func(model.Minute)) {
	if duration <= 0 || step <= 0 {
		return
	}
	for _, iv := range day.Open {
		for s := iv.Start; s+duration <= iv.End; s += step {
			fn(s)
		}
	}
}

// StepWindows splits a booking starting at start into back-to-back step windows.
func StepWindows(t model.Treatment, start model.Minute) []model.Interval {
	steps := t.BookingSteps()
	out := make([]model.Interval, 0, len(steps))
	cur := start
	for _, s := range steps {
		end := cur + model.Minute(s.DurationMinutes)
		out = append(out, model.Interval{Start: cur, End: end})
		cur = end
	}
	return out
}

// StepCandidates returns the priority-ordered staff for step i. A step with no
// staff of its own uses the treatment's staff.
func StepCandidates(t model.Treatment, i int) []string {
	steps := t.BookingSteps()
	if i < 0 || i >= len(steps) {
		return nil
	}
	if len(steps[i].StaffIDs) > 0 {
		return steps[i].StaffIDs
	}
	return t.StaffIDs
}

// freeStaffPerStep checks every step in its own window. Every step must have
// at least one free staff member for the slot to be bookable.
func freeStaffPerStep(t model.Treatment, r roster.Roster, idx *ConflictIndex, date time.Time, start model.Minute) ([][]string, bool) {
	windows := StepWindows(t, start)
	out := make([][]string, len(windows))
	for i, w := range windows {
		for _, id := range StepCandidates(t, i) {
			if r.Covers(id, w) && !idx.HasConflict(id, date, w) {
				out[i] = append(out[i], id)
			}
		}
		if len(out[i]) == 0 {
			return nil, false
		}
	}
	return out, true
}

func flatten(steps [][]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, ids := range steps {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// RescheduleQuery describes a grid for moving an existing booking.
type RescheduleQuery struct {
	DurationMinutes int
	// StaffID restricts the check to one staff member. Empty means every staff
	// member working that date.
	StaffID string
	// ExcludeAppointmentID is the booking being moved.
	ExcludeAppointmentID string
	StartDate            time.Time
}

// BuildRescheduleGrid returns slots for startDate..startDate+6 for a fixed
// duration. With a staff id, days the staff member is not working contribute
// no rows.
func BuildRescheduleGrid(clinic model.Clinic, q RescheduleQuery, data Data, now time.Time) []Slot {
	if q.DurationMinutes <= 0 {
		return nil
	}
	idx := NewConflictIndex(data.Appointments, q.ExcludeAppointmentID)
	duration := model.Minute(q.DurationMinutes)
	start := model.DateOf(q.StartDate)

	var out []Slot
	for i := 0; i < GridDays; i++ {
		date := start.AddDate(0, 0, i)
		day := calendar.Resolve(clinic, date)
		if !day.IsOpen {
			continue
		}
		r := roster.New(date, data.Staff, data.Duty)
		candidates := []string{q.StaffID}
		if q.StaffID == "" {
			candidates = r.WorkingStaff()
		} else if !r.Working(q.StaffID) {
			continue
		}
		walk(day, duration, model.Minute(clinic.SlotMinutes), func(s model.Minute) {
			w := model.Interval{Start: s, End: s + duration}
			slot := Slot{Date: date, Time: s, End: w.End}
			switch {
			case day.InBreak(s):
				slot.Reason = ReasonBreak
			case model.At(date, s, clinic.Location()).Before(now):
				slot.Reason = ReasonPast
			case idx.ClinicBlocked(date, w):
				slot.Reason = ReasonBlocked
			default:
				free := freeStaff(r, candidates, idx, date, w)
				if len(free) == 0 {
					slot.Reason = ReasonNoStaff
					break
				}
				slot.Available = true
				slot.AvailableStaffIDs = free
				slot.StepStaff = [][]string{free}
			}
			out = append(out, slot)
		})
	}
	return out
}

// freeStaff keeps the candidates whose shift covers w with no overlapping booking.
func freeStaff(r roster.Roster, candidates []string, idx *ConflictIndex, date time.Time, w model.Interval) []string {
	var out []string
	for _, id := range candidates {
		if r.Covers(id, w) && !idx.HasConflict(id, date, w) {
			out = append(out, id)
		}
	}
	return out
}

package roster

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Roster is the set of staff on duty for a single date.
type Roster struct {
	date  time.Time
	staff map[string]model.Staff
	duty  map[string]model.DutyRecord
}

// New indexes staff and duty records for date. Records for other dates are
// ignored; when a staff member has several records for the date the last wins.
func New(date time.Time, staff []model.Staff, duty []model.DutyRecord) Roster {
	r := Roster{
		date:  model.DateOf(date),
		staff: make(map[string]model.Staff, len(staff)),
		duty:  make(map[string]model.DutyRecord, len(duty)),
	}
	for _, s := range staff {
		r.staff[s.ID] = s
	}
	for _, d := range duty {
		if !model.DateOf(d.Date).Equal(r.date) {
			continue
		}
		r.duty[d.StaffID] = d
	}
	return r
}

func (r Roster) Date() time.Time { return r.date }

// Working reports whether staffID is active and has a non-off duty record.
// No record means not working.
func (r Roster) Working(staffID string) bool {
	s, ok := r.staff[staffID]
	if !ok || !s.Active {
		return false
	}
	d, ok := r.duty[staffID]
	return ok && d.Working()
}

// Covers reports whether staffID works for the whole window, shift break excluded.
func (r Roster) Covers(staffID string, window model.Interval) bool {
	if !r.Working(staffID) {
		return false
	}
	return r.duty[staffID].Covers(window)
}

// EligibleWorking returns the treatment's eligible staff (union of treatment and
// step staff) who are working on the roster date, in eligibility order.
func (r Roster) EligibleWorking(t model.Treatment) []string {
	var out []string
	for _, id := range t.EligibleStaffIDs() {
		if r.Working(id) {
			out = append(out, id)
		}
	}
	return out
}

// WorkingStaff returns every staff member working on the roster date, sorted by id.
func (r Roster) WorkingStaff() []string {
	var out []string
	for id := range r.duty {
		if r.Working(id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ResolveEligibleWorkingStaff is the one-shot form of New(...).EligibleWorking.
func ResolveEligibleWorkingStaff(t model.Treatment, date time.Time, staff []model.Staff, duty []model.DutyRecord) []string {
	return New(date, staff, duty).EligibleWorking(t)
}

package model

import "time"

type Staff struct {
	ID       string
	ClinicID string
	Name     string
	Active   bool
}

// ShiftPattern is a named working shift. Zero Hours means the whole day.
type ShiftPattern struct {
	Name  string
	Hours Interval
	Break *Interval
}

// DutyRecord is one staff member's status for one date. At most one per
// (StaffID, Date); a missing record means not working.
type DutyRecord struct {
	StaffID string
	Date    time.Time
	Off     bool
	Shift   *ShiftPattern
}

func (d DutyRecord) Working() bool {
	return !d.Off && d.Shift != nil
}

// Covers reports whether the whole window lies inside the shift and outside
// its break.
func (d DutyRecord) Covers(window Interval) bool {
	if !d.Working() {
		return false
	}
	hours := d.Shift.Hours
	if hours.Valid() && !hours.Contains(window) {
		return false
	}
	if d.Shift.Break != nil && d.Shift.Break.Valid() && d.Shift.Break.Overlaps(window) {
		return false
	}
	return true
}

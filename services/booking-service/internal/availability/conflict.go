package availability

import (
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// HasConflict reports whether any non-cancelled appointment assigned to staffID
// on date overlaps [start, end). Linear in len(existing); use ConflictIndex
// when checking many windows.
func HasConflict(staffID string, date time.Time, start, end model.Minute, existing []model.Appointment) bool {
	window := model.Interval{Start: start, End: end}
	day := model.DateOf(date)
	for _, a := range existing {
		if !a.Blocking() || !model.DateOf(a.Date).Equal(day) {
			continue
		}
		for _, busy := range a.Busy()[staffID] {
			if busy.Overlaps(window) {
				return true
			}
		}
	}
	return false
}

type staffDay struct {
	staffID string
	date    string
}

// ConflictIndex groups busy intervals by (staff, date) and keeps clinic-wide
// blocks by date.
type ConflictIndex struct {
	busy   map[staffDay][]model.Interval
	blocks map[string][]model.Interval
}

// NewConflictIndex indexes the blocking appointments. The appointment with id
// exclude (if any) is ignored, which lets a reschedule see its own slot as free.
func NewConflictIndex(appts []model.Appointment, exclude string) *ConflictIndex {
	idx := &ConflictIndex{
		busy:   map[staffDay][]model.Interval{},
		blocks: map[string][]model.Interval{},
	}
	for _, a := range appts {
		idx.Add(a, exclude)
	}
	return idx
}

func (idx *ConflictIndex) Add(a model.Appointment, exclude string) {
	if !a.Blocking() || (exclude != "" && a.ID == exclude) {
		return
	}
	day := model.FormatDate(a.Date)
	if a.ClinicWide() {
		idx.blocks[day] = append(idx.blocks[day], a.Interval())
		return
	}
	for staffID, ivs := range a.Busy() {
		k := staffDay{staffID: staffID, date: day}
		idx.busy[k] = append(idx.busy[k], ivs...)
	}
}

func (idx *ConflictIndex) HasConflict(staffID string, date time.Time, window model.Interval) bool {
	return overlapsAny(window, idx.busy[staffDay{staffID: staffID, date: model.FormatDate(date)}])
}

// ClinicBlocked reports whether a clinic-wide block overlaps window on date.
func (idx *ConflictIndex) ClinicBlocked(date time.Time, window model.Interval) bool {
	return overlapsAny(window, idx.blocks[model.FormatDate(date)])
}

func overlapsAny(window model.Interval, busy []model.Interval) bool {
	for _, b := range busy {
		if b.Overlaps(window) {
			return true
		}
	}
	return false
}

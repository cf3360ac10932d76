package calendar

import (
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Day is a clinic's effective hours for one date.
type Day struct {
	IsOpen bool
	Open   []model.Interval
	Breaks []model.Interval
	// Source tells which rule decided the day: "weekly", "override_closed" or
	// "override_open".
	Source string
}

// Resolve merges the weekly rule with the per-date override for date.
//
// A forced-open override takes its hours from, in order: the override's own
// hours, the weekday's hours when the weekday is open, the clinic default hours.
// If none exist the day is open with no intervals and yields no slots.
// Breaks come from the override when it sets any, otherwise from the weekday.
func Resolve(clinic model.Clinic, date time.Time) Day {
	wd := date.Weekday()
	weekly := clinic.Weekly[wd]

	if ov, ok := clinic.Overrides[model.FormatDate(date)]; ok {
		switch ov.Kind {
		case model.OverrideClosed:
			return Day{IsOpen: false, Source: "override_closed"}
		case model.OverrideOpen:
			day := Day{IsOpen: true, Source: "override_open"}
			switch {
			case len(ov.Hours) > 0:
				day.Open = copyIntervals(ov.Hours)
			case !weekly.Closed && len(weekly.Open) > 0:
				day.Open = copyIntervals(weekly.Open)
			default:
				day.Open = copyIntervals(clinic.DefaultHours)
			}
			if len(ov.Breaks) > 0 {
				day.Breaks = copyIntervals(ov.Breaks)
			} else {
				day.Breaks = copyIntervals(clinic.Breaks[wd])
			}
			return day
		}
	}

	if weekly.Closed || len(weekly.Open) == 0 {
		return Day{IsOpen: false, Source: "weekly"}
	}
	return Day{
		IsOpen: true,
		Open:   copyIntervals(weekly.Open),
		Breaks: copyIntervals(clinic.Breaks[wd]),
		Source: "weekly",
	}
}

// InBreak reports whether m falls inside any break.
func (d Day) InBreak(m model.Minute) bool {
	for _, b := range d.Breaks {
		if b.ContainsMinute(m) {
			return true
		}
	}
	return false
}

// Fits reports whether window lies entirely inside one open interval.
func (d Day) Fits(window model.Interval) bool {
	if !d.IsOpen {
		return false
	}
	for _, iv := range d.Open {
		if iv.Contains(window) {
			return true
		}
	}
	return false
}

func copyIntervals(in []model.Interval) []model.Interval {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.Interval, len(in))
	copy(out, in)
	return out
}

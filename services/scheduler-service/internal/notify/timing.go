package notify

import (
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
)

// ComputeSendAt returns when a notification for an appointment starting at
// apptStart should go out. Day offsets land on sendHour:00 in loc so a clinic's
// reminders batch at one predictable time. ok is false when the instant has
// already passed; stale reminders are never scheduled.
func ComputeSendAt(apptStart time.Time, value int, unit model.OffsetUnit, sendHour int, loc *time.Location, now time.Time) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if value < 0 {
		value = -value
	}
	var at time.Time
	switch unit {
	case model.UnitDaysBefore, model.UnitDaysAfter:
		if unit == model.UnitDaysBefore {
			value = -value
		}
		local := apptStart.In(loc)
		at = time.Date(local.Year(), local.Month(), local.Day()+value, sendHour, 0, 0, 0, loc)
	default:
		return now, true
	}
	if at.Before(now) {
		return time.Time{}, false
	}
	return at, true
}

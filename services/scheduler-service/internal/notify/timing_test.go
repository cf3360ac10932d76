package notify

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
)

func TestComputeSendAtDaysBefore(t *testing.T) {
	appt := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	at, ok := ComputeSendAt(appt, 3, model.UnitDaysBefore, 18, time.UTC, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	if !ok || !at.Equal(time.Date(2025, 1, 7, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("got %s ok=%v", at, ok)
	}

	if _, ok := ComputeSendAt(appt, 3, model.UnitDaysBefore, 18, time.UTC, time.Date(2025, 1, 9, 9, 0, 0, 0, time.UTC)); ok {
		t.Fatalf("send time in the past must be skipped")
	}
}

func TestComputeSendAt(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	appt := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}

	cases := []struct {
		name  string
		value int
		unit  model.OffsetUnit
		loc   *time.Location
		want  time.Time
	}{
		{"after", 2, model.UnitDaysAfter, time.UTC, time.Date(2025, 1, 12, 18, 0, 0, 0, time.UTC)},
		{"negative value is a magnitude", -1, model.UnitDaysBefore, time.UTC, time.Date(2025, 1, 9, 18, 0, 0, 0, time.UTC)},
		{"same day", 0, model.UnitDaysBefore, time.UTC, time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC)},
		{"immediate", 5, model.UnitImmediate, time.UTC, now},
		{"month boundary", 12, model.UnitDaysBefore, time.UTC, time.Date(2024, 12, 29, 18, 0, 0, 0, time.UTC)},
		{"clinic timezone", 1, model.UnitDaysBefore, tokyo, time.Date(2025, 1, 9, 18, 0, 0, 0, tokyo)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := appt
			if tc.loc != time.UTC {
				start = time.Date(2025, 1, 10, 10, 0, 0, 0, tc.loc)
			}
			at, ok := ComputeSendAt(start, tc.value, tc.unit, 18, tc.loc, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC))
			if tc.unit == model.UnitImmediate {
				at, ok = ComputeSendAt(start, tc.value, tc.unit, 18, tc.loc, now)
			}
			if !ok || !at.Equal(tc.want) {
				t.Fatalf("got %s ok=%v want %s", at, ok, tc.want)
			}
		})
	}
}

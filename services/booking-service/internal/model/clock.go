package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Minute is a time of day expressed as minutes since midnight.
type Minute int

const MinutesPerDay Minute = 24 * 60

// ParseClock parses "HH:MM" (or "HH:MM:SS", seconds ignored).
func ParseClock(s string) (Minute, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	v := Minute(h*60 + m)
	if v > MinutesPerDay {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return v, nil
}

func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// Interval is a half-open range of minutes [Start, End).
type Interval struct {
	Start Minute
	End   Minute
}

func (i Interval) Valid() bool {
	return i.Start >= 0 && i.End > i.Start && i.End <= MinutesPerDay
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether o lies fully inside i.
func (i Interval) Contains(o Interval) bool {
	return o.Start >= i.Start && o.End <= i.End
}

// ContainsMinute reports whether m lies in [Start, End).
func (i Interval) ContainsMinute(m Minute) bool {
	return m >= i.Start && m < i.End
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

const DateLayout = "2006-01-02"

// ParseDate parses an ISO date into midnight UTC. Calendar dates carry no zone;
// the clinic timezone is applied only when converting to instants.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

// DateOf truncates t to its calendar date (in t's location) as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// At returns the instant for date d at minute m in loc.
func At(d time.Time, m Minute, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, int(m), 0, 0, loc)
}

package model

import "time"

// DaySchedule is the weekly rule for one weekday. A closed day has no intervals.
type DaySchedule struct {
	Closed bool
	Open   []Interval
}

type OverrideKind string

const (
	OverrideClosed OverrideKind = "closed"
	OverrideOpen   OverrideKind = "open"
)

// DateOverride forces a specific date closed or open. Hours and Breaks are
// optional for OverrideOpen; see calendar.Resolve for the fallback order.
type DateOverride struct {
	Date   time.Time
	Kind   OverrideKind
	Hours  []Interval
	Breaks []Interval
	Reason string
}

type Clinic struct {
	ID       string
	Name     string
	Timezone string

	// Weekly is indexed by time.Weekday.
	Weekly [7]DaySchedule
	// Breaks is indexed by time.Weekday.
	Breaks [7][]Interval
	// Overrides is keyed by ISO date.
	Overrides map[string]DateOverride
	// DefaultHours apply when an override opens a day the weekly rule closes
	// and the override itself carries no hours.
	DefaultHours []Interval

	SlotMinutes int
}

func (c Clinic) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

const DefaultSlotMinutes = 15

// ApplyDefaults fills every unset clinic field with its fallback.
//   - SlotMinutes <= 0     -> 15
//   - Timezone empty       -> "UTC"
//   - Overrides nil        -> empty map
//   - weekday with no open intervals and not marked closed -> closed
//   - invalid intervals are dropped
func ApplyDefaults(c Clinic) Clinic {
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = DefaultSlotMinutes
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Overrides == nil {
		c.Overrides = map[string]DateOverride{}
	}
	for wd := range c.Weekly {
		day := c.Weekly[wd]
		day.Open = validIntervals(day.Open)
		if len(day.Open) == 0 {
			day.Closed = true
		}
		if day.Closed {
			day.Open = nil
		}
		c.Weekly[wd] = day
		c.Breaks[wd] = validIntervals(c.Breaks[wd])
	}
	c.DefaultHours = validIntervals(c.DefaultHours)
	return c
}

func validIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	out := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.Valid() {
			out = append(out, iv)
		}
	}
	return out
}

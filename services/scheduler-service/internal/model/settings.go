package model

import (
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	DefaultSendHour     = 18
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 10 * time.Minute
	DefaultTimezone     = "UTC"
)

// ClinicSettings tunes reminder timing and dispatch retries for one clinic.
type ClinicSettings struct {
	ClinicID     string
	Timezone     string
	SendHour     int
	MaxRetries   int
	RetryBackoff time.Duration
}

// ApplyDefaults fills every unset or out-of-range field. A settings row that
// does not exist yet is the zero value and comes back fully defaulted.
func ApplyDefaults(s ClinicSettings) ClinicSettings {
	s.Timezone = strings.TrimSpace(s.Timezone)
	if s.Timezone == "" {
		s.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		s.Timezone = DefaultTimezone
	}
	if s.SendHour <= 0 || s.SendHour > 23 {
		s.SendHour = DefaultSendHour
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.RetryBackoff <= 0 {
		s.RetryBackoff = DefaultRetryBackoff
	}
	return s
}

func (s ClinicSettings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

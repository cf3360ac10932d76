package model

import (
	"errors"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	got := ApplyDefaults(ClinicSettings{ClinicID: "c1"})
	want := ClinicSettings{ClinicID: "c1", Timezone: "UTC", SendHour: 18, MaxRetries: 3, RetryBackoff: 10 * time.Minute}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}

	kept := ApplyDefaults(ClinicSettings{Timezone: "Asia/Tokyo", SendHour: 9, MaxRetries: 5, RetryBackoff: time.Minute})
	if kept.Timezone != "Asia/Tokyo" || kept.SendHour != 9 || kept.MaxRetries != 5 || kept.RetryBackoff != time.Minute {
		t.Fatalf("explicit values overwritten: %+v", kept)
	}

	if bad := ApplyDefaults(ClinicSettings{Timezone: "Mars/Olympus", SendHour: 30}); bad.Timezone != "UTC" || bad.SendHour != 18 {
		t.Fatalf("invalid values not replaced: %+v", bad)
	}
}

func TestPreferencesDefaultOptIn(t *testing.T) {
	var p Preferences
	if !p.Allows(TypeAppointmentReminder) {
		t.Fatalf("missing preferences must opt in")
	}
	p.Enabled = map[NotificationType]bool{TypeAppointmentReminder: false, TypeCustom: true}
	if p.Allows(TypeAppointmentReminder) {
		t.Fatalf("explicit opt-out ignored")
	}
	if !p.Allows(TypeCustom) || !p.Allows(TypeAppointmentChange) {
		t.Fatalf("opt-in types rejected")
	}
}

func TestAutoReminder(t *testing.T) {
	cases := []struct {
		tpl  Template
		want bool
	}{
		{Template{Type: TypeAppointmentReminder, Trigger: TriggerRelative}, true},
		{Template{Type: TypeAppointmentReminder, Trigger: TriggerOnCreated}, false},
		{Template{Type: TypeTreatmentReminder, Trigger: TriggerRelative}, false},
	}
	for _, tc := range cases {
		if got := tc.tpl.AutoReminder(); got != tc.want {
			t.Fatalf("%+v: got %v", tc.tpl, got)
		}
	}
}

func TestTemplateValidate(t *testing.T) {
	base := Template{ClinicID: "c1", Name: "Reminder", Type: TypeAppointmentReminder, Body: "hi", Trigger: TriggerRelative, OffsetValue: 3, OffsetUnit: UnitDaysBefore}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}
	cases := map[string]func(*Template){
		"no name":        func(t *Template) { t.Name = " " },
		"bad type":       func(t *Template) { t.Type = "newsletter" },
		"bad trigger":    func(t *Template) { t.Trigger = "hourly" },
		"relative unit":  func(t *Template) { t.OffsetUnit = UnitImmediate },
		"unknown unit":   func(t *Template) { t.Trigger = TriggerImmediate; t.OffsetUnit = "weeks_before" },
		"no body at all": func(t *Template) { t.Body = "" },
	}
	for name, mutate := range cases {
		tpl := base
		mutate(&tpl)
		if err := tpl.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
	sms := base
	sms.Body = ""
	sms.SMSBody = "only sms"
	if err := sms.Validate(); err != nil {
		t.Fatalf("channel-only body rejected: %v", err)
	}
}

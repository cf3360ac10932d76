package model

import (
	"fmt"
	"strings"
)

// NotificationTypes lists every type in a stable order.
var NotificationTypes = []NotificationType{
	TypeAppointmentReminder,
	TypeAppointmentConfirmation,
	TypeAppointmentChange,
	TypeAppointmentCancellation,
	TypeTreatmentReminder,
	TypePeriodicCheckup,
	TypeCustom,
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelLine, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

func (t Trigger) Valid() bool {
	switch t {
	case TriggerOnCreated, TriggerRelative, TriggerOnLinkEstablished, TriggerImmediate:
		return true
	}
	return false
}

// Validate checks a template before it is stored. A relative template needs a
// day-based offset unit; the other triggers send right away.
func (t Template) Validate() error {
	if strings.TrimSpace(t.ClinicID) == "" || strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template clinic_id and name required: %w", ErrInvalidInput)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("unknown notification type %q: %w", t.Type, ErrInvalidInput)
	}
	if !t.Trigger.Valid() {
		return fmt.Errorf("unknown trigger %q: %w", t.Trigger, ErrInvalidInput)
	}
	if t.Trigger == TriggerRelative && t.OffsetUnit != UnitDaysBefore && t.OffsetUnit != UnitDaysAfter {
		return fmt.Errorf("relative template needs days_before or days_after: %w", ErrInvalidInput)
	}
	switch t.OffsetUnit {
	case "", UnitDaysBefore, UnitDaysAfter, UnitImmediate:
	default:
		return fmt.Errorf("unknown offset unit %q: %w", t.OffsetUnit, ErrInvalidInput)
	}
	if strings.TrimSpace(t.Body+t.LineBody+t.EmailBody+t.SMSBody) == "" {
		return fmt.Errorf("template has no body: %w", ErrInvalidInput)
	}
	return nil
}

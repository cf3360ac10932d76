package model

import (
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

type NotificationType string

const (
	TypeAppointmentReminder     NotificationType = "appointment_reminder"
	TypeAppointmentConfirmation NotificationType = "appointment_confirmation"
	TypeAppointmentChange       NotificationType = "appointment_change"
	TypeAppointmentCancellation NotificationType = "appointment_cancellation"
	TypeTreatmentReminder       NotificationType = "treatment_reminder"
	TypePeriodicCheckup         NotificationType = "periodic_checkup"
	TypeCustom                  NotificationType = "custom"
)

var notificationTypes = map[NotificationType]bool{
	TypeAppointmentReminder:     true,
	TypeAppointmentConfirmation: true,
	TypeAppointmentChange:       true,
	TypeAppointmentCancellation: true,
	TypeTreatmentReminder:       true,
	TypePeriodicCheckup:         true,
	TypeCustom:                  true,
}

func (t NotificationType) Valid() bool { return notificationTypes[t] }

type Channel string

const (
	ChannelLine  Channel = "line"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ChannelPriority is the fallback order when the patient's preferred channel
// cannot be used.
var ChannelPriority = []Channel{ChannelLine, ChannelEmail, ChannelSMS}

type Trigger string

const (
	TriggerOnCreated         Trigger = "on_created"
	TriggerRelative          Trigger = "relative_to_appointment_date"
	TriggerOnLinkEstablished Trigger = "on_link_established"
	TriggerImmediate         Trigger = "immediate"
)

type OffsetUnit string

const (
	UnitDaysBefore OffsetUnit = "days_before"
	UnitDaysAfter  OffsetUnit = "days_after"
	UnitImmediate  OffsetUnit = "immediate"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Template is a clinic-configured notification. Channel bodies are optional;
// Body is the generic fallback.
type Template struct {
	ID           string
	ClinicID     string
	Name         string
	Type         NotificationType
	Body         string
	LineBody     string
	EmailSubject string
	EmailBody    string
	SMSBody      string
	AutoSend     bool
	Trigger      Trigger
	OffsetValue  int
	OffsetUnit   OffsetUnit
}

// AutoReminder reports whether notifications from t count as the appointment's
// automatic reminder.
func (t Template) AutoReminder() bool {
	return t.Type == TypeAppointmentReminder && t.Trigger == TriggerRelative
}

type Notification struct {
	ID             string
	ClinicID       string
	PatientID      string
	AppointmentID  string
	TemplateID     string
	Type           NotificationType
	Channel        Channel
	Recipient      string
	Subject        string
	Message        string
	SendAt         time.Time
	Status         Status
	IsAutoReminder bool
	RetryCount     int
	MaxRetries     int
	NextAttemptAt  *time.Time
	FailureReason  string
	SentAt         *time.Time
	Traceparent    string
	Tracestate     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Contact is where a patient can be reached.
type Contact struct {
	PatientID        string
	Name             string
	Email            string
	Phone            string
	LineID           string
	PreferredChannel Channel
}

func (c Contact) Address(ch Channel) string {
	switch ch {
	case ChannelLine:
		return c.LineID
	case ChannelEmail:
		return c.Email
	case ChannelSMS:
		return c.Phone
	}
	return ""
}

// Preferences holds a patient's explicit opt-outs. A type with no entry is
// opted in.
type Preferences struct {
	ClinicID  string
	PatientID string
	Enabled   map[NotificationType]bool
}

func (p Preferences) Allows(t NotificationType) bool {
	enabled, ok := p.Enabled[t]
	return !ok || enabled
}

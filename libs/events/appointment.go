// Package events holds the appointment lifecycle contract shared by the booking
// and scheduler services. One Kafka topic per event type.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	TopicAppointmentCreated     = "booking.appointment.created.v1"
	TopicAppointmentConfirmed   = "booking.appointment.confirmed.v1"
	TopicAppointmentCancelled   = "booking.appointment.cancelled.v1"
	TopicAppointmentRescheduled = "booking.appointment.rescheduled.v1"
	TopicAppointmentCompleted   = "booking.appointment.completed.v1"
	TopicAppointmentNoShow      = "booking.appointment.no_show.v1"
)

// AppointmentTopics lists every lifecycle topic.
var AppointmentTopics = []string{
	TopicAppointmentCreated,
	TopicAppointmentConfirmed,
	TopicAppointmentCancelled,
	TopicAppointmentRescheduled,
	TopicAppointmentCompleted,
	TopicAppointmentNoShow,
}

const AggregateAppointment = "appointment"

// Appointment is the payload of every lifecycle event. Dates are ISO dates and
// times are "HH:MM" in the clinic's timezone.
type Appointment struct {
	AppointmentID    string `json:"appointment_id"`
	ClinicID         string `json:"clinic_id"`
	ClinicName       string `json:"clinic_name"`
	Timezone         string `json:"timezone"`
	PatientID        string `json:"patient_id"`
	PatientName      string `json:"patient_name"`
	PatientEmail     string `json:"patient_email,omitempty"`
	PatientPhone     string `json:"patient_phone,omitempty"`
	PatientLineID    string `json:"patient_line_id,omitempty"`
	PreferredChannel string `json:"preferred_channel,omitempty"`
	TreatmentID      string `json:"treatment_id"`
	TreatmentName    string `json:"treatment_name"`
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	Status           string `json:"status"`
	CancelReason     string `json:"cancel_reason,omitempty"`
	// Rescheduled is set on the cancelled and created events a reschedule emits.
	Rescheduled           bool      `json:"rescheduled,omitempty"`
	PreviousAppointmentID string    `json:"previous_appointment_id,omitempty"`
	PreviousDate          string    `json:"previous_date,omitempty"`
	PreviousStartTime     string    `json:"previous_start_time,omitempty"`
	OccurredAt            time.Time `json:"occurred_at"`
}

func (a Appointment) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

func DecodeAppointment(b []byte) (Appointment, error) {
	var a Appointment
	if err := json.Unmarshal(b, &a); err != nil {
		return Appointment{}, fmt.Errorf("decode appointment event: %w", err)
	}
	if a.AppointmentID == "" || a.ClinicID == "" || a.PatientID == "" {
		return Appointment{}, fmt.Errorf("appointment event missing ids")
	}
	return a, nil
}

// StartAt returns the appointment start as an instant in loc.
func (a Appointment) StartAt(loc *time.Location) (time.Time, error) {
	return parseLocal(a.Date, a.StartTime, loc)
}

// PreviousStartAt returns the start of the appointment this one replaced.
func (a Appointment) PreviousStartAt(loc *time.Location) (time.Time, error) {
	return parseLocal(a.PreviousDate, a.PreviousStartTime, loc)
}

func parseLocal(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid appointment time %q %q", date, clock)
	}
	return t, nil
}

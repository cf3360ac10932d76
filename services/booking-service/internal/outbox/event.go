package outbox

import (
	"github.com/md-rashed-zaman/clinicbook/libs/events"
)

// Event is written to outbox_events in the same transaction as the state
// change it describes. EventType doubles as the Kafka topic.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentEvent wraps a lifecycle payload for topic.
func AppointmentEvent(topic string, payload events.Appointment) (Event, error) {
	b, err := payload.Marshal()
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: events.AggregateAppointment,
		AggregateID:   payload.AppointmentID,
		EventType:     topic,
		Payload:       b,
	}, nil
}

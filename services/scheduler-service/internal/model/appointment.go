package model

// AppointmentStatus is the last lifecycle state the scheduler has seen for an
// appointment. Events on different topics can arrive out of order, so the
// record only moves forward.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// Rank orders statuses along the lifecycle. Closed statuses share the top
// rank, so the first one recorded stays.
func (s AppointmentStatus) Rank() int {
	switch s {
	case AppointmentPending:
		return 0
	case AppointmentConfirmed:
		return 1
	case AppointmentCancelled, AppointmentCompleted, AppointmentNoShow:
		return 2
	default:
		return -1
	}
}

// Closed reports whether no further notices should go out for the appointment.
func (s AppointmentStatus) Closed() bool { return s.Rank() == 2 }

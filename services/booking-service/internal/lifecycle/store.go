package lifecycle

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

type Catalog interface {
	Clinic(ctx context.Context, clinicID string) (model.Clinic, error)
	Treatment(ctx context.Context, clinicID, treatmentID string) (model.Treatment, error)
}

// Store runs fn in one transaction; fn's error rolls everything back.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	GetAppointment(ctx context.Context, clinicID, id string) (model.Appointment, error)
}

// Tx is the transactional view of storage. Lookups return model.ErrNotFound for
// missing rows; InsertAppointment returns model.ErrSlotUnavailable when the
// database rejects an overlapping booking.
type Tx interface {
	// ClaimIdempotencyKey locks key and returns the appointment already stored
	// under it, or "" when the key is new.
	ClaimIdempotencyKey(ctx context.Context, clinicID, key string) (string, error)
	SaveIdempotencyKey(ctx context.Context, clinicID, key, appointmentID string) error

	GetAppointmentForUpdate(ctx context.Context, clinicID, id string) (model.Appointment, error)
	// BookingData returns staff, duty records and non-cancelled appointments for date.
	BookingData(ctx context.Context, clinicID string, date time.Time) (availability.Data, error)
	InsertAppointment(ctx context.Context, appt model.Appointment) error
	UpdateStatus(ctx context.Context, clinicID, id string, to model.Status, reason string, at time.Time) error
	InsertEvent(ctx context.Context, evt outbox.Event) error
}

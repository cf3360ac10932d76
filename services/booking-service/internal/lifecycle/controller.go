package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/md-rashed-zaman/clinicbook/libs/events"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/lock"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

const RescheduledReason = "rescheduled"

type Controller struct {
	catalog Catalog
	store   Store
	locker  lock.Locker
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

type Options struct {
	Now   func() time.Time
	NewID func() string
}

func NewController(catalog Catalog, store Store, locker lock.Locker, logger *slog.Logger, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &Controller{
		catalog: catalog,
		store:   store,
		locker:  locker,
		logger:  logger,
		now:     opts.Now,
		newID:   opts.NewID,
	}
}

type Patient struct {
	ID               string
	Name             string
	Email            string
	Phone            string
	LineID           string
	PreferredChannel string
}

type CreateRequest struct {
	ClinicID    string
	TreatmentID string
	// PatientType is optional; when set the treatment must accept it.
	PatientType string
	Patient     Patient
	Date        string
	StartTime   string
	// StaffID is optional; when set that staff member must serve the first step.
	StaffID        string
	IdempotencyKey string
}

type CreateResult struct {
	Appointment model.Appointment
	// Replayed is true when the idempotency key matched an earlier booking.
	Replayed bool
}

// Create books an appointment. Availability is re-checked under a (staff, date)
// lock inside the write transaction, so a booking that lost a race returns
// model.ErrSlotUnavailable and the caller should re-query the grid.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.TreatmentID = strings.TrimSpace(req.TreatmentID)
	req.Patient.ID = strings.TrimSpace(req.Patient.ID)
	req.Patient.Name = strings.TrimSpace(req.Patient.Name)
	if req.ClinicID == "" || req.TreatmentID == "" || req.Patient.ID == "" || req.Patient.Name == "" {
		return CreateResult{}, fmt.Errorf("clinic_id, treatment_id, patient_id and patient_name required: %w", model.ErrInvalidInput)
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return CreateResult{}, fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	}
	start, err := model.ParseClock(req.StartTime)
	if err != nil {
		return CreateResult{}, fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	}

	ctx, span := otel.Tracer("booking-service/lifecycle").Start(ctx, "lifecycle.create")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.id", req.ClinicID), attribute.String("treatment.id", req.TreatmentID))

	clinic, err := c.catalog.Clinic(ctx, req.ClinicID)
	if err != nil {
		return CreateResult{}, err
	}
	clinic = model.ApplyDefaults(clinic)
	t, err := c.catalog.Treatment(ctx, req.ClinicID, req.TreatmentID)
	if err != nil {
		return CreateResult{}, err
	}
	if req.PatientType != "" {
		pt, ok := model.ParsePatientType(req.PatientType)
		if !ok {
			return CreateResult{}, fmt.Errorf("patient_type must be new or returning: %w", model.ErrInvalidInput)
		}
		if !t.AllowsPatient(pt) {
			return CreateResult{}, fmt.Errorf("treatment %s does not accept %s patients: %w", t.ID, pt, model.ErrInvalidInput)
		}
	}

	unlock, err := lock.LockAll(ctx, c.locker, staffKeys(clinic.ID, t.EligibleStaffIDs(), date))
	if err != nil {
		return CreateResult{}, fmt.Errorf("lock staff calendars: %w", err)
	}
	defer unlock()

	var res CreateResult
	err = c.store.WithinTx(ctx, func(tx Tx) error {
		if req.IdempotencyKey != "" {
			existing, err := tx.ClaimIdempotencyKey(ctx, clinic.ID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != "" {
				appt, err := tx.GetAppointmentForUpdate(ctx, clinic.ID, existing)
				if err != nil {
					return err
				}
				res = CreateResult{Appointment: appt, Replayed: true}
				return nil
			}
		}

		if model.At(date, start, clinic.Location()).Before(c.now()) {
			return fmt.Errorf("start time has passed: %w", model.ErrSlotUnavailable)
		}
		data, err := tx.BookingData(ctx, clinic.ID, date)
		if err != nil {
			return err
		}
		assignments, err := availability.Assign(clinic, t, date, start, strings.TrimSpace(req.StaffID), data, "")
		if err != nil {
			return err
		}

		now := c.now().UTC()
		appt := model.Appointment{
			ID:               c.newID(),
			ClinicID:         clinic.ID,
			PatientID:        req.Patient.ID,
			PatientName:      req.Patient.Name,
			PatientEmail:     strings.TrimSpace(req.Patient.Email),
			PatientPhone:     strings.TrimSpace(req.Patient.Phone),
			PatientLineID:    strings.TrimSpace(req.Patient.LineID),
			PreferredChannel: strings.TrimSpace(req.Patient.PreferredChannel),
			TreatmentID:      t.ID,
			TreatmentName:    t.Name,
			Date:             date,
			Start:            start,
			End:              start + model.Minute(t.TotalMinutes()),
			Status:           model.StatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		availability.ApplyAssignments(&appt, assignments)
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		if err := c.emit(ctx, tx, events.TopicAppointmentCreated, clinic, appt, nil); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			if err := tx.SaveIdempotencyKey(ctx, clinic.ID, req.IdempotencyKey, appt.ID); err != nil {
				return err
			}
		}
		res = CreateResult{Appointment: appt}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrSlotUnavailable) {
			c.logger.Info("booking rejected", "clinic_id", clinic.ID, "date", req.Date, "start", req.StartTime, "err", err)
		}
		return CreateResult{}, err
	}
	if !res.Replayed {
		c.logger.Info("appointment created", "appointment_id", res.Appointment.ID, "clinic_id", clinic.ID, "staff_id", res.Appointment.StaffID)
	}
	return res, nil
}

// Cancel is idempotent: cancelling a cancelled appointment returns it unchanged
// and emits nothing.
func (c *Controller) Cancel(ctx context.Context, clinicID, appointmentID, reason string) (model.Appointment, error) {
	return c.transition(ctx, clinicID, appointmentID, model.StatusCancelled, strings.TrimSpace(reason), events.TopicAppointmentCancelled)
}

// Confirm is idempotent for already-confirmed appointments.
func (c *Controller) Confirm(ctx context.Context, clinicID, appointmentID string) (model.Appointment, error) {
	return c.transition(ctx, clinicID, appointmentID, model.StatusConfirmed, "", events.TopicAppointmentConfirmed)
}

func (c *Controller) Complete(ctx context.Context, clinicID, appointmentID string) (model.Appointment, error) {
	return c.transition(ctx, clinicID, appointmentID, model.StatusCompleted, "", events.TopicAppointmentCompleted)
}

func (c *Controller) MarkNoShow(ctx context.Context, clinicID, appointmentID string) (model.Appointment, error) {
	return c.transition(ctx, clinicID, appointmentID, model.StatusNoShow, "", events.TopicAppointmentNoShow)
}

func (c *Controller) transition(ctx context.Context, clinicID, appointmentID string, to model.Status, reason, topic string) (model.Appointment, error) {
	clinicID = strings.TrimSpace(clinicID)
	appointmentID = strings.TrimSpace(appointmentID)
	if clinicID == "" || appointmentID == "" {
		return model.Appointment{}, fmt.Errorf("clinic_id and appointment_id required: %w", model.ErrInvalidInput)
	}

	ctx, span := otel.Tracer("booking-service/lifecycle").Start(ctx, "lifecycle."+string(to))
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", appointmentID))

	clinic, err := c.catalog.Clinic(ctx, clinicID)
	if err != nil {
		return model.Appointment{}, err
	}

	var out model.Appointment
	changed := false
	err = c.store.WithinTx(ctx, func(tx Tx) error {
		appt, err := tx.GetAppointmentForUpdate(ctx, clinicID, appointmentID)
		if err != nil {
			return err
		}
		if appt.IsBlock && to != model.StatusCancelled {
			return fmt.Errorf("%s is a block: %w", appt.ID, model.ErrInvalidTransition)
		}
		if appt.Status == to {
			out = appt
			return nil
		}
		if !model.CanTransition(appt.Status, to) {
			return fmt.Errorf("%s -> %s: %w", appt.Status, to, model.ErrInvalidTransition)
		}
		now := c.now().UTC()
		if err := tx.UpdateStatus(ctx, clinicID, appt.ID, to, reason, now); err != nil {
			return err
		}
		appt.Status = to
		appt.UpdatedAt = now
		if to == model.StatusCancelled {
			appt.CancelReason = reason
			appt.CancelledAt = &now
		}
		if !appt.IsBlock {
			if err := c.emit(ctx, tx, topic, model.ApplyDefaults(clinic), appt, nil); err != nil {
				return err
			}
		}
		out = appt
		changed = true
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if changed {
		c.logger.Info("appointment status changed", "appointment_id", out.ID, "status", string(out.Status))
	}
	return out, nil
}

type RescheduleRequest struct {
	ClinicID      string
	AppointmentID string
	Date          string
	StartTime     string
	StaffID       string
}

type RescheduleResult struct {
	Cancelled model.Appointment
	Created   model.Appointment
}

// Reschedule cancels the appointment and books a replacement in one
// transaction. The replacement may reuse the slot being vacated.
func (c *Controller) Reschedule(ctx context.Context, req RescheduleRequest) (RescheduleResult, error) {
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.ClinicID == "" || req.AppointmentID == "" {
		return RescheduleResult{}, fmt.Errorf("clinic_id and appointment_id required: %w", model.ErrInvalidInput)
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return RescheduleResult{}, fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	}
	start, err := model.ParseClock(req.StartTime)
	if err != nil {
		return RescheduleResult{}, fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	}

	ctx, span := otel.Tracer("booking-service/lifecycle").Start(ctx, "lifecycle.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", req.AppointmentID))

	clinic, err := c.catalog.Clinic(ctx, req.ClinicID)
	if err != nil {
		return RescheduleResult{}, err
	}
	clinic = model.ApplyDefaults(clinic)
	if model.At(date, start, clinic.Location()).Before(c.now()) {
		return RescheduleResult{}, fmt.Errorf("start time has passed: %w", model.ErrSlotUnavailable)
	}

	current, err := c.store.GetAppointment(ctx, req.ClinicID, req.AppointmentID)
	if err != nil {
		return RescheduleResult{}, err
	}
	if current.IsBlock || !current.Status.Active() {
		return RescheduleResult{}, fmt.Errorf("%s appointment cannot be rescheduled: %w", current.Status, model.ErrInvalidTransition)
	}
	t, err := c.catalog.Treatment(ctx, req.ClinicID, current.TreatmentID)
	if err != nil {
		return RescheduleResult{}, err
	}

	keys := staffKeys(clinic.ID, t.EligibleStaffIDs(), date)
	keys = append(keys, staffKeys(clinic.ID, current.StaffIDs(), current.Date)...)
	unlock, err := lock.LockAll(ctx, c.locker, keys)
	if err != nil {
		return RescheduleResult{}, fmt.Errorf("lock staff calendars: %w", err)
	}
	defer unlock()

	var res RescheduleResult
	err = c.store.WithinTx(ctx, func(tx Tx) error {
		old, err := tx.GetAppointmentForUpdate(ctx, req.ClinicID, req.AppointmentID)
		if err != nil {
			return err
		}
		if !old.Status.Active() {
			return fmt.Errorf("%s appointment cannot be rescheduled: %w", old.Status, model.ErrInvalidTransition)
		}
		data, err := tx.BookingData(ctx, clinic.ID, date)
		if err != nil {
			return err
		}
		assignments, err := availability.Assign(clinic, t, date, start, strings.TrimSpace(req.StaffID), data, old.ID)
		if err != nil {
			return err
		}

		now := c.now().UTC()
		if err := tx.UpdateStatus(ctx, clinic.ID, old.ID, model.StatusCancelled, RescheduledReason, now); err != nil {
			return err
		}
		old.Status = model.StatusCancelled
		old.CancelReason = RescheduledReason
		old.CancelledAt = &now
		old.UpdatedAt = now

		next := old
		next.ID = c.newID()
		next.Date = date
		next.Start = start
		next.End = start + model.Minute(t.TotalMinutes())
		next.TreatmentName = t.Name
		next.Status = model.StatusPending
		next.CancelReason = ""
		next.CancelledAt = nil
		next.RescheduledFrom = old.ID
		next.CreatedAt = now
		availability.ApplyAssignments(&next, assignments)
		if err := tx.InsertAppointment(ctx, next); err != nil {
			return err
		}

		if err := c.emit(ctx, tx, events.TopicAppointmentCancelled, clinic, old, &old); err != nil {
			return err
		}
		if err := c.emit(ctx, tx, events.TopicAppointmentCreated, clinic, next, &old); err != nil {
			return err
		}
		if err := c.emit(ctx, tx, events.TopicAppointmentRescheduled, clinic, next, &old); err != nil {
			return err
		}
		res = RescheduleResult{Cancelled: old, Created: next}
		return nil
	})
	if err != nil {
		return RescheduleResult{}, err
	}
	c.logger.Info("appointment rescheduled", "from", res.Cancelled.ID, "to", res.Created.ID)
	return res, nil
}

// emit writes a lifecycle event to the outbox. previous marks events that are
// part of a reschedule.
func (c *Controller) emit(ctx context.Context, tx Tx, topic string, clinic model.Clinic, appt model.Appointment, previous *model.Appointment) error {
	payload := events.Appointment{
		AppointmentID:    appt.ID,
		ClinicID:         appt.ClinicID,
		ClinicName:       clinic.Name,
		Timezone:         clinic.Timezone,
		PatientID:        appt.PatientID,
		PatientName:      appt.PatientName,
		PatientEmail:     appt.PatientEmail,
		PatientPhone:     appt.PatientPhone,
		PatientLineID:    appt.PatientLineID,
		PreferredChannel: appt.PreferredChannel,
		TreatmentID:      appt.TreatmentID,
		TreatmentName:    appt.TreatmentName,
		Date:             model.FormatDate(appt.Date),
		StartTime:        appt.Start.String(),
		EndTime:          appt.End.String(),
		Status:           string(appt.Status),
		CancelReason:     appt.CancelReason,
		OccurredAt:       c.now().UTC(),
	}
	if previous != nil {
		payload.Rescheduled = true
		payload.PreviousAppointmentID = previous.ID
		payload.PreviousDate = model.FormatDate(previous.Date)
		payload.PreviousStartTime = previous.Start.String()
	}
	evt, err := outbox.AppointmentEvent(topic, payload)
	if err != nil {
		return err
	}
	return tx.InsertEvent(ctx, evt)
}

func staffKeys(clinicID string, staffIDs []string, date time.Time) []string {
	day := model.FormatDate(date)
	keys := make([]string, 0, len(staffIDs))
	for _, id := range staffIDs {
		keys = append(keys, lock.StaffDayKey(clinicID, id, day))
	}
	return keys
}

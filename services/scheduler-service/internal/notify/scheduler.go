package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/md-rashed-zaman/clinicbook/libs/events"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
)

// Cancellation reasons recorded on scheduled_notifications.failure_reason.
const (
	ReasonSuperseded           = "superseded"
	ReasonConfirmed            = "appointment_confirmed"
	ReasonAppointmentCancelled = "appointment_cancelled"
	ReasonOptedOut             = "opted_out"
	ReasonAppointmentClosed    = "appointment_closed"
)

type Store interface {
	// Templates returns the clinic's auto-send templates.
	Templates(ctx context.Context, clinicID string) ([]model.Template, error)
	// Settings returns the zero value when the clinic has no settings row.
	Settings(ctx context.Context, clinicID string) (model.ClinicSettings, error)
	Preferences(ctx context.Context, clinicID, patientID string) (model.Preferences, error)
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	InsertNotification(ctx context.Context, n model.Notification) error
	// ActiveAutoReminder locks and returns the scheduled automatic reminder
	// for the pair, if any.
	ActiveAutoReminder(ctx context.Context, patientID, appointmentID string) (model.Notification, bool, error)
	// CancelScheduled cancels the appointment's scheduled rows, or only its
	// automatic reminders when autoOnly is set.
	CancelScheduled(ctx context.Context, appointmentID string, autoOnly bool, reason string, at time.Time) (int, error)
	CancelNotification(ctx context.Context, id, reason string, at time.Time) error
	// TrackAppointment records status for the appointment unless a later
	// status is already on record, locks the record and returns the status
	// now on record.
	TrackAppointment(ctx context.Context, appointmentID string, status model.AppointmentStatus, at time.Time) (model.AppointmentStatus, error)
}

type Scheduler struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

type Options struct {
	Now   func() time.Time
	NewID func() string
}

func New(store Store, logger *slog.Logger, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Scheduler{store: store, logger: logger, now: opts.Now, newID: opts.NewID}
}

// Result summarises what one event did.
type Result struct {
	Created   []model.Notification
	Cancelled int
	Skipped   int
}

// HandleEvent routes a lifecycle event by topic. Unknown topics are ignored.
func (s *Scheduler) HandleEvent(ctx context.Context, topic string, evt events.Appointment) (Result, error) {
	ctx, span := otel.Tracer("scheduler-service/notify").Start(ctx, "notify.handle_event")
	defer span.End()
	span.SetAttributes(attribute.String("messaging.destination", topic), attribute.String("appointment.id", evt.AppointmentID))

	switch topic {
	case events.TopicAppointmentCreated:
		return s.AppointmentCreated(ctx, evt)
	case events.TopicAppointmentConfirmed:
		return s.AppointmentConfirmed(ctx, evt)
	case events.TopicAppointmentCancelled:
		return s.AppointmentCancelled(ctx, evt)
	case events.TopicAppointmentRescheduled:
		return s.AppointmentRescheduled(ctx, evt)
	case events.TopicAppointmentCompleted:
		return s.AppointmentClosed(ctx, evt, model.AppointmentCompleted)
	case events.TopicAppointmentNoShow:
		return s.AppointmentClosed(ctx, evt, model.AppointmentNoShow)
	default:
		return Result{}, nil
	}
}

// eventContext is everything derived from an event before templates are
// matched.
type eventContext struct {
	settings model.ClinicSettings
	prefs    model.Preferences
	contact  model.Contact
	vars     map[string]string
	start    time.Time
}

func (s *Scheduler) load(ctx context.Context, evt events.Appointment) (eventContext, []model.Template, error) {
	settings, err := s.store.Settings(ctx, evt.ClinicID)
	if err != nil {
		return eventContext{}, nil, err
	}
	if evt.Timezone != "" {
		settings.Timezone = evt.Timezone
	}
	settings = model.ApplyDefaults(settings)
	settings.ClinicID = evt.ClinicID
	loc := settings.Location()

	start, err := evt.StartAt(loc)
	if err != nil {
		return eventContext{}, nil, fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	}
	vars := Vars{
		PatientName:   evt.PatientName,
		ClinicName:    evt.ClinicName,
		TreatmentName: evt.TreatmentName,
		Start:         start,
		CancelReason:  evt.CancelReason,
	}
	if evt.PreviousDate != "" {
		if prev, err := evt.PreviousStartAt(loc); err == nil {
			vars.Previous = prev
		}
	}

	prefs, err := s.store.Preferences(ctx, evt.ClinicID, evt.PatientID)
	if err != nil {
		return eventContext{}, nil, err
	}
	templates, err := s.store.Templates(ctx, evt.ClinicID)
	if err != nil {
		return eventContext{}, nil, err
	}
	return eventContext{
		settings: settings,
		prefs:    prefs,
		contact: model.Contact{
			PatientID:        evt.PatientID,
			Name:             evt.PatientName,
			Email:            strings.TrimSpace(evt.PatientEmail),
			Phone:            strings.TrimSpace(evt.PatientPhone),
			LineID:           strings.TrimSpace(evt.PatientLineID),
			PreferredChannel: model.Channel(strings.TrimSpace(evt.PreferredChannel)),
		},
		vars:  vars.Map(),
		start: start,
	}, templates, nil
}

// build renders t for the patient. ok is false when the patient opted out,
// the send time has passed, or no channel reaches them.
func (s *Scheduler) build(ec eventContext, t model.Template, appointmentID string, now time.Time) (model.Notification, bool) {
	if !ec.prefs.Allows(t.Type) {
		return model.Notification{}, false
	}
	sendAt := now
	if t.Trigger == model.TriggerRelative {
		at, ok := ComputeSendAt(ec.start, t.OffsetValue, t.OffsetUnit, ec.settings.SendHour, ec.settings.Location(), now)
		if !ok {
			return model.Notification{}, false
		}
		sendAt = at
	}
	msg, ok := SelectChannel(t, ec.contact)
	if !ok {
		return model.Notification{}, false
	}
	msg = msg.Render(ec.vars)
	return model.Notification{
		ID:             s.newID(),
		ClinicID:       ec.settings.ClinicID,
		PatientID:      ec.contact.PatientID,
		AppointmentID:  appointmentID,
		TemplateID:     t.ID,
		Type:           t.Type,
		Channel:        msg.Channel,
		Recipient:      msg.Recipient,
		Subject:        msg.Subject,
		Message:        msg.Body,
		SendAt:         sendAt.UTC(),
		Status:         model.StatusScheduled,
		IsAutoReminder: t.AutoReminder(),
		MaxRetries:     ec.settings.MaxRetries,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}, true
}

// AppointmentCreated schedules on_created notices and relative reminders. Of
// the automatic reminder templates only the one with the earliest future send
// time is kept, replacing any reminder already scheduled for the pair. A
// created event that arrives after the appointment was confirmed schedules no
// automatic reminder, and one that arrives after it closed schedules nothing.
func (s *Scheduler) AppointmentCreated(ctx context.Context, evt events.Appointment) (Result, error) {
	ec, templates, err := s.load(ctx, evt)
	if err != nil {
		return Result{}, err
	}
	now := s.now()
	var res Result
	var plain []model.Notification
	var reminder *model.Notification
	for _, t := range templates {
		if !t.AutoSend {
			continue
		}
		switch t.Trigger {
		case model.TriggerOnCreated:
			// A reschedule announces itself with a change notice instead.
			if evt.Rescheduled {
				continue
			}
		case model.TriggerRelative:
		default:
			continue
		}
		n, ok := s.build(ec, t, evt.AppointmentID, now)
		if !ok {
			res.Skipped++
			continue
		}
		if n.IsAutoReminder {
			if reminder == nil || n.SendAt.Before(reminder.SendAt) {
				if reminder != nil {
					res.Skipped++
				}
				reminder = &n
			} else {
				res.Skipped++
			}
			continue
		}
		plain = append(plain, n)
	}

	built := res
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		res = built
		rows, keep := plain, reminder
		state, err := tx.TrackAppointment(ctx, evt.AppointmentID, model.AppointmentPending, occurredAt(evt, now))
		if err != nil {
			return err
		}
		switch {
		case state.Closed():
			res.Skipped += len(rows)
			rows = nil
			if keep != nil {
				res.Skipped++
				keep = nil
			}
		case state == model.AppointmentConfirmed && keep != nil:
			res.Skipped++
			keep = nil
		}
		for _, n := range rows {
			if err := tx.InsertNotification(ctx, n); err != nil {
				return err
			}
		}
		res.Created = append([]model.Notification(nil), rows...)
		if keep == nil {
			return nil
		}
		cancelled, err := s.supersede(ctx, tx, *keep, now)
		res.Cancelled += cancelled
		res.Created = append(res.Created, *keep)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.log(evt, "created", res)
	return res, nil
}

// supersede cancels the pair's active reminder and inserts n in the same
// transaction.
func (s *Scheduler) supersede(ctx context.Context, tx Tx, n model.Notification, now time.Time) (int, error) {
	cancelled := 0
	existing, found, err := tx.ActiveAutoReminder(ctx, n.PatientID, n.AppointmentID)
	if err != nil {
		return 0, err
	}
	if found {
		if err := tx.CancelNotification(ctx, existing.ID, ReasonSuperseded, now.UTC()); err != nil {
			return 0, err
		}
		cancelled++
	}
	return cancelled, tx.InsertNotification(ctx, n)
}

// AppointmentConfirmed cancels the automatic reminder and sends confirmation
// notices. Other scheduled notices for the appointment are left alone.
func (s *Scheduler) AppointmentConfirmed(ctx context.Context, evt events.Appointment) (Result, error) {
	return s.immediate(ctx, evt, model.AppointmentConfirmed, model.TypeAppointmentConfirmation, func(ctx context.Context, tx Tx, now time.Time) (int, error) {
		return tx.CancelScheduled(ctx, evt.AppointmentID, true, ReasonConfirmed, now)
	})
}

// AppointmentCancelled cancels every scheduled row for the appointment. The
// cancellation notice is skipped when the cancel is half of a reschedule.
func (s *Scheduler) AppointmentCancelled(ctx context.Context, evt events.Appointment) (Result, error) {
	notice := model.TypeAppointmentCancellation
	if evt.Rescheduled {
		notice = ""
	}
	return s.immediate(ctx, evt, model.AppointmentCancelled, notice, func(ctx context.Context, tx Tx, now time.Time) (int, error) {
		return tx.CancelScheduled(ctx, evt.AppointmentID, false, ReasonAppointmentCancelled, now)
	})
}

// AppointmentRescheduled sends change notices carrying the old and new times.
func (s *Scheduler) AppointmentRescheduled(ctx context.Context, evt events.Appointment) (Result, error) {
	return s.immediate(ctx, evt, model.AppointmentPending, model.TypeAppointmentChange, nil)
}

// AppointmentClosed records a completed or no-show appointment and cancels
// anything still scheduled for it.
func (s *Scheduler) AppointmentClosed(ctx context.Context, evt events.Appointment, status model.AppointmentStatus) (Result, error) {
	now := s.now().UTC()
	var res Result
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.TrackAppointment(ctx, evt.AppointmentID, status, occurredAt(evt, now)); err != nil {
			return err
		}
		cancelled, err := tx.CancelScheduled(ctx, evt.AppointmentID, false, ReasonAppointmentClosed, now)
		res.Cancelled = cancelled
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.log(evt, string(status), res)
	return res, nil
}

// immediate records status, runs before (if set) and then inserts the
// clinic's immediate templates of type notice, all in one transaction. An
// empty notice inserts nothing, and so does an appointment that already
// closed with a different status.
func (s *Scheduler) immediate(ctx context.Context, evt events.Appointment, status model.AppointmentStatus, notice model.NotificationType, before func(context.Context, Tx, time.Time) (int, error)) (Result, error) {
	ec, templates, err := s.load(ctx, evt)
	if err != nil {
		return Result{}, err
	}
	now := s.now()
	var res Result
	var pending []model.Notification
	if notice != "" {
		for _, t := range templates {
			if !t.AutoSend || t.Trigger != model.TriggerImmediate || t.Type != notice {
				continue
			}
			n, ok := s.build(ec, t, evt.AppointmentID, now)
			if !ok {
				res.Skipped++
				continue
			}
			pending = append(pending, n)
		}
	}
	built := res
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		res = built
		state, err := tx.TrackAppointment(ctx, evt.AppointmentID, status, occurredAt(evt, now))
		if err != nil {
			return err
		}
		if before != nil {
			cancelled, err := before(ctx, tx, now.UTC())
			if err != nil {
				return err
			}
			res.Cancelled += cancelled
		}
		if state.Closed() && state != status {
			res.Skipped += len(pending)
			return nil
		}
		for _, n := range pending {
			if err := tx.InsertNotification(ctx, n); err != nil {
				return err
			}
		}
		res.Created = pending
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	label := string(notice)
	if label == "" {
		label = string(status)
	}
	s.log(evt, label, res)
	return res, nil
}

// LinkEstablished sends the clinic's on_link_established templates to a
// patient who just connected a messaging account.
func (s *Scheduler) LinkEstablished(ctx context.Context, clinicID, clinicName string, contact model.Contact) (Result, error) {
	clinicID = strings.TrimSpace(clinicID)
	contact.PatientID = strings.TrimSpace(contact.PatientID)
	if clinicID == "" || contact.PatientID == "" {
		return Result{}, fmt.Errorf("clinic_id and patient_id required: %w", model.ErrInvalidInput)
	}
	settings, err := s.store.Settings(ctx, clinicID)
	if err != nil {
		return Result{}, err
	}
	settings = model.ApplyDefaults(settings)
	settings.ClinicID = clinicID
	prefs, err := s.store.Preferences(ctx, clinicID, contact.PatientID)
	if err != nil {
		return Result{}, err
	}
	templates, err := s.store.Templates(ctx, clinicID)
	if err != nil {
		return Result{}, err
	}
	ec := eventContext{
		settings: settings,
		prefs:    prefs,
		contact:  contact,
		vars:     Vars{PatientName: contact.Name, ClinicName: clinicName}.Map(),
	}

	now := s.now()
	var res Result
	for _, t := range templates {
		if !t.AutoSend || t.Trigger != model.TriggerOnLinkEstablished {
			continue
		}
		n, ok := s.build(ec, t, "", now)
		if !ok {
			res.Skipped++
			continue
		}
		res.Created = append(res.Created, n)
	}
	if len(res.Created) == 0 {
		return res, nil
	}
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		for _, n := range res.Created {
			if err := tx.InsertNotification(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Scheduler) log(evt events.Appointment, what string, res Result) {
	if len(res.Created) == 0 && res.Cancelled == 0 {
		return
	}
	s.logger.Info("notifications updated",
		"appointment_id", evt.AppointmentID,
		"event", what,
		"created", len(res.Created),
		"cancelled", res.Cancelled,
		"skipped", res.Skipped,
	)
}

func occurredAt(evt events.Appointment, now time.Time) time.Time {
	if evt.OccurredAt.IsZero() {
		return now.UTC()
	}
	return evt.OccurredAt.UTC()
}

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

type Grid interface {
	WeeklyGrid(ctx context.Context, q availability.WeeklyQuery) ([]availability.Slot, error)
	RescheduleGrid(ctx context.Context, req availability.RescheduleRequest) ([]availability.Slot, error)
}

type Lifecycle interface {
	Create(ctx context.Context, req lifecycle.CreateRequest) (lifecycle.CreateResult, error)
	Cancel(ctx context.Context, clinicID, appointmentID, reason string) (model.Appointment, error)
	Confirm(ctx context.Context, clinicID, appointmentID string) (model.Appointment, error)
	Complete(ctx context.Context, clinicID, appointmentID string) (model.Appointment, error)
	MarkNoShow(ctx context.Context, clinicID, appointmentID string) (model.Appointment, error)
	Reschedule(ctx context.Context, req lifecycle.RescheduleRequest) (lifecycle.RescheduleResult, error)
	CreateBlock(ctx context.Context, req lifecycle.BlockRequest) (model.Appointment, error)
}

type AppointmentLister interface {
	ListAppointments(ctx context.Context, clinicID string, date time.Time, limit int) ([]model.Appointment, error)
}

type BookingHandler struct {
	grid   Grid
	life   Lifecycle
	list   AppointmentLister
	logger *slog.Logger
}

func NewBookingHandler(grid Grid, life Lifecycle, list AppointmentLister, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{grid: grid, life: life, list: list, logger: logger}
}

type slotItem struct {
	Date              string     `json:"date"`
	Time              string     `json:"time"`
	EndTime           string     `json:"end_time"`
	Available         bool       `json:"available"`
	AvailableStaffIDs []string   `json:"available_staff_ids"`
	StepStaffIDs      [][]string `json:"step_staff_ids,omitempty"`
	Reason            string     `json:"reason,omitempty"`
}

func toSlotItems(slots []availability.Slot) []slotItem {
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		staff := s.AvailableStaffIDs
		if staff == nil {
			staff = []string{}
		}
		items = append(items, slotItem{
			Date:              model.FormatDate(s.Date),
			Time:              s.Time.String(),
			EndTime:           s.End.String(),
			Available:         s.Available,
			AvailableStaffIDs: staff,
			StepStaffIDs:      s.StepStaff,
			Reason:            s.Reason,
		})
	}
	return items
}

// Slots serves the 7-day grid for a treatment.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	slots, err := h.grid.WeeklyGrid(r.Context(), availability.WeeklyQuery{
		ClinicID:    q.Get("clinic_id"),
		TreatmentID: q.Get("treatment_id"),
		PatientType: strings.TrimSpace(q.Get("patient_type")),
		StartDate:   q.Get("start_date"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotItems(slots))
}

func (h *BookingHandler) RescheduleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	duration, err := strconv.Atoi(strings.TrimSpace(q.Get("duration_minutes")))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: "duration_minutes must be an integer"})
		return
	}
	slots, err := h.grid.RescheduleGrid(r.Context(), availability.RescheduleRequest{
		ClinicID:             q.Get("clinic_id"),
		DurationMinutes:      duration,
		StaffID:              q.Get("staff_id"),
		ExcludeAppointmentID: q.Get("exclude_appointment_id"),
		StartDate:            q.Get("start_date"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotItems(slots))
}

type bookRequest struct {
	ClinicID         string `json:"clinic_id"`
	TreatmentID      string `json:"treatment_id"`
	PatientType      string `json:"patient_type"`
	PatientID        string `json:"patient_id"`
	PatientName      string `json:"patient_name"`
	PatientEmail     string `json:"patient_email"`
	PatientPhone     string `json:"patient_phone"`
	PatientLineID    string `json:"patient_line_id"`
	PreferredChannel string `json:"preferred_channel"`
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	StaffID          string `json:"staff_id"`
}

type appointmentItem struct {
	AppointmentID    string   `json:"appointment_id"`
	ClinicID         string   `json:"clinic_id"`
	PatientID        string   `json:"patient_id"`
	PatientName      string   `json:"patient_name"`
	TreatmentID      string   `json:"treatment_id,omitempty"`
	TreatmentName    string   `json:"treatment_name,omitempty"`
	Date             string   `json:"date"`
	StartTime        string   `json:"start_time"`
	EndTime          string   `json:"end_time"`
	StaffID          string   `json:"staff_id,omitempty"`
	SecondaryStaff   []string `json:"secondary_staff_ids,omitempty"`
	Status           string   `json:"status"`
	IsBlock          bool     `json:"is_block,omitempty"`
	CancelReason     string   `json:"cancel_reason,omitempty"`
	CancelledAt      string   `json:"cancelled_at,omitempty"`
	RescheduledFrom  string   `json:"rescheduled_from,omitempty"`
	PreferredChannel string   `json:"preferred_channel,omitempty"`
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:    a.ID,
		ClinicID:         a.ClinicID,
		PatientID:        a.PatientID,
		PatientName:      a.PatientName,
		TreatmentID:      a.TreatmentID,
		TreatmentName:    a.TreatmentName,
		Date:             model.FormatDate(a.Date),
		StartTime:        a.Start.String(),
		EndTime:          a.End.String(),
		StaffID:          a.StaffID,
		SecondaryStaff:   a.SecondaryStaff,
		Status:           string(a.Status),
		IsBlock:          a.IsBlock,
		CancelReason:     a.CancelReason,
		RescheduledFrom:  a.RescheduledFrom,
		PreferredChannel: a.PreferredChannel,
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

// Book creates an appointment. Replays with the same Idempotency-Key return the
// original booking with 200 instead of 201.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	res, err := h.life.Create(r.Context(), lifecycle.CreateRequest{
		ClinicID:    req.ClinicID,
		TreatmentID: req.TreatmentID,
		PatientType: strings.TrimSpace(req.PatientType),
		Patient: lifecycle.Patient{
			ID:               req.PatientID,
			Name:             req.PatientName,
			Email:            req.PatientEmail,
			Phone:            req.PatientPhone,
			LineID:           req.PatientLineID,
			PreferredChannel: req.PreferredChannel,
		},
		Date:           req.Date,
		StartTime:      req.StartTime,
		StaffID:        req.StaffID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, toAppointmentItem(res.Appointment))
}

type statusRequest struct {
	ClinicID      string `json:"clinic_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *BookingHandler) statusChange(apply func(ctx context.Context, req statusRequest) (model.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req statusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		appt, err := apply(r.Context(), req)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentItem(appt))
	}
}

func (h *BookingHandler) Cancel() http.HandlerFunc {
	return h.statusChange(func(ctx context.Context, req statusRequest) (model.Appointment, error) {
		return h.life.Cancel(ctx, req.ClinicID, req.AppointmentID, req.Reason)
	})
}

func (h *BookingHandler) Confirm() http.HandlerFunc {
	return h.statusChange(func(ctx context.Context, req statusRequest) (model.Appointment, error) {
		return h.life.Confirm(ctx, req.ClinicID, req.AppointmentID)
	})
}

func (h *BookingHandler) Complete() http.HandlerFunc {
	return h.statusChange(func(ctx context.Context, req statusRequest) (model.Appointment, error) {
		return h.life.Complete(ctx, req.ClinicID, req.AppointmentID)
	})
}

func (h *BookingHandler) NoShow() http.HandlerFunc {
	return h.statusChange(func(ctx context.Context, req statusRequest) (model.Appointment, error) {
		return h.life.MarkNoShow(ctx, req.ClinicID, req.AppointmentID)
	})
}

type rescheduleRequest struct {
	ClinicID      string `json:"clinic_id"`
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	StaffID       string `json:"staff_id"`
}

type rescheduleResponse struct {
	Cancelled appointmentItem `json:"cancelled"`
	Created   appointmentItem `json:"created"`
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	res, err := h.life.Reschedule(r.Context(), lifecycle.RescheduleRequest{
		ClinicID:      req.ClinicID,
		AppointmentID: req.AppointmentID,
		Date:          req.Date,
		StartTime:     req.StartTime,
		StaffID:       req.StaffID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rescheduleResponse{
		Cancelled: toAppointmentItem(res.Cancelled),
		Created:   toAppointmentItem(res.Created),
	})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clinicID := strings.TrimSpace(r.Header.Get("X-Clinic-Id"))
	if clinicID == "" {
		clinicID = strings.TrimSpace(r.URL.Query().Get("clinic_id"))
	}
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if clinicID == "" || err != nil {
		http.Error(w, "clinic_id and date required", http.StatusBadRequest)
		return
	}
	limit := 200
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	appts, err := h.list.ListAppointments(r.Context(), clinicID, date, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	writeJSON(w, http.StatusOK, items)
}

type blockRequest struct {
	ClinicID  string `json:"clinic_id"`
	StaffID   string `json:"staff_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

func (h *BookingHandler) Block(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	block, err := h.life.CreateBlock(r.Context(), lifecycle.BlockRequest{
		ClinicID:  req.ClinicID,
		StaffID:   req.StaffID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(block))
}

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/notify"
)

type PreferenceStore interface {
	Preferences(ctx context.Context, clinicID, patientID string) (model.Preferences, error)
	PutPreferences(ctx context.Context, p model.Preferences) error
}

type NotificationLister interface {
	ListNotifications(ctx context.Context, clinicID, patientID string, limit int) ([]model.Notification, error)
}

type LinkHandler interface {
	LinkEstablished(ctx context.Context, clinicID, clinicName string, contact model.Contact) (notify.Result, error)
}

type NotificationHandler struct {
	prefs  PreferenceStore
	list   NotificationLister
	links  LinkHandler
	logger *slog.Logger
}

func NewNotificationHandler(prefs PreferenceStore, list NotificationLister, links LinkHandler, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{prefs: prefs, list: list, links: links, logger: logger}
}

type preferencesBody struct {
	ClinicID    string          `json:"clinic_id"`
	PatientID   string          `json:"patient_id"`
	Preferences map[string]bool `json:"preferences"`
}

// Preferences serves GET (effective value of every type) and PUT (partial
// update) on a patient's opt-outs.
func (h *NotificationHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		clinicID := strings.TrimSpace(r.URL.Query().Get("clinic_id"))
		patientID := strings.TrimSpace(r.URL.Query().Get("patient_id"))
		if clinicID == "" || patientID == "" {
			badRequest(w, "clinic_id and patient_id required")
			return
		}
		h.writePreferences(w, r.Context(), clinicID, patientID)
	case http.MethodPut:
		var req preferencesBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		req.ClinicID = strings.TrimSpace(req.ClinicID)
		req.PatientID = strings.TrimSpace(req.PatientID)
		if req.ClinicID == "" || req.PatientID == "" || len(req.Preferences) == 0 {
			badRequest(w, "clinic_id, patient_id and preferences required")
			return
		}
		p := model.Preferences{ClinicID: req.ClinicID, PatientID: req.PatientID, Enabled: map[model.NotificationType]bool{}}
		for k, v := range req.Preferences {
			typ := model.NotificationType(strings.TrimSpace(k))
			if !typ.Valid() {
				badRequest(w, "unknown notification type "+k)
				return
			}
			p.Enabled[typ] = v
		}
		if err := h.prefs.PutPreferences(r.Context(), p); err != nil {
			writeError(w, h.logger, err)
			return
		}
		h.writePreferences(w, r.Context(), req.ClinicID, req.PatientID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *NotificationHandler) writePreferences(w http.ResponseWriter, ctx context.Context, clinicID, patientID string) {
	p, err := h.prefs.Preferences(ctx, clinicID, patientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := preferencesBody{ClinicID: clinicID, PatientID: patientID, Preferences: map[string]bool{}}
	for _, typ := range model.NotificationTypes {
		out.Preferences[string(typ)] = p.Allows(typ)
	}
	writeJSON(w, http.StatusOK, out)
}

type notificationItem struct {
	ID             string     `json:"id"`
	AppointmentID  string     `json:"appointment_id,omitempty"`
	TemplateID     string     `json:"template_id,omitempty"`
	Type           string     `json:"type"`
	Channel        string     `json:"channel"`
	Recipient      string     `json:"recipient"`
	Subject        string     `json:"subject,omitempty"`
	Message        string     `json:"message"`
	SendAt         time.Time  `json:"send_at"`
	Status         string     `json:"status"`
	IsAutoReminder bool       `json:"is_auto_reminder"`
	RetryCount     int        `json:"retry_count"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
}

// List returns a patient's notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	clinicID := strings.TrimSpace(q.Get("clinic_id"))
	patientID := strings.TrimSpace(q.Get("patient_id"))
	if clinicID == "" || patientID == "" {
		badRequest(w, "clinic_id and patient_id required")
		return
	}
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}
	rows, err := h.list.ListNotifications(r.Context(), clinicID, patientID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]notificationItem, 0, len(rows))
	for _, n := range rows {
		items = append(items, notificationItem{
			ID:             n.ID,
			AppointmentID:  n.AppointmentID,
			TemplateID:     n.TemplateID,
			Type:           string(n.Type),
			Channel:        string(n.Channel),
			Recipient:      n.Recipient,
			Subject:        n.Subject,
			Message:        n.Message,
			SendAt:         n.SendAt,
			Status:         string(n.Status),
			IsAutoReminder: n.IsAutoReminder,
			RetryCount:     n.RetryCount,
			FailureReason:  n.FailureReason,
			SentAt:         n.SentAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

type linkRequest struct {
	ClinicID         string `json:"clinic_id"`
	ClinicName       string `json:"clinic_name"`
	PatientID        string `json:"patient_id"`
	PatientName      string `json:"patient_name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	LineID           string `json:"line_id"`
	PreferredChannel string `json:"preferred_channel"`
}

// LinkEstablished runs the clinic's link-established templates for a patient
// who just connected a messaging account.
func (h *NotificationHandler) LinkEstablished(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	preferred := model.Channel(strings.TrimSpace(req.PreferredChannel))
	if preferred != "" && !preferred.Valid() {
		badRequest(w, "unknown preferred_channel")
		return
	}
	res, err := h.links.LinkEstablished(r.Context(), req.ClinicID, strings.TrimSpace(req.ClinicName), model.Contact{
		PatientID:        req.PatientID,
		Name:             strings.TrimSpace(req.PatientName),
		Email:            strings.TrimSpace(req.Email),
		Phone:            strings.TrimSpace(req.Phone),
		LineID:           strings.TrimSpace(req.LineID),
		PreferredChannel: preferred,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ids := make([]string, 0, len(res.Created))
	for _, n := range res.Created {
		ids = append(ids, n.ID)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"scheduled": ids, "skipped": res.Skipped})
}

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
)

type ConfigStore interface {
	PutTemplate(ctx context.Context, t model.Template) error
	PutSettings(ctx context.Context, s model.ClinicSettings) error
}

type ConfigHandler struct {
	store  ConfigStore
	logger *slog.Logger
}

func NewConfigHandler(store ConfigStore, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{store: store, logger: logger}
}

type templateBody struct {
	ID           string `json:"id"`
	ClinicID     string `json:"clinic_id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Body         string `json:"body"`
	LineBody     string `json:"line_body"`
	EmailSubject string `json:"email_subject"`
	EmailBody    string `json:"email_body"`
	SMSBody      string `json:"sms_body"`
	AutoSend     bool   `json:"auto_send"`
	Trigger      string `json:"trigger"`
	OffsetValue  int    `json:"offset_value"`
	OffsetUnit   string `json:"offset_unit"`
}

// PutTemplate creates a template, or replaces it when id is given.
func (h *ConfigHandler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req templateBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	t := model.Template{
		ID:           strings.TrimSpace(req.ID),
		ClinicID:     strings.TrimSpace(req.ClinicID),
		Name:         strings.TrimSpace(req.Name),
		Type:         model.NotificationType(strings.TrimSpace(req.Type)),
		Body:         req.Body,
		LineBody:     req.LineBody,
		EmailSubject: req.EmailSubject,
		EmailBody:    req.EmailBody,
		SMSBody:      req.SMSBody,
		AutoSend:     req.AutoSend,
		Trigger:      model.Trigger(strings.TrimSpace(req.Trigger)),
		OffsetValue:  req.OffsetValue,
		OffsetUnit:   model.OffsetUnit(strings.TrimSpace(req.OffsetUnit)),
	}
	if t.OffsetUnit == "" && t.Trigger != model.TriggerRelative {
		t.OffsetUnit = model.UnitImmediate
	}
	if err := t.Validate(); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := h.store.PutTemplate(r.Context(), t); err != nil {
		writeError(w, h.logger, err)
		return
	}
	req = templateBody{
		ID: t.ID, ClinicID: t.ClinicID, Name: t.Name, Type: string(t.Type), Body: t.Body, LineBody: t.LineBody,
		EmailSubject: t.EmailSubject, EmailBody: t.EmailBody, SMSBody: t.SMSBody, AutoSend: t.AutoSend,
		Trigger: string(t.Trigger), OffsetValue: t.OffsetValue, OffsetUnit: string(t.OffsetUnit),
	}
	writeJSON(w, http.StatusOK, req)
}

type settingsBody struct {
	ClinicID            string `json:"clinic_id"`
	Timezone            string `json:"timezone"`
	SendHour            int    `json:"send_hour"`
	MaxRetries          int    `json:"max_retries"`
	RetryBackoffSeconds int    `json:"retry_backoff_seconds"`
}

// PutSettings stores the clinic's reminder settings. Missing or out-of-range
// values are replaced by defaults and the effective settings are returned.
func (h *ConfigHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req settingsBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	if req.ClinicID == "" {
		badRequest(w, "clinic_id required")
		return
	}
	s := model.ApplyDefaults(model.ClinicSettings{
		ClinicID:     req.ClinicID,
		Timezone:     req.Timezone,
		SendHour:     req.SendHour,
		MaxRetries:   req.MaxRetries,
		RetryBackoff: time.Duration(req.RetryBackoffSeconds) * time.Second,
	})
	if err := h.store.PutSettings(r.Context(), s); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsBody{
		ClinicID:            s.ClinicID,
		Timezone:            s.Timezone,
		SendHour:            s.SendHour,
		MaxRetries:          s.MaxRetries,
		RetryBackoffSeconds: int(s.RetryBackoff / time.Second),
	})
}

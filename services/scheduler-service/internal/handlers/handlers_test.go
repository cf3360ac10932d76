package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/notify"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubStore struct {
	prefs    model.Preferences
	putPrefs model.Preferences
	rows     []model.Notification
	limit    int
	template model.Template
	settings model.ClinicSettings
	err      error
}

func (s *stubStore) Preferences(context.Context, string, string) (model.Preferences, error) {
	return s.prefs, s.err
}

func (s *stubStore) PutPreferences(_ context.Context, p model.Preferences) error {
	s.putPrefs = p
	if s.prefs.Enabled == nil {
		s.prefs.Enabled = map[model.NotificationType]bool{}
	}
	for k, v := range p.Enabled {
		s.prefs.Enabled[k] = v
	}
	return s.err
}

func (s *stubStore) ListNotifications(_ context.Context, _, _ string, limit int) ([]model.Notification, error) {
	s.limit = limit
	return s.rows, s.err
}

func (s *stubStore) PutTemplate(_ context.Context, t model.Template) error {
	s.template = t
	return s.err
}

func (s *stubStore) PutSettings(_ context.Context, cs model.ClinicSettings) error {
	s.settings = cs
	return s.err
}

type stubLinks struct {
	clinicID string
	contact  model.Contact
	err      error
}

func (l *stubLinks) LinkEstablished(_ context.Context, clinicID, _ string, c model.Contact) (notify.Result, error) {
	l.clinicID = clinicID
	l.contact = c
	if l.err != nil {
		return notify.Result{}, l.err
	}
	return notify.Result{Created: []model.Notification{{ID: "n-1"}}, Skipped: 1}, nil
}

func do(t *testing.T, h http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(method, target, r))
	return rec
}

func TestGetPreferencesReportsEveryType(t *testing.T) {
	store := &stubStore{prefs: model.Preferences{Enabled: map[model.NotificationType]bool{model.TypeAppointmentReminder: false}}}
	h := NewNotificationHandler(store, store, &stubLinks{}, discard)

	rec := do(t, h.Preferences, http.MethodGet, "/api/v1/notification-preferences?clinic_id=c1&patient_id=p1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var out preferencesBody
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Preferences) != len(model.NotificationTypes) {
		t.Fatalf("types %d", len(out.Preferences))
	}
	if out.Preferences["appointment_reminder"] || !out.Preferences["custom"] {
		t.Fatalf("preferences %v", out.Preferences)
	}
}

func TestPutPreferences(t *testing.T) {
	store := &stubStore{}
	h := NewNotificationHandler(store, store, &stubLinks{}, discard)

	rec := do(t, h.Preferences, http.MethodPut, "/api/v1/notification-preferences", map[string]any{
		"clinic_id": "c1", "patient_id": "p1",
		"preferences": map[string]bool{"periodic_checkup": false},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if enabled, ok := store.putPrefs.Enabled[model.TypePeriodicCheckup]; !ok || enabled {
		t.Fatalf("stored %+v", store.putPrefs)
	}

	rec = do(t, h.Preferences, http.MethodPut, "/api/v1/notification-preferences", map[string]any{
		"clinic_id": "c1", "patient_id": "p1",
		"preferences": map[string]bool{"newsletter": false},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown type status %d", rec.Code)
	}
	rec = do(t, h.Preferences, http.MethodGet, "/api/v1/notification-preferences?clinic_id=c1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing patient status %d", rec.Code)
	}
}

func TestListNotifications(t *testing.T) {
	sent := time.Date(2025, 1, 7, 18, 0, 5, 0, time.UTC)
	store := &stubStore{rows: []model.Notification{{
		ID: "n1", AppointmentID: "a1", Type: model.TypeAppointmentReminder, Channel: model.ChannelEmail,
		Recipient: "p@example.com", Message: "hi", SendAt: sent.Add(-5 * time.Second), Status: model.StatusSent, SentAt: &sent,
	}}}
	h := NewNotificationHandler(store, store, &stubLinks{}, discard)

	rec := do(t, h.List, http.MethodGet, "/api/v1/notifications?clinic_id=c1&patient_id=p1&limit=9999", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if store.limit != 500 {
		t.Fatalf("limit %d", store.limit)
	}
	var out struct {
		Notifications []notificationItem `json:"notifications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Notifications) != 1 || out.Notifications[0].Status != "sent" || out.Notifications[0].SentAt == nil {
		t.Fatalf("body %s", rec.Body.String())
	}

	if rec := do(t, h.List, http.MethodGet, "/api/v1/notifications?clinic_id=c1&patient_id=p1&limit=x", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status %d", rec.Code)
	}
}

func TestLinkEstablished(t *testing.T) {
	links := &stubLinks{}
	h := NewNotificationHandler(&stubStore{}, &stubStore{}, links, discard)

	rec := do(t, h.LinkEstablished, http.MethodPost, "/api/v1/patients/link-established", map[string]string{
		"clinic_id": "c1", "patient_id": "p1", "patient_name": " Hanako ", "line_id": "U1", "preferred_channel": "line",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d", rec.Code)
	}
	if links.clinicID != "c1" || links.contact.Name != "Hanako" || links.contact.LineID != "U1" || links.contact.PreferredChannel != model.ChannelLine {
		t.Fatalf("passed %q %+v", links.clinicID, links.contact)
	}

	rec = do(t, h.LinkEstablished, http.MethodPost, "/api/v1/patients/link-established", map[string]string{
		"clinic_id": "c1", "patient_id": "p1", "preferred_channel": "fax",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad channel status %d", rec.Code)
	}

	links.err = fmt.Errorf("clinic_id and patient_id required: %w", model.ErrInvalidInput)
	rec = do(t, h.LinkEstablished, http.MethodPost, "/api/v1/patients/link-established", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid input status %d", rec.Code)
	}
}

func TestPutTemplate(t *testing.T) {
	store := &stubStore{}
	h := NewConfigHandler(store, discard)

	rec := do(t, h.PutTemplate, http.MethodPut, "/api/v1/notification-templates", map[string]any{
		"clinic_id": "c1", "name": "Day before", "type": "appointment_reminder", "body": "See you {appointment_date}",
		"auto_send": true, "trigger": "relative_to_appointment_date", "offset_value": 1, "offset_unit": "days_before",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if store.template.ID == "" || !store.template.AutoReminder() {
		t.Fatalf("stored %+v", store.template)
	}

	rec = do(t, h.PutTemplate, http.MethodPut, "/api/v1/notification-templates", map[string]any{
		"clinic_id": "c1", "name": "Welcome", "type": "custom", "line_body": "hi", "trigger": "on_link_established",
	})
	if rec.Code != http.StatusOK || store.template.OffsetUnit != model.UnitImmediate {
		t.Fatalf("status %d unit %q", rec.Code, store.template.OffsetUnit)
	}

	rec = do(t, h.PutTemplate, http.MethodPut, "/api/v1/notification-templates", map[string]any{
		"clinic_id": "c1", "name": "Bad", "type": "appointment_reminder", "body": "x", "trigger": "relative_to_appointment_date",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing unit status %d", rec.Code)
	}
}

func TestPutSettingsAppliesDefaults(t *testing.T) {
	store := &stubStore{}
	h := NewConfigHandler(store, discard)

	rec := do(t, h.PutSettings, http.MethodPut, "/api/v1/notification-settings", map[string]any{
		"clinic_id": "c1", "timezone": "Asia/Tokyo", "send_hour": 40,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	want := model.ClinicSettings{ClinicID: "c1", Timezone: "Asia/Tokyo", SendHour: 18, MaxRetries: 3, RetryBackoff: 10 * time.Minute}
	if store.settings != want {
		t.Fatalf("stored %+v", store.settings)
	}
}

func TestStoreErrorIs500(t *testing.T) {
	store := &stubStore{err: errors.New("db down")}
	h := NewNotificationHandler(store, store, &stubLinks{}, discard)
	rec := do(t, h.List, http.MethodGet, "/api/v1/notifications?clinic_id=c1&patient_id=p1", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rec.Code)
	}
	if rec := do(t, h.List, http.MethodPost, "/api/v1/notifications", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method status %d", rec.Code)
	}
}

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

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/lock"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

var day = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

type stubGrid struct {
	weekly     availability.WeeklyQuery
	reschedule availability.RescheduleRequest
	err        error
}

func (g *stubGrid) WeeklyGrid(_ context.Context, q availability.WeeklyQuery) ([]availability.Slot, error) {
	g.weekly = q
	if g.err != nil {
		return nil, g.err
	}
	return []availability.Slot{
		{Date: day, Time: 9 * 60, End: 9*60 + 30, Available: true, AvailableStaffIDs: []string{"s1"}},
		{Date: day, Time: 12 * 60, End: 12*60 + 30, Reason: availability.ReasonBreak},
	}, nil
}

func (g *stubGrid) RescheduleGrid(_ context.Context, req availability.RescheduleRequest) ([]availability.Slot, error) {
	g.reschedule = req
	return nil, g.err
}

type stubLifecycle struct {
	create    lifecycle.CreateRequest
	replayed  bool
	err       error
	lastCall  string
	lastClin  string
	lastAppt  string
	lastBlock lifecycle.BlockRequest
}

func (s *stubLifecycle) appt(status model.Status) model.Appointment {
	return model.Appointment{ID: "a1", ClinicID: "c1", PatientID: "p1", Date: day, Start: 9 * 60, End: 9*60 + 30, StaffID: "s1", Status: status}
}

func (s *stubLifecycle) Create(_ context.Context, req lifecycle.CreateRequest) (lifecycle.CreateResult, error) {
	s.create = req
	if s.err != nil {
		return lifecycle.CreateResult{}, s.err
	}
	return lifecycle.CreateResult{Appointment: s.appt(model.StatusPending), Replayed: s.replayed}, nil
}

func (s *stubLifecycle) record(call, clinicID, id string, status model.Status) (model.Appointment, error) {
	s.lastCall, s.lastClin, s.lastAppt = call, clinicID, id
	if s.err != nil {
		return model.Appointment{}, s.err
	}
	return s.appt(status), nil
}

func (s *stubLifecycle) Cancel(_ context.Context, clinicID, id, _ string) (model.Appointment, error) {
	return s.record("cancel", clinicID, id, model.StatusCancelled)
}

func (s *stubLifecycle) Confirm(_ context.Context, clinicID, id string) (model.Appointment, error) {
	return s.record("confirm", clinicID, id, model.StatusConfirmed)
}

func (s *stubLifecycle) Complete(_ context.Context, clinicID, id string) (model.Appointment, error) {
	return s.record("complete", clinicID, id, model.StatusCompleted)
}

func (s *stubLifecycle) MarkNoShow(_ context.Context, clinicID, id string) (model.Appointment, error) {
	return s.record("no_show", clinicID, id, model.StatusNoShow)
}

func (s *stubLifecycle) Reschedule(_ context.Context, req lifecycle.RescheduleRequest) (lifecycle.RescheduleResult, error) {
	if s.err != nil {
		return lifecycle.RescheduleResult{}, s.err
	}
	created := s.appt(model.StatusPending)
	created.ID = "a2"
	created.RescheduledFrom = req.AppointmentID
	return lifecycle.RescheduleResult{Cancelled: s.appt(model.StatusCancelled), Created: created}, nil
}

func (s *stubLifecycle) CreateBlock(_ context.Context, req lifecycle.BlockRequest) (model.Appointment, error) {
	s.lastBlock = req
	if s.err != nil {
		return model.Appointment{}, s.err
	}
	a := s.appt(model.StatusConfirmed)
	a.IsBlock = true
	return a, nil
}

type stubList struct {
	clinicID string
	date     time.Time
	limit    int
}

func (l *stubList) ListAppointments(_ context.Context, clinicID string, date time.Time, limit int) ([]model.Appointment, error) {
	l.clinicID, l.date, l.limit = clinicID, date, limit
	return nil, nil
}

func newHandler() (*BookingHandler, *stubGrid, *stubLifecycle, *stubList) {
	g, l, list := &stubGrid{}, &stubLifecycle{}, &stubList{}
	return NewBookingHandler(g, l, list, slog.New(slog.NewTextHandler(io.Discard, nil))), g, l, list
}

func post(t *testing.T, h http.HandlerFunc, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSlots(t *testing.T) {
	h, g, _, _ := newHandler()
	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?clinic_id=c1&treatment_id=t1&patient_type=new&start_date=2025-01-06", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if g.weekly.ClinicID != "c1" || g.weekly.TreatmentID != "t1" || g.weekly.PatientType != "new" || g.weekly.StartDate != "2025-01-06" {
		t.Fatalf("query not passed through: %+v", g.weekly)
	}
	var items []slotItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 || items[0].Time != "09:00" || items[0].EndTime != "09:30" || !items[0].Available {
		t.Fatalf("unexpected items %+v", items)
	}
	if items[1].AvailableStaffIDs == nil || len(items[1].AvailableStaffIDs) != 0 || items[1].Reason != "break" {
		t.Fatalf("unavailable slot should carry an empty staff list: %+v", items[1])
	}
}

func TestSlotsErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("bad date: %w", model.ErrInvalidInput), http.StatusBadRequest},
		{model.ErrNotFound, http.StatusNotFound},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h, g, _, _ := newHandler()
		g.err = tc.err
		rec := httptest.NewRecorder()
		h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil))
		if rec.Code != tc.want {
			t.Fatalf("%v: status %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestRescheduleSlotsDuration(t *testing.T) {
	h, g, _, _ := newHandler()
	rec := httptest.NewRecorder()
	h.RescheduleSlots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/reschedule-slots?clinic_id=c1&duration_minutes=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.RescheduleSlots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/reschedule-slots?clinic_id=c1&duration_minutes=40&staff_id=s1&exclude_appointment_id=a1&start_date=2025-01-06", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if g.reschedule.DurationMinutes != 40 || g.reschedule.StaffID != "s1" || g.reschedule.ExcludeAppointmentID != "a1" {
		t.Fatalf("request not passed through: %+v", g.reschedule)
	}
	if rec.Body.String() != "[]" {
		t.Fatalf("empty grid should encode as [], got %s", rec.Body.String())
	}
}

func TestBook(t *testing.T) {
	h, _, l, _ := newHandler()
	body := bookRequest{ClinicID: "c1", TreatmentID: "t1", PatientID: "p1", PatientName: "Hanako", Date: "2025-01-06", StartTime: "09:00"}

	rec := post(t, h.Book, "/api/v1/public/book", body, map[string]string{"Idempotency-Key": " k1 "})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if l.create.IdempotencyKey != "k1" || l.create.Patient.Name != "Hanako" {
		t.Fatalf("request not passed through: %+v", l.create)
	}
	var item appointmentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.AppointmentID != "a1" || item.Date != "2025-01-06" || item.StartTime != "09:00" || item.Status != "pending" {
		t.Fatalf("unexpected body %+v", item)
	}

	l.replayed = true
	if rec := post(t, h.Book, "/api/v1/public/book", body, nil); rec.Code != http.StatusOK {
		t.Fatalf("replay status %d", rec.Code)
	}
}

func TestBookConflict(t *testing.T) {
	h, _, l, _ := newHandler()
	l.err = fmt.Errorf("no staff free: %w", model.ErrSlotUnavailable)
	rec := post(t, h.Book, "/api/v1/public/book", bookRequest{}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d", rec.Code)
	}
	var resp errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != "slot_unavailable" {
		t.Fatalf("error code %q", resp.Error)
	}

	l.err = fmt.Errorf("lock: %w", lock.ErrNotAcquired)
	if rec := post(t, h.Book, "/api/v1/public/book", bookRequest{}, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("lock timeout status %d", rec.Code)
	}
}

func TestBookRejectsBadJSON(t *testing.T) {
	h, _, _, _ := newHandler()
	rec := httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bytes.NewBufferString("{")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/book", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestStatusEndpoints(t *testing.T) {
	h, _, l, _ := newHandler()
	cases := []struct {
		handler http.HandlerFunc
		call    string
		status  string
	}{
		{h.Cancel(), "cancel", "cancelled"},
		{h.Confirm(), "confirm", "confirmed"},
		{h.Complete(), "complete", "completed"},
		{h.NoShow(), "no_show", "no_show"},
	}
	for _, tc := range cases {
		rec := post(t, tc.handler, "/", statusRequest{ClinicID: "c1", AppointmentID: "a1"}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", tc.call, rec.Code)
		}
		if l.lastCall != tc.call || l.lastClin != "c1" || l.lastAppt != "a1" {
			t.Fatalf("%s: recorded %s %s %s", tc.call, l.lastCall, l.lastClin, l.lastAppt)
		}
		var item appointmentItem
		_ = json.Unmarshal(rec.Body.Bytes(), &item)
		if item.Status != tc.status {
			t.Fatalf("%s: status %q", tc.call, item.Status)
		}
	}

	l.err = fmt.Errorf("pending -> completed: %w", model.ErrInvalidTransition)
	if rec := post(t, h.Complete(), "/", statusRequest{ClinicID: "c1", AppointmentID: "a1"}, nil); rec.Code != http.StatusConflict {
		t.Fatalf("invalid transition status %d", rec.Code)
	}
}

func TestReschedule(t *testing.T) {
	h, _, _, _ := newHandler()
	rec := post(t, h.Reschedule, "/", rescheduleRequest{ClinicID: "c1", AppointmentID: "a1", Date: "2025-01-07", StartTime: "10:00"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp rescheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Cancelled.Status != "cancelled" || resp.Created.RescheduledFrom != "a1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestBlock(t *testing.T) {
	h, _, l, _ := newHandler()
	rec := post(t, h.Block, "/", blockRequest{ClinicID: "c1", Date: "2025-01-06", StartTime: "12:00", EndTime: "13:00", Reason: "staff meeting"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d", rec.Code)
	}
	if l.lastBlock.Reason != "staff meeting" || l.lastBlock.EndTime != "13:00" {
		t.Fatalf("request not passed through: %+v", l.lastBlock)
	}
}

func TestList(t *testing.T) {
	h, _, _, list := newHandler()
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointments?clinic_id=c1&date=2025-01-06&limit=20", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if list.clinicID != "c1" || !list.date.Equal(day) || list.limit != 20 {
		t.Fatalf("unexpected args %s %s %d", list.clinicID, list.date, list.limit)
	}
	if rec.Body.String() != "[]" {
		t.Fatalf("body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointments?clinic_id=c1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing date status %d", rec.Code)
	}
}

type stubOverrides struct {
	clinicID string
	ov       model.DateOverride
}

func (s *stubOverrides) UpsertOverride(_ context.Context, clinicID string, ov model.DateOverride) error {
	s.clinicID, s.ov = clinicID, ov
	return nil
}

type stubCache struct{ invalidated []string }

func (c *stubCache) Invalidate(clinicID string) { c.invalidated = append(c.invalidated, clinicID) }

func TestPutOverride(t *testing.T) {
	ov, cache := &stubOverrides{}, &stubCache{}
	h := NewClinicHandler(ov, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))

	body, _ := json.Marshal(overrideRequest{
		ClinicID: "c1", Date: "2025-01-11", Kind: "open",
		Hours:  []intervalBody{{Start: "10:00", End: "14:00"}},
		Breaks: []intervalBody{{Start: "12:00", End: "12:30"}},
	})
	rec := httptest.NewRecorder()
	h.PutOverride(rec, httptest.NewRequest(http.MethodPut, "/api/v1/clinics/overrides", bytes.NewReader(body)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ov.clinicID != "c1" || ov.ov.Kind != model.OverrideOpen || len(ov.ov.Hours) != 1 || ov.ov.Hours[0].Start != 10*60 {
		t.Fatalf("unexpected override %+v", ov.ov)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "c1" {
		t.Fatalf("cache not invalidated: %v", cache.invalidated)
	}

	for _, bad := range []overrideRequest{
		{ClinicID: "c1", Date: "2025-01-11", Kind: "maybe"},
		{ClinicID: "c1", Date: "nope", Kind: "closed"},
		{ClinicID: "c1", Date: "2025-01-11", Kind: "open", Hours: []intervalBody{{Start: "14:00", End: "10:00"}}},
	} {
		body, _ := json.Marshal(bad)
		rec := httptest.NewRecorder()
		h.PutOverride(rec, httptest.NewRequest(http.MethodPut, "/", bytes.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%+v: status %d", bad, rec.Code)
		}
	}
}

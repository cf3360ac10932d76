package events

import (
	"testing"
	"time"
)

func TestDecodeAppointment(t *testing.T) {
	in := Appointment{
		AppointmentID: "a1",
		ClinicID:      "c1",
		PatientID:     "p1",
		Date:          "2025-01-10",
		StartTime:     "10:00",
		Rescheduled:   true,
		OccurredAt:    time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	b, err := in.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := DecodeAppointment(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Rescheduled || out.AppointmentID != "a1" {
		t.Fatalf("unexpected %+v", out)
	}

	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	start, err := out.StartAt(loc)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if start.UTC().Hour() != 1 {
		t.Fatalf("expected 01:00 UTC, got %s", start.UTC())
	}
}

func TestDecodeAppointment_RejectsMissingIDs(t *testing.T) {
	if _, err := DecodeAppointment([]byte(`{"appointment_id":"a1"}`)); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := DecodeAppointment([]byte(`not json`)); err == nil {
		t.Fatalf("expected error")
	}
}

package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/clinicbook/libs/events"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
)

type memSource struct {
	pending   []Record
	published []int64
}

func (m *memSource) Batch(_ context.Context, limit int, fn func([]Record) error) (int, error) {
	n := limit
	if n > len(m.pending) {
		n = len(m.pending)
	}
	batch := m.pending[:n]
	if n == 0 {
		return 0, nil
	}
	if err := fn(batch); err != nil {
		return 0, err
	}
	for _, r := range batch {
		m.published = append(m.published, r.ID)
	}
	m.pending = m.pending[n:]
	return n, nil
}

type memWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func TestPublisher_PublishOnce(t *testing.T) {
	src := &memSource{pending: []Record{
		{ID: 1, EventID: "e1", AggregateID: "a1", EventType: events.TopicAppointmentCreated, Payload: []byte(`{}`)},
		{ID: 2, EventID: "e2", AggregateID: "a1", EventType: events.TopicAppointmentConfirmed, Payload: []byte(`{}`)},
		{ID: 3, EventID: "e3", AggregateID: "a2", EventType: events.TopicAppointmentCreated, Payload: []byte(`{}`)},
	}}
	w := &memWriter{}
	p := NewPublisher(src, w, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{BatchSize: 2})

	n, err := p.PublishOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 published, got %d err %v", n, err)
	}
	if len(w.msgs) != 2 || w.msgs[1].Topic != events.TopicAppointmentConfirmed {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	if meta := kafkax.MessageMeta(w.msgs[0]); meta.EventID != "e1" {
		t.Fatalf("missing event id header: %+v", meta)
	}
	if string(w.msgs[0].Key) != "a1" {
		t.Fatalf("messages must be keyed by aggregate id")
	}
}

func TestPublisher_WriteFailureKeepsRecords(t *testing.T) {
	src := &memSource{pending: []Record{{ID: 1, EventID: "e1", EventType: "x"}}}
	w := &memWriter{err: errors.New("broker down")}
	p := NewPublisher(src, w, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})

	if _, err := p.PublishOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(src.pending) != 1 || len(src.published) != 0 {
		t.Fatalf("failed batch must stay pending")
	}
}

func TestNewPublisher_NilWriterDisables(t *testing.T) {
	if p := NewPublisher(&memSource{}, nil, nil, PublisherConfig{}); p != nil {
		t.Fatalf("expected nil publisher")
	}
	var p *Publisher
	p.Run(context.Background())
}

func TestAppointmentEvent(t *testing.T) {
	evt, err := AppointmentEvent(events.TopicAppointmentCancelled, events.Appointment{AppointmentID: "a1", ClinicID: "c1", PatientID: "p1"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if evt.AggregateID != "a1" || evt.AggregateType != "appointment" || evt.EventType != events.TopicAppointmentCancelled {
		t.Fatalf("unexpected event %+v", evt)
	}
}

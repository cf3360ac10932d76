package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
)

func TestBuildSendersOnlyConfiguredChannels(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if got := buildSenders(Config{}, logger); len(got) != 0 {
		t.Fatalf("no provider configured, got %d senders", len(got))
	}

	got := buildSenders(Config{SMTPHost: "smtp.example.com", SMTPPort: 587, SMTPFrom: "clinic@example.com"}, logger)
	if _, ok := got[model.ChannelEmail]; !ok {
		t.Fatalf("email sender missing")
	}
	if _, ok := got[model.ChannelSMS]; ok {
		t.Fatalf("sms has no webhook, sender should be absent")
	}
	if _, ok := got[model.ChannelLine]; ok {
		t.Fatalf("line has no token, sender should be absent")
	}
}

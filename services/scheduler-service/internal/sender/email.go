package sender

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender sends plain-text mail over SMTP.
type EmailSender struct {
	from    string
	timeout time.Duration
	dialer  dialer
}

func NewEmailSender(cfg EmailConfig) *EmailSender {
	d := gomail.NewDialer(strings.TrimSpace(cfg.Host), cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.UseTLS
	if cfg.UseTLS {
		d.TLSConfig = &tls.Config{ServerName: strings.TrimSpace(cfg.Host)}
	}
	return newEmailSender(cfg, d)
}

func newEmailSender(cfg EmailConfig, d dialer) *EmailSender {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@clinicbook.local"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &EmailSender{from: from, timeout: cfg.Timeout, dialer: d}
}

func (s *EmailSender) ProviderID() string {
	return "smtp"
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if to == "" || !strings.Contains(to, "@") {
		return fmt.Errorf("%w: invalid email address %q", ErrPermanent, msg.To)
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", strings.TrimSpace(msg.Subject))
	m.SetBody("text/plain", msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	wait := s.timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < wait {
			wait = d
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return context.DeadlineExceeded
	}
}

package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
)

// SMSSender posts messages to an SMS gateway webhook. Numbers are normalised
// to E.164, using region for numbers written without a country code.
type SMSSender struct {
	url    string
	token  string
	region string
	http   *http.Client
}

func NewSMSSender(url, token, region string) *SMSSender {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = "JP"
	}
	return &SMSSender{
		url:    strings.TrimSpace(url),
		token:  strings.TrimSpace(token),
		region: region,
		http:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *SMSSender) ProviderID() string {
	return "sms-webhook"
}

// Normalize returns number in E.164 form.
func (s *SMSSender) Normalize(number string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(number), s.region)
	if err != nil {
		return "", fmt.Errorf("%w: parse phone %q: %v", ErrPermanent, number, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: invalid phone %q", ErrPermanent, number)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	if s.url == "" {
		return errors.New("sms webhook url not configured")
	}
	to, err := s.Normalize(msg.To)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(map[string]string{
		"to":   to,
		"body": msg.Body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus("sms webhook", resp)
}

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
)

const DefaultLinePushURL = "https://api.line.me/v2/bot/message/push"

// LineSender pushes text messages through the LINE Messaging API.
type LineSender struct {
	url   string
	token string
	http  *http.Client
}

func NewLineSender(url, channelToken string) *LineSender {
	url = strings.TrimSpace(url)
	if url == "" {
		url = DefaultLinePushURL
	}
	return &LineSender{
		url:   url,
		token: strings.TrimSpace(channelToken),
		http:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *LineSender) ProviderID() string {
	return "line-push"
}

type linePush struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *LineSender) Send(ctx context.Context, msg Message) error {
	if s.token == "" {
		return errors.New("line channel token not configured")
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return fmt.Errorf("%w: empty line user id", ErrPermanent)
	}
	raw, err := json.Marshal(linePush{
		To:       to,
		Messages: []lineMessage{{Type: "text", Text: msg.Body}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus("line push", resp)
}

// Package sender delivers rendered notifications over one channel each.
package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrPermanent marks a failure that retrying cannot fix, such as a malformed
// recipient or a rejected request.
var ErrPermanent = errors.New("permanent delivery failure")

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
	ProviderID() string
}

// checkStatus turns a non-2xx webhook response into an error. Client errors
// other than 429 are permanent.
func checkStatus(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	err := fmt.Errorf("%s returned %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(snippet)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	return err
}

// Package webhook delivers notifications by POSTing them to a host
// display endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wakekeeper/wakekeeper/internal/notify"
)

const defaultTimeout = 10 * time.Second

// Config holds webhook sender configuration.
type Config struct {
	Channel notify.Channel
	URL     string
	Timeout time.Duration
}

// Sender posts notifications to a display webhook.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a webhook sender for one channel.
func NewSender(config Config) *Sender {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Channel returns the channel this sender serves.
func (s *Sender) Channel() notify.Channel {
	return s.config.Channel
}

// Send posts the notification to the configured endpoint.
func (s *Sender) Send(ctx context.Context, n notify.Notification) error {
	if s.config.URL == "" {
		return &PermanentError{Message: "webhook URL is empty"}
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp, n.Tag)
}

func (s *Sender) handleResponse(resp *http.Response, tag string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusNoContent:
		slog.Debug("notification displayed", "channel", s.config.Channel, "tag", tag)
		return nil

	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized:
		// Host revoked display permission.
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "display permission denied",
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: "rate limited",
		}

	case resp.StatusCode >= 500:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("server error: %s", string(body)),
		}

	case resp.StatusCode >= 400:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("rejected: %s", string(body)),
		}

	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// PermanentError indicates a display failure that will not succeed on retry.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary display failure.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }

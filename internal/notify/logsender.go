package notify

import (
	"context"
	"log/slog"
)

// LogSender writes notifications to the log. It is the fallback sink
// when no webhook endpoint is configured for a channel.
type LogSender struct {
	channel Channel
}

// NewLogSender creates a log sink for the given channel.
func NewLogSender(channel Channel) *LogSender {
	return &LogSender{channel: channel}
}

// Channel returns the channel this sender serves.
func (s *LogSender) Channel() Channel {
	return s.channel
}

// Send logs the notification instead of displaying it.
func (s *LogSender) Send(_ context.Context, n Notification) error {
	slog.Info("notification",
		"channel", s.channel,
		"tag", n.Tag,
		"title", n.Title,
		"body", n.Body,
		"silent", n.Silent,
	)
	return nil
}

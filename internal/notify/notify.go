// Package notify abstracts the host's notification display primitive.
// The core invokes it to show alarm and status notifications; it does
// not render or manage them beyond a single display call.
package notify

import (
	"context"
	"log/slog"

	"github.com/wakekeeper/wakekeeper/internal/domain"
)

// Channel distinguishes the two notification surfaces.
type Channel string

// Notification channels.
const (
	ChannelAlarm  Channel = "alarm"
	ChannelStatus Channel = "status"
)

// Notification is a single display request passed to a Sender.
type Notification struct {
	Tag     string            `json:"tag"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Actions []domain.Action   `json:"actions,omitempty"`
	Data    map[string]string `json:"data,omitempty"`

	// Silent notifications make no sound and are marked to resist
	// accidental swipe dismissal. Used by the status notification.
	Silent bool `json:"silent,omitempty"`

	// Clear removes the notification with this tag instead of
	// displaying one.
	Clear bool `json:"clear,omitempty"`
}

// Sender displays a notification through one host surface.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, n Notification) error
}

// Dispatcher routes display requests to the sender for each channel.
type Dispatcher struct {
	senders map[Channel]Sender
}

// NewDispatcher creates a dispatcher over the given senders.
func NewDispatcher(senders ...Sender) *Dispatcher {
	m := make(map[Channel]Sender, len(senders))
	for _, s := range senders {
		m[s.Channel()] = s
	}
	return &Dispatcher{senders: m}
}

// Send displays a notification on the given channel. A missing sender
// is logged and dropped; display is best-effort by design.
func (d *Dispatcher) Send(ctx context.Context, ch Channel, n Notification) error {
	sender, ok := d.senders[ch]
	if !ok {
		slog.Warn("no sender for channel", "channel", ch)
		return nil
	}
	return sender.Send(ctx, n)
}

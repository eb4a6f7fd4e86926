package alarm

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wakekeeper/wakekeeper/internal/domain"
	"github.com/wakekeeper/wakekeeper/internal/notify"
)

// StatusTag is the notification tag of the status summary. Distinct
// from every alarm tag so the two surfaces never collide.
const StatusTag = "wakekeeper.status"

// StatusConfig bounds the repost loop.
type StatusConfig struct {
	MaxRepostAttempts int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// DefaultStatusConfig returns the default repost budget.
func DefaultStatusConfig() StatusConfig {
	return StatusConfig{
		MaxRepostAttempts: 10,
		InitialBackoff:    300 * time.Millisecond,
		MaxBackoff:        8 * time.Second,
	}
}

// StatusNotifier maintains a single always-visible notification
// summarizing the next upcoming alarm, and re-heals it when the host
// removes it, up to a bounded retry budget. Some hosts let users
// dismiss notifications while the process stays alive; the bounded
// loop preserves "always visible when enabled" without retrying
// forever against a host that refuses to redisplay.
//
// All methods must be called with the engine lock held; the repost
// timer callback re-enters through the engine.
type StatusNotifier struct {
	store      Store
	dispatcher *notify.Dispatcher
	clock      Clock
	config     StatusConfig
	printer    *message.Printer
	onRepost   func()

	visible  bool
	attempts int
	timer    Timer
}

// NewStatusNotifier creates the notifier. onRepost must acquire the
// engine lock and call Repost.
func NewStatusNotifier(store Store, dispatcher *notify.Dispatcher, clock Clock, config StatusConfig, onRepost func()) *StatusNotifier {
	if config.MaxRepostAttempts == 0 {
		config = DefaultStatusConfig()
	}
	return &StatusNotifier{
		store:      store,
		dispatcher: dispatcher,
		clock:      clock,
		config:     config,
		printer:    message.NewPrinter(language.English),
		onRepost:   onRepost,
	}
}

// Enabled reads the user preference, defaulting to true when absent
// or unreadable.
func (n *StatusNotifier) Enabled(ctx context.Context) bool {
	value, err := n.store.GetMeta(ctx, domain.MetaStatusEnabled)
	if err != nil {
		return true
	}
	return value != "false"
}

// Visible reports the last known display state.
func (n *StatusNotifier) Visible() bool {
	return n.visible
}

// Update recomputes the summary and shows, replaces or clears the
// status notification. Failures degrade silently; the next update or
// repost recovers.
func (n *StatusNotifier) Update(ctx context.Context) {
	if err := n.refresh(ctx); err != nil {
		slog.Warn("status notification update failed", "error", err)
	}
}

// OnRemoved reacts to external removal of the status notification by
// starting the bounded repost loop.
func (n *StatusNotifier) OnRemoved(ctx context.Context) {
	if !n.Enabled(ctx) {
		return
	}
	slog.Info("status notification removed externally, scheduling repost")
	n.visible = false
	n.attempts = 0
	n.scheduleRepost()
}

// Repost performs one repost attempt. Each attempt re-checks the user
// preference and whether another path already redisplayed the
// notification, aborting in either case to avoid duplicate flicker.
func (n *StatusNotifier) Repost(ctx context.Context) {
	n.timer = nil

	if n.attempts >= n.config.MaxRepostAttempts {
		slog.Warn("status notification repost budget exhausted, giving up",
			"attempts", n.attempts,
		)
		recordRepostAttempt("gave_up")
		return
	}
	n.attempts++

	if !n.Enabled(ctx) {
		recordRepostAttempt("disabled")
		return
	}
	if n.visible {
		recordRepostAttempt("already_visible")
		return
	}

	if err := n.refresh(ctx); err != nil {
		slog.Warn("status notification repost failed",
			"attempt", n.attempts,
			"error", err,
		)
		recordRepostAttempt("failed")
		n.scheduleRepost()
		return
	}
	recordRepostAttempt("reposted")
}

// Stop cancels any pending repost timer.
func (n *StatusNotifier) Stop() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}

func (n *StatusNotifier) refresh(ctx context.Context) error {
	if !n.Enabled(ctx) {
		return n.clear(ctx)
	}

	alarms, err := n.store.ListAlarms(ctx)
	if err != nil {
		slog.Warn("status refresh: list alarms failed", "error", err)
		alarms = nil
	}
	if len(alarms) == 0 {
		return n.clear(ctx)
	}

	soonest := alarms[0].FireAt
	for _, a := range alarms[1:] {
		if a.FireAt.Before(soonest) {
			soonest = a.FireAt
		}
	}

	var body string
	if len(alarms) == 1 {
		body = n.printer.Sprintf("Next alarm at %s, 1 alarm pending", soonest.Format(time.Kitchen))
	} else {
		body = n.printer.Sprintf("Next alarm at %s, %d alarms pending", soonest.Format(time.Kitchen), len(alarms))
	}

	err = n.dispatcher.Send(ctx, notify.ChannelStatus, notify.Notification{
		Tag:    StatusTag,
		Title:  "Upcoming alarms",
		Body:   body,
		Silent: true,
	})
	if err != nil {
		return err
	}
	n.visible = true
	return nil
}

func (n *StatusNotifier) clear(ctx context.Context) error {
	err := n.dispatcher.Send(ctx, notify.ChannelStatus, notify.Notification{
		Tag:    StatusTag,
		Clear:  true,
		Silent: true,
	})
	if err != nil {
		return err
	}
	n.visible = false
	return nil
}

func (n *StatusNotifier) scheduleRepost() {
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = n.clock.AfterFunc(n.backoff(n.attempts), n.onRepost)
}

// backoff doubles from the initial delay per attempt, capped at the
// configured maximum.
func (n *StatusNotifier) backoff(attempt int) time.Duration {
	d := n.config.InitialBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= n.config.MaxBackoff {
			return n.config.MaxBackoff
		}
	}
	return d
}

package alarm

import (
	"context"
	"log/slog"
	"time"

	"github.com/wakekeeper/wakekeeper/internal/notify"
)

// DefaultGrace is the tolerance after an alarm's due time within which
// it is still worth firing. Alarms older than this on a late wake are
// judged no-longer-relevant and dropped without notifying; a process
// resumed after a long suspension must not flood the user with stale
// alerts. This lossy behavior is intentional.
const DefaultGrace = 10 * time.Minute

// Scanner reads all pending alarms and consumes the due ones.
type Scanner struct {
	store      Store
	dispatcher *notify.Dispatcher
	clock      Clock
	grace      time.Duration
}

// NewScanner creates a scanner. A non-positive grace falls back to
// DefaultGrace.
func NewScanner(store Store, dispatcher *notify.Dispatcher, clock Clock, grace time.Duration) *Scanner {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Scanner{
		store:      store,
		dispatcher: dispatcher,
		clock:      clock,
		grace:      grace,
	}
}

// Scan performs one due-alarm pass and returns the number of
// notifications fired and the number of alarms still pending.
//
// For each alarm: not yet due is left untouched; due within the grace
// window fires exactly one notification and is deleted; older than the
// grace window is deleted silently. The alarm is deleted even when the
// display call fails, so a permanently failing host cannot cause an
// infinite re-fire loop.
//
// Scan is idempotent: the first pass consumes every due alarm, so an
// immediately repeated pass fires nothing. Redundant invocations from
// overlapping trigger paths are safe.
func (s *Scanner) Scan(ctx context.Context) (fired, remaining int) {
	alarms, err := s.store.ListAlarms(ctx)
	if err != nil {
		// Treated as nothing pending; the next successful read recovers.
		slog.Warn("scan: list alarms failed", "error", err)
		recordScan(0, 0, 0, 0)
		return 0, 0
	}

	now := s.clock.Now()
	var failed, expired int

	for _, a := range alarms {
		age := a.Age(now)
		switch {
		case age < 0:
			remaining++

		case age <= s.grace:
			n := notify.Notification{
				Tag:     a.Tag,
				Title:   a.Title,
				Body:    a.Body,
				Actions: a.EffectiveActions(),
				Data:    a.Data,
			}
			if err := s.dispatcher.Send(ctx, notify.ChannelAlarm, n); err != nil {
				slog.Error("scan: notification display failed",
					"tag", a.Tag,
					"age", age,
					"error", err,
				)
				failed++
			} else {
				slog.Info("alarm fired", "tag", a.Tag, "age", age)
				fired++
			}
			s.deleteAlarm(ctx, a.Tag)

		default:
			slog.Info("alarm expired past grace, dropping", "tag", a.Tag, "age", age)
			expired++
			s.deleteAlarm(ctx, a.Tag)
		}
	}

	recordScan(fired, failed, expired, remaining)
	return fired, remaining
}

func (s *Scanner) deleteAlarm(ctx context.Context, tag string) {
	if err := s.store.DeleteAlarm(ctx, tag); err != nil {
		slog.Warn("scan: delete alarm failed", "tag", tag, "error", err)
	}
}

package alarm

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/wakekeeper/wakekeeper/internal/domain"
)

// Scheduler owns the single next-wake timer. The timer handle is
// ephemeral; its deadline is persisted as nextWake metadata so the
// schedule survives a full process restart.
//
// All methods must be called with the engine lock held. The fire
// callback re-enters through the engine, which takes the lock itself.
type Scheduler struct {
	store  Store
	clock  Clock
	onFire func()

	timer Timer
}

// NewScheduler creates a scheduler. onFire runs when the armed timer
// expires; it must acquire the engine lock, clear the timer slot via
// ClearTimer and run the scanner.
func NewScheduler(store Store, clock Clock, onFire func()) *Scheduler {
	return &Scheduler{
		store:  store,
		clock:  clock,
		onFire: onFire,
	}
}

// Resync recomputes the earliest future fire time from the store,
// persists it and re-arms the timer. With nothing pending it disarms
// and deletes the metadata. Called after every alarm mutation.
func (s *Scheduler) Resync(ctx context.Context) {
	alarms, err := s.store.ListAlarms(ctx)
	if err != nil {
		slog.Warn("resync: list alarms failed", "error", err)
		alarms = nil
	}

	now := s.clock.Now()
	var next time.Time
	for _, a := range alarms {
		if !a.FireAt.After(now) {
			continue
		}
		if next.IsZero() || a.FireAt.Before(next) {
			next = a.FireAt
		}
	}

	if next.IsZero() {
		s.Disarm()
		if err := s.store.DeleteMeta(ctx, domain.MetaNextWake); err != nil {
			slog.Warn("resync: delete nextWake failed", "error", err)
		}
		recordNextWake(time.Time{})
		return
	}

	if err := s.store.PutMeta(ctx, domain.MetaNextWake, strconv.FormatInt(next.UnixMilli(), 10)); err != nil {
		slog.Warn("resync: persist nextWake failed", "error", err)
	}
	s.arm(next.Sub(now))
	recordNextWake(next)
	slog.Debug("next wake armed", "at", next)
}

// EnsureArmed re-derives the timer from persisted state when none is
// armed, self-healing after an unexpected restart. It reports whether
// the persisted deadline has already passed, in which case the caller
// must run the scanner immediately instead.
func (s *Scheduler) EnsureArmed(ctx context.Context) (duePassed bool) {
	if s.timer != nil {
		return false
	}

	value, err := s.store.GetMeta(ctx, domain.MetaNextWake)
	if err != nil {
		// Absent or unreadable: nothing is known to be pending.
		return false
	}

	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		slog.Warn("ensure armed: bad nextWake value", "value", value)
		return false
	}

	deadline := time.UnixMilli(ms)
	now := s.clock.Now()
	if !deadline.After(now) {
		return true
	}

	s.arm(deadline.Sub(now))
	recordNextWake(deadline)
	slog.Debug("next wake restored", "at", deadline)
	return false
}

// Armed reports whether a timer is currently outstanding.
func (s *Scheduler) Armed() bool {
	return s.timer != nil
}

// ClearTimer releases the timer slot. The fire callback calls this
// before scanning so a subsequent Resync arms a fresh timer.
func (s *Scheduler) ClearTimer() {
	s.timer = nil
}

// Disarm stops and releases any outstanding timer.
func (s *Scheduler) Disarm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// arm replaces the outstanding timer. At most one timer exists at any
// time; a negative delay is clamped to zero.
func (s *Scheduler) arm(d time.Duration) {
	s.Disarm()
	if d < 0 {
		d = 0
	}
	s.timer = s.clock.AfterFunc(d, s.onFire)
}

package alarm

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wakekeeper/wakekeeper/internal/domain"
	"github.com/wakekeeper/wakekeeper/internal/notify"
)

// fakeTimer records its deadline so fakeClock can fire it in order.
type fakeTimer struct {
	when    time.Time
	fn      func()
	fired   bool
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock drives timers deterministically from the test goroutine.
type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{when: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward, firing due timers in deadline
// order. Callbacks may register further timers; those fire too when
// they fall within the window.
func (c *fakeClock) Advance(d time.Duration) {
	target := c.now.Add(d)
	for {
		t := c.nextDue(target)
		if t == nil {
			break
		}
		if t.when.After(c.now) {
			c.now = t.when
		}
		t.fired = true
		t.fn()
	}
	c.now = target
}

func (c *fakeClock) nextDue(target time.Time) *fakeTimer {
	var due *fakeTimer
	for _, t := range c.timers {
		if t.fired || t.stopped || t.when.After(target) {
			continue
		}
		if due == nil || t.when.Before(due.when) {
			due = t
		}
	}
	return due
}

func (c *fakeClock) pendingTimers() int {
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// memStore is an in-memory Store with switchable failure modes.
type memStore struct {
	alarms map[string]domain.Alarm
	meta   map[string]string
	events []domain.Event

	pings     int
	listCalls int

	listErr error
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{
		alarms: make(map[string]domain.Alarm),
		meta:   make(map[string]string),
	}
}

func (s *memStore) PutAlarm(_ context.Context, alarm domain.Alarm) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.alarms[alarm.Tag] = alarm
	return nil
}

func (s *memStore) GetAlarm(_ context.Context, tag string) (*domain.Alarm, error) {
	a, ok := s.alarms[tag]
	if !ok {
		return nil, ErrAlarmNotFound
	}
	return &a, nil
}

func (s *memStore) ListAlarms(_ context.Context) ([]domain.Alarm, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.Alarm, 0, len(s.alarms))
	for _, a := range s.alarms {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out, nil
}

func (s *memStore) DeleteAlarm(_ context.Context, tag string) error {
	delete(s.alarms, tag)
	return nil
}

func (s *memStore) ClearAlarms(_ context.Context) error {
	s.alarms = make(map[string]domain.Alarm)
	return nil
}

func (s *memStore) GetMeta(_ context.Context, name string) (string, error) {
	v, ok := s.meta[name]
	if !ok {
		return "", ErrMetaNotFound
	}
	return v, nil
}

func (s *memStore) PutMeta(_ context.Context, name, value string) error {
	s.meta[name] = value
	return nil
}

func (s *memStore) DeleteMeta(_ context.Context, name string) error {
	delete(s.meta, name)
	return nil
}

func (s *memStore) AppendEvent(_ context.Context, ev domain.Event) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *memStore) ListEvents(_ context.Context) ([]domain.Event, error) {
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out, nil
}

func (s *memStore) DeleteEvent(_ context.Context, id uuid.UUID) error {
	for i, ev := range s.events {
		if ev.ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memStore) Ping(_ context.Context) error {
	s.pings++
	return nil
}

// fakeSender records displayed notifications for one channel.
type fakeSender struct {
	channel notify.Channel
	sent    []notify.Notification
	err     error
}

func (s *fakeSender) Channel() notify.Channel { return s.channel }

func (s *fakeSender) Send(_ context.Context, n notify.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *fakeSender) shown() []notify.Notification {
	out := make([]notify.Notification, 0, len(s.sent))
	for _, n := range s.sent {
		if !n.Clear {
			out = append(out, n)
		}
	}
	return out
}

// fakePublisher simulates the foreground event channel.
type fakePublisher struct {
	connected bool
	published []domain.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev domain.Event) bool {
	if !p.connected {
		return false
	}
	p.published = append(p.published, ev)
	return true
}

// fakeRegistrar counts registrations.
type fakeRegistrar struct {
	registered int
	closed     bool
	err        error
}

func (r *fakeRegistrar) Register(_ context.Context) error {
	if r.err != nil {
		return r.err
	}
	r.registered++
	return nil
}

func (r *fakeRegistrar) Close() { r.closed = true }

var errStoreDown = errors.New("store unavailable")

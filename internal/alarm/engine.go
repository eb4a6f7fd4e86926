package alarm

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wakekeeper/wakekeeper/internal/domain"
	"github.com/wakekeeper/wakekeeper/internal/notify"
)

// Publisher posts outbound events to a connected foreground instance.
// Publish reports whether the event was delivered; undelivered events
// go to the durable outbox instead.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) bool
}

// EngineConfig contains engine timing settings.
type EngineConfig struct {
	Grace               time.Duration
	KeepAliveInterval   time.Duration
	PeriodicMinInterval time.Duration
	Status              StatusConfig
}

// Interaction is a user's action on a displayed notification, reported
// by the host. Title, Body and Data echo the notification's content so
// a snooze can rebuild the alarm it reschedules.
type Interaction struct {
	Tag      string
	ActionID string
	Title    string
	Body     string
	Data     map[string]string
}

// Engine normalizes every wake source into consistent operations on
// the scanner, scheduler, keep-alive driver and status notifier.
//
// A single mutex serializes all trigger paths: the original design is
// single-threaded and cooperative, and every core operation is
// idempotent, so redundant triggers from overlapping wake sources are
// safe but never interleave.
type Engine struct {
	mu sync.Mutex

	store      Store
	clock      Clock
	dispatcher *notify.Dispatcher
	publisher  Publisher
	registrar  Registrar

	scanner   *Scanner
	scheduler *Scheduler
	keepalive *KeepAlive
	status    *StatusNotifier

	periodic *rate.Limiter
	snooze   map[string]Timer
}

// NewEngine wires the core components together.
func NewEngine(cfg EngineConfig, store Store, dispatcher *notify.Dispatcher, publisher Publisher, registrar Registrar, clock Clock) *Engine {
	minInterval := cfg.PeriodicMinInterval
	if minInterval <= 0 {
		minInterval = time.Minute
	}

	e := &Engine{
		store:      store,
		clock:      clock,
		dispatcher: dispatcher,
		publisher:  publisher,
		registrar:  registrar,
		periodic:   rate.NewLimiter(rate.Every(minInterval), 1),
		snooze:     make(map[string]Timer),
	}

	e.scanner = NewScanner(store, dispatcher, clock, cfg.Grace)
	e.scheduler = NewScheduler(store, clock, e.onNextWakeFire)
	e.keepalive = NewKeepAlive(store, clock, cfg.KeepAliveInterval, e.onKeepAliveTick)
	e.status = NewStatusNotifier(store, dispatcher, clock, cfg.Status, e.onRepostTimer)

	return e
}

// OnActivate handles initial activation: full scan and resync, start
// keep-alive, register for periodic wakes and refresh the status
// notification.
func (e *Engine) OnActivate(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.scanAndSync(ctx)
	e.keepalive.Start()

	if e.registrar != nil {
		if err := e.registrar.Register(ctx); err != nil {
			// Periodic wakes are a punctuality optimization only.
			slog.Debug("periodic registration unavailable", "error", err)
		}
	}
}

// OnPeriodicTrigger handles a host-initiated background wake. Wakes
// arriving faster than the minimum interval are dropped.
func (e *Engine) OnPeriodicTrigger(ctx context.Context) {
	if !e.periodic.Allow() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.scanAndSync(ctx)
	e.keepalive.Start()
}

// OnPush handles an inbound push delivery.
func (e *Engine) OnPush(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scanAndSync(ctx)
	e.keepalive.Start()
}

// OnPassiveActivity opportunistically re-arms the next-wake timer from
// persisted state when none is armed, self-healing after an unexpected
// restart without waiting for the next scheduled tick.
func (e *Engine) OnPassiveActivity(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.scheduler.Armed() {
		return
	}
	if e.scheduler.EnsureArmed(ctx) {
		// Persisted deadline already passed while no timer was armed.
		e.scanAndSync(ctx)
		e.keepalive.Start()
	}
}

// OnMessage dispatches an inbound foreground message.
func (e *Engine) OnMessage(ctx context.Context, msg domain.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch m := msg.(type) {
	case domain.SyncAlarms:
		e.syncAlarms(ctx, m)
	case domain.ShowAlarm:
		e.showAlarm(ctx, m)
	case domain.ScheduleAlarm:
		e.scheduleAlarm(ctx, m)
	case domain.CancelAlarm:
		e.cancelAlarm(ctx, m.Tag)
	case domain.StartKeepAlive:
		e.startKeepAlive(ctx)
	case domain.SkipWaiting:
		// Lifecycle control, acknowledged without side effects.
	default:
		return ErrUnknownMessage
	}
	return nil
}

// OnInteraction translates a notification action into an outbound
// event. Snooze actions additionally reschedule the alarm through the
// dual timer-plus-durable-record mechanism.
func (e *Engine) OnInteraction(ctx context.Context, in Interaction) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	switch {
	case strings.HasPrefix(in.ActionID, "snooze:"):
		mins, err := strconv.Atoi(strings.TrimPrefix(in.ActionID, "snooze:"))
		if err != nil || mins <= 0 {
			slog.Warn("malformed snooze action", "action_id", in.ActionID)
			e.emit(ctx, domain.NewNotificationClickEvent(in.Tag, now))
			return
		}
		e.emit(ctx, domain.NewSnoozedEvent(in.Tag, mins, now))
		e.scheduleAlarm(ctx, domain.ScheduleAlarm{
			Title: in.Title,
			Body:  in.Body,
			Tag:   in.Tag,
			Delay: time.Duration(mins) * time.Minute,
			Data:  in.Data,
		})

	case strings.HasPrefix(in.ActionID, "habit:"):
		parts := strings.SplitN(in.ActionID, ":", 3)
		if len(parts) != 3 {
			slog.Warn("malformed habit action", "action_id", in.ActionID)
			e.emit(ctx, domain.NewNotificationClickEvent(in.Tag, now))
			return
		}
		e.emit(ctx, domain.NewHabitActionEvent(parts[1], parts[2], now))

	default:
		e.emit(ctx, domain.NewNotificationClickEvent(in.Tag, now))
	}
}

// OnStatusRemoved reacts to the host removing the status notification.
func (e *Engine) OnStatusRemoved(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.OnRemoved(ctx)
}

// SetStatusEnabled persists the user's status notification preference
// and applies it immediately.
func (e *Engine) SetStatusEnabled(ctx context.Context, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.PutMeta(ctx, domain.MetaStatusEnabled, strconv.FormatBool(enabled)); err != nil {
		slog.Warn("persist status preference failed", "error", err)
	}
	e.status.Update(ctx)
}

// ListAlarms returns the currently pending alarms.
func (e *Engine) ListAlarms(ctx context.Context) ([]domain.Alarm, error) {
	return e.store.ListAlarms(ctx)
}

// DrainOutbox delivers deferred outbound events in insertion order.
// Delivery stops at the first failure; delivered events are removed.
func (e *Engine) DrainOutbox(ctx context.Context, deliver func(domain.Event) error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	events, err := e.store.ListEvents(ctx)
	if err != nil {
		slog.Warn("drain outbox: list failed", "error", err)
		return
	}

	for _, ev := range events {
		if err := deliver(ev); err != nil {
			slog.Warn("drain outbox: delivery failed", "event_id", ev.ID, "error", err)
			return
		}
		if err := e.store.DeleteEvent(ctx, ev.ID); err != nil {
			slog.Warn("drain outbox: delete failed", "event_id", ev.ID, "error", err)
			return
		}
		recordEventPublished("drained")
	}
}

// Stop tears down all timers. The store keeps every deadline, so a
// subsequent activation restores the schedule.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.keepalive.Stop()
	e.scheduler.Disarm()
	e.status.Stop()
	for tag, t := range e.snooze {
		t.Stop()
		delete(e.snooze, tag)
	}
	if e.registrar != nil {
		e.registrar.Close()
	}
}

// KeepAliveState exposes the driver state for health reporting.
func (e *Engine) KeepAliveState() KeepAliveState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keepalive.State()
}

// scanAndSync runs one scan pass, re-derives the next-wake timer and
// refreshes the status notification. Callers hold the engine lock.
func (e *Engine) scanAndSync(ctx context.Context) (remaining int) {
	_, remaining = e.scanner.Scan(ctx)
	e.scheduler.Resync(ctx)
	e.status.Update(ctx)
	return remaining
}

func (e *Engine) syncAlarms(ctx context.Context, m domain.SyncAlarms) {
	if err := e.store.ClearAlarms(ctx); err != nil {
		slog.Warn("sync: clear alarms failed", "error", err)
	}
	for tag, t := range e.snooze {
		t.Stop()
		delete(e.snooze, tag)
	}

	now := e.clock.Now()
	kept := 0
	for _, a := range m.Alarms {
		if !a.FireAt.After(now) {
			// Past-dated entries are dropped silently.
			continue
		}
		if err := e.store.PutAlarm(ctx, a); err != nil {
			slog.Warn("sync: put alarm failed", "tag", a.Tag, "error", err)
			continue
		}
		kept++
	}
	slog.Info("alarms synced", "received", len(m.Alarms), "kept", kept)

	e.scheduler.Resync(ctx)
	e.status.Update(ctx)
}

func (e *Engine) showAlarm(ctx context.Context, m domain.ShowAlarm) {
	a := domain.Alarm{Tag: m.Tag, Title: m.Title, Body: m.Body, Actions: m.Actions, Data: m.Data}
	err := e.dispatcher.Send(ctx, notify.ChannelAlarm, notify.Notification{
		Tag:     a.Tag,
		Title:   a.Title,
		Body:    a.Body,
		Actions: a.EffectiveActions(),
		Data:    a.Data,
	})
	if err != nil {
		slog.Error("immediate notification failed", "tag", m.Tag, "error", err)
	}
}

func (e *Engine) scheduleAlarm(ctx context.Context, m domain.ScheduleAlarm) {
	fireAt := e.clock.Now().Add(m.Delay)
	alarm := domain.Alarm{
		Tag:     m.Tag,
		Title:   m.Title,
		Body:    m.Body,
		FireAt:  fireAt,
		Actions: m.Actions,
		Data:    m.Data,
	}

	if err := e.store.PutAlarm(ctx, alarm); err != nil {
		// The in-process timer below still covers the common case
		// while the process survives the delay.
		slog.Warn("schedule: put alarm failed", "tag", m.Tag, "error", err)
	}

	e.armSnooze(m.Tag, m.Delay)
	e.scheduler.Resync(ctx)
	e.status.Update(ctx)
}

func (e *Engine) cancelAlarm(ctx context.Context, tag string) {
	if t, ok := e.snooze[tag]; ok {
		t.Stop()
		delete(e.snooze, tag)
	}
	if err := e.store.DeleteAlarm(ctx, tag); err != nil {
		slog.Warn("cancel: delete alarm failed", "tag", tag, "error", err)
	}
	e.scheduler.Resync(ctx)
	e.status.Update(ctx)
}

func (e *Engine) startKeepAlive(ctx context.Context) {
	if e.scheduler.EnsureArmed(ctx) {
		e.scanAndSync(ctx)
	} else {
		e.scheduler.Resync(ctx)
	}
	e.keepalive.Start()

	if e.registrar != nil {
		if err := e.registrar.Register(ctx); err != nil {
			slog.Debug("periodic registration unavailable", "error", err)
		}
	}
}

// armSnooze replaces the in-process timer for tag. The timer is the
// fast path; the durable alarm written alongside it covers a process
// death before the delay elapses. Whichever path fires first deletes
// the record, making the other a no-op.
func (e *Engine) armSnooze(tag string, delay time.Duration) {
	if t, ok := e.snooze[tag]; ok {
		t.Stop()
	}
	e.snooze[tag] = e.clock.AfterFunc(delay, func() { e.onSnoozeFire(tag) })
}

func (e *Engine) onSnoozeFire(tag string) {
	ctx := context.Background()

	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.snooze, tag)

	a, err := e.store.GetAlarm(ctx, tag)
	if err != nil {
		// Already consumed by the durable scan path, or unreadable;
		// either way there is nothing left to fire.
		return
	}

	err = e.dispatcher.Send(ctx, notify.ChannelAlarm, notify.Notification{
		Tag:     a.Tag,
		Title:   a.Title,
		Body:    a.Body,
		Actions: a.EffectiveActions(),
		Data:    a.Data,
	})
	if err != nil {
		slog.Error("snooze notification failed", "tag", tag, "error", err)
	} else {
		slog.Info("alarm fired", "tag", tag, "path", "snooze_timer")
	}

	if err := e.store.DeleteAlarm(ctx, tag); err != nil {
		slog.Warn("snooze: delete alarm failed", "tag", tag, "error", err)
	}
	e.scheduler.Resync(ctx)
	e.status.Update(ctx)
}

func (e *Engine) emit(ctx context.Context, ev domain.Event) {
	if e.publisher != nil && e.publisher.Publish(ctx, ev) {
		recordEventPublished("direct")
		return
	}
	if err := e.store.AppendEvent(ctx, ev); err != nil {
		slog.Warn("defer event failed", "kind", ev.Kind, "error", err)
		return
	}
	recordEventPublished("deferred")
}

func (e *Engine) onNextWakeFire() {
	ctx := context.Background()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.scheduler.ClearTimer()
	e.scanAndSync(ctx)
	e.keepalive.Start()
}

func (e *Engine) onKeepAliveTick() {
	ctx := context.Background()

	e.mu.Lock()
	defer e.mu.Unlock()

	_, remaining := e.scanner.Scan(ctx)
	e.scheduler.Resync(ctx)
	e.status.Update(ctx)
	e.keepalive.Tick(ctx, remaining)
}

func (e *Engine) onRepostTimer() {
	ctx := context.Background()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Repost(ctx)
}

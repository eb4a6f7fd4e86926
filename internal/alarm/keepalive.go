package alarm

import (
	"context"
	"log/slog"
	"time"
)

// KeepAliveState is the driver's state.
type KeepAliveState int

// Keep-alive states.
const (
	KeepAliveIdle KeepAliveState = iota
	KeepAliveRunning
)

// DefaultKeepAliveInterval is the tick period.
const DefaultKeepAliveInterval = 20 * time.Second

// KeepAlive manufactures periodic activity so the host does not
// suspend the process while alarms are pending, and stops itself
// promptly once none remain.
//
// All methods must be called with the engine lock held; the tick
// callback re-enters through the engine.
type KeepAlive struct {
	store    Store
	clock    Clock
	interval time.Duration
	onTick   func()

	state KeepAliveState
	timer Timer
}

// NewKeepAlive creates the driver. onTick must acquire the engine lock
// and call Tick.
func NewKeepAlive(store Store, clock Clock, interval time.Duration, onTick func()) *KeepAlive {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	return &KeepAlive{
		store:    store,
		clock:    clock,
		interval: interval,
		onTick:   onTick,
	}
}

// State returns the current state.
func (k *KeepAlive) State() KeepAliveState {
	return k.state
}

// Start transitions Idle to Running and schedules the first tick.
// Starting while Running resets the tick timer, which is how trigger
// paths "restart" the driver.
func (k *KeepAlive) Start() {
	if k.state == KeepAliveIdle {
		slog.Debug("keep-alive starting", "interval", k.interval)
	}
	k.state = KeepAliveRunning
	k.schedule()
}

// Stop forces Running to Idle and cancels any pending tick.
func (k *KeepAlive) Stop() {
	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
	if k.state == KeepAliveRunning {
		slog.Debug("keep-alive stopped")
	}
	k.state = KeepAliveIdle
}

// Tick performs one tick: scan (done by the caller before invoking),
// then either stop when nothing is pending or touch the store and
// schedule the next tick. remaining is the pending count reported by
// the scan.
func (k *KeepAlive) Tick(ctx context.Context, remaining int) {
	if k.state != KeepAliveRunning {
		return
	}
	recordKeepAliveTick()

	if remaining == 0 {
		slog.Debug("keep-alive idle, no pending alarms")
		k.Stop()
		return
	}

	// Lightweight liveness touch; failure degrades silently.
	if err := k.store.Ping(ctx); err != nil {
		slog.Warn("keep-alive touch failed", "error", err)
	}

	k.schedule()
}

func (k *KeepAlive) schedule() {
	if k.timer != nil {
		k.timer.Stop()
	}
	k.timer = k.clock.AfterFunc(k.interval, k.onTick)
}

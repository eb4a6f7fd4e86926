package alarm

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registrar requests periodic background wakes from the host.
// Registration is best-effort: a failure is ignored and the engine
// keeps functioning through timers and message-driven triggers alone,
// at reduced punctuality.
type Registrar interface {
	Register(ctx context.Context) error
	Close()
}

// TickerRegistrar emulates host periodic wakes with an in-process
// ticker. The trigger callback runs at most once per interval.
type TickerRegistrar struct {
	interval time.Duration
	trigger  func()

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewTickerRegistrar creates a registrar firing trigger each interval.
func NewTickerRegistrar(interval time.Duration, trigger func()) *TickerRegistrar {
	return &TickerRegistrar{
		interval: interval,
		trigger:  trigger,
	}
}

// Register starts the periodic ticker. Registering twice is a no-op.
func (r *TickerRegistrar) Register(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go r.run(ctx)
	slog.Debug("periodic wake registered", "interval", r.interval)
	return nil
}

// Close stops the ticker.
func (r *TickerRegistrar) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *TickerRegistrar) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.trigger()
		}
	}
}

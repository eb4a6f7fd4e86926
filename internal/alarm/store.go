// Package alarm implements the durable alarm scheduling and
// notification delivery engine.
package alarm

import (
	"context"

	"github.com/google/uuid"
	"github.com/wakekeeper/wakekeeper/internal/domain"
)

// Store is the crash-safe persistence layer. It is the single source
// of truth: in-process timers are optimizations reconstructed from it
// after every restart.
//
// Every method is one atomically committed transaction. Callers treat
// failures as non-fatal: a failed read degrades to an empty result and
// a failed write is logged and skipped, correctness being restored on
// the next successful read.
type Store interface {
	// Pending alarms, keyed by tag. PutAlarm replaces any existing
	// entry with the same tag. DeleteAlarm of an absent tag is a no-op.
	PutAlarm(ctx context.Context, alarm domain.Alarm) error
	GetAlarm(ctx context.Context, tag string) (*domain.Alarm, error)
	ListAlarms(ctx context.Context) ([]domain.Alarm, error)
	DeleteAlarm(ctx context.Context, tag string) error
	ClearAlarms(ctx context.Context) error

	// Scalar metadata, keyed by name.
	GetMeta(ctx context.Context, name string) (string, error)
	PutMeta(ctx context.Context, name, value string) error
	DeleteMeta(ctx context.Context, name string) error

	// Outbox of undelivered foreground events, drained in insertion
	// order when a foreground instance connects.
	AppendEvent(ctx context.Context, ev domain.Event) error
	ListEvents(ctx context.Context) ([]domain.Event, error)
	DeleteEvent(ctx context.Context, id uuid.UUID) error

	// Ping is the lightweight liveness touch the keep-alive driver
	// performs each tick.
	Ping(ctx context.Context) error
}

// Package postgres provides the PostgreSQL implementation of the
// alarm store. Every method is a single atomically committed
// statement, so a failure in one operation cannot corrupt unrelated
// keys.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wakekeeper/wakekeeper/internal/alarm"
	"github.com/wakekeeper/wakekeeper/internal/domain"
)

// Repository implements alarm.Store using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

var _ alarm.Store = (*Repository)(nil)

// PutAlarm stores an alarm, replacing any existing entry with the
// same tag.
func (r *Repository) PutAlarm(ctx context.Context, a domain.Alarm) error {
	actions, err := json.Marshal(a.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	data, err := json.Marshal(a.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	query := `
		INSERT INTO alarms (tag, title, body, fire_at_ms, actions, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tag) DO UPDATE
		SET title = EXCLUDED.title,
		    body = EXCLUDED.body,
		    fire_at_ms = EXCLUDED.fire_at_ms,
		    actions = EXCLUDED.actions,
		    data = EXCLUDED.data
	`
	if _, err := r.db.Exec(ctx, query, a.Tag, a.Title, a.Body, a.FireAt.UnixMilli(), actions, data); err != nil {
		return fmt.Errorf("put alarm: %w", err)
	}
	return nil
}

// GetAlarm retrieves one alarm by tag.
func (r *Repository) GetAlarm(ctx context.Context, tag string) (*domain.Alarm, error) {
	query := `SELECT tag, title, body, fire_at_ms, actions, data FROM alarms WHERE tag = $1`

	a, err := scanAlarm(r.db.QueryRow(ctx, query, tag))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, alarm.ErrAlarmNotFound
		}
		return nil, fmt.Errorf("get alarm: %w", err)
	}
	return a, nil
}

// ListAlarms returns all pending alarms.
func (r *Repository) ListAlarms(ctx context.Context) ([]domain.Alarm, error) {
	query := `SELECT tag, title, body, fire_at_ms, actions, data FROM alarms ORDER BY fire_at_ms`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	defer rows.Close()

	alarms := make([]domain.Alarm, 0)
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		alarms = append(alarms, *a)
	}
	return alarms, rows.Err()
}

// DeleteAlarm removes an alarm. Deleting an absent tag is a no-op.
func (r *Repository) DeleteAlarm(ctx context.Context, tag string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM alarms WHERE tag = $1`, tag); err != nil {
		return fmt.Errorf("delete alarm: %w", err)
	}
	return nil
}

// ClearAlarms removes all pending alarms.
func (r *Repository) ClearAlarms(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM alarms`); err != nil {
		return fmt.Errorf("clear alarms: %w", err)
	}
	return nil
}

// GetMeta retrieves one metadata value by name.
func (r *Repository) GetMeta(ctx context.Context, name string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM meta WHERE name = $1`, name).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", alarm.ErrMetaNotFound
		}
		return "", fmt.Errorf("get meta: %w", err)
	}
	return value, nil
}

// PutMeta stores a metadata value, replacing any existing one.
func (r *Repository) PutMeta(ctx context.Context, name, value string) error {
	query := `
		INSERT INTO meta (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, name, value); err != nil {
		return fmt.Errorf("put meta: %w", err)
	}
	return nil
}

// DeleteMeta removes a metadata entry. Absent names are a no-op.
func (r *Repository) DeleteMeta(ctx context.Context, name string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM meta WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete meta: %w", err)
	}
	return nil
}

// AppendEvent appends an undelivered foreground event to the outbox.
func (r *Repository) AppendEvent(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	query := `INSERT INTO outbox (id, kind, payload, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(ctx, query, ev.ID, string(ev.Kind), payload, ev.CreatedAt); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns deferred events in insertion order.
func (r *Repository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	query := `SELECT payload FROM outbox ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev domain.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteEvent removes a delivered event from the outbox.
func (r *Repository) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM outbox WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// Ping performs the keep-alive liveness touch.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlarm(row rowScanner) (*domain.Alarm, error) {
	var (
		a        domain.Alarm
		fireAtMS int64
		actions  []byte
		data     []byte
	)
	if err := row.Scan(&a.Tag, &a.Title, &a.Body, &fireAtMS, &actions, &data); err != nil {
		return nil, err
	}

	a.FireAt = time.UnixMilli(fireAtMS)
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &a.Actions); err != nil {
			return nil, fmt.Errorf("unmarshal actions: %w", err)
		}
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &a.Data); err != nil {
			return nil, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return &a, nil
}

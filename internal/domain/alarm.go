// Package domain contains the core types shared across modules.
package domain

import "time"

// Action is a single interactive choice offered on a fired notification.
// The ID encodes the semantics the foreground app reacts to, e.g.
// "snooze:10" or "habit:water:done".
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// DefaultActions is the action set used when an alarm specifies none.
func DefaultActions() []Action {
	return []Action{{ID: "dismiss", Label: "Dismiss"}}
}

// Alarm is a scheduled notification awaiting exactly-once delivery.
// Tag is the primary key: scheduling the same tag again replaces the
// stored entry. Alarms are never mutated in place.
type Alarm struct {
	Tag     string            `json:"tag"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	FireAt  time.Time         `json:"fire_at"`
	Actions []Action          `json:"actions,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

// Age returns how far past due the alarm is at the given instant.
// Negative means not yet due.
func (a *Alarm) Age(now time.Time) time.Duration {
	return now.Sub(a.FireAt)
}

// EffectiveActions returns the alarm's actions, falling back to the
// default dismiss action when none were provided.
func (a *Alarm) EffectiveActions() []Action {
	if len(a.Actions) == 0 {
		return DefaultActions()
	}
	return a.Actions
}

// Metadata names persisted in the meta collection.
const (
	MetaNextWake      = "nextWake"
	MetaStatusEnabled = "statusNotifEnabled"
)

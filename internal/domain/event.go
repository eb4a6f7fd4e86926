package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind discriminates outbound events posted to the foreground app.
type EventKind string

// Outbound event kinds.
const (
	EventSnoozed           EventKind = "SNOOZED"
	EventHabitAction       EventKind = "HABIT_ACTION"
	EventNotificationClick EventKind = "NOTIFICATION_CLICK"
)

// Event is an outbound message for the foreground app. Events are
// delivered to a connected foreground instance, or appended to the
// durable outbox and drained when one connects.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Kind      EventKind `json:"kind"`
	Tag       string    `json:"tag,omitempty"`
	Mins      int       `json:"mins,omitempty"`
	HabitKey  string    `json:"habit_key,omitempty"`
	HabitVal  string    `json:"habit_val,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSnoozedEvent reports that the user chose a snooze action.
func NewSnoozedEvent(tag string, mins int, at time.Time) Event {
	return Event{ID: uuid.New(), Kind: EventSnoozed, Tag: tag, Mins: mins, CreatedAt: at}
}

// NewHabitActionEvent reports a domain action encoded in an action id
// as "habit:<key>:<value>".
func NewHabitActionEvent(key, val string, at time.Time) Event {
	return Event{ID: uuid.New(), Kind: EventHabitAction, HabitKey: key, HabitVal: val, CreatedAt: at}
}

// NewNotificationClickEvent reports a generic confirmation action.
func NewNotificationClickEvent(tag string, at time.Time) Event {
	return Event{ID: uuid.New(), Kind: EventNotificationClick, Tag: tag, CreatedAt: at}
}

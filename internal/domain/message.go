package domain

import "time"

// MessageType discriminates inbound messages on the wire.
type MessageType string

// Inbound message types.
const (
	MessageSyncAlarms     MessageType = "SYNC_ALARMS"
	MessageShowAlarm      MessageType = "SHOW_ALARM"
	MessageScheduleAlarm  MessageType = "SCHEDULE_ALARM"
	MessageCancelAlarm    MessageType = "CANCEL_ALARM"
	MessageStartKeepAlive MessageType = "START_KEEPALIVE"
	MessageSkipWaiting    MessageType = "SKIP_WAITING"
)

// Message is the closed set of inbound messages from the foreground app.
// Each trigger path dispatches on the concrete type, so an unhandled
// variant is a compile-time signal rather than a silent no-op.
type Message interface {
	Type() MessageType
}

// SyncAlarms replaces the entire pending set with the future-dated
// entries from Alarms; past-dated entries are dropped silently.
type SyncAlarms struct {
	Alarms []Alarm
}

// ShowAlarm fires a notification immediately, without persistence.
type ShowAlarm struct {
	Title   string
	Body    string
	Tag     string
	Actions []Action
	Data    map[string]string
}

// ScheduleAlarm persists an alarm due Delay from now and arms an
// in-process snooze timer alongside it.
type ScheduleAlarm struct {
	Title   string
	Body    string
	Tag     string
	Delay   time.Duration
	Actions []Action
	Data    map[string]string
}

// CancelAlarm deletes an alarm and its snooze timer, if any.
type CancelAlarm struct {
	Tag string
}

// StartKeepAlive resyncs the next-wake timer, starts the keep-alive
// driver and requests periodic wake registration.
type StartKeepAlive struct{}

// SkipWaiting is a lifecycle control message; the engine acknowledges
// it without side effects.
type SkipWaiting struct{}

func (SyncAlarms) Type() MessageType     { return MessageSyncAlarms }
func (ShowAlarm) Type() MessageType      { return MessageShowAlarm }
func (ScheduleAlarm) Type() MessageType  { return MessageScheduleAlarm }
func (CancelAlarm) Type() MessageType    { return MessageCancelAlarm }
func (StartKeepAlive) Type() MessageType { return MessageStartKeepAlive }
func (SkipWaiting) Type() MessageType    { return MessageSkipWaiting }

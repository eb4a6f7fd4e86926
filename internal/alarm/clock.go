package alarm

import "time"

// Timer is a single-shot timer handle. Stop reports whether the timer
// was stopped before firing.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so the engine can run on a fake clock in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

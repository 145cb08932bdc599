package schedule

import "time"

// Timer is an armed one-shot timer handle. Stop reports whether the timer
// was stopped before firing.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time and timer arming so tests can fast-forward
// without waiting on real timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// RealClock returns the wall-clock implementation used in production.
func RealClock() Clock { return realClock{} }

package playback

import "time"

// Timer is a cancellable one-shot timer. Stop reports whether the timer
// was cancelled before firing.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the machine so tests can drive the fallback
// timer deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

// NewRealClock returns a Clock backed by the runtime timers.
func NewRealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

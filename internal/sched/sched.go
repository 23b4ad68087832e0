// Package sched abstracts timer scheduling so retry backoff can run against
// real timers in production and a virtual clock in tests.
package sched

import "time"

// Cancel stops a scheduled callback. Calling it after the callback has fired
// is a no-op. Cancel does not wait for a concurrently running callback.
type Cancel func()

// Scheduler runs a callback after a delay.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Cancel
}

// TimerScheduler is the production Scheduler, backed by time.AfterFunc.
type TimerScheduler struct{}

// Schedule implements Scheduler.
func (TimerScheduler) Schedule(d time.Duration, fn func()) Cancel {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

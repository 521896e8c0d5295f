// Package scheduler runs keyed periodic and one-shot tasks.
//
// Two implementations exist: Loop drives tasks from real timers on a single
// goroutine, Manual fires them from a virtual clock advanced by the caller.
package scheduler

import "time"

// Scheduler registers tasks by key. Registering an existing key replaces the
// previous task. No two callbacks of one Scheduler run at the same time.
type Scheduler interface {
	// Every calls fn every interval until fn returns false or the key is cancelled.
	// The next tick is armed only after fn returned.
	Every(key string, interval time.Duration, fn func() bool)
	// After calls fn once after delay.
	After(key string, delay time.Duration, fn func())
	// Cancel removes the task registered under key. Unknown keys are ignored.
	Cancel(key string)
	// Pending returns the number of registered tasks.
	Pending() int
}

func mustPositive(interval time.Duration) {
	if interval <= 0 {
		panic("scheduler: non-positive interval for periodic task")
	}
}

package scheduler

import (
	"context"
	"sync"
	"time"
)

// Loop is the production Scheduler. Timers only post work onto a queue; Run
// executes that work on one goroutine.
type Loop struct {
	mu      sync.Mutex
	tasks   map[string]*loopTask
	work    chan func()
	done    chan struct{}
	stopped bool
}

type loopTask struct {
	timer *time.Timer
}

// NewLoop creates a Loop. Tasks may be registered before Run is called; they
// fire once Run starts draining the queue.
func NewLoop() *Loop {
	return &Loop{
		tasks: make(map[string]*loopTask),
		work:  make(chan func(), 256),
		done:  make(chan struct{}),
	}
}

// Run executes queued callbacks until ctx ends, then stops every timer.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.stop()
			return
		case fn := <-l.work:
			fn()
		}
	}
}

func (l *Loop) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	for key, t := range l.tasks {
		t.timer.Stop()
		delete(l.tasks, key)
	}
	close(l.done)
}

// Every implements Scheduler.
func (l *Loop) Every(key string, interval time.Duration, fn func() bool) {
	mustPositive(interval)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.cancelLocked(key)

	t := &loopTask{}
	var tick func()
	tick = func() {
		if !l.current(key, t) {
			return
		}
		keep := fn()

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.tasks[key] != t {
			// cancelled or replaced by fn
			return
		}
		if !keep || l.stopped {
			delete(l.tasks, key)
			return
		}
		t.timer = time.AfterFunc(interval, func() { l.post(tick) })
	}
	t.timer = time.AfterFunc(interval, func() { l.post(tick) })
	l.tasks[key] = t
}

// After implements Scheduler.
func (l *Loop) After(key string, delay time.Duration, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.cancelLocked(key)

	t := &loopTask{}
	fire := func() {
		l.mu.Lock()
		if l.tasks[key] != t {
			l.mu.Unlock()
			return
		}
		delete(l.tasks, key)
		l.mu.Unlock()
		fn()
	}
	t.timer = time.AfterFunc(delay, func() { l.post(fire) })
	l.tasks[key] = t
}

// Cancel implements Scheduler.
func (l *Loop) Cancel(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelLocked(key)
}

// Pending implements Scheduler.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

func (l *Loop) cancelLocked(key string) {
	if t, ok := l.tasks[key]; ok {
		t.timer.Stop()
		delete(l.tasks, key)
	}
}

func (l *Loop) current(key string, t *loopTask) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks[key] == t
}

// post hands fn to the Run goroutine. A timer that already fired but whose
// task was cancelled still posts; the callback then sees it is stale.
func (l *Loop) post(fn func()) {
	select {
	case l.work <- fn:
	case <-l.done:
	}
}

package scheduler

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by a virtual clock. Callbacks run on the
// goroutine that calls Advance.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   uint64
	tasks map[string]*manualTask
}

type manualTask struct {
	key      string
	due      time.Duration
	seq      uint64
	interval time.Duration
	every    func() bool
	once     func()
}

// NewManual creates a Manual scheduler at virtual time zero.
func NewManual() *Manual {
	return &Manual{tasks: make(map[string]*manualTask)}
}

// Now returns the virtual time elapsed since creation.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Every implements Scheduler.
func (m *Manual) Every(key string, interval time.Duration, fn func() bool) {
	mustPositive(interval)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.tasks[key] = &manualTask{key: key, due: m.now + interval, seq: m.seq, interval: interval, every: fn}
}

// After implements Scheduler.
func (m *Manual) After(key string, delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.tasks[key] = &manualTask{key: key, due: m.now + delay, seq: m.seq, once: fn}
}

// Cancel implements Scheduler.
func (m *Manual) Cancel(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, key)
}

// Pending implements Scheduler.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward by d, firing every task that falls due in
// due-time order, including tasks registered by callbacks during the advance.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.due
		if next.once != nil {
			delete(m.tasks, next.key)
			m.mu.Unlock()
			next.once()
			continue
		}
		m.mu.Unlock()

		keep := next.every()

		m.mu.Lock()
		if m.tasks[next.key] == next {
			if keep {
				m.seq++
				next.due += next.interval
				next.seq = m.seq
			} else {
				delete(m.tasks, next.key)
			}
		}
		m.mu.Unlock()
	}
}

func (m *Manual) nextDueLocked(limit time.Duration) *manualTask {
	var next *manualTask
	for _, t := range m.tasks {
		if t.due > limit {
			continue
		}
		if next == nil || t.due < next.due || (t.due == next.due && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

// Package logsink keeps the session log shown in the UI log panel.
package logsink

import (
	"sync"
	"time"

	"github.com/oddrm/pse25/internal/domain"
)

// TimeLayout is the wall-clock format of LogEntry.Time.
const TimeLayout = "15:04:05"

// Sink is an append-only, most-recent-first list of log entries.
type Sink struct {
	mu        sync.RWMutex
	entries   []domain.LogEntry // most recent first
	observers []func(domain.LogEntry)
	now       func() time.Time
}

// Option configures a Sink.
type Option func(*Sink)

// WithClock overrides the wall clock used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) {
		s.now = now
	}
}

// New creates an empty Sink.
func New(opts ...Option) *Sink {
	s := &Sink{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records a message and returns the stored entry. It never fails.
func (s *Sink) Append(kind domain.LogKind, message string) domain.LogEntry {
	s.mu.Lock()
	entry := domain.LogEntry{
		ID:      len(s.entries) + 1,
		Kind:    kind,
		Message: message,
		Time:    s.now().Format(TimeLayout),
	}
	s.entries = append(s.entries, domain.LogEntry{})
	copy(s.entries[1:], s.entries)
	s.entries[0] = entry
	observers := s.observers
	s.mu.Unlock()

	for _, fn := range observers {
		fn(entry)
	}
	return entry
}

// Info is shorthand for Append(domain.LogKindInfo, message).
func (s *Sink) Info(message string) domain.LogEntry {
	return s.Append(domain.LogKindInfo, message)
}

// List returns a snapshot of all entries, most recent first.
func (s *Sink) List() []domain.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Since returns entries with an ID greater than afterID, most recent first.
func (s *Sink) Since(afterID int) []domain.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// IDs are dense and descending, so the newer entries form a prefix.
	n := len(s.entries) - afterID
	if afterID < 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	if n <= 0 {
		return []domain.LogEntry{}
	}
	out := make([]domain.LogEntry, n)
	copy(out, s.entries[:n])
	return out
}

// Len returns the number of entries.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Subscribe registers fn to be called after every append, outside the lock.
func (s *Sink) Subscribe(fn func(domain.LogEntry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]func(domain.LogEntry), len(s.observers), len(s.observers)+1)
	copy(next, s.observers)
	s.observers = append(next, fn)
}

// Package domain defines the core domain models for bagdesk.
package domain

// LogKind is the severity of a log entry shown in the UI log panel.
type LogKind string

const (
	LogKindInfo  LogKind = "info"
	LogKindWarn  LogKind = "warn"
	LogKindError LogKind = "error"
)

// ScopeKind discriminates a global run from a per-entry run.
type ScopeKind string

const (
	ScopeKindGlobal ScopeKind = "global"
	ScopeKindEntry  ScopeKind = "entry"
)

// RunPhase is the lifecycle phase of an active run. A removed run has no phase;
// it is simply absent from the active set.
type RunPhase string

const (
	RunPhasePending   RunPhase = "pending"
	RunPhaseAdvancing RunPhase = "advancing"
	RunPhaseComplete  RunPhase = "complete"
)

// RunEventType represents the type of a run lifecycle event.
type RunEventType string

const (
	RunEventStarted   RunEventType = "run_started"
	RunEventProgress  RunEventType = "run_progress"
	RunEventCompleted RunEventType = "run_completed"
	RunEventRemoved   RunEventType = "run_removed"
)

// EntrySort is a column entries can be ordered by.
type EntrySort string

const (
	EntrySortName      EntrySort = "name"
	EntrySortPath      EntrySort = "path"
	EntrySortPlatform  EntrySort = "platform"
	EntrySortSize      EntrySort = "size"
	EntrySortCreatedAt EntrySort = "created_at"
)

// Valid reports whether s names a sortable column.
func (s EntrySort) Valid() bool {
	switch s {
	case EntrySortName, EntrySortPath, EntrySortPlatform, EntrySortSize, EntrySortCreatedAt:
		return true
	}
	return false
}

package domain

// PluginDefinition describes a plugin available in the catalog.
type PluginDefinition struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Run is a snapshot of one active plugin run.
type Run struct {
	RunID    string   `json:"run_id"`
	PluginID int      `json:"plugin_id"`
	Scope    Scope    `json:"scope"`
	Progress int      `json:"progress"`
	Phase    RunPhase `json:"phase"`
}

// RunEvent reports a change of the active-run set.
type RunEvent struct {
	Type RunEventType `json:"type"`
	Run  Run          `json:"run"`
}

// LogEntry is one line of the session log.
type LogEntry struct {
	ID      int     `json:"id"`
	Kind    LogKind `json:"type"`
	Message string  `json:"message"`
	Time    string  `json:"time"`
}

package policy

import (
	"context"

	"github.com/oddrm/pse25/internal/domain"
)

// StartGate evaluates start requests against the engine, feeding it the
// plugin's enabled flag.
type StartGate struct {
	engine  *Engine
	enabled func(pluginID int) bool
}

// NewStartGate creates a gate. A nil enabled func treats every plugin as enabled.
func NewStartGate(engine *Engine, enabled func(pluginID int) bool) *StartGate {
	if enabled == nil {
		enabled = func(int) bool { return true }
	}
	return &StartGate{engine: engine, enabled: enabled}
}

// Allow reports whether a run of plugin on scope may start.
func (g *StartGate) Allow(ctx context.Context, plugin domain.PluginDefinition, scope domain.Scope) (bool, string, error) {
	entryName, _ := scope.EntryName()
	return g.engine.Allow(ctx, Input{
		PluginID:   plugin.ID,
		PluginName: plugin.Name,
		Enabled:    g.enabled(plugin.ID),
		ScopeKind:  string(scope.Kind()),
		EntryName:  entryName,
	})
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/oddrm/pse25/internal/catalog"
	"github.com/oddrm/pse25/internal/domain"
	"github.com/oddrm/pse25/internal/tracker"
)

// PluginInfo is a catalog entry with its enabled flag.
type PluginInfo struct {
	domain.PluginDefinition
	Enabled bool `json:"enabled"`
}

// StartResult reports the outcome of a run start. Rejections are not errors.
type StartResult struct {
	Started bool        `json:"started"`
	Reason  string      `json:"reason,omitempty"`
	Run     *domain.Run `json:"run,omitempty"`
}

// ListPlugins returns the catalog in load order.
func (s *Service) ListPlugins() []PluginInfo {
	defs := s.catalog.List()
	out := make([]PluginInfo, len(defs))
	for i, def := range defs {
		out[i] = PluginInfo{PluginDefinition: def, Enabled: s.catalog.Enabled(def.ID)}
	}
	return out
}

// GetPlugin returns the plugin with the given id, or nil.
func (s *Service) GetPlugin(pluginID int) *PluginInfo {
	def, ok := s.catalog.Lookup(pluginID)
	if !ok {
		return nil
	}
	return &PluginInfo{PluginDefinition: def, Enabled: s.catalog.Enabled(pluginID)}
}

// SetPluginEnabled enables or disables future runs of a plugin. Active runs
// are not affected.
func (s *Service) SetPluginEnabled(pluginID int, enabled bool) (*PluginInfo, error) {
	if err := s.catalog.SetEnabled(pluginID, enabled); err != nil {
		return nil, err
	}
	info := s.GetPlugin(pluginID)
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	s.sink.Append(domain.LogKindInfo, fmt.Sprintf("Plugin \"%s\" %s.", info.Name, state))
	s.logger.Info().Int("plugin_id", pluginID).Bool("enabled", enabled).Msg("plugin state changed")
	return info, nil
}

// StartRun requests a run of the plugin, scoped to entryName or global when
// empty. Unknown plugins, duplicates and denied starts yield Started=false.
func (s *Service) StartRun(ctx context.Context, pluginID int, entryName string) StartResult {
	run, err := s.tracker.Start(ctx, pluginID, domain.ScopeFor(entryName))
	switch {
	case err == nil:
		return StartResult{Started: true, Run: &run}
	case errors.Is(err, tracker.ErrUnknownPlugin):
		return StartResult{Reason: catalog.ErrPluginNotFound.Error()}
	case errors.Is(err, tracker.ErrDuplicateRun), errors.Is(err, tracker.ErrRunDenied):
		return StartResult{Reason: err.Error()}
	default:
		s.logger.Warn().Err(err).Int("plugin_id", pluginID).Msg("run start failed")
		return StartResult{Reason: "run could not be started"}
	}
}

// ListRuns returns the active runs in creation order.
func (s *Service) ListRuns() []domain.Run {
	return s.tracker.Active()
}

// GetRun returns the active run with the given id, or nil.
func (s *Service) GetRun(runID string) *domain.Run {
	run, ok := s.tracker.Get(runID)
	if !ok {
		return nil
	}
	return &run
}

// Logs returns entries newer than afterID, most recent first, at most limit
// of them when limit is positive.
func (s *Service) Logs(afterID, limit int) []domain.LogEntry {
	entries := s.sink.Since(afterID)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Package catalog holds the plugins that can be run in a session.
package catalog

import (
	"errors"
	"sync"

	"github.com/oddrm/pse25/internal/domain"
)

// ErrPluginNotFound is returned when a plugin id is not in the catalog.
var ErrPluginNotFound = errors.New("plugin not found")

// DefaultSeed returns the built-in plugin list.
func DefaultSeed() []domain.PluginDefinition {
	return []domain.PluginDefinition{
		{ID: 1, Name: "Compress Files", Description: "Compresses the selected recordings."},
		{ID: 2, Name: "Generate Text", Description: "Generates a text summary of a recording."},
		{ID: 3, Name: "Index Database", Description: "Rebuilds the search index of the entry database."},
	}
}

// Catalog is the set of known plugins plus a per-plugin enabled flag.
// Definitions never change once loaded.
type Catalog struct {
	mu       sync.RWMutex
	seed     []domain.PluginDefinition
	order    []int
	plugins  map[int]domain.PluginDefinition
	disabled map[int]bool
}

// New creates an empty catalog that loads from seed. A nil seed uses DefaultSeed.
func New(seed []domain.PluginDefinition) *Catalog {
	if seed == nil {
		seed = DefaultSeed()
	}
	return &Catalog{
		seed:     seed,
		plugins:  make(map[int]domain.PluginDefinition),
		disabled: make(map[int]bool),
	}
}

// Load populates the catalog from its seed and returns the contents.
// It is a no-op when the catalog is already populated.
func (c *Catalog) Load() []domain.PluginDefinition {
	c.mu.Lock()
	if len(c.plugins) == 0 {
		for _, def := range c.seed {
			if _, dup := c.plugins[def.ID]; dup {
				continue
			}
			c.plugins[def.ID] = def
			c.order = append(c.order, def.ID)
		}
	}
	c.mu.Unlock()
	return c.List()
}

// List returns the plugins in load order.
func (c *Catalog) List() []domain.PluginDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.PluginDefinition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plugins[id])
	}
	return out
}

// Lookup returns the plugin with the given id.
func (c *Catalog) Lookup(id int) (domain.PluginDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.plugins[id]
	return def, ok
}

// SetEnabled toggles whether runs of the plugin may be started.
func (c *Catalog) SetEnabled(id int, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.plugins[id]; !ok {
		return ErrPluginNotFound
	}
	if enabled {
		delete(c.disabled, id)
	} else {
		c.disabled[id] = true
	}
	return nil
}

// Enabled reports whether the plugin exists and is enabled. Plugins start enabled.
func (c *Catalog) Enabled(id int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.plugins[id]
	return ok && !c.disabled[id]
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "HTTP_PORT", "GRPC_PORT", "DATABASE_URL", "SEED_DEMO",
		"TICK_INTERVAL_MS", "PROGRESS_STEP", "FINALIZE_DELAY_MS", "POLICY_FILE", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.GRPCPort)
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 5, cfg.ProgressStep)
	assert.Equal(t, 500*time.Millisecond, cfg.FinalizeDelay)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Plugins)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("TICK_INTERVAL_MS", "150")
	t.Setenv("PROGRESS_STEP", "2")
	t.Setenv("FINALIZE_DELAY_MS", "0")
	t.Setenv("SEED_DEMO", "true")
	t.Setenv("GRPC_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.GRPCPort, "invalid ints fall back to the default")
	assert.Equal(t, 150*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 2, cfg.ProgressStep)
	assert.Equal(t, time.Duration(0), cfg.FinalizeDelay)
	assert.True(t, cfg.SeedDemo)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bagdesk.yaml")
	content := `
http_port: 7070
progress_step: 4
finalize_delay_ms: 250
log_level: debug
plugins:
  - id: 10
    name: Extract Topics
    description: Lists the topics of a recording.
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTPPort)
	assert.Equal(t, 4, cfg.ProgressStep)
	assert.Equal(t, 250*time.Millisecond, cfg.FinalizeDelay)
	assert.Equal(t, "warn", cfg.LogLevel, "env wins over file")
	require.Len(t, cfg.Plugins, 1)
	assert.Equal(t, PluginSeed{ID: 10, Name: "Extract Topics", Description: "Lists the topics of a recording."}, cfg.Plugins[0])
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero step", mutate: func(c *Config) { c.ProgressStep = 0 }, wantErr: true},
		{name: "step over 100", mutate: func(c *Config) { c.ProgressStep = 101 }, wantErr: true},
		{name: "zero tick", mutate: func(c *Config) { c.TickInterval = 0 }, wantErr: true},
		{name: "negative finalize", mutate: func(c *Config) { c.FinalizeDelay = -time.Millisecond }, wantErr: true},
		{name: "zero finalize", mutate: func(c *Config) { c.FinalizeDelay = 0 }},
		{name: "unnamed plugin", mutate: func(c *Config) { c.Plugins = []PluginSeed{{ID: 1}} }, wantErr: true},
		{
			name: "duplicate plugin id",
			mutate: func(c *Config) {
				c.Plugins = []PluginSeed{{ID: 1, Name: "a"}, {ID: 1, Name: "b"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

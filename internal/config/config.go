// Package config provides configuration for bagdesk.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the bagdesk configuration.
type Config struct {
	// Server settings
	HTTPPort int
	GRPCPort int // 0 disables the gRPC health endpoint

	// Database
	DatabaseURL string
	SeedDemo    bool

	// Run tracker
	TickInterval  time.Duration
	ProgressStep  int
	FinalizeDelay time.Duration

	// Policy file replacing the built-in start policy
	PolicyFile string

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Plugin catalog seed; empty means the built-in seed.
	Plugins []PluginSeed

	// Logging
	LogLevel string
}

// PluginSeed is one catalog entry from the config file.
type PluginSeed struct {
	ID          int    `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// fileConfig mirrors Config for YAML decoding. Pointers distinguish unset keys.
type fileConfig struct {
	HTTPPort        *int         `yaml:"http_port"`
	GRPCPort        *int         `yaml:"grpc_port"`
	DatabaseURL     *string      `yaml:"database_url"`
	SeedDemo        *bool        `yaml:"seed_demo"`
	TickIntervalMs  *int         `yaml:"tick_interval_ms"`
	ProgressStep    *int         `yaml:"progress_step"`
	FinalizeDelayMs *int         `yaml:"finalize_delay_ms"`
	PolicyFile      *string      `yaml:"policy_file"`
	LogLevel        *string      `yaml:"log_level"`
	Plugins         []PluginSeed `yaml:"plugins"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		HTTPPort:       8080,
		GRPCPort:       9090,
		DatabaseURL:    "file:bagdesk.db?cache=shared&mode=rwc",
		TickInterval:   100 * time.Millisecond,
		ProgressStep:   5,
		FinalizeDelay:  500 * time.Millisecond,
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 65536,
		LogLevel:       "info",
	}
}

// Load loads configuration from the optional CONFIG_FILE and then from
// environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = getEnvInt("GRPC_PORT", cfg.GRPCPort)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.SeedDemo = getEnvBool("SEED_DEMO", cfg.SeedDemo)
	cfg.TickInterval = time.Duration(getEnvInt("TICK_INTERVAL_MS", int(cfg.TickInterval/time.Millisecond))) * time.Millisecond
	cfg.ProgressStep = getEnvInt("PROGRESS_STEP", cfg.ProgressStep)
	cfg.FinalizeDelay = time.Duration(getEnvInt("FINALIZE_DELAY_MS", int(cfg.FinalizeDelay/time.Millisecond))) * time.Millisecond
	cfg.PolicyFile = getEnv("POLICY_FILE", cfg.PolicyFile)
	cfg.PingInterval = time.Duration(getEnvInt("WS_PING_INTERVAL_MS", int(cfg.PingInterval/time.Millisecond))) * time.Millisecond
	cfg.WriteTimeout = time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", int(cfg.WriteTimeout/time.Millisecond))) * time.Millisecond
	cfg.ReadTimeout = time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", int(cfg.ReadTimeout/time.Millisecond))) * time.Millisecond
	cfg.MaxMessageSize = int64(getEnvInt("WS_MAX_MESSAGE_SIZE", int(cfg.MaxMessageSize)))
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the tracker timings are usable.
func (c *Config) Validate() error {
	if c.ProgressStep < 1 || c.ProgressStep > 100 {
		return fmt.Errorf("progress step must be within 1..100, got %d", c.ProgressStep)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if c.FinalizeDelay < 0 {
		return fmt.Errorf("finalize delay must not be negative, got %s", c.FinalizeDelay)
	}
	seen := make(map[int]bool, len(c.Plugins))
	for _, p := range c.Plugins {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("plugin %d: name is required", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("plugin %d: duplicate id", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

func mergeFile(cfg *Config, path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file does not exist: %s", path)
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(payload, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.HTTPPort != nil {
		cfg.HTTPPort = *fc.HTTPPort
	}
	if fc.GRPCPort != nil {
		cfg.GRPCPort = *fc.GRPCPort
	}
	if fc.DatabaseURL != nil {
		cfg.DatabaseURL = strings.TrimSpace(*fc.DatabaseURL)
	}
	if fc.SeedDemo != nil {
		cfg.SeedDemo = *fc.SeedDemo
	}
	if fc.TickIntervalMs != nil {
		cfg.TickInterval = time.Duration(*fc.TickIntervalMs) * time.Millisecond
	}
	if fc.ProgressStep != nil {
		cfg.ProgressStep = *fc.ProgressStep
	}
	if fc.FinalizeDelayMs != nil {
		cfg.FinalizeDelay = time.Duration(*fc.FinalizeDelayMs) * time.Millisecond
	}
	if fc.PolicyFile != nil {
		cfg.PolicyFile = strings.TrimSpace(*fc.PolicyFile)
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = strings.TrimSpace(*fc.LogLevel)
	}
	if len(fc.Plugins) > 0 {
		cfg.Plugins = fc.Plugins
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

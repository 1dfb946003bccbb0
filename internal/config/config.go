// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

// Package config loads the service configuration from three layers, each
// overriding the previous: struct defaults, an optional YAML file, and
// STORYRANK_-prefixed environment variables.
//
//	STORYRANK_SERVER_PORT=8080        -> server.port
//	STORYRANK_ENGINE_DEFAULT_N=20     -> engine.default_n
//	STORYRANK_SNAPSHOT_DIR=/data/snap -> snapshot.dir
//
// Config is immutable after Load and safe for concurrent reads.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/nvallon/storyrank/internal/recommend"
)

// DefaultConfigPaths lists where a config file is searched, first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/storyrank/config.yaml",
	"/etc/storyrank/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "STORYRANK_CONFIG"

// envPrefix namespaces all storyrank environment variables.
const envPrefix = "STORYRANK_"

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Engine   EngineConfig   `koanf:"engine"`
	Snapshot SnapshotConfig `koanf:"snapshot"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the bind address. Default: 0.0.0.0.
	Host string `koanf:"host"`

	// Port is the listen port. Default: 8464.
	Port int `koanf:"port"`

	// Timeout bounds request read and write. Default: 30s.
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed cross-origin hosts. Default: *.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimit is the per-IP request budget per minute. Zero disables
	// rate limiting. Default: 300.
	RateLimit int `koanf:"rate_limit"`
}

// EngineConfig mirrors the recommendation engine tunables.
type EngineConfig struct {
	EventHalfLifeDays       float64 `koanf:"event_half_life_days"`
	MoodHalfLifeDays        float64 `koanf:"mood_half_life_days"`
	TransitionWindowMinutes float64 `koanf:"transition_window_minutes"`
	AvoidedThemeThreshold   float64 `koanf:"avoided_theme_threshold"`
	PreferredThemeThreshold float64 `koanf:"preferred_theme_threshold"`
	DefaultN                int     `koanf:"default_n"`
	MaxN                    int     `koanf:"max_n"`
}

// SnapshotConfig configures state persistence.
type SnapshotConfig struct {
	// Dir is where snapshot files live. Empty disables persistence.
	Dir string `koanf:"dir"`

	// Keep is how many snapshot generations to retain. Default: 5.
	Keep int `koanf:"keep"`

	// AutosaveSchedule is a cron expression for periodic snapshots.
	// Empty disables autosave. Default: every 15 minutes.
	AutosaveSchedule string `koanf:"autosave_schedule"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns the defaults applied before file and env layers.
func defaultConfig() *Config {
	engineDefaults := recommend.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8464,
			Timeout:     30 * time.Second,
			CORSOrigins: []string{"*"},
			RateLimit:   300,
		},
		Engine: EngineConfig{
			EventHalfLifeDays:       engineDefaults.EventHalfLifeDays,
			MoodHalfLifeDays:        engineDefaults.MoodHalfLifeDays,
			TransitionWindowMinutes: engineDefaults.TransitionWindowMinutes,
			AvoidedThemeThreshold:   engineDefaults.AvoidedThemeThreshold,
			PreferredThemeThreshold: engineDefaults.PreferredThemeThreshold,
			DefaultN:                engineDefaults.DefaultN,
			MaxN:                    engineDefaults.MaxN,
		},
		Snapshot: SnapshotConfig{
			Dir:              "data/snapshots",
			Keep:             5,
			AutosaveSchedule: "*/15 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load assembles the configuration from defaults, an optional YAML file and
// the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// Env vars arrive as strings; comma-split the known slice field.
	if raw := k.String("server.cors_origins"); raw != "" && strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := k.Set("server.cors_origins", parts); err != nil {
			return nil, fmt.Errorf("split cors_origins: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}
	return cfg, nil
}

// envTransform maps STORYRANK_SERVER_PORT to server.port. Only the first
// underscore separates the section from the key; keys keep their own
// underscores.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// findConfigFile returns the first existing config file path, or empty.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks the service-level settings. Engine settings are validated
// again by the engine itself.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Snapshot.Keep < 1 {
		return fmt.Errorf("snapshot.keep must be positive, got %d", c.Snapshot.Keep)
	}
	return c.EngineConfig().Validate()
}

// EngineConfig converts the engine section into the engine's own config
// type, keeping the engine's default weights.
func (c *Config) EngineConfig() *recommend.Config {
	engine := recommend.DefaultConfig()
	engine.EventHalfLifeDays = c.Engine.EventHalfLifeDays
	engine.MoodHalfLifeDays = c.Engine.MoodHalfLifeDays
	engine.TransitionWindowMinutes = c.Engine.TransitionWindowMinutes
	engine.AvoidedThemeThreshold = c.Engine.AvoidedThemeThreshold
	engine.PreferredThemeThreshold = c.Engine.PreferredThemeThreshold
	engine.DefaultN = c.Engine.DefaultN
	engine.MaxN = c.Engine.MaxN
	return engine
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

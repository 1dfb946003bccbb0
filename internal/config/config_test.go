// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8464 {
		t.Errorf("Server.Port = %d, want 8464", cfg.Server.Port)
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("Server.Timeout = %s, want 30s", cfg.Server.Timeout)
	}
	if cfg.Engine.EventHalfLifeDays != 30.0 {
		t.Errorf("Engine.EventHalfLifeDays = %v, want 30", cfg.Engine.EventHalfLifeDays)
	}
	if cfg.Snapshot.Keep != 5 {
		t.Errorf("Snapshot.Keep = %d, want 5", cfg.Snapshot.Keep)
	}
	if cfg.ListenAddr() != "0.0.0.0:8464" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr())
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STORYRANK_SERVER_PORT", "9000")
	t.Setenv("STORYRANK_LOGGING_LEVEL", "debug")
	t.Setenv("STORYRANK_ENGINE_DEFAULT_N", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000 from env", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug from env", cfg.Logging.Level)
	}
	if cfg.Engine.DefaultN != 25 {
		t.Errorf("Engine.DefaultN = %d, want 25 from env", cfg.Engine.DefaultN)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 7777\nsnapshot:\n  keep: 2\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777 from file", cfg.Server.Port)
	}
	if cfg.Snapshot.Keep != 2 {
		t.Errorf("Snapshot.Keep = %d, want 2 from file", cfg.Snapshot.Keep)
	}
	// Untouched sections keep defaults.
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default info", cfg.Logging.Level)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7777\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("STORYRANK_SERVER_PORT", "9001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want env to override file", cfg.Server.Port)
	}
}

func TestLoadCORSOriginsSplit(t *testing.T) {
	t.Setenv("STORYRANK_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
		t.Errorf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
}

func TestLoadInvalidRejected(t *testing.T) {
	t.Setenv("STORYRANK_SERVER_PORT", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted negative port")
	}
}

func TestEngineConfigMapping(t *testing.T) {
	t.Setenv("STORYRANK_ENGINE_MOOD_HALF_LIFE_DAYS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	engine := cfg.EngineConfig()
	if engine.MoodHalfLifeDays != 7 {
		t.Errorf("MoodHalfLifeDays = %v, want 7", engine.MoodHalfLifeDays)
	}
	// Weights stay at engine defaults.
	if engine.Weights.Sequence != 4.0 {
		t.Errorf("Weights.Sequence = %v, want 4.0", engine.Weights.Sequence)
	}
	if err := engine.Validate(); err != nil {
		t.Errorf("mapped engine config invalid: %v", err)
	}
}

// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

// Package main is the entry point for the storyrank server.
//
// Storyrank learns which stories lift a user's mood, and in what order, from
// a stream of interaction events. It serves ranked recommendation lists,
// sequence insights and mood analytics over a REST API with websocket change
// notifications.
//
// Startup order:
//
//  1. Configuration: koanf layers (defaults, optional YAML file, STORYRANK_ env)
//  2. Logging: global zerolog logger
//  3. Engine: in-memory recommendation engine
//  4. Snapshot store: restore the latest saved state if one exists
//  5. Supervisor tree: websocket hub, snapshot autosaver, HTTP server
//
// Shutdown on SIGINT/SIGTERM drains in-flight requests and writes a final
// snapshot.
//
// Example:
//
//	export STORYRANK_SERVER_PORT=8464
//	export STORYRANK_SNAPSHOT_DIR=/var/lib/storyrank/snapshots
//	export STORYRANK_LOGGING_LEVEL=debug
//	./storyrank
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvallon/storyrank/internal/api"
	"github.com/nvallon/storyrank/internal/config"
	"github.com/nvallon/storyrank/internal/logging"
	"github.com/nvallon/storyrank/internal/metrics"
	"github.com/nvallon/storyrank/internal/recommend"
	"github.com/nvallon/storyrank/internal/snapshot"
	"github.com/nvallon/storyrank/internal/supervisor"
	"github.com/nvallon/storyrank/internal/supervisor/services"
	ws "github.com/nvallon/storyrank/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("listen_addr", cfg.ListenAddr()).
		Str("snapshot_dir", cfg.Snapshot.Dir).
		Msg("starting storyrank")

	engine, err := recommend.NewEngine(cfg.EngineConfig(), logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create recommendation engine")
	}

	var store *snapshot.Store
	if cfg.Snapshot.Dir != "" {
		store, err = snapshot.NewStore(cfg.Snapshot.Dir, logging.Logger())
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to open snapshot store")
		}
		restoreLatest(engine, store)
	} else {
		logging.Warn().Msg("snapshot persistence disabled, state is memory-only")
	}

	hub := ws.NewHub()
	handler := api.NewHandler(engine, store, hub, cfg.Snapshot.Keep)
	server := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      api.NewRouter(&cfg.Server, handler),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	if store != nil && cfg.Snapshot.AutosaveSchedule != "" {
		tree.AddMessagingService(services.NewAutosaveService(
			engine, store, cfg.Snapshot.AutosaveSchedule, cfg.Snapshot.Keep, logging.Logger()))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree exited")
		os.Exit(1)
	}
	logging.Info().Msg("storyrank stopped")
}

// restoreLatest loads the newest snapshot into the engine. A missing
// snapshot is a normal first boot; a corrupt one aborts startup rather than
// silently serving an empty catalog.
func restoreLatest(engine *recommend.Engine, store *snapshot.Store) {
	payload, meta, err := store.Load(context.Background(), 0)
	if errors.Is(err, os.ErrNotExist) {
		logging.Info().Msg("no snapshot found, starting with empty state")
		return
	}
	if err != nil {
		metrics.RecordSnapshotLoad(false)
		logging.Fatal().Err(err).Msg("failed to read latest snapshot")
	}
	if err := engine.Restore(payload); err != nil {
		metrics.RecordSnapshotLoad(false)
		logging.Fatal().Err(err).Int("version", meta.Version).Msg("failed to restore snapshot")
	}
	metrics.RecordSnapshotLoad(true)
	metrics.CatalogSize.Set(float64(engine.StoryCount()))
	metrics.UsersTracked.Set(float64(engine.UserCount()))
	logging.Info().
		Int("version", meta.Version).
		Int("stories", engine.StoryCount()).
		Int("users", engine.UserCount()).
		Msg("snapshot restored")
}

// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package services

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/nvallon/storyrank/internal/metrics"
)

// SnapshotSource produces a serialized engine state.
type SnapshotSource interface {
	Snapshot() ([]byte, error)
}

// SnapshotSink persists snapshot payloads and prunes old generations.
type SnapshotSink interface {
	Save(ctx context.Context, payload []byte) (int, error)
	Prune(ctx context.Context, keep int) error
}

// AutosaveService periodically snapshots the engine on a cron schedule and
// writes a final snapshot on shutdown.
type AutosaveService struct {
	source   SnapshotSource
	sink     SnapshotSink
	schedule string
	keep     int
	logger   zerolog.Logger
}

// NewAutosaveService builds the autosaver. The schedule is a standard
// five-field cron expression.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewAutosaveService(source SnapshotSource, sink SnapshotSink, schedule string, keep int, logger zerolog.Logger) *AutosaveService {
	return &AutosaveService{
		source:   source,
		sink:     sink,
		schedule: schedule,
		keep:     keep,
		logger:   logger.With().Str("component", "autosave").Logger(),
	}
}

// Serve implements suture.Service. A malformed schedule fails fast so the
// supervisor surfaces the misconfiguration instead of silently never saving.
func (a *AutosaveService) Serve(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(a.schedule, func() { a.saveOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid autosave schedule %q: %w", a.schedule, err)
	}

	c.Start()
	<-ctx.Done()

	// Let an in-flight save finish before the final one.
	<-c.Stop().Done()
	a.saveOnce(context.Background())
	return ctx.Err()
}

// saveOnce writes one snapshot generation and prunes old ones.
func (a *AutosaveService) saveOnce(ctx context.Context) {
	payload, err := a.source.Snapshot()
	if err != nil {
		metrics.RecordSnapshotSave(false)
		a.logger.Error().Err(err).Msg("autosave serialization failed")
		return
	}

	version, err := a.sink.Save(ctx, payload)
	if err != nil {
		metrics.RecordSnapshotSave(false)
		a.logger.Error().Err(err).Msg("autosave write failed")
		return
	}
	metrics.RecordSnapshotSave(true)
	a.logger.Debug().Int("version", version).Msg("autosave complete")

	if a.keep > 0 {
		if err := a.sink.Prune(ctx, a.keep); err != nil {
			a.logger.Warn().Err(err).Msg("autosave prune failed")
		}
	}
}

// String identifies the service in supervisor logs.
func (a *AutosaveService) String() string {
	return "snapshot-autosave"
}

// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

// Package recommend implements the sequence-aware story recommendation engine.
//
// The engine consumes a stream of timestamped user-interaction events (views,
// completions, mood reports, favorites, searches, slider moves) and maintains
// per-user affect and preference state plus a global story-to-story transition
// graph. Scoring blends individual signals (mood match, sequence continuation,
// personal impact, theme preference, content similarity) with collaborative
// signals (cross-user filtering, collaborative sequences, popularity) under a
// user-controlled mix.
//
// # Decay
//
// Every historical observation is weighted by half-life decay: a sample's
// influence halves every configured number of days. The evaluation instant is
// always passed explicitly so scoring is deterministic under a fixed clock.
//
// # Ordering
//
// Events for a given user must be ingested in non-decreasing timestamp order.
// Transition backfill and mood-trend computation both rely on "most recent"
// meaning "most recently ingested". Late events are applied as-is.
//
// # Thread Safety
//
// The Engine is safe for concurrent use. Mutations (AddStory, AddEvent,
// Restore) take an exclusive lock; scoring and insights take a shared lock
// and never mutate engine state.
package recommend

// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Engine is the sequence-aware story recommender. It owns the catalog, all
// user profiles, the append-only event log and the global transition graph.
// All state is process-local; persistence happens only through Snapshot and
// Restore.
type Engine struct {
	mu     sync.RWMutex
	config *Config
	logger zerolog.Logger

	// stories is the catalog keyed by story ID.
	stories map[string]*Story

	// users maps user ID to profile, created lazily on first event.
	users map[string]*UserProfile

	// events is the append-only event log.
	events []AnalyticsEvent

	// transitions is the global transition list, oldest first. Entries are
	// shared with the owning user's Sequences slice.
	transitions []*StoryTransition

	// transitionGraph indexes transitions by (from, to) story ID.
	transitionGraph map[string]map[string][]*StoryTransition

	// themeIndex maps theme to the story IDs carrying it.
	themeIndex map[string][]string

	// simCache memoizes pairwise story similarity, keyed by unordered ID
	// pair. Guarded by simMu rather than mu so read paths can populate it.
	// Invalidated whenever the catalog changes.
	simMu    sync.Mutex
	simCache map[similarityKey]float64
}

// NewEngine creates an engine with the given configuration. A nil config
// selects the defaults. Configuration errors fail fast here so the decay
// math never sees a non-positive half-life.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg *Config, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		config:          cfg.Clone(),
		logger:          logger.With().Str("component", "recommend").Logger(),
		stories:         make(map[string]*Story),
		users:           make(map[string]*UserProfile),
		events:          []AnalyticsEvent{},
		transitions:     []*StoryTransition{},
		transitionGraph: make(map[string]map[string][]*StoryTransition),
		themeIndex:      make(map[string][]string),
		simCache:        make(map[similarityKey]float64),
	}, nil
}

// AddStory upserts a catalog entry by ID. Re-adding an existing ID replaces
// its metadata and resets its derived statistics; the similarity cache is
// invalidated either way.
func (e *Engine) AddStory(id, title, theme string, tags []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.stories[id]; ok {
		e.removeFromThemeIndex(prev.Theme, id)
	}

	e.stories[id] = NewStory(id, title, theme, tags)
	e.themeIndex[theme] = append(e.themeIndex[theme], id)

	e.simMu.Lock()
	e.simCache = make(map[similarityKey]float64)
	e.simMu.Unlock()

	e.logger.Debug().
		Str("story_id", id).
		Str("theme", theme).
		Msg("story added")
}

// removeFromThemeIndex drops one story ID from a theme bucket.
// Must be called with mu held.
func (e *Engine) removeFromThemeIndex(theme, id string) {
	ids := e.themeIndex[theme]
	for i, candidate := range ids {
		if candidate == id {
			e.themeIndex[theme] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(e.themeIndex[theme]) == 0 {
		delete(e.themeIndex, theme)
	}
}

// AddEvent ingests one event. Malformed events and unknown event types are
// rejected atomically: the error is returned, nothing is logged to the event
// log and no state changes. References to story IDs missing from the catalog
// are tolerated; only the catalog-dependent side effects are skipped.
//
// Events for a given user must arrive in non-decreasing timestamp order; a
// late event is applied exactly as if it were the newest.
func (e *Engine) AddEvent(event AnalyticsEvent) error {
	if err := event.Validate(); err != nil {
		e.logger.Warn().
			Str("user_id", event.UserID).
			Str("event_type", string(event.Type)).
			Err(err).
			Msg("event rejected")
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = append(e.events, event)
	user := e.profileFor(event.UserID)
	e.applyEvent(user, &event)

	return nil
}

// profileFor returns the profile for a user, creating it on first sight.
// Must be called with mu held.
func (e *Engine) profileFor(userID string) *UserProfile {
	user, ok := e.users[userID]
	if !ok {
		user = NewUserProfile(userID)
		e.users[userID] = user
		e.logger.Debug().Str("user_id", userID).Msg("profile created")
	}
	return user
}

// Story returns a detached copy of a catalog entry, or nil. The copy can be
// read and serialized without holding the engine lock.
func (e *Engine) Story(id string) *Story {
	e.mu.RLock()
	defer e.mu.RUnlock()

	story, ok := e.stories[id]
	if !ok {
		return nil
	}

	out := *story
	out.Tags = append([]string(nil), story.Tags...)
	out.MoodAssociations = append([]MoodObservation(nil), story.MoodAssociations...)
	out.MoodEffectiveness = make(map[MoodRange]float64, len(story.MoodEffectiveness))
	for k, v := range story.MoodEffectiveness {
		out.MoodEffectiveness[k] = v
	}
	out.BestNextStories = cloneFloatMap(story.BestNextStories)
	out.BestNextThemes = cloneFloatMap(story.BestNextThemes)
	if story.AvgMoodChange != nil {
		avg := *story.AvgMoodChange
		out.AvgMoodChange = &avg
	}
	return &out
}

// StoryCount returns the catalog size.
func (e *Engine) StoryCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.stories)
}

// UserCount returns the number of known user profiles.
func (e *Engine) UserCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.users)
}

// EventCount returns the length of the append-only event log.
func (e *Engine) EventCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.events)
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() *Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config.Clone()
}

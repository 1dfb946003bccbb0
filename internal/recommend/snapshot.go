// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

import (
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"
)

// Snapshot is the complete serialized engine state. Derived indices (the
// transition graph, per-user transition indices, the theme index and the
// similarity cache) are rebuilt on restore, never persisted.
type Snapshot struct {
	Stories     map[string]*Story       `json:"stories"`
	Users       map[string]*UserProfile `json:"users"`
	Transitions []*StoryTransition      `json:"story_transitions"`
	Events      []AnalyticsEvent        `json:"events"`
	Config      *Config                 `json:"config"`
}

// Snapshot serializes the full engine state. The encoding happens under the
// read lock so the bytes are a consistent point-in-time view.
func (e *Engine) Snapshot() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := Snapshot{
		Stories:     e.stories,
		Users:       e.users,
		Transitions: e.transitions,
		Events:      e.events,
		Config:      e.config,
	}

	data, err := json.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces all engine state with the decoded snapshot. Per-user
// sequences and transition indices are rebuilt from the global transition
// list, which restores the pointer sharing a later backfill relies on. An
// empty snapshot yields a fresh engine. On error the previous state is kept.
func (e *Engine) Restore(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	cfg := snap.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("snapshot config: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.config = cfg.Clone()

	e.stories = snap.Stories
	if e.stories == nil {
		e.stories = make(map[string]*Story)
	}
	for _, story := range e.stories {
		if story.MoodEffectiveness == nil {
			story.MoodEffectiveness = make(map[MoodRange]float64)
		}
		if story.BestNextStories == nil {
			story.BestNextStories = make(map[string]float64)
		}
		if story.BestNextThemes == nil {
			story.BestNextThemes = make(map[string]float64)
		}
	}

	e.themeIndex = make(map[string][]string)
	for id, story := range e.stories {
		e.themeIndex[story.Theme] = append(e.themeIndex[story.Theme], id)
	}
	for _, ids := range e.themeIndex {
		sort.Strings(ids)
	}

	e.users = snap.Users
	if e.users == nil {
		e.users = make(map[string]*UserProfile)
	}
	for id, user := range e.users {
		e.normalizeRestoredUser(id, user)
	}

	e.transitions = snap.Transitions
	if e.transitions == nil {
		e.transitions = []*StoryTransition{}
	}
	e.transitionGraph = make(map[string]map[string][]*StoryTransition)
	for _, t := range e.transitions {
		if e.transitionGraph[t.FromStoryID] == nil {
			e.transitionGraph[t.FromStoryID] = make(map[string][]*StoryTransition)
		}
		e.transitionGraph[t.FromStoryID][t.ToStoryID] = append(e.transitionGraph[t.FromStoryID][t.ToStoryID], t)

		user, ok := e.users[t.UserID]
		if !ok {
			continue
		}
		user.Sequences = append(user.Sequences, t)
		user.PreferredTransitions[t.FromStoryID] = append(user.PreferredTransitions[t.FromStoryID], TransitionSample{
			ToStoryID: t.ToStoryID,
			MoodDelta: t.MoodDelta,
			Timestamp: t.Timestamp,
		})
		if t.MoodDelta != nil {
			if from, ok := e.stories[t.FromStoryID]; ok {
				if to, ok := e.stories[t.ToStoryID]; ok {
					if user.ThemeTransitions[from.Theme] == nil {
						user.ThemeTransitions[from.Theme] = make(map[string][]DeltaSample)
					}
					user.ThemeTransitions[from.Theme][to.Theme] = append(
						user.ThemeTransitions[from.Theme][to.Theme],
						DeltaSample{Delta: *t.MoodDelta, Timestamp: t.Timestamp},
					)
				}
			}
		}
	}

	e.events = snap.Events
	if e.events == nil {
		e.events = []AnalyticsEvent{}
	}

	e.simMu.Lock()
	e.simCache = make(map[similarityKey]float64)
	e.simMu.Unlock()

	e.logger.Info().
		Int("stories", len(e.stories)).
		Int("users", len(e.users)).
		Int("transitions", len(e.transitions)).
		Int("events", len(e.events)).
		Msg("state restored from snapshot")

	return nil
}

// normalizeRestoredUser fills the nil maps and derived fields JSON decoding
// leaves behind so a restored profile behaves like a live one.
func (e *Engine) normalizeRestoredUser(id string, user *UserProfile) {
	if user.UserID == "" {
		user.UserID = id
	}
	if user.ViewedStories == nil {
		user.ViewedStories = make(map[string]time.Time)
	}
	if user.CompletedStories == nil {
		user.CompletedStories = make(map[string]time.Time)
	}
	if user.FavoritedStories == nil {
		user.FavoritedStories = make(map[string]time.Time)
	}
	if user.ThemeInteractions == nil {
		user.ThemeInteractions = make(map[string][]ThemeSample)
	}
	if user.StoryMoodImpact == nil {
		user.StoryMoodImpact = make(map[string]ImpactSample)
	}
	if user.MoodTrend == "" {
		user.MoodTrend = TrendStable
	}
	user.Sequences = []*StoryTransition{}
	user.PreferredTransitions = make(map[string][]TransitionSample)
	user.ThemeTransitions = make(map[string]map[string][]DeltaSample)
}

// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func mustAddEvent(t *testing.T, e *Engine, event AnalyticsEvent) {
	t.Helper()
	if err := e.AddEvent(event); err != nil {
		t.Fatalf("AddEvent(%s): %v", event.Type, err)
	}
}

func completeEvent(userID, storyID string, at time.Time) AnalyticsEvent {
	return AnalyticsEvent{UserID: userID, Type: EventComplete, Timestamp: at, StoryID: storyID}
}

func viewEvent(userID, storyID string, at time.Time) AnalyticsEvent {
	return AnalyticsEvent{UserID: userID, Type: EventView, Timestamp: at, StoryID: storyID}
}

func moodAfterEvent(userID, storyID string, mood MoodScore, at time.Time) AnalyticsEvent {
	return AnalyticsEvent{UserID: userID, Type: EventMoodAfter, Timestamp: at, StoryID: storyID, MoodScore: moodPtr(mood)}
}

func moodGeneralEvent(userID string, mood MoodScore, at time.Time) AnalyticsEvent {
	return AnalyticsEvent{UserID: userID, Type: EventMoodGeneral, Timestamp: at, MoodScore: moodPtr(mood)}
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "nil config uses defaults", cfg: nil, wantErr: false},
		{name: "valid default config", cfg: DefaultConfig(), wantErr: false},
		{name: "invalid config rejected", cfg: &Config{}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewEngine(tt.cfg, zerolog.Nop())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEngine() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngine_AddStoryUpsert(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	e.AddStory("s1", "Original", "nature", []string{"calm"})

	// Accumulate a mood observation so s1 has derived stats.
	mustAddEvent(t, e, moodGeneralEvent("u1", 5.0, now))
	mustAddEvent(t, e, moodAfterEvent("u1", "s1", 7.0, now.Add(time.Minute)))

	if e.Story("s1").AvgMoodChange == nil {
		t.Fatal("expected derived stats before upsert")
	}

	e.AddStory("s1", "Replaced", "mystery", []string{"dark"})

	story := e.Story("s1")
	if story.Title != "Replaced" || story.Theme != "mystery" {
		t.Errorf("upsert kept old metadata: %+v", story)
	}
	if story.AvgMoodChange != nil || len(story.MoodAssociations) != 0 {
		t.Error("upsert must reset derived statistics")
	}
	if e.StoryCount() != 1 {
		t.Errorf("StoryCount = %d, want 1", e.StoryCount())
	}
}

func TestEngine_AddEventValidation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		event   AnalyticsEvent
		wantErr error
	}{
		{
			name:    "unknown type",
			event:   AnalyticsEvent{UserID: "u1", Type: "teleport", Timestamp: now},
			wantErr: ErrUnknownEventType,
		},
		{
			name:    "view without story",
			event:   AnalyticsEvent{UserID: "u1", Type: EventView, Timestamp: now},
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "mood_general without score",
			event:   AnalyticsEvent{UserID: "u1", Type: EventMoodGeneral, Timestamp: now},
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "mood_after without score",
			event:   AnalyticsEvent{UserID: "u1", Type: EventMoodAfter, Timestamp: now, StoryID: "s1"},
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "slider without position",
			event:   AnalyticsEvent{UserID: "u1", Type: EventSliderPosition, Timestamp: now},
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "missing user",
			event:   AnalyticsEvent{Type: EventView, Timestamp: now, StoryID: "s1"},
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "missing timestamp",
			event:   AnalyticsEvent{UserID: "u1", Type: EventView, StoryID: "s1"},
			wantErr: ErrMalformedEvent,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := e.AddEvent(tt.event)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddEvent() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Rejected events must leave no trace.
	if e.EventCount() != 0 {
		t.Errorf("EventCount = %d after rejections, want 0", e.EventCount())
	}
	if e.UserCount() != 0 {
		t.Errorf("UserCount = %d after rejections, want 0", e.UserCount())
	}
}

func TestEngine_UnknownStoryTolerated(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// No catalog at all; events referencing unknown stories still ingest.
	mustAddEvent(t, e, viewEvent("u1", "ghost", now))
	mustAddEvent(t, e, completeEvent("u1", "ghost", now.Add(time.Minute)))

	if e.EventCount() != 2 {
		t.Errorf("EventCount = %d, want 2", e.EventCount())
	}

	user := e.users["u1"]
	if _, ok := user.ViewedStories["ghost"]; !ok {
		t.Error("view of unknown story not recorded")
	}
	if len(user.ThemeInteractions) != 0 {
		t.Error("theme interaction recorded for unknown story")
	}
}

func TestEngine_SliderPosition(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		position float64
		want     float64
	}{
		{position: 0.7, want: 0.7},
		{position: -0.5, want: 0.0},
		{position: 3.0, want: 1.0},
	}

	for _, tt := range tests {
		mustAddEvent(t, e, AnalyticsEvent{
			UserID: "u1", Type: EventSliderPosition, Timestamp: now, Position: floatPtr(tt.position),
		})
		if got := e.users["u1"].RecommendationMix; got != tt.want {
			t.Errorf("mix after slider %v = %v, want %v", tt.position, got, tt.want)
		}
	}
}

func TestEngine_TransitionCreation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.AddStory("s1", "First", "mystery", nil)
	e.AddStory("s2", "Second", "nature", nil)
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mustAddEvent(t, e, completeEvent("u1", "s1", t0))
	mustAddEvent(t, e, completeEvent("u1", "s2", t0.Add(25*time.Minute)))

	user := e.users["u1"]
	if len(user.Sequences) != 1 {
		t.Fatalf("sequences = %d, want 1", len(user.Sequences))
	}

	tr := user.Sequences[0]
	if tr.FromStoryID != "s1" || tr.ToStoryID != "s2" || tr.UserID != "u1" {
		t.Errorf("transition endpoints wrong: %+v", tr)
	}
	if math.Abs(tr.TimeBetweenMinutes-25) > 1e-9 {
		t.Errorf("TimeBetweenMinutes = %v, want 25", tr.TimeBetweenMinutes)
	}
	if tr.MoodAfter != nil || tr.MoodDelta != nil {
		t.Error("new transition must have open mood-after slot")
	}

	// Shared with the global graph.
	if len(e.transitions) != 1 || e.transitions[0] != tr {
		t.Error("global transition list does not share the user's transition")
	}
	if got := e.transitionGraph["s1"]["s2"]; len(got) != 1 || got[0] != tr {
		t.Error("transition graph does not share the user's transition")
	}
}

func TestEngine_TransitionWindow(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.AddStory("s1", "First", "mystery", nil)
	e.AddStory("s2", "Second", "nature", nil)
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mustAddEvent(t, e, completeEvent("u1", "s1", t0))
	// Just past the 24h default window.
	mustAddEvent(t, e, completeEvent("u1", "s2", t0.Add(1441*time.Minute)))

	if len(e.users["u1"].Sequences) != 0 {
		t.Error("transition created outside the window")
	}

	// The completion still advances the last-completed marker.
	mustAddEvent(t, e, completeEvent("u1", "s1", t0.Add(1500*time.Minute)))
	if len(e.users["u1"].Sequences) != 1 {
		t.Error("transition not created from the post-window completion")
	}
}

func TestEngine_BackfillTransitionMood(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.AddStory("s1", "First", "mystery", nil)
	e.AddStory("s2", "Second", "nature", nil)
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mustAddEvent(t, e, moodGeneralEvent("u1", 6.0, t0.Add(-time.Minute)))
	mustAddEvent(t, e, completeEvent("u1", "s1", t0))
	mustAddEvent(t, e, moodAfterEvent("u1", "s1", 5.0, t0))
	mustAddEvent(t, e, completeEvent("u1", "s2", t0.Add(15*time.Minute)))
	mustAddEvent(t, e, moodAfterEvent("u1", "s2", 7.5, t0.Add(15*time.Minute)))

	user := e.users["u1"]
	if len(user.Sequences) != 1 {
		t.Fatalf("sequences = %d, want 1", len(user.Sequences))
	}
	tr := user.Sequences[0]

	if tr.MoodBefore == nil || *tr.MoodBefore != 5.0 {
		t.Errorf("MoodBefore = %v, want 5.0", tr.MoodBefore)
	}
	if tr.MoodAfter == nil || *tr.MoodAfter != 7.5 {
		t.Errorf("MoodAfter = %v, want 7.5", tr.MoodAfter)
	}
	if tr.MoodDelta == nil || math.Abs(*tr.MoodDelta-2.5) > 1e-9 {
		t.Errorf("MoodDelta = %v, want 2.5", tr.MoodDelta)
	}

	// The from-story index entry was patched in place.
	samples := user.PreferredTransitions["s1"]
	if len(samples) != 1 || samples[0].MoodDelta == nil || *samples[0].MoodDelta != 2.5 {
		t.Errorf("preferred transition not backfilled: %+v", samples)
	}

	// Theme transition recorded at backfill time.
	deltas := user.ThemeTransitions["mystery"]["nature"]
	if len(deltas) != 1 || deltas[0].Delta != 2.5 {
		t.Errorf("theme transition = %+v, want one 2.5 delta", deltas)
	}
}

func TestEngine_BackfillOnlyOnce(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.AddStory("s1", "First", "mystery", nil)
	e.AddStory("s2", "Second", "nature", nil)
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mustAddEvent(t, e, moodGeneralEvent("u1", 6.0, t0.Add(-time.Minute)))
	mustAddEvent(t, e, completeEvent("u1", "s1", t0))
	mustAddEvent(t, e, moodAfterEvent("u1", "s1", 5.0, t0))
	mustAddEvent(t, e, completeEvent("u1", "s2", t0.Add(15*time.Minute)))
	mustAddEvent(t, e, moodAfterEvent("u1", "s2", 7.5, t0.Add(15*time.Minute)))

	// A later unrelated mood report must not touch the closed transition.
	mustAddEvent(t, e, moodAfterEvent("u1", "s2", 2.0, t0.Add(30*time.Minute)))

	tr := e.users["u1"].Sequences[0]
	if tr.MoodAfter == nil || *tr.MoodAfter != 7.5 {
		t.Errorf("closed transition mutated: MoodAfter = %v, want 7.5", tr.MoodAfter)
	}
	if tr.MoodDelta == nil || *tr.MoodDelta != 2.5 {
		t.Errorf("closed transition mutated: MoodDelta = %v, want 2.5", tr.MoodDelta)
	}
}

func TestEngine_MoodAfterWithoutPriorMood(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.AddStory("s1", "First", "mystery", nil)
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// No prior mood: no impact is attributable, but the mood still records.
	mustAddEvent(t, e, moodAfterEvent("u1", "s1", 7.0, t0))

	user := e.users["u1"]
	if len(user.StoryMoodImpact) != 0 {
		t.Error("impact attributed without a prior mood")
	}
	if user.CurrentMood == nil || *user.CurrentMood != 7.0 {
		t.Errorf("CurrentMood = %v, want 7.0", user.CurrentMood)
	}
	if len(e.Story("s1").MoodAssociations) != 0 {
		t.Error("mood association recorded without a prior mood")
	}
}

func TestEngine_StoryMoodStats(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.AddStory("s1", "First", "nature", nil)
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Two observations at the evaluation instant, improvements +2 and +4,
	// both starting in the medium bucket.
	mustAddEvent(t, e, moodGeneralEvent("u1", 5.0, t0))
	mustAddEvent(t, e, moodAfterEvent("u1", "s1", 7.0, t0))
	mustAddEvent(t, e, moodGeneralEvent("u2", 5.0, t0))
	mustAddEvent(t, e, moodAfterEvent("u2", "s1", 9.0, t0))

	story := e.Story("s1")
	if story.AvgMoodChange == nil || math.Abs(*story.AvgMoodChange-3.0) > 1e-9 {
		t.Errorf("AvgMoodChange = %v, want 3.0", story.AvgMoodChange)
	}

	eff, ok := story.MoodEffectiveness[MoodMedium]
	if !ok {
		t.Fatalf("medium bucket missing: %+v", story.MoodEffectiveness)
	}
	if math.Abs(eff-3.0) > 1e-9 {
		t.Errorf("medium effectiveness = %v, want 3.0", eff)
	}
	if len(story.MoodEffectiveness) != 1 {
		t.Errorf("unexpected buckets: %+v", story.MoodEffectiveness)
	}
}

func TestEngine_EndToEndSequence(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.AddStory("s1", "Dark Mystery", "mystery", []string{"thriller"})
	e.AddStory("s2", "Mountain Peace", "nature", []string{"calm"})
	e.AddStory("s3", "Ocean Waves", "nature", []string{"calm"})
	e.AddStory("s4", "Night Cafe", "urban", []string{"cozy"})
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mustAddEvent(t, e, moodGeneralEvent("u1", 6.0, t0.Add(-time.Minute)))
	mustAddEvent(t, e, viewEvent("u1", "s1", t0.Add(-30*time.Second)))
	mustAddEvent(t, e, completeEvent("u1", "s1", t0))
	mustAddEvent(t, e, moodAfterEvent("u1", "s1", 5.0, t0))
	mustAddEvent(t, e, viewEvent("u1", "s2", t0.Add(5*time.Minute)))
	mustAddEvent(t, e, completeEvent("u1", "s2", t0.Add(15*time.Minute)))
	mustAddEvent(t, e, moodAfterEvent("u1", "s2", 7.5, t0.Add(15*time.Minute)))

	// The global best-next table sees the +2.5 delta at full weight because
	// the evaluation instant equals the transition timestamp.
	s1 := e.Story("s1")
	got, ok := s1.BestNextStories["s2"]
	if !ok {
		t.Fatalf("BestNextStories missing s2: %+v", s1.BestNextStories)
	}
	if math.Abs(got-2.5) > 1e-9 {
		t.Errorf("BestNextStories[s2] = %v, want 2.5", got)
	}
	if theme, ok := s1.BestNextThemes["nature"]; !ok || math.Abs(theme-2.5) > 1e-9 {
		t.Errorf("BestNextThemes[nature] = %v, want 2.5", theme)
	}

	// The just-read pair is excluded as recently viewed; the fresh stories
	// fill the list.
	recs := e.GetRecommendations("u1", &Context{CurrentTime: t0.Add(16 * time.Minute)}, 4)
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		seen[r.StoryID] = true
	}
	if seen["s1"] || seen["s2"] {
		t.Errorf("recently viewed stories recommended: %v", recs)
	}
	if !seen["s3"] || !seen["s4"] {
		t.Errorf("fresh stories missing from recommendations: %v", recs)
	}
}

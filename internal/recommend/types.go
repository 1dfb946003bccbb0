// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

import (
	"time"
)

// MoodScore is a self-reported affect score on the conventional [1, 10]
// scale. It is an immutable value; distance between two scores is absolute
// difference.
type MoodScore float64

// DistanceTo returns the absolute difference between two mood scores.
func (m MoodScore) DistanceTo(other MoodScore) float64 {
	d := float64(m) - float64(other)
	if d < 0 {
		return -d
	}
	return d
}

// MoodRange buckets a mood-before value into one of five coarse ranges used
// for per-story effectiveness statistics.
type MoodRange string

const (
	// MoodVeryLow covers mood-before values in [1, 3).
	MoodVeryLow MoodRange = "very_low"
	// MoodLow covers [3, 5).
	MoodLow MoodRange = "low"
	// MoodMedium covers [5, 7).
	MoodMedium MoodRange = "medium"
	// MoodHigh covers [7, 9).
	MoodHigh MoodRange = "high"
	// MoodVeryHigh covers [9, 10].
	MoodVeryHigh MoodRange = "very_high"
)

// RangeFor assigns a mood value to exactly one bucket, checking ranges in
// ascending order.
func RangeFor(v MoodScore) MoodRange {
	switch {
	case v < 3:
		return MoodVeryLow
	case v < 5:
		return MoodLow
	case v < 7:
		return MoodMedium
	case v < 9:
		return MoodHigh
	default:
		return MoodVeryHigh
	}
}

// MoodObservation is a single (mood-before, mood-after) pair recorded against
// a story when a user reported their mood after finishing it.
type MoodObservation struct {
	// Before is the user's mood going into the story.
	Before MoodScore `json:"before"`

	// After is the user's mood after finishing the story.
	After MoodScore `json:"after"`

	// Timestamp is when the after-mood was reported.
	Timestamp time.Time `json:"timestamp"`
}

// Improvement returns the signed mood change (after minus before).
func (o MoodObservation) Improvement() float64 {
	return float64(o.After) - float64(o.Before)
}

// Story is a catalog item plus the derived statistics the aggregation layer
// maintains for it. Derived fields are recomputed, never set by callers.
type Story struct {
	// ID is the unique story identifier.
	ID string `json:"id"`

	// Title is the display title.
	Title string `json:"title"`

	// Theme is the single categorical label (e.g. "mystery").
	Theme string `json:"theme"`

	// Tags is a set of free-form labels. Order is irrelevant for matching
	// but preserved for display.
	Tags []string `json:"tags"`

	// MoodAssociations is the time-ordered list of observed mood changes
	// attributed to this story.
	MoodAssociations []MoodObservation `json:"mood_associations"`

	// AvgMoodChange is the decayed mean improvement across all
	// associations. Nil until the first observation arrives.
	AvgMoodChange *float64 `json:"avg_mood_change"`

	// MoodEffectiveness maps a mood-before bucket to the decayed mean
	// improvement observed for users who started in that bucket.
	MoodEffectiveness map[MoodRange]float64 `json:"mood_effectiveness"`

	// BestNextStories maps a follow-up story ID to the decayed mean mood
	// delta observed when users transitioned into it from this story.
	BestNextStories map[string]float64 `json:"best_next_stories"`

	// BestNextThemes is the same table keyed by the follow-up story's theme.
	BestNextThemes map[string]float64 `json:"best_next_themes"`
}

// NewStory creates a catalog entry with empty derived statistics.
func NewStory(id, title, theme string, tags []string) *Story {
	if tags == nil {
		tags = []string{}
	}
	return &Story{
		ID:                id,
		Title:             title,
		Theme:             theme,
		Tags:              tags,
		MoodAssociations:  []MoodObservation{},
		MoodEffectiveness: make(map[MoodRange]float64),
		BestNextStories:   make(map[string]float64),
		BestNextThemes:    make(map[string]float64),
	}
}

// StoryTransition records that a user completed FromStoryID and then
// ToStoryID within the configured window. MoodAfter and MoodDelta may be
// backfilled exactly once when a later mood report arrives for the
// destination story.
type StoryTransition struct {
	// FromStoryID is the story completed first.
	FromStoryID string `json:"from_story_id"`

	// ToStoryID is the story completed second.
	ToStoryID string `json:"to_story_id"`

	// UserID is the user who made the transition.
	UserID string `json:"user_id"`

	// Timestamp is when the second completion happened.
	Timestamp time.Time `json:"timestamp"`

	// MoodBefore is the most recent mood reported at or before the first
	// completion, if any.
	MoodBefore *MoodScore `json:"mood_before"`

	// MoodAfter is the mood reported after the second story, if any.
	MoodAfter *MoodScore `json:"mood_after"`

	// TimeBetweenMinutes is the gap between the two completions.
	TimeBetweenMinutes float64 `json:"time_between_minutes"`

	// MoodDelta is MoodAfter minus MoodBefore. Non-nil only when both
	// moods are set.
	MoodDelta *float64 `json:"mood_delta"`
}

// computeDelta sets MoodDelta when both endpoint moods are present.
func (t *StoryTransition) computeDelta() {
	if t.MoodBefore != nil && t.MoodAfter != nil {
		d := float64(*t.MoodAfter) - float64(*t.MoodBefore)
		t.MoodDelta = &d
	}
}

// ScoredStory is one entry of a ranked recommendation list.
type ScoredStory struct {
	// StoryID is the recommended story.
	StoryID string `json:"story_id"`

	// Score is the blended relevance score. Scores are comparable only
	// within a single ranking call.
	Score float64 `json:"score"`
}

// Context carries optional per-call overrides for a scoring request.
type Context struct {
	// CurrentMood overrides the profile's current mood for this call only.
	CurrentMood *MoodScore

	// PromotionalTags is a set of tags that earn a flat promotional boost.
	PromotionalTags []string

	// CurrentTime is the evaluation instant for all decay computations.
	// Zero means time.Now().
	CurrentTime time.Time
}

// evaluationTime resolves the explicit clock, falling back to the wall clock.
func (c *Context) evaluationTime() time.Time {
	if c != nil && !c.CurrentTime.IsZero() {
		return c.CurrentTime
	}
	return time.Now()
}

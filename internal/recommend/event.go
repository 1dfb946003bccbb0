// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

import (
	"errors"
	"fmt"
	"time"
)

// EventType classifies a user-interaction event.
type EventType string

const (
	// EventView records that a user opened a story.
	EventView EventType = "view"
	// EventComplete records that a user finished a story.
	EventComplete EventType = "complete"
	// EventMoodGeneral is a standalone mood report.
	EventMoodGeneral EventType = "mood_general"
	// EventMoodAfter is a mood report tied to a just-finished story.
	EventMoodAfter EventType = "mood_after"
	// EventFavorite records that a user favorited a story.
	EventFavorite EventType = "favorite"
	// EventSearch records a catalog search, optionally theme-scoped.
	EventSearch EventType = "search"
	// EventSliderPosition records a move of the personal/collaborative
	// recommendation-mix slider.
	EventSliderPosition EventType = "slider_position"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventView, EventComplete, EventMoodGeneral, EventMoodAfter,
		EventFavorite, EventSearch, EventSliderPosition:
		return true
	default:
		return false
	}
}

// Ingestion rejection reasons. Rejected events leave engine state untouched.
var (
	// ErrUnknownEventType is returned for an unrecognized event type.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrMalformedEvent is returned when a required payload field for the
	// event's type is missing.
	ErrMalformedEvent = errors.New("malformed event payload")
)

// AnalyticsEvent is one immutable user-interaction event. The payload fields
// required depend on Type; Validate enforces the table exhaustively. Events
// are retained in an append-only log for replay and audit.
type AnalyticsEvent struct {
	// UserID identifies the acting user. A profile is created lazily on
	// the first event for an unseen user.
	UserID string `json:"user_id"`

	// Type is the event discriminator.
	Type EventType `json:"event_type"`

	// Timestamp is when the interaction occurred. Events for one user must
	// arrive in non-decreasing timestamp order.
	Timestamp time.Time `json:"timestamp"`

	// StoryID is required for view, complete, mood_after and favorite.
	StoryID string `json:"story_id,omitempty"`

	// MoodScore is required for mood_general and mood_after.
	MoodScore *MoodScore `json:"mood_score,omitempty"`

	// Theme is optional for search events.
	Theme string `json:"theme,omitempty"`

	// Position is required for slider_position; clamped to [0, 1] on
	// ingestion.
	Position *float64 `json:"position,omitempty"`
}

// Validate checks that the event carries the payload its type requires.
func (e *AnalyticsEvent) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrMalformedEvent)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedEvent)
	}

	switch e.Type {
	case EventView, EventComplete, EventFavorite:
		if e.StoryID == "" {
			return fmt.Errorf("%w: %s requires story_id", ErrMalformedEvent, e.Type)
		}
	case EventMoodAfter:
		if e.StoryID == "" {
			return fmt.Errorf("%w: mood_after requires story_id", ErrMalformedEvent)
		}
		if e.MoodScore == nil {
			return fmt.Errorf("%w: mood_after requires mood_score", ErrMalformedEvent)
		}
	case EventMoodGeneral:
		if e.MoodScore == nil {
			return fmt.Errorf("%w: mood_general requires mood_score", ErrMalformedEvent)
		}
	case EventSearch:
		// Theme is optional; a theme-less search is a no-op.
	case EventSliderPosition:
		if e.Position == nil {
			return fmt.Errorf("%w: slider_position requires position", ErrMalformedEvent)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}

	return nil
}

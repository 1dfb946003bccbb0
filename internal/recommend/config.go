// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

import (
	"fmt"
)

// Config contains all tunables for the recommendation engine.
type Config struct {
	// EventHalfLifeDays is the half-life applied to interaction samples
	// (views, completions, favorites, searches, theme interactions).
	// Default: 30.
	EventHalfLifeDays float64 `json:"event_half_life_days"`

	// MoodHalfLifeDays is the half-life applied to mood observations and
	// transition mood deltas. Default: 14.
	MoodHalfLifeDays float64 `json:"mood_half_life_days"`

	// TransitionWindowMinutes is the maximum gap between two completions
	// for them to count as a sequence. Default: 1440 (24 hours).
	TransitionWindowMinutes float64 `json:"transition_window_minutes"`

	// AvoidedThemeThreshold marks themes with a decayed score below it as
	// avoided. Default: -1.0.
	AvoidedThemeThreshold float64 `json:"avoided_theme_threshold"`

	// PreferredThemeThreshold marks themes with a decayed score above it
	// as preferred. Default: 1.0.
	PreferredThemeThreshold float64 `json:"preferred_theme_threshold"`

	// Weights defines the relative contribution of each scoring signal.
	// The defaults are hand-tuned constants, not learned.
	Weights SignalWeights `json:"weights"`

	// DefaultN is the number of recommendations returned when the caller
	// does not ask for a specific count. Default: 10.
	DefaultN int `json:"default_n"`

	// MaxN caps the recommendation list length. Default: 100.
	MaxN int `json:"max_n"`
}

// SignalWeights defines the multiplier for each scoring signal. Individual
// signals are additionally scaled by (1 - recommendation_mix) and
// collaborative signals by recommendation_mix at scoring time.
type SignalWeights struct {
	// MoodMatch scales the mood-matching signal (individual).
	MoodMatch float64 `json:"mood_match"`

	// Sequence scales the sequence-continuation signal (individual). This
	// is the dominant signal by default.
	Sequence float64 `json:"sequence"`

	// PersonalImpact scales the user's own observed mood impact for the
	// candidate story (individual).
	PersonalImpact float64 `json:"personal_impact"`

	// ThemePreference scales the decayed theme score (individual).
	ThemePreference float64 `json:"theme_preference"`

	// ContentSimilarity scales similarity to completed/favorited stories
	// (individual).
	ContentSimilarity float64 `json:"content_similarity"`

	// FavoritesSimilarity scales similarity to favorited stories only
	// (individual).
	FavoritesSimilarity float64 `json:"favorites_similarity"`

	// Collaborative scales cross-user filtering (collaborative).
	Collaborative float64 `json:"collaborative"`

	// CollaborativeSequence scales other users' transition outcomes from
	// the same origin story (collaborative).
	CollaborativeSequence float64 `json:"collaborative_sequence"`

	// Popularity scales the decayed global completion/favorite rate
	// (collaborative).
	Popularity float64 `json:"popularity"`

	// PromotionalBoost is the flat bonus for a promotional-tag match,
	// unscaled by the mix.
	PromotionalBoost float64 `json:"promotional_boost"`

	// NoveltyBonus is the flat bonus for a never-viewed story, unscaled by
	// the mix.
	NoveltyBonus float64 `json:"novelty_bonus"`

	// AvoidedThemePenalty is the flat deduction when the candidate's theme
	// is in the user's avoided set.
	AvoidedThemePenalty float64 `json:"avoided_theme_penalty"`
}

// DefaultConfig returns the hand-tuned production defaults.
func DefaultConfig() *Config {
	return &Config{
		EventHalfLifeDays:       30.0,
		MoodHalfLifeDays:        14.0,
		TransitionWindowMinutes: 1440.0,
		AvoidedThemeThreshold:   -1.0,
		PreferredThemeThreshold: 1.0,
		Weights: SignalWeights{
			MoodMatch:             1.0,
			Sequence:              4.0,
			PersonalImpact:        2.5,
			ThemePreference:       1.5,
			ContentSimilarity:     2.0,
			FavoritesSimilarity:   2.0,
			Collaborative:         3.0,
			CollaborativeSequence: 3.5,
			Popularity:            2.0,
			PromotionalBoost:      1.5,
			NoveltyBonus:          0.5,
			AvoidedThemePenalty:   5.0,
		},
		DefaultN: 10,
		MaxN:     100,
	}
}

// Validate checks the configuration for contract violations. Half-life and
// window values of zero or less would make the decay math divide by zero, so
// they fail here rather than at scoring time.
func (c *Config) Validate() error {
	if c.EventHalfLifeDays <= 0 {
		return fmt.Errorf("event_half_life_days must be positive, got %f", c.EventHalfLifeDays)
	}
	if c.MoodHalfLifeDays <= 0 {
		return fmt.Errorf("mood_half_life_days must be positive, got %f", c.MoodHalfLifeDays)
	}
	if c.TransitionWindowMinutes <= 0 {
		return fmt.Errorf("transition_window_minutes must be positive, got %f", c.TransitionWindowMinutes)
	}
	if c.PreferredThemeThreshold < c.AvoidedThemeThreshold {
		return fmt.Errorf("preferred_theme_threshold must be >= avoided_theme_threshold, got %f < %f",
			c.PreferredThemeThreshold, c.AvoidedThemeThreshold)
	}
	if c.DefaultN < 1 {
		return fmt.Errorf("default_n must be positive, got %d", c.DefaultN)
	}
	if c.MaxN < c.DefaultN {
		return fmt.Errorf("max_n must be >= default_n, got %d < %d", c.MaxN, c.DefaultN)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	// All fields are value types.
	clone := *c
	return &clone
}

// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

import (
	"math"
	"sort"
	"time"
)

// MoodTrend is a coarse classification of the slope of a user's recent mood
// samples.
type MoodTrend string

const (
	// TrendImproving means the fitted slope exceeds +0.2 per sample.
	TrendImproving MoodTrend = "improving"
	// TrendDeclining means the fitted slope is below -0.2 per sample.
	TrendDeclining MoodTrend = "declining"
	// TrendStable covers everything in between, and users with fewer than
	// three mood samples.
	TrendStable MoodTrend = "stable"
)

// trendWindow is how many recent mood samples feed the trend fit.
const trendWindow = 10

// ThemeSample is one signed theme-interaction observation.
type ThemeSample struct {
	// Weight is the signed interaction weight (0.1 view, 0.5 search,
	// 1.0 complete, 2.0 favorite, 0.5x mood improvement).
	Weight float64 `json:"weight"`

	// Timestamp is when the interaction occurred.
	Timestamp time.Time `json:"timestamp"`
}

// MoodSample is one entry of a user's mood history.
type MoodSample struct {
	Timestamp time.Time `json:"timestamp"`
	Score     MoodScore `json:"score"`
}

// ImpactSample is the most recent observed mood impact of one story on one
// user.
type ImpactSample struct {
	// Delta is the signed mood change attributed to the story.
	Delta float64 `json:"delta"`

	// Timestamp is when the impact was observed.
	Timestamp time.Time `json:"timestamp"`
}

// StoryView is one entry of a user's view history, newest last.
type StoryView struct {
	Timestamp time.Time `json:"timestamp"`
	StoryID   string    `json:"story_id"`
}

// TransitionSample is one entry of a user's from-story transition index.
// MoodDelta is backfilled in place when a matching mood report arrives.
type TransitionSample struct {
	ToStoryID string     `json:"to_story_id"`
	MoodDelta *float64   `json:"mood_delta"`
	Timestamp time.Time  `json:"timestamp"`
}

// DeltaSample is one mood delta observation in the theme-transition index.
type DeltaSample struct {
	Delta     float64   `json:"delta"`
	Timestamp time.Time `json:"timestamp"`
}

// UserProfile holds one user's interaction history, affect state and derived
// preference statistics. Profiles are created lazily on the first event for
// an unseen user and live until a snapshot restore replaces them.
type UserProfile struct {
	// UserID is the unique user identifier.
	UserID string `json:"user_id"`

	// ViewedStories maps story ID to the latest view timestamp.
	ViewedStories map[string]time.Time `json:"viewed_stories"`

	// CompletedStories maps story ID to the latest completion timestamp.
	CompletedStories map[string]time.Time `json:"completed_stories"`

	// FavoritedStories maps story ID to the favorite timestamp.
	FavoritedStories map[string]time.Time `json:"favorited_stories"`

	// ThemeInteractions maps theme to its signed interaction samples.
	ThemeInteractions map[string][]ThemeSample `json:"theme_interactions"`

	// MoodHistory is the full ordered mood history.
	MoodHistory []MoodSample `json:"mood_history"`

	// CurrentMood is the latest reported mood, nil before the first report.
	CurrentMood *MoodScore `json:"current_mood"`

	// StoryMoodImpact maps story ID to the most recent observed impact of
	// that story on this user.
	StoryMoodImpact map[string]ImpactSample `json:"story_mood_impact"`

	// RecentStoryViews is the ordered view log, newest last. The last ten
	// entries are excluded from recommendation candidates.
	RecentStoryViews []StoryView `json:"recent_story_views"`

	// RecommendationMix balances individual (0) against collaborative (1)
	// scoring. Always clamped to [0, 1].
	RecommendationMix float64 `json:"recommendation_mix"`

	// MoodTrend is the derived trend classification.
	MoodTrend MoodTrend `json:"mood_trend"`

	// MoodVolatility is the sample standard deviation of the recent mood
	// window.
	MoodVolatility float64 `json:"mood_volatility"`

	// Sequences is the user's own transition list, oldest first. Entries
	// are shared with the engine's global transition list so a backfill
	// mutates both views. Reconstructed from the global list on snapshot
	// load to keep that sharing, never persisted.
	Sequences []*StoryTransition `json:"-"`

	// PreferredTransitions indexes Sequences by origin story.
	// Reconstructed from Sequences on snapshot load, never persisted.
	PreferredTransitions map[string][]TransitionSample `json:"-"`

	// ThemeTransitions indexes observed mood deltas by (from-theme,
	// to-theme). Reconstructed on snapshot load, never persisted.
	ThemeTransitions map[string]map[string][]DeltaSample `json:"-"`

	// LastCompletedStory is the most recently completed story ID, empty
	// before the first completion.
	LastCompletedStory string `json:"last_completed_story"`

	// LastCompletedAt is when LastCompletedStory was completed.
	LastCompletedAt time.Time `json:"last_completed_at"`
}

// NewUserProfile creates an empty profile with a balanced recommendation mix.
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:               userID,
		ViewedStories:        make(map[string]time.Time),
		CompletedStories:     make(map[string]time.Time),
		FavoritedStories:     make(map[string]time.Time),
		ThemeInteractions:    make(map[string][]ThemeSample),
		MoodHistory:          []MoodSample{},
		StoryMoodImpact:      make(map[string]ImpactSample),
		RecentStoryViews:     []StoryView{},
		RecommendationMix:    0.5,
		MoodTrend:            TrendStable,
		Sequences:            []*StoryTransition{},
		PreferredTransitions: make(map[string][]TransitionSample),
		ThemeTransitions:     make(map[string]map[string][]DeltaSample),
	}
}

// recordThemeInteraction appends one signed theme sample.
func (u *UserProfile) recordThemeInteraction(theme string, weight float64, at time.Time) {
	u.ThemeInteractions[theme] = append(u.ThemeInteractions[theme], ThemeSample{
		Weight:    weight,
		Timestamp: at,
	})
}

// DecayedThemeScores sums each theme's interaction samples weighted by
// half-life decay at the given evaluation instant.
func (u *UserProfile) DecayedThemeScores(now time.Time, halfLifeDays float64) map[string]float64 {
	scores := make(map[string]float64, len(u.ThemeInteractions))
	for theme, samples := range u.ThemeInteractions {
		total := 0.0
		for _, s := range samples {
			total += s.Weight * DecayAt(now, s.Timestamp, halfLifeDays)
		}
		scores[theme] = total
	}
	return scores
}

// AvoidedThemes returns themes whose decayed score is below the threshold.
func (u *UserProfile) AvoidedThemes(now time.Time, halfLifeDays, threshold float64) map[string]struct{} {
	avoided := make(map[string]struct{})
	for theme, score := range u.DecayedThemeScores(now, halfLifeDays) {
		if score < threshold {
			avoided[theme] = struct{}{}
		}
	}
	return avoided
}

// PreferredThemes returns themes whose decayed score is above the threshold.
func (u *UserProfile) PreferredThemes(now time.Time, halfLifeDays, threshold float64) []string {
	var preferred []string
	for theme, score := range u.DecayedThemeScores(now, halfLifeDays) {
		if score > threshold {
			preferred = append(preferred, theme)
		}
	}
	sort.Strings(preferred)
	return preferred
}

// updateMoodTrajectory refits trend and volatility from the last trendWindow
// mood samples. Fewer than three samples yields a stable trend and zero
// volatility.
func (u *UserProfile) updateMoodTrajectory() {
	if len(u.MoodHistory) < 3 {
		u.MoodTrend = TrendStable
		u.MoodVolatility = 0
		return
	}

	recent := u.MoodHistory
	if len(recent) > trendWindow {
		recent = recent[len(recent)-trendWindow:]
	}

	values := make([]float64, len(recent))
	for i, s := range recent {
		values[i] = float64(s.Score)
	}

	slope := leastSquaresSlope(values)
	switch {
	case slope > 0.2:
		u.MoodTrend = TrendImproving
	case slope < -0.2:
		u.MoodTrend = TrendDeclining
	default:
		u.MoodTrend = TrendStable
	}

	u.MoodVolatility = stdDev(values)
}

// recordMood appends a mood report and refreshes the derived trajectory.
func (u *UserProfile) recordMood(score MoodScore, at time.Time) {
	u.CurrentMood = &score
	u.MoodHistory = append(u.MoodHistory, MoodSample{Timestamp: at, Score: score})
	u.updateMoodTrajectory()
}

// RecentStoryPath returns the user's last n completed story IDs ordered
// oldest first, using each story's latest completion timestamp.
func (u *UserProfile) RecentStoryPath(n int) []string {
	type completion struct {
		storyID string
		at      time.Time
	}

	completions := make([]completion, 0, len(u.CompletedStories))
	for id, at := range u.CompletedStories {
		completions = append(completions, completion{storyID: id, at: at})
	}

	sort.Slice(completions, func(i, j int) bool {
		if completions[i].at.Equal(completions[j].at) {
			return completions[i].storyID < completions[j].storyID
		}
		return completions[i].at.Before(completions[j].at)
	})

	if len(completions) > n {
		completions = completions[len(completions)-n:]
	}

	path := make([]string, len(completions))
	for i, c := range completions {
		path[i] = c.storyID
	}
	return path
}

// recentViewSet returns the story IDs of the user's last n views.
func (u *UserProfile) recentViewSet(n int) map[string]struct{} {
	views := u.RecentStoryViews
	if len(views) > n {
		views = views[len(views)-n:]
	}
	set := make(map[string]struct{}, len(views))
	for _, v := range views {
		set[v.StoryID] = struct{}{}
	}
	return set
}

// moodAtOrBefore returns the most recent mood reported at or before the given
// instant, or nil if none exists.
func (u *UserProfile) moodAtOrBefore(at time.Time) *MoodScore {
	for i := len(u.MoodHistory) - 1; i >= 0; i-- {
		if !u.MoodHistory[i].Timestamp.After(at) {
			score := u.MoodHistory[i].Score
			return &score
		}
	}
	return nil
}

// leastSquaresSlope fits y = a + b*i over sample index i and returns b.
func leastSquaresSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// stdDev returns the population standard deviation of the samples.
func stdDev(values []float64) float64 {
	n := float64(len(values))
	if n == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / n)
}

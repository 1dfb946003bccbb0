// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

import (
	"sort"
	"time"
)

// recentViewExclusion is how many of the user's most recent views are excluded
// from the candidate set.
const recentViewExclusion = 10

// Inner weights of the sequence-continuation signal, applied before the outer
// SignalWeights.Sequence multiplier.
const (
	personalTransitionWeight = 3.0
	globalBestNextWeight     = 2.5
	personalThemeWeight      = 2.0
	globalThemeWeight        = 1.5
	pathContinuationWeight   = 2.0

	// recencyBoostWindowMinutes bounds the post-completion window in which
	// the whole sequence score is multiplied up, by at most half again.
	recencyBoostWindowMinutes = 60.0
	recencyBoostMax           = 0.5
)

// Inner weights of the mood-match signal.
const (
	bucketEffectivenessWeight = 3.0
	moodSimilarityWeight      = 2.0
	decliningTrendWeight      = 2.0
	improvingTrendWeight      = 1.5

	// volatilityThreshold and volatilityLiftMin gate the flat bonus for
	// volatile users offered a reliably uplifting story.
	volatilityThreshold = 1.5
	volatilityLiftMin   = 1.0
	volatilityBonus     = 1.0
)

// normalizeDelta maps a signed mood delta in [-5, 5] into [0, 1].
func normalizeDelta(delta float64) float64 {
	return (delta + 5.0) / 10.0
}

// GetRecommendations ranks the catalog for a user and returns the top n
// scored stories, highest first, ties broken by ascending story ID so equal
// inputs always produce identical output. n of zero or less selects the
// configured default; n above the configured maximum is capped.
//
// This is a pure read: an unknown user is scored against an empty ephemeral
// profile without creating one, and a mood override in rctx applies to this
// call only. The user's last ten viewed stories are excluded from the
// candidate set.
func (e *Engine) GetRecommendations(userID string, rctx *Context, n int) []ScoredStory {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch {
	case n <= 0:
		n = e.config.DefaultN
	case n > e.config.MaxN:
		n = e.config.MaxN
	}

	now := rctx.evaluationTime()

	user, ok := e.users[userID]
	if !ok {
		user = NewUserProfile(userID)
	}
	if rctx != nil && rctx.CurrentMood != nil {
		// Shallow working copy so the override never touches stored state.
		override := *user
		override.CurrentMood = rctx.CurrentMood
		user = &override
	}

	excluded := user.recentViewSet(recentViewExclusion)

	scored := make([]ScoredStory, 0, len(e.stories))
	for id, story := range e.stories {
		if _, skip := excluded[id]; skip {
			continue
		}
		scored = append(scored, ScoredStory{
			StoryID: id,
			Score:   e.scoreStory(user, story, rctx, now),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score == scored[j].Score {
			return scored[i].StoryID < scored[j].StoryID
		}
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

// scoreStory blends all signals for one candidate. Individual signals scale
// by (1 - mix), collaborative ones by mix; inside the strictly blended zone
// (0.1, 0.9) both sides are floored at 0.2 so neither family is ever fully
// suppressed. Promotional, novelty and avoided-theme adjustments are flat.
func (e *Engine) scoreStory(user *UserProfile, story *Story, rctx *Context, now time.Time) float64 {
	w := e.config.Weights

	mix := user.RecommendationMix
	individual := 1.0 - mix
	collaborative := mix
	if mix > 0.1 && mix < 0.9 {
		if individual < 0.2 {
			individual = 0.2
		}
		if collaborative < 0.2 {
			collaborative = 0.2
		}
	}

	score := 0.0

	if user.CurrentMood != nil {
		score += e.moodMatchScore(user, story, now) * w.MoodMatch * individual
	}

	if user.LastCompletedStory != "" {
		score += e.sequenceScore(user, story, now) * w.Sequence * individual
	}

	if impact, ok := user.StoryMoodImpact[story.ID]; ok {
		decay := DecayAt(now, impact.Timestamp, e.config.MoodHalfLifeDays)
		score += normalizeDelta(impact.Delta) * w.PersonalImpact * decay * individual
	}

	themeScores := user.DecayedThemeScores(now, e.config.EventHalfLifeDays)
	score += themeScores[story.Theme] * w.ThemePreference * individual

	if themeScores[story.Theme] < e.config.AvoidedThemeThreshold {
		score -= w.AvoidedThemePenalty
	}

	score += e.contentScore(user, story, now) * w.ContentSimilarity * individual
	score += e.favoritesScore(user, story, now) * w.FavoritesSimilarity * individual

	score += e.collaborativeScore(user, story, now) * w.Collaborative * collaborative
	score += e.collaborativeSequenceScore(user, story, now) * w.CollaborativeSequence * collaborative
	score += e.popularityScore(story, now) * w.Popularity * collaborative

	if rctx != nil && len(rctx.PromotionalTags) > 0 {
		promo := make(map[string]struct{}, len(rctx.PromotionalTags))
		for _, tag := range rctx.PromotionalTags {
			promo[tag] = struct{}{}
		}
		for _, tag := range story.Tags {
			if _, ok := promo[tag]; ok {
				score += w.PromotionalBoost
				break
			}
		}
	}

	if _, viewed := user.ViewedStories[story.ID]; !viewed {
		score += w.NoveltyBonus
	}

	return score
}

// moodMatchScore matches the candidate against the user's current mood using
// the story's observation history. Stories with no mood observations score
// zero regardless of trend or volatility.
func (e *Engine) moodMatchScore(user *UserProfile, story *Story, now time.Time) float64 {
	if user.CurrentMood == nil || len(story.MoodAssociations) == 0 {
		return 0
	}

	current := *user.CurrentMood
	total := 0.0

	if effectiveness, ok := story.MoodEffectiveness[RangeFor(current)]; ok {
		total += normalizeDelta(effectiveness) * bucketEffectivenessWeight
	}

	// Decay-weighted average of how well the story served users who started
	// near the current mood, amplified by the improvement they reported.
	var weightedSum, weightSum float64
	for _, obs := range story.MoodAssociations {
		similarity := 1.0 - current.DistanceTo(obs.Before)/9.0
		combined := similarity * (1.0 + obs.Improvement()/5.0)
		decay := DecayAt(now, obs.Timestamp, e.config.MoodHalfLifeDays)
		weightedSum += combined * decay
		weightSum += decay
	}
	if weightSum > 0 {
		total += (weightedSum / weightSum) * moodSimilarityWeight
	}

	if story.AvgMoodChange != nil {
		avg := *story.AvgMoodChange
		switch user.MoodTrend {
		case TrendDeclining:
			if avg > 0 {
				total += avg * decliningTrendWeight
			}
		case TrendImproving:
			if avg > 0 {
				total += avg * improvingTrendWeight
			}
		case TrendStable:
			total += normalizeDelta(avg)
		}

		if user.MoodVolatility > volatilityThreshold && avg > volatilityLiftMin {
			total += volatilityBonus
		}
	}

	return total
}

// sequenceScore rates how well the candidate continues from the user's last
// completed story, blending personal history, global per-story and per-theme
// outcomes and 3-story path continuations. A completion within the last hour
// multiplies the whole score by up to 1.5.
func (e *Engine) sequenceScore(user *UserProfile, candidate *Story, now time.Time) float64 {
	lastStory, ok := e.stories[user.LastCompletedStory]
	if !ok {
		return 0
	}

	total := 0.0

	for _, sample := range user.PreferredTransitions[user.LastCompletedStory] {
		if sample.ToStoryID != candidate.ID || sample.MoodDelta == nil {
			continue
		}
		decay := DecayAt(now, sample.Timestamp, e.config.MoodHalfLifeDays)
		total += normalizeDelta(*sample.MoodDelta) * personalTransitionWeight * decay
	}

	if avgEffect, ok := lastStory.BestNextStories[candidate.ID]; ok {
		total += normalizeDelta(avgEffect) * globalBestNextWeight
	}

	if deltas := user.ThemeTransitions[lastStory.Theme][candidate.Theme]; len(deltas) > 0 {
		decayed := make([]float64, len(deltas))
		for i, d := range deltas {
			decayed[i] = d.Delta * DecayAt(now, d.Timestamp, e.config.MoodHalfLifeDays)
		}
		total += normalizeDelta(mean(decayed)) * personalThemeWeight
	}

	if avgEffect, ok := lastStory.BestNextThemes[candidate.Theme]; ok {
		total += normalizeDelta(avgEffect) * globalThemeWeight
	}

	if path := user.RecentStoryPath(2); len(path) == 2 {
		total += e.pathContinuationScore(path, candidate.ID, now)
	}

	if !user.LastCompletedAt.IsZero() {
		minutesSince := minutesBetween(user.LastCompletedAt, now)
		if minutesSince < recencyBoostWindowMinutes {
			boost := 1.0 - minutesSince/recencyBoostWindowMinutes
			total *= 1.0 + boost*recencyBoostMax
		}
	}

	return total
}

// pathContinuationScore looks for users whose last three completions were
// exactly the given two-story path followed by the candidate, and averages
// the decayed mood deltas of their final transition.
func (e *Engine) pathContinuationScore(path []string, candidateID string, now time.Time) float64 {
	var outcomes []float64

	for _, other := range e.users {
		otherPath := other.RecentStoryPath(len(path) + 1)
		if len(otherPath) != len(path)+1 || !pathPrefixMatches(otherPath, path) {
			continue
		}

		next := otherPath[len(otherPath)-1]
		if next != candidateID {
			continue
		}

		for _, sample := range other.PreferredTransitions[path[len(path)-1]] {
			if sample.ToStoryID != next || sample.MoodDelta == nil {
				continue
			}
			decay := DecayAt(now, sample.Timestamp, e.config.MoodHalfLifeDays)
			outcomes = append(outcomes, *sample.MoodDelta*decay)
		}
	}

	if len(outcomes) == 0 {
		return 0
	}
	return normalizeDelta(mean(outcomes)) * pathContinuationWeight
}

// pathPrefixMatches reports whether full begins with prefix.
func pathPrefixMatches(full, prefix []string) bool {
	if len(full) < len(prefix) {
		return false
	}
	for i, id := range prefix {
		if full[i] != id {
			return false
		}
	}
	return true
}

// collaborativeSequenceScore averages the decayed mood deltas other users saw
// when they followed the user's last completed story with the candidate.
func (e *Engine) collaborativeSequenceScore(user *UserProfile, candidate *Story, now time.Time) float64 {
	if user.LastCompletedStory == "" {
		return 0
	}

	var outcomes []float64
	for _, other := range e.users {
		if other.UserID == user.UserID {
			continue
		}
		for _, sample := range other.PreferredTransitions[user.LastCompletedStory] {
			if sample.ToStoryID != candidate.ID || sample.MoodDelta == nil {
				continue
			}
			decay := DecayAt(now, sample.Timestamp, e.config.MoodHalfLifeDays)
			outcomes = append(outcomes, *sample.MoodDelta*decay)
		}
	}

	if len(outcomes) == 0 {
		return 0
	}
	return normalizeDelta(mean(outcomes))
}

// collaborativeScore is a user-user filtering signal: for every other user,
// compute a decay-weighted Jaccard similarity over liked stories (completed
// or favorited), and when that user liked the candidate, weight their
// similarity by how recently they did. The best such neighbour wins.
func (e *Engine) collaborativeScore(user *UserProfile, candidate *Story, now time.Time) float64 {
	if len(user.CompletedStories) == 0 && len(user.FavoritedStories) == 0 {
		return 0
	}

	liked := e.likedWithDecay(user, now)

	best := 0.0
	for _, other := range e.users {
		if other.UserID == user.UserID {
			continue
		}

		otherLiked := e.likedWithDecay(other, now)
		if len(otherLiked) == 0 && len(liked) == 0 {
			continue
		}

		var intersectionWeight float64
		union := len(otherLiked)
		for id, weight := range liked {
			otherWeight, shared := otherLiked[id]
			if shared {
				if otherWeight < weight {
					intersectionWeight += otherWeight
				} else {
					intersectionWeight += weight
				}
			} else {
				union++
			}
		}
		if union == 0 {
			continue
		}
		similarity := intersectionWeight / float64(union)

		if recency, ok := otherLiked[candidate.ID]; ok {
			if s := similarity * recency; s > best {
				best = s
			}
		}
	}

	return best
}

// likedWithDecay maps each story the user completed or favorited to its decay
// weight at now. A story both completed and favorited keeps the favorite
// timestamp.
func (e *Engine) likedWithDecay(user *UserProfile, now time.Time) map[string]float64 {
	liked := make(map[string]float64, len(user.CompletedStories)+len(user.FavoritedStories))
	for id, at := range user.CompletedStories {
		liked[id] = DecayAt(now, at, e.config.EventHalfLifeDays)
	}
	for id, at := range user.FavoritedStories {
		liked[id] = DecayAt(now, at, e.config.EventHalfLifeDays)
	}
	return liked
}

// popularityScore is the decayed global completion and favorite rate of the
// candidate, favorites counting half again as much, normalized by the user
// population.
func (e *Engine) popularityScore(candidate *Story, now time.Time) float64 {
	var completions, favorites float64

	for _, u := range e.users {
		if at, ok := u.CompletedStories[candidate.ID]; ok {
			completions += DecayAt(now, at, e.config.EventHalfLifeDays)
		}
		if at, ok := u.FavoritedStories[candidate.ID]; ok {
			favorites += DecayAt(now, at, e.config.EventHalfLifeDays) * 1.5
		}
	}

	population := len(e.users)
	if population == 0 {
		population = 1
	}
	return (completions + favorites) / float64(population)
}

// contentScore is the best decayed similarity between the candidate and any
// story the user completed or favorited.
func (e *Engine) contentScore(user *UserProfile, candidate *Story, now time.Time) float64 {
	best := 0.0
	for id, weight := range e.likedWithDecay(user, now) {
		if _, ok := e.stories[id]; !ok {
			continue
		}
		if s := e.storySimilarity(candidate.ID, id) * weight; s > best {
			best = s
		}
	}
	return best
}

// favoritesScore is the best decayed similarity between the candidate and any
// favorited story.
func (e *Engine) favoritesScore(user *UserProfile, candidate *Story, now time.Time) float64 {
	best := 0.0
	for id, at := range user.FavoritedStories {
		if _, ok := e.stories[id]; !ok {
			continue
		}
		decay := DecayAt(now, at, e.config.EventHalfLifeDays)
		if s := e.storySimilarity(candidate.ID, id) * decay; s > best {
			best = s
		}
	}
	return best
}

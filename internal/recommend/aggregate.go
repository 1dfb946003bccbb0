// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

import "time"

// updateStoryMoodStats recomputes a story's average mood change and per-bucket
// effectiveness from its mood observations, decayed at the given instant.
//
// The average is a decay-weighted mean. The per-bucket effectiveness is the
// plain mean of the decayed improvements, so older observations pull a bucket
// toward zero instead of merely losing weight. Buckets without observations
// are omitted entirely rather than reported as zero.
// Must be called with mu held.
func (e *Engine) updateStoryMoodStats(story *Story, now time.Time) {
	if len(story.MoodAssociations) == 0 {
		story.AvgMoodChange = nil
		story.MoodEffectiveness = make(map[MoodRange]float64)
		return
	}

	var weightedSum, weightSum float64
	buckets := make(map[MoodRange][]float64)

	for _, obs := range story.MoodAssociations {
		decay := DecayAt(now, obs.Timestamp, e.config.MoodHalfLifeDays)
		improvement := obs.Improvement()

		weightedSum += improvement * decay
		weightSum += decay

		bucket := RangeFor(obs.Before)
		buckets[bucket] = append(buckets[bucket], improvement*decay)
	}

	if weightSum > 0 {
		avg := weightedSum / weightSum
		story.AvgMoodChange = &avg
	} else {
		story.AvgMoodChange = nil
	}

	effectiveness := make(map[MoodRange]float64, len(buckets))
	for bucket, values := range buckets {
		effectiveness[bucket] = mean(values)
	}
	story.MoodEffectiveness = effectiveness
}

// updateTransitionStats recomputes the origin story's best-next maps from
// every user's transitions out of it, decayed at the given instant.
// Transitions whose mood delta is still open are skipped. Destinations or
// themes with no closed transitions are omitted, not zeroed.
// Must be called with mu held.
func (e *Engine) updateTransitionStats(fromStoryID string, now time.Time) {
	story, ok := e.stories[fromStoryID]
	if !ok {
		return
	}

	byStory := make(map[string][]float64)
	byTheme := make(map[string][]float64)

	for toID, transitions := range e.transitionGraph[fromStoryID] {
		for _, t := range transitions {
			if t.MoodDelta == nil {
				continue
			}
			decayed := *t.MoodDelta * DecayAt(now, t.Timestamp, e.config.MoodHalfLifeDays)
			byStory[toID] = append(byStory[toID], decayed)
			if to, ok := e.stories[toID]; ok {
				byTheme[to.Theme] = append(byTheme[to.Theme], decayed)
			}
		}
	}

	bestStories := make(map[string]float64, len(byStory))
	for toID, values := range byStory {
		bestStories[toID] = mean(values)
	}
	story.BestNextStories = bestStories

	bestThemes := make(map[string]float64, len(byTheme))
	for theme, values := range byTheme {
		bestThemes[theme] = mean(values)
	}
	story.BestNextThemes = bestThemes
}

// mean returns the arithmetic mean, or zero for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

import "sort"

// bestNextLimit caps how many follow-up stories are reported per origin.
const bestNextLimit = 3

// userSequenceLimit caps how many recent transitions are reported per user.
const userSequenceLimit = 10

// NextStoryInsight is one observed follow-up to an origin story.
type NextStoryInsight struct {
	// Title is the follow-up story's display title.
	Title string `json:"title"`

	// AvgMoodDelta is the decayed mean mood delta of that transition.
	AvgMoodDelta float64 `json:"avg_mood_delta"`
}

// StoryTransitionInsight summarizes the observed outcomes of leaving one
// origin story.
type StoryTransitionInsight struct {
	// BestNext lists the top follow-up stories by average mood delta.
	BestNext []NextStoryInsight `json:"best_next"`

	// BestNextThemes maps follow-up themes to their average mood delta.
	BestNextThemes map[string]float64 `json:"best_next_themes"`
}

// UserSequenceInsight is one transition of a user's recent history, resolved
// to display titles. A story dropped from the catalog keeps its raw ID.
type UserSequenceInsight struct {
	From               string   `json:"from"`
	To                 string   `json:"to"`
	MoodDelta          *float64 `json:"mood_delta"`
	TimeBetweenMinutes float64  `json:"time_between_min"`
}

// SequenceInsights is the analyst-facing report over the transition graph.
type SequenceInsights struct {
	// GlobalTransitions maps origin story titles to their outcomes. Origins
	// no longer in the catalog are skipped.
	GlobalTransitions map[string]StoryTransitionInsight `json:"global_transitions"`

	// UserSequences holds the requested user's last transitions, oldest
	// first. Nil when no user was requested or the user is unknown.
	UserSequences []UserSequenceInsight `json:"user_sequences,omitempty"`
}

// Insights reports the global transition landscape and, when userID names a
// known user, that user's recent sequence history.
func (e *Engine) Insights(userID string) *SequenceInsights {
	e.mu.RLock()
	defer e.mu.RUnlock()

	report := &SequenceInsights{
		GlobalTransitions: make(map[string]StoryTransitionInsight),
	}

	for fromID := range e.transitionGraph {
		from, ok := e.stories[fromID]
		if !ok {
			continue
		}
		report.GlobalTransitions[from.Title] = StoryTransitionInsight{
			BestNext:       e.topFollowUps(from),
			BestNextThemes: cloneFloatMap(from.BestNextThemes),
		}
	}

	if user, ok := e.users[userID]; ok {
		report.UserSequences = e.recentSequences(user)
	}

	return report
}

// topFollowUps ranks a story's follow-ups by average mood delta, ties broken
// by title for stable output, and keeps the top few.
func (e *Engine) topFollowUps(from *Story) []NextStoryInsight {
	followUps := make([]NextStoryInsight, 0, len(from.BestNextStories))
	for toID, avgDelta := range from.BestNextStories {
		title := toID
		if to, ok := e.stories[toID]; ok {
			title = to.Title
		}
		followUps = append(followUps, NextStoryInsight{Title: title, AvgMoodDelta: avgDelta})
	}

	sort.Slice(followUps, func(i, j int) bool {
		if followUps[i].AvgMoodDelta == followUps[j].AvgMoodDelta {
			return followUps[i].Title < followUps[j].Title
		}
		return followUps[i].AvgMoodDelta > followUps[j].AvgMoodDelta
	})

	if len(followUps) > bestNextLimit {
		followUps = followUps[:bestNextLimit]
	}
	return followUps
}

// recentSequences resolves the user's last transitions to titles.
func (e *Engine) recentSequences(user *UserProfile) []UserSequenceInsight {
	sequences := user.Sequences
	if len(sequences) > userSequenceLimit {
		sequences = sequences[len(sequences)-userSequenceLimit:]
	}

	insights := make([]UserSequenceInsight, 0, len(sequences))
	for _, t := range sequences {
		insights = append(insights, UserSequenceInsight{
			From:               e.titleOrID(t.FromStoryID),
			To:                 e.titleOrID(t.ToStoryID),
			MoodDelta:          t.MoodDelta,
			TimeBetweenMinutes: t.TimeBetweenMinutes,
		})
	}
	return insights
}

// titleOrID resolves a story ID to its title, falling back to the raw ID.
func (e *Engine) titleOrID(storyID string) string {
	if story, ok := e.stories[storyID]; ok {
		return story.Title
	}
	return storyID
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	clone := make(map[string]float64, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

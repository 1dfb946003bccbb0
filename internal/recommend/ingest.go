// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

// Theme-interaction weights per event type.
const (
	viewThemeWeight     = 0.1
	searchThemeWeight   = 0.5
	completeThemeWeight = 1.0
	favoriteThemeWeight = 2.0

	// moodImpactThemeScale scales an observed mood improvement into a
	// theme-interaction sample.
	moodImpactThemeScale = 0.5
)

// applyEvent dispatches a validated event to its handler. Each handler is
// atomic: it either fully applies or (for dangling story references) skips
// only the catalog-dependent side effects.
// Must be called with mu held.
func (e *Engine) applyEvent(user *UserProfile, event *AnalyticsEvent) {
	switch event.Type {
	case EventView:
		e.applyView(user, event)
	case EventComplete:
		e.applyComplete(user, event)
	case EventMoodAfter:
		e.applyMoodAfter(user, event)
	case EventFavorite:
		e.applyFavorite(user, event)
	case EventMoodGeneral:
		user.recordMood(*event.MoodScore, event.Timestamp)
	case EventSearch:
		if event.Theme != "" {
			user.recordThemeInteraction(event.Theme, searchThemeWeight, event.Timestamp)
		}
	case EventSliderPosition:
		user.RecommendationMix = clamp01(*event.Position)
	}
}

// applyView records a view and a small positive theme sample.
func (e *Engine) applyView(user *UserProfile, event *AnalyticsEvent) {
	user.ViewedStories[event.StoryID] = event.Timestamp
	user.RecentStoryViews = append(user.RecentStoryViews, StoryView{
		Timestamp: event.Timestamp,
		StoryID:   event.StoryID,
	})

	if story, ok := e.stories[event.StoryID]; ok {
		user.recordThemeInteraction(story.Theme, viewThemeWeight, event.Timestamp)
	}
}

// applyComplete records a completion, creates a transition when the previous
// completion falls inside the window, and advances the last-completed marker.
func (e *Engine) applyComplete(user *UserProfile, event *AnalyticsEvent) {
	user.CompletedStories[event.StoryID] = event.Timestamp

	if story, ok := e.stories[event.StoryID]; ok {
		user.recordThemeInteraction(story.Theme, completeThemeWeight, event.Timestamp)
	}

	if user.LastCompletedStory != "" && !user.LastCompletedAt.IsZero() {
		gap := minutesBetween(user.LastCompletedAt, event.Timestamp)
		if gap <= e.config.TransitionWindowMinutes {
			e.recordTransition(user, user.LastCompletedStory, event.StoryID, event, gap)
		}
	}

	user.LastCompletedStory = event.StoryID
	user.LastCompletedAt = event.Timestamp
}

// applyMoodAfter attributes a mood change to a story, backfills the open
// transition, and finally records the new mood.
func (e *Engine) applyMoodAfter(user *UserProfile, event *AnalyticsEvent) {
	moodAfter := *event.MoodScore

	if user.CurrentMood != nil {
		improvement := float64(moodAfter) - float64(*user.CurrentMood)
		user.StoryMoodImpact[event.StoryID] = ImpactSample{
			Delta:     improvement,
			Timestamp: event.Timestamp,
		}

		if story, ok := e.stories[event.StoryID]; ok {
			story.MoodAssociations = append(story.MoodAssociations, MoodObservation{
				Before:    *user.CurrentMood,
				After:     moodAfter,
				Timestamp: event.Timestamp,
			})
			e.updateStoryMoodStats(story, event.Timestamp)
			user.recordThemeInteraction(story.Theme, improvement*moodImpactThemeScale, event.Timestamp)
		}

		e.backfillTransition(user, event.StoryID, moodAfter, event)
	}

	user.recordMood(moodAfter, event.Timestamp)
}

// applyFavorite records a favorite and a strong positive theme sample.
func (e *Engine) applyFavorite(user *UserProfile, event *AnalyticsEvent) {
	user.FavoritedStories[event.StoryID] = event.Timestamp

	if story, ok := e.stories[event.StoryID]; ok {
		user.recordThemeInteraction(story.Theme, favoriteThemeWeight, event.Timestamp)
	}
}

// recordTransition creates the transition from the user's previous completion
// into the story just completed. Mood-before is the most recent mood reported
// at or before the previous completion; mood-after stays open until a
// matching mood report backfills it.
// Must be called with mu held.
func (e *Engine) recordTransition(user *UserProfile, fromID, toID string, event *AnalyticsEvent, gapMinutes float64) {
	transition := &StoryTransition{
		FromStoryID:        fromID,
		ToStoryID:          toID,
		UserID:             user.UserID,
		Timestamp:          event.Timestamp,
		MoodBefore:         user.moodAtOrBefore(user.LastCompletedAt),
		TimeBetweenMinutes: gapMinutes,
	}

	user.Sequences = append(user.Sequences, transition)
	user.PreferredTransitions[fromID] = append(user.PreferredTransitions[fromID], TransitionSample{
		ToStoryID: toID,
		Timestamp: event.Timestamp,
	})

	e.transitions = append(e.transitions, transition)
	if e.transitionGraph[fromID] == nil {
		e.transitionGraph[fromID] = make(map[string][]*StoryTransition)
	}
	e.transitionGraph[fromID][toID] = append(e.transitionGraph[fromID][toID], transition)

	e.updateTransitionStats(fromID, event.Timestamp)

	e.logger.Debug().
		Str("user_id", user.UserID).
		Str("from", fromID).
		Str("to", toID).
		Float64("gap_minutes", gapMinutes).
		Msg("transition recorded")
}

// backfillTransition patches the user's most recently created transition with
// the mood reported after its destination story. The patch applies only when
// the destination matches and the slot is still open, so at most one pending
// transition exists per user and a later unrelated mood report cannot
// retroactively alter it.
// Must be called with mu held.
func (e *Engine) backfillTransition(user *UserProfile, storyID string, moodAfter MoodScore, event *AnalyticsEvent) {
	if len(user.Sequences) == 0 {
		return
	}

	last := user.Sequences[len(user.Sequences)-1]
	if last.ToStoryID != storyID || last.MoodAfter != nil {
		return
	}

	last.MoodAfter = &moodAfter
	last.computeDelta()
	if last.MoodDelta == nil {
		return
	}

	// Patch the matching entry in the from-story index in place.
	samples := user.PreferredTransitions[last.FromStoryID]
	for i := range samples {
		if samples[i].ToStoryID == storyID && samples[i].MoodDelta == nil && samples[i].Timestamp.Equal(last.Timestamp) {
			samples[i].MoodDelta = last.MoodDelta
			break
		}
	}

	// The delta exists only now, so the theme-transition observation is
	// recorded here rather than at creation.
	if from, ok := e.stories[last.FromStoryID]; ok {
		if to, ok := e.stories[last.ToStoryID]; ok {
			if user.ThemeTransitions[from.Theme] == nil {
				user.ThemeTransitions[from.Theme] = make(map[string][]DeltaSample)
			}
			user.ThemeTransitions[from.Theme][to.Theme] = append(
				user.ThemeTransitions[from.Theme][to.Theme],
				DeltaSample{Delta: *last.MoodDelta, Timestamp: last.Timestamp},
			)
		}
	}

	e.updateTransitionStats(last.FromStoryID, event.Timestamp)
}

// clamp01 clamps v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

// similarityKey is an unordered story-ID pair; lo sorts before hi so both
// argument orders hit the same cache slot.
type similarityKey struct {
	lo, hi string
}

func makeSimilarityKey(a, b string) similarityKey {
	if a > b {
		a, b = b, a
	}
	return similarityKey{lo: a, hi: b}
}

// storySimilarity returns the similarity of two catalog entries in [0, 1]:
// half for a theme match plus half times the Jaccard index of their tag sets.
// Identical IDs score 1.0 and a missing story scores 0. Results are memoized
// until the catalog changes.
// Must be called with mu held (read or write).
func (e *Engine) storySimilarity(aID, bID string) float64 {
	if aID == bID {
		return 1.0
	}

	key := makeSimilarityKey(aID, bID)

	e.simMu.Lock()
	cached, ok := e.simCache[key]
	e.simMu.Unlock()
	if ok {
		return cached
	}

	a, okA := e.stories[aID]
	b, okB := e.stories[bID]
	if !okA || !okB {
		return 0
	}

	sim := 0.0
	if a.Theme == b.Theme {
		sim += 0.5
	}
	sim += 0.5 * tagJaccard(a.Tags, b.Tags)

	e.simMu.Lock()
	e.simCache[key] = sim
	e.simMu.Unlock()
	return sim
}

// tagJaccard returns |A∩B| / |A∪B| over two tag lists, treating duplicates as
// single members. Two empty lists yield zero.
func tagJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}

	union := make(map[string]struct{}, len(a)+len(b))
	for t := range setA {
		union[t] = struct{}{}
	}

	intersection := 0
	for _, t := range b {
		if _, seen := union[t]; seen {
			if _, inA := setA[t]; inA {
				intersection++
				delete(setA, t)
			}
		} else {
			union[t] = struct{}{}
		}
	}

	return float64(intersection) / float64(len(union))
}

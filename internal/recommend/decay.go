// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package recommend

import (
	"math"
	"time"
)

const secondsPerDay = 86400.0

// Decay returns the half-life weight for a sample that is elapsedDays old:
//
//	0.5 ^ (elapsedDays / halfLifeDays)
//
// The result is always in (0, 1] and monotonically non-increasing in elapsed
// time. There is no hard cutoff at the low end; callers wanting one must
// impose it explicitly. Negative elapsed time (a future sample) is treated
// as zero age and gets full weight.
//
// halfLifeDays must be positive; Config.Validate enforces this at
// configuration time so the division here is always well-defined.
func Decay(elapsedDays, halfLifeDays float64) float64 {
	if elapsedDays <= 0 {
		return 1.0
	}
	return math.Pow(0.5, elapsedDays/halfLifeDays)
}

// DecayAt returns the half-life weight of a sample taken at sampledAt when
// evaluated at now.
func DecayAt(now, sampledAt time.Time, halfLifeDays float64) float64 {
	return Decay(daysBetween(sampledAt, now), halfLifeDays)
}

// daysBetween returns the elapsed wall-clock time from earlier to later in
// fractional days.
func daysBetween(earlier, later time.Time) float64 {
	return later.Sub(earlier).Seconds() / secondsPerDay
}

// minutesBetween returns the elapsed wall-clock time from earlier to later in
// fractional minutes.
func minutesBetween(earlier, later time.Time) float64 {
	return later.Sub(earlier).Minutes()
}

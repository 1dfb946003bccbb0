// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

// Package metrics exposes Prometheus metrics for the recommendation service.
//
// Usage:
//
//	metrics.RecordEvent("complete")
//	metrics.RecordRecommendation(12*time.Millisecond, 10)
//	metrics.RecordSnapshotSave(true)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts ingested events by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyrank_events_total",
			Help: "Total number of ingested analytics events",
		},
		[]string{"event_type"},
	)

	// EventsRejectedTotal counts events rejected at validation.
	EventsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyrank_events_rejected_total",
			Help: "Total number of rejected analytics events",
		},
		[]string{"event_type"},
	)

	// RecommendationsTotal counts recommendation requests.
	RecommendationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storyrank_recommendations_total",
			Help: "Total number of recommendation requests served",
		},
	)

	// RecommendationDuration tracks scoring latency per request.
	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storyrank_recommendation_duration_seconds",
			Help:    "Duration of recommendation scoring in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	// RecommendationListSize tracks how many stories each request returned.
	RecommendationListSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storyrank_recommendation_list_size",
			Help:    "Number of stories returned per recommendation request",
			Buckets: []float64{1, 5, 10, 20, 50, 100},
		},
	)

	// SnapshotsTotal counts snapshot operations by kind and outcome.
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyrank_snapshots_total",
			Help: "Total number of snapshot save/load operations",
		},
		[]string{"operation", "outcome"},
	)

	// CatalogSize reports the current number of stories.
	CatalogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyrank_catalog_size",
			Help: "Current number of stories in the catalog",
		},
	)

	// UsersTracked reports the current number of user profiles.
	UsersTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyrank_users_tracked",
			Help: "Current number of known user profiles",
		},
	)

	// WebsocketClients reports the number of connected websocket clients.
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyrank_websocket_clients",
			Help: "Current number of connected websocket clients",
		},
	)
)

// RecordEvent counts one accepted event.
func RecordEvent(eventType string) {
	EventsTotal.WithLabelValues(eventType).Inc()
}

// RecordEventRejected counts one rejected event.
func RecordEventRejected(eventType string) {
	EventsRejectedTotal.WithLabelValues(eventType).Inc()
}

// RecordRecommendation records one served recommendation request.
func RecordRecommendation(duration time.Duration, listSize int) {
	RecommendationsTotal.Inc()
	RecommendationDuration.Observe(duration.Seconds())
	RecommendationListSize.Observe(float64(listSize))
}

// RecordSnapshotSave counts one snapshot save attempt.
func RecordSnapshotSave(ok bool) {
	SnapshotsTotal.WithLabelValues("save", outcome(ok)).Inc()
}

// RecordSnapshotLoad counts one snapshot load attempt.
func RecordSnapshotLoad(ok bool) {
	SnapshotsTotal.WithLabelValues("load", outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvallon/storyrank/internal/config"
)

// NewRouter assembles the HTTP routing tree.
func NewRouter(cfg *config.ServerConfig, handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(RequestLogger)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.Get("/healthz", handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimitMiddleware(cfg.RateLimit))

		r.Post("/stories", handler.AddStory)
		r.Get("/stories/{storyID}", handler.GetStory)

		r.Post("/events", handler.IngestEvent)

		r.Get("/users/{userID}/recommendations", handler.Recommendations)
		r.Get("/insights", handler.Insights)

		r.Get("/snapshots", handler.ListSnapshots)
		r.Post("/snapshots", handler.SaveSnapshot)
		r.Post("/snapshots/restore", handler.RestoreSnapshot)

		r.Get("/ws", handler.WebSocket)
	})

	return r
}

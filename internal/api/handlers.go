// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package api

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/nvallon/storyrank/internal/logging"
	"github.com/nvallon/storyrank/internal/metrics"
	"github.com/nvallon/storyrank/internal/recommend"
	"github.com/nvallon/storyrank/internal/snapshot"
	"github.com/nvallon/storyrank/internal/websocket"
)

// Handler carries the dependencies shared by all endpoints. Store and Hub
// are optional; the corresponding endpoints degrade gracefully when nil.
type Handler struct {
	engine       *recommend.Engine
	store        *snapshot.Store
	hub          *websocket.Hub
	snapshotKeep int
}

// NewHandler wires the endpoint dependencies together.
func NewHandler(engine *recommend.Engine, store *snapshot.Store, hub *websocket.Hub, snapshotKeep int) *Handler {
	return &Handler{
		engine:       engine,
		store:        store,
		hub:          hub,
		snapshotKeep: snapshotKeep,
	}
}

// AddStory handles POST /api/v1/stories. Re-adding an existing ID replaces
// the entry and resets its learned statistics.
func (h *Handler) AddStory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req AddStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if details := validateRequest(&req); details != nil {
		rw.ValidationError("invalid story", details)
		return
	}

	h.engine.AddStory(req.ID, req.Title, req.Theme, req.Tags)
	metrics.CatalogSize.Set(float64(h.engine.StoryCount()))
	if h.hub != nil {
		h.hub.NotifyCatalogUpdated(req.ID)
	}

	rw.Created(map[string]string{"id": req.ID})
}

// GetStory handles GET /api/v1/stories/{storyID}.
func (h *Handler) GetStory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	story := h.engine.Story(chi.URLParam(r, "storyID"))
	if story == nil {
		rw.NotFound("story not found")
		return
	}
	rw.Success(story)
}

// IngestEvent handles POST /api/v1/events. The body is one AnalyticsEvent;
// the engine rejects malformed payloads atomically.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var event recommend.AnalyticsEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}

	if err := h.engine.AddEvent(event); err != nil {
		metrics.RecordEventRejected(string(event.Type))
		if errors.Is(err, recommend.ErrMalformedEvent) || errors.Is(err, recommend.ErrUnknownEventType) {
			rw.BadRequest(err.Error())
			return
		}
		rw.InternalError("event ingestion failed")
		return
	}

	metrics.RecordEvent(string(event.Type))
	metrics.UsersTracked.Set(float64(h.engine.UserCount()))
	if h.hub != nil {
		h.hub.NotifyRecommendationsRefreshed(event.UserID, string(event.Type))
	}

	rw.Created(map[string]interface{}{
		"user_id":     event.UserID,
		"event_type":  event.Type,
		"event_count": h.engine.EventCount(),
	})
}

// Recommendations handles GET /api/v1/users/{userID}/recommendations.
//
// Query parameters:
//
//	n          list length, capped by the engine's configured maximum
//	mood       mood override on the 0-10 scale for this call only
//	promo_tags comma-separated tags that earn a promotional boost
//	at         RFC3339 evaluation instant, defaults to now
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID := chi.URLParam(r, "userID")

	mood, err := queryFloat(r, "mood")
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	req := RecommendationsRequest{
		N:    queryInt(r, "n", 0),
		Mood: mood,
		At:   r.URL.Query().Get("at"),
	}
	if raw := r.URL.Query().Get("promo_tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				req.PromotionalTags = append(req.PromotionalTags, tag)
			}
		}
	}
	if details := validateRequest(&req); details != nil {
		rw.ValidationError("invalid recommendation parameters", details)
		return
	}

	rctx := &recommend.Context{PromotionalTags: req.PromotionalTags}
	if req.Mood != nil {
		m := recommend.MoodScore(*req.Mood)
		rctx.CurrentMood = &m
	}
	if req.At != "" {
		at, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			rw.BadRequest("parameter at must be RFC3339")
			return
		}
		rctx.CurrentTime = at
	}

	start := time.Now()
	scored := h.engine.GetRecommendations(userID, rctx, req.N)
	metrics.RecordRecommendation(time.Since(start), len(scored))

	rw.Success(map[string]interface{}{
		"user_id":         userID,
		"recommendations": scored,
	})
}

// Insights handles GET /api/v1/insights. An optional user_id parameter adds
// that user's recent journey to the global transition tables.
func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(h.engine.Insights(r.URL.Query().Get("user_id")))
}

// SaveSnapshot handles POST /api/v1/snapshots. The engine state is written
// as a new snapshot generation and old generations are pruned.
func (h *Handler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.store == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeInternalError, "snapshot persistence is disabled")
		return
	}

	payload, err := h.engine.Snapshot()
	if err != nil {
		metrics.RecordSnapshotSave(false)
		rw.InternalError("failed to serialize engine state")
		return
	}

	version, err := h.store.Save(r.Context(), payload)
	if err != nil {
		metrics.RecordSnapshotSave(false)
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Msg("snapshot save failed")
		rw.InternalError("failed to persist snapshot")
		return
	}
	metrics.RecordSnapshotSave(true)

	if h.snapshotKeep > 0 {
		if err := h.store.Prune(r.Context(), h.snapshotKeep); err != nil {
			logger := logging.Ctx(r.Context())
			logger.Warn().Err(err).Msg("snapshot prune failed")
		}
	}

	rw.Created(map[string]int{"version": version})
}

// RestoreSnapshot handles POST /api/v1/snapshots/restore. The body may name
// a version; zero or an empty body selects the latest.
func (h *Handler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.store == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeInternalError, "snapshot persistence is disabled")
		return
	}

	var req LoadSnapshotRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rw.BadRequest("invalid JSON body")
			return
		}
	}
	if details := validateRequest(&req); details != nil {
		rw.ValidationError("invalid snapshot request", details)
		return
	}

	payload, meta, err := h.store.Load(r.Context(), req.Version)
	if err != nil {
		metrics.RecordSnapshotLoad(false)
		if errors.Is(err, os.ErrNotExist) {
			rw.NotFound("snapshot not found")
			return
		}
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Msg("snapshot load failed")
		rw.InternalError("failed to read snapshot")
		return
	}

	if err := h.engine.Restore(payload); err != nil {
		metrics.RecordSnapshotLoad(false)
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Int("version", meta.Version).Msg("snapshot restore rejected")
		rw.BadRequest("snapshot payload rejected: " + err.Error())
		return
	}
	metrics.RecordSnapshotLoad(true)
	metrics.CatalogSize.Set(float64(h.engine.StoryCount()))
	metrics.UsersTracked.Set(float64(h.engine.UserCount()))
	if h.hub != nil {
		h.hub.NotifySnapshotRestored(meta.Version)
	}

	rw.Success(meta)
}

// ListSnapshots handles GET /api/v1/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.store == nil {
		rw.Success([]snapshot.Metadata{})
		return
	}

	list, err := h.store.List(r.Context())
	if err != nil {
		rw.InternalError("failed to list snapshots")
		return
	}
	if list == nil {
		list = []snapshot.Metadata{}
	}
	rw.Success(list)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(map[string]interface{}{
		"status":  "ok",
		"stories": h.engine.StoryCount(),
		"users":   h.engine.UserCount(),
		"events":  h.engine.EventCount(),
	})
}

// WebSocket handles GET /api/v1/ws.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		http.Error(w, "websocket unavailable", http.StatusServiceUnavailable)
		return
	}
	websocket.ServeWS(h.hub, w, r)
}

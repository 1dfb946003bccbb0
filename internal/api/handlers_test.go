// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/nvallon/storyrank/internal/config"
	"github.com/nvallon/storyrank/internal/logging"
	"github.com/nvallon/storyrank/internal/recommend"
	"github.com/nvallon/storyrank/internal/snapshot"
)

//nolint:gochecknoinits // keep test logs quiet
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

// newTestServer builds a router over a fresh engine and snapshot store.
func newTestServer(t *testing.T) (*httptest.Server, *recommend.Engine) {
	t.Helper()

	engine, err := recommend.NewEngine(recommend.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	store, err := snapshot.NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	cfg := &config.ServerConfig{
		Host:        "127.0.0.1",
		Port:        0,
		Timeout:     10 * time.Second,
		CORSOrigins: []string{"*"},
		RateLimit:   0,
	}
	srv := httptest.NewServer(NewRouter(cfg, NewHandler(engine, store, nil, 3)))
	t.Cleanup(srv.Close)
	return srv, engine
}

// doJSON issues a request with a JSON body and decodes the envelope.
func doJSON(t *testing.T, method, url string, body interface{}) (int, APIResponse) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var envelope APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp.StatusCode, envelope
}

func addStory(t *testing.T, base, id, title, theme string, tags []string) {
	t.Helper()
	status, envelope := doJSON(t, http.MethodPost, base+"/api/v1/stories", AddStoryRequest{
		ID: id, Title: title, Theme: theme, Tags: tags,
	})
	if status != http.StatusCreated || !envelope.Success {
		t.Fatalf("add story %s: status %d, envelope %+v", id, status, envelope)
	}
}

func ingest(t *testing.T, base string, event map[string]interface{}) {
	t.Helper()
	status, envelope := doJSON(t, http.MethodPost, base+"/api/v1/events", event)
	if status != http.StatusCreated || !envelope.Success {
		t.Fatalf("ingest %v: status %d, envelope %+v", event, status, envelope)
	}
}

func TestAddStoryValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"valid", AddStoryRequest{ID: "s1", Title: "Forest Walk", Theme: "nature"}, http.StatusCreated},
		{"missing id", AddStoryRequest{Title: "No ID", Theme: "nature"}, http.StatusBadRequest},
		{"missing theme", AddStoryRequest{ID: "s2", Title: "No Theme"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/stories", tt.body)
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
			if tt.want == http.StatusBadRequest {
				if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
					t.Errorf("error = %+v, want %s", envelope.Error, ErrCodeValidationFailed)
				}
			}
		})
	}
}

func TestAddStoryInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/stories", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetStory(t *testing.T) {
	srv, _ := newTestServer(t)
	addStory(t, srv.URL, "s1", "Forest Walk", "nature", []string{"calm"})

	status, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/stories/s1", nil)
	if status != http.StatusOK || !envelope.Success {
		t.Fatalf("get story: status %d, envelope %+v", status, envelope)
	}
	data, ok := envelope.Data.(map[string]interface{})
	if !ok || data["title"] != "Forest Walk" || data["theme"] != "nature" {
		t.Errorf("story payload = %+v", envelope.Data)
	}

	status, envelope = doJSON(t, http.MethodGet, srv.URL+"/api/v1/stories/missing", nil)
	if status != http.StatusNotFound || envelope.Error == nil || envelope.Error.Code != ErrCodeNotFound {
		t.Errorf("missing story: status %d, envelope %+v", status, envelope)
	}
}

func TestIngestEvent(t *testing.T) {
	srv, engine := newTestServer(t)
	addStory(t, srv.URL, "s1", "Forest Walk", "nature", nil)

	ingest(t, srv.URL, map[string]interface{}{
		"user_id":    "u1",
		"event_type": "view",
		"story_id":   "s1",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	if engine.EventCount() != 1 {
		t.Errorf("EventCount = %d, want 1", engine.EventCount())
	}
	if engine.UserCount() != 1 {
		t.Errorf("UserCount = %d, want 1", engine.UserCount())
	}

	// Missing story_id for a view is rejected without touching state.
	status, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/events", map[string]interface{}{
		"user_id":    "u1",
		"event_type": "view",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	if status != http.StatusBadRequest || envelope.Error == nil {
		t.Errorf("malformed event: status %d, envelope %+v", status, envelope)
	}
	if engine.EventCount() != 1 {
		t.Errorf("EventCount after rejection = %d, want 1", engine.EventCount())
	}
}

func TestRecommendations(t *testing.T) {
	srv, _ := newTestServer(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 4; i++ {
		addStory(t, srv.URL, fmt.Sprintf("s%d", i), fmt.Sprintf("Story %d", i), "nature", []string{"calm"})
	}
	ingest(t, srv.URL, map[string]interface{}{
		"user_id":    "u1",
		"event_type": "complete",
		"story_id":   "s1",
		"timestamp":  base.Format(time.RFC3339),
	})

	url := srv.URL + "/api/v1/users/u1/recommendations?n=2&mood=7&at=" + base.Add(time.Hour).Format(time.RFC3339)
	status, envelope := doJSON(t, http.MethodGet, url, nil)
	if status != http.StatusOK || !envelope.Success {
		t.Fatalf("recommendations: status %d, envelope %+v", status, envelope)
	}

	data := envelope.Data.(map[string]interface{})
	list, ok := data["recommendations"].([]interface{})
	if !ok || len(list) != 2 {
		t.Fatalf("recommendations payload = %+v", data)
	}
	first := list[0].(map[string]interface{})
	if first["story_id"] == "" {
		t.Errorf("first recommendation = %+v", first)
	}
}

func TestRecommendationsBadParameters(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name  string
		query string
	}{
		{"non-numeric mood", "?mood=angry"},
		{"mood out of range", "?mood=99"},
		{"negative n", "?n=-3"},
		{"bad timestamp", "?at=yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/users/u1/recommendations"+tt.query, nil)
			if status != http.StatusBadRequest || envelope.Error == nil {
				t.Errorf("status = %d, envelope %+v, want 400", status, envelope)
			}
		})
	}
}

func TestInsightsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	addStory(t, srv.URL, "s1", "Forest Walk", "nature", nil)

	status, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/insights?user_id=u1", nil)
	if status != http.StatusOK || !envelope.Success {
		t.Errorf("insights: status %d, envelope %+v", status, envelope)
	}
}

func TestSnapshotEndpoints(t *testing.T) {
	srv, engine := newTestServer(t)
	addStory(t, srv.URL, "s1", "Forest Walk", "nature", nil)

	// Restore before any save reports not found.
	status, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/snapshots/restore", nil)
	if status != http.StatusNotFound || envelope.Error == nil {
		t.Fatalf("restore on empty store: status %d, envelope %+v", status, envelope)
	}

	status, envelope = doJSON(t, http.MethodPost, srv.URL+"/api/v1/snapshots", nil)
	if status != http.StatusCreated || !envelope.Success {
		t.Fatalf("save: status %d, envelope %+v", status, envelope)
	}

	// Mutate state, then restore the saved generation.
	addStory(t, srv.URL, "s2", "Second", "urban", nil)
	if engine.StoryCount() != 2 {
		t.Fatalf("StoryCount = %d, want 2", engine.StoryCount())
	}

	status, envelope = doJSON(t, http.MethodPost, srv.URL+"/api/v1/snapshots/restore", LoadSnapshotRequest{Version: 1})
	if status != http.StatusOK || !envelope.Success {
		t.Fatalf("restore: status %d, envelope %+v", status, envelope)
	}
	if engine.StoryCount() != 1 {
		t.Errorf("StoryCount after restore = %d, want 1", engine.StoryCount())
	}

	status, envelope = doJSON(t, http.MethodGet, srv.URL+"/api/v1/snapshots", nil)
	if status != http.StatusOK {
		t.Fatalf("list: status %d", status)
	}
	list, ok := envelope.Data.([]interface{})
	if !ok || len(list) != 1 {
		t.Errorf("snapshot list = %+v", envelope.Data)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	status, envelope := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	if status != http.StatusOK || !envelope.Success {
		t.Fatalf("health: status %d, envelope %+v", status, envelope)
	}
	data := envelope.Data.(map[string]interface{})
	if data["status"] != "ok" {
		t.Errorf("health payload = %+v", data)
	}
}

func TestRequestIDEcho(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(requestIDHeader, "trace-123")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if got := resp.Header.Get(requestIDHeader); got != "trace-123" {
		t.Errorf("request id header = %q, want trace-123", got)
	}

	// A missing request ID is generated server-side.
	resp2, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()
	if resp2.Header.Get(requestIDHeader) == "" {
		t.Error("no request id generated")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("storyrank_")) {
		t.Error("metrics output missing storyrank_ series")
	}
}

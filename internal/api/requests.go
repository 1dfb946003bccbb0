// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. go-playground/validator caches
// struct metadata, so a single instance is the intended usage.
var validate = validator.New()

// AddStoryRequest is the body for POST /api/v1/stories.
type AddStoryRequest struct {
	ID    string   `json:"id" validate:"required,min=1,max=256"`
	Title string   `json:"title" validate:"required,min=1,max=512"`
	Theme string   `json:"theme" validate:"required,min=1,max=128"`
	Tags  []string `json:"tags" validate:"omitempty,dive,min=1,max=128"`
}

// RecommendationsRequest holds the validated query parameters for
// GET /api/v1/users/{userID}/recommendations.
type RecommendationsRequest struct {
	// N is the requested list length. Zero means the configured default.
	N int `validate:"min=0,max=1000"`

	// Mood optionally overrides the user's current mood for this call.
	Mood *float64 `validate:"omitempty,min=0,max=10"`

	// PromotionalTags earn a flat boost for matching stories.
	PromotionalTags []string

	// At is the evaluation instant, RFC3339. Empty means now.
	At string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// LoadSnapshotRequest is the body for POST /api/v1/snapshots/restore.
type LoadSnapshotRequest struct {
	// Version selects the snapshot generation. Zero means latest.
	Version int `json:"version" validate:"min=0"`
}

// fieldError is one entry of a validation failure response.
type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Value string `json:"value,omitempty"`
}

// validateRequest runs validator tags and converts failures into a
// client-friendly detail list.
func validateRequest(req interface{}) []fieldError {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldError{{Field: "request", Rule: "invalid"}}
	}

	details := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fieldError{
			Field: fe.Field(),
			Rule:  fe.Tag(),
			Value: fmt.Sprintf("%v", fe.Value()),
		})
	}
	return details
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// queryFloat parses a float query parameter, returning nil when absent.
func queryFloat(r *http.Request, key string) (*float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("parameter %s must be numeric: %w", key, err)
	}
	return &v, nil
}

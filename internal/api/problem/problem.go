// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package problem writes RFC 7807 problem details responses.
package problem

import (
	"encoding/json"
	"net/http"

	xglog "github.com/ManuGH/cinevault/internal/log"
)

const (
	// HeaderRequestID carries the correlation id on requests and responses.
	HeaderRequestID = "X-Request-ID"
	// JSONKeyRequestID is the problem body field holding the correlation id.
	JSONKeyRequestID = "requestId"
	// ContentType is the media type of every problem response.
	ContentType = "application/problem+json"
)

// Problem is one error kind exposed by the API.
//
// Semantics:
//   - Type: canonical machine identifier (e.g. "playback/forbidden").
//   - Title: human-readable short label (e.g. "Forbidden").
//   - Code: stable machine-readable short code (e.g. "FORBIDDEN").
type Problem struct {
	Status int
	Type   string
	Title  string
	Code   string
}

// Write writes p with an optional detail and extension members.
func Write(w http.ResponseWriter, r *http.Request, p Problem, detail string, extra map[string]any) {
	instance := ""
	reqID := ""
	if r != nil {
		instance = r.URL.EscapedPath()
		reqID = xglog.RequestIDFromContext(r.Context())
	}
	if reqID == "" {
		reqID = w.Header().Get(HeaderRequestID)
	}

	res := map[string]any{
		"type":   p.Type,
		"title":  p.Title,
		"status": p.Status,
		"code":   p.Code,
	}
	if reqID != "" {
		res[JSONKeyRequestID] = reqID
	}
	if detail != "" {
		res["detail"] = detail
	}
	if instance != "" {
		res["instance"] = instance
	}

	// Extensions go at top level; reserved keys are protected.
	for k, v := range extra {
		switch k {
		case "type", "title", "status", "detail", "instance", "code", JSONKeyRequestID:
			xglog.L().Warn().Str("key", k).Str("problem_type", p.Type).Msg("ignoring reserved key in problem extras")
			continue
		}
		res[k] = v
	}

	if reqID != "" {
		w.Header().Set(HeaderRequestID, reqID)
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(p.Status)

	if err := json.NewEncoder(w).Encode(res); err != nil {
		xglog.L().Error().
			Err(err).
			Str("type", p.Type).
			Int("status", p.Status).
			Msg("failed to encode problem response")
	}
}

// Problems shared across the API surface.
var (
	BadRequest = Problem{http.StatusBadRequest, "request/invalid", "Bad Request", "INVALID_INPUT"}
	// Unauthorized never says which credential check failed.
	Unauthorized     = Problem{http.StatusUnauthorized, "auth/unauthorized", "Unauthorized", "UNAUTHORIZED"}
	Forbidden        = Problem{http.StatusForbidden, "playback/forbidden", "Forbidden", "FORBIDDEN"}
	NotFound         = Problem{http.StatusNotFound, "system/not_found", "Not Found", "NOT_FOUND"}
	NotAvailable     = Problem{http.StatusNotFound, "playback/not_available", "Not Available", "NOT_AVAILABLE"}
	AssetDeleted     = Problem{http.StatusConflict, "asset/deleted", "Asset Deleted", "ASSET_DELETED"}
	InProgress       = Problem{http.StatusConflict, "playback/transcoding", "Transcoding In Progress", "TRANSCODING_IN_PROGRESS"}
	PayloadTooLarge  = Problem{http.StatusRequestEntityTooLarge, "upload/too_large", "Payload Too Large", "PAYLOAD_TOO_LARGE"}
	UnsupportedMedia = Problem{http.StatusUnsupportedMediaType, "upload/unsupported_media", "Unsupported Media Type", "UNSUPPORTED_MEDIA"}
	RateLimited      = Problem{http.StatusTooManyRequests, "system/rate_limited", "Too Many Requests", "RATE_LIMITED"}
	Internal         = Problem{http.StatusInternalServerError, "system/internal", "Internal Server Error", "INTERNAL_ERROR"}
	Unavailable      = Problem{http.StatusServiceUnavailable, "system/unavailable", "Service Unavailable", "UNAVAILABLE"}
)

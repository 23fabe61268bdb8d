// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package problem

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xglog "github.com/ManuGH/cinevault/internal/log"
)

func TestWrite(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/assets/42/playback", nil)
	r = r.WithContext(xglog.ContextWithRequestID(r.Context(), "req-1"))
	w := httptest.NewRecorder()

	Write(w, r, InProgress, "try again shortly", map[string]any{"retryAfterSeconds": 30, "status": 200})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "playback/transcoding", body["type"])
	assert.Equal(t, "TRANSCODING_IN_PROGRESS", body["code"])
	assert.Equal(t, float64(http.StatusConflict), body["status"], "reserved key not overridden")
	assert.Equal(t, "try again shortly", body["detail"])
	assert.Equal(t, "/api/v1/assets/42/playback", body["instance"])
	assert.Equal(t, "req-1", body[JSONKeyRequestID])
	assert.Equal(t, float64(30), body["retryAfterSeconds"])
}

func TestWrite_NilRequest(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, nil, Internal, "", nil)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.NotContains(t, body, "detail")
	assert.NotContains(t, body, "instance")
}

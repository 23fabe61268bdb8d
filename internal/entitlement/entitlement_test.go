// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package entitlement

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/cinevault/internal/cache"
	xglog "github.com/ManuGH/cinevault/internal/log"
)

func purchases(t *testing.T, owned map[string]bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		key := q.Get("viewerId") + "|" + q.Get("assetId")
		w.Header().Set("Content-Type", "application/json")
		if owned[key] {
			_, _ = w.Write([]byte(`{"entitled":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"entitled":false}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPChecker_Decisions(t *testing.T) {
	srv := purchases(t, map[string]bool{"alice|42": true})
	c, err := NewHTTPChecker(HTTPConfig{URL: srv.URL + "/v1/entitlements", Timeout: time.Second})
	require.NoError(t, err)

	ok, err := c.Entitled(context.Background(), "alice", "42")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Entitled(context.Background(), "bob", "42")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPChecker_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{name: "forbidden is a denial", status: http.StatusForbidden},
		{name: "not found is a denial", status: http.StatusNotFound},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
		{name: "garbage body", status: http.StatusOK, body: "nope", wantErr: true},
		{name: "missing decision", status: http.StatusOK, body: "{}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewHTTPChecker(HTTPConfig{URL: srv.URL})
			require.NoError(t, err)
			ok, err := c.Entitled(context.Background(), "v", "1")
			assert.False(t, ok)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCheckFailed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHTTPChecker_TimeoutFailsClosed(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewHTTPChecker(HTTPConfig{URL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	assert.False(t, Allowed(context.Background(), c, "alice", "42", zerolog.Nop()))
}

func TestHTTPChecker_ForwardsRequestID(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"entitled":true}`))
	}))
	defer srv.Close()

	c, err := NewHTTPChecker(HTTPConfig{URL: srv.URL})
	require.NoError(t, err)
	ctx := xglog.ContextWithRequestID(context.Background(), "req-1")
	_, err = c.Entitled(ctx, "alice", "42")
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.Load())
}

func TestNewHTTPChecker_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPChecker(HTTPConfig{URL: "not a url"})
	assert.Error(t, err)
}

func TestAllowed(t *testing.T) {
	boom := CheckerFunc(func(context.Context, string, string) (bool, error) {
		return true, errors.New("boom")
	})
	yes := CheckerFunc(func(context.Context, string, string) (bool, error) { return true, nil })

	assert.False(t, Allowed(context.Background(), boom, "alice", "42", zerolog.Nop()), "errors deny even with true")
	assert.False(t, Allowed(context.Background(), yes, "", "42", zerolog.Nop()), "anonymous viewer")
	assert.False(t, Allowed(context.Background(), DenyAll, "alice", "42", zerolog.Nop()))
	assert.True(t, Allowed(context.Background(), yes, "alice", "42", zerolog.Nop()))
}

func TestAllowed_PanickingCheckerDenies(t *testing.T) {
	panics := CheckerFunc(func(context.Context, string, string) (bool, error) {
		var m map[string]bool
		m["x"] = true
		return true, nil
	})

	var allowed bool
	require.NotPanics(t, func() {
		allowed = Allowed(context.Background(), panics, "alice", "42", zerolog.Nop())
	})
	assert.False(t, allowed)
}

func TestCached_OnlyGrantsAreRemembered(t *testing.T) {
	var calls atomic.Int32
	var grant atomic.Bool
	var fail atomic.Bool
	inner := CheckerFunc(func(context.Context, string, string) (bool, error) {
		calls.Add(1)
		if fail.Load() {
			return false, ErrCheckFailed
		}
		return grant.Load(), nil
	})

	mem := cache.NewMemoryCache(0)
	defer mem.Close()
	c := NewCached(inner, mem, time.Minute)
	ctx := context.Background()

	ok, err := c.Entitled(ctx, "alice", "42")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, _ = c.Entitled(ctx, "alice", "42")
	assert.False(t, ok)
	assert.EqualValues(t, 2, calls.Load(), "denials are not cached")

	grant.Store(true)
	ok, _ = c.Entitled(ctx, "alice", "42")
	assert.True(t, ok)
	fail.Store(true)
	ok, err = c.Entitled(ctx, "alice", "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 3, calls.Load(), "grant served from cache")

	ok, err = c.Entitled(ctx, "bob", "42")
	assert.ErrorIs(t, err, ErrCheckFailed)
	assert.False(t, ok)
}

func TestNewCached_DisabledReturnsInner(t *testing.T) {
	_, cached := NewCached(DenyAll, nil, time.Minute).(*Cached)
	assert.False(t, cached)
	_, cached = NewCached(DenyAll, cache.NewMemoryCache(0), 0).(*Cached)
	assert.False(t, cached)
}

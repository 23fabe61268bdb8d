// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func newResolver(t *testing.T) *JWTResolver {
	t.Helper()
	j, err := NewJWTResolver(JWTConfig{Secret: testSecret, Issuer: "storefront", Audience: "cinevault"})
	require.NoError(t, err)
	return j
}

func TestExtractToken_PriorityOrder(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test?token=query", nil)
	r.Header.Set("Authorization", "Bearer bearer-token ")
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "session-token"})

	assert.Equal(t, "bearer-token", ExtractToken(r, true))

	r.Header.Del("Authorization")
	assert.Equal(t, "session-token", ExtractToken(r, true))
}

func TestExtractToken_AllowQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test?token=query-token", nil)
	assert.Empty(t, ExtractToken(r, false))
	assert.Equal(t, "query-token", ExtractToken(r, true))
}

func TestAuthorizeToken(t *testing.T) {
	assert.True(t, AuthorizeToken("secret", "secret"))
	assert.False(t, AuthorizeToken("secret", "other"))
	assert.False(t, AuthorizeToken("", "secret"))
	assert.False(t, AuthorizeToken("secret", " "))
}

func TestJWTResolver_RoundTrip(t *testing.T) {
	j := newResolver(t)
	tok, err := j.Sign("alice", time.Hour)
	require.NoError(t, err)

	v, err := j.Resolve(tok)
	require.NoError(t, err)
	assert.Equal(t, Viewer{ID: "alice"}, v)
}

func TestJWTResolver_Rejects(t *testing.T) {
	j := newResolver(t)
	other, err := NewJWTResolver(JWTConfig{Secret: "another-secret-of-length", Issuer: "storefront", Audience: "cinevault"})
	require.NoError(t, err)
	foreignIssuer, err := NewJWTResolver(JWTConfig{Secret: testSecret, Issuer: "elsewhere", Audience: "cinevault"})
	require.NoError(t, err)
	foreignAudience, err := NewJWTResolver(JWTConfig{Secret: testSecret, Issuer: "storefront", Audience: "admin"})
	require.NoError(t, err)

	sign := func(r *JWTResolver, sub string, ttl time.Duration) string {
		tok, err := r.Sign(sub, ttl)
		require.NoError(t, err)
		return tok
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not.a.token",
		"wrong key":      sign(other, "alice", time.Hour),
		"expired":        sign(j, "alice", -time.Minute),
		"wrong issuer":   sign(foreignIssuer, "alice", time.Hour),
		"wrong audience": sign(foreignAudience, "alice", time.Hour),
		"no subject":     sign(j, "", time.Hour),
		"alg none":       none,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := j.Resolve(tok)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestJWTResolver_Leeway(t *testing.T) {
	j, err := NewJWTResolver(JWTConfig{Secret: testSecret, Leeway: time.Minute})
	require.NoError(t, err)
	tok, err := j.Sign("alice", -30*time.Second)
	require.NoError(t, err)
	_, err = j.Resolve(tok)
	assert.NoError(t, err)
}

func TestNewJWTResolver_ShortSecret(t *testing.T) {
	_, err := NewJWTResolver(JWTConfig{Secret: "short"})
	assert.Error(t, err)
}

func TestViewerContext(t *testing.T) {
	_, ok := ViewerFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithViewer(context.Background(), Viewer{ID: "alice"})
	v, ok := ViewerFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "alice", v.ID)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrUnauthenticated covers missing, malformed, expired and mis-signed tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

// JWTConfig configures HS256 token verification.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	// Leeway tolerates clock skew on exp/nbf.
	Leeway time.Duration
}

// JWTResolver maps a signed token to a Viewer via its subject claim.
type JWTResolver struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	parser   *jwt.Parser
	now      func() time.Time
}

func NewJWTResolver(cfg JWTConfig) (*JWTResolver, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	return &JWTResolver{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation()),
		now:      time.Now,
	}, nil
}

// Resolve verifies tokenString and returns its viewer.
func (j *JWTResolver) Resolve(tokenString string) (Viewer, error) {
	if tokenString == "" {
		return Viewer{}, ErrUnauthenticated
	}
	claims := &jwt.RegisteredClaims{}
	_, err := j.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return j.secret, nil
	})
	if err != nil {
		return Viewer{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if err := j.validate(claims); err != nil {
		return Viewer{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return Viewer{ID: claims.Subject}, nil
}

func (j *JWTResolver) validate(c *jwt.RegisteredClaims) error {
	now := j.now()
	if c.ExpiresAt == nil || !now.Before(c.ExpiresAt.Add(j.leeway)) {
		return errors.New("token expired or has no expiry")
	}
	if c.NotBefore != nil && now.Add(j.leeway).Before(c.NotBefore.Time) {
		return errors.New("token not yet valid")
	}
	if j.issuer != "" && !c.VerifyIssuer(j.issuer, true) {
		return errors.New("issuer mismatch")
	}
	if j.audience != "" && !c.VerifyAudience(j.audience, true) {
		return errors.New("audience mismatch")
	}
	if c.Subject == "" {
		return errors.New("missing subject")
	}
	return nil
}

// Sign issues a token for viewerID. Used by tests and local tooling.
func (j *JWTResolver) Sign(viewerID string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := jwt.RegisteredClaims{
		Subject:   viewerID,
		Issuer:    j.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if j.audience != "" {
		claims.Audience = jwt.ClaimStrings{j.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

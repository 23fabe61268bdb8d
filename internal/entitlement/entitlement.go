// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package entitlement answers whether a viewer holds a completed purchase for
// an asset. The truth lives in an external collaborator; this package only
// transports, caches and fails closed.
package entitlement

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/cinevault/internal/log"
	"github.com/ManuGH/cinevault/internal/metrics"
)

// ErrCheckFailed wraps any failure to obtain a decision.
var ErrCheckFailed = errors.New("entitlement check failed")

// Checker decides entitlement for a (viewer, asset) pair.
type Checker interface {
	Entitled(ctx context.Context, viewerID, assetID string) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, viewerID, assetID string) (bool, error)

func (f CheckerFunc) Entitled(ctx context.Context, viewerID, assetID string) (bool, error) {
	return f(ctx, viewerID, assetID)
}

// DenyAll is used when no collaborator is configured.
var DenyAll Checker = CheckerFunc(func(context.Context, string, string) (bool, error) {
	return false, nil
})

// Allowed collapses a check into a yes/no. Errors, a panicking checker and
// an anonymous viewer all count as "not entitled".
func Allowed(ctx context.Context, c Checker, viewerID, assetID string, logger zerolog.Logger) (allowed bool) {
	if viewerID == "" {
		metrics.IncEntitlementCheck("anonymous")
		return false
	}
	defer func() {
		if p := recover(); p != nil {
			l := xglog.WithContext(ctx, logger)
			l.Error().
				Interface("panic", p).
				Str(xglog.FieldViewerID, viewerID).
				Str(xglog.FieldAssetID, assetID).
				Msg("entitlement checker panicked, denying")
			metrics.IncEntitlementCheck("error")
			allowed = false
		}
	}()
	ok, err := c.Entitled(ctx, viewerID, assetID)
	if err != nil {
		l := xglog.WithContext(ctx, logger)
		l.Warn().Err(err).
			Str(xglog.FieldViewerID, viewerID).
			Str(xglog.FieldAssetID, assetID).
			Msg("entitlement check failed, denying")
		metrics.IncEntitlementCheck("error")
		return false
	}
	if !ok {
		metrics.IncEntitlementCheck("denied")
		return false
	}
	metrics.IncEntitlementCheck("granted")
	return true
}

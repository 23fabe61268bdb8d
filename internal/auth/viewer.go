// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth resolves the caller's identity. Token issuance lives elsewhere;
// this package only verifies what it is handed.
package auth

import "context"

// Viewer is the authenticated end user requesting playback.
type Viewer struct {
	// ID is the token subject; entitlement is keyed on it.
	ID string
}

type viewerKey struct{}

// ContextWithViewer stores v in ctx.
func ContextWithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFromContext returns the viewer set by the auth middleware.
func ViewerFromContext(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(viewerKey{}).(Viewer)
	return v, ok && v.ID != ""
}

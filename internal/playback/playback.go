// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playback decides whether and how a viewer may play an asset, and
// serves the per-request HLS playlists that back the streaming path.
package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/cinevault/internal/entitlement"
	"github.com/ManuGH/cinevault/internal/library"
	"github.com/ManuGH/cinevault/internal/media"
)

var (
	// ErrForbidden is returned for any viewer without entitlement. It never
	// reveals whether the asset exists.
	ErrForbidden = errors.New("forbidden")
	// ErrNotAvailable means nothing playable was ever uploaded (or it was purged).
	ErrNotAvailable = errors.New("asset not available")
	// ErrTranscodingInProgress means the asset is uploaded but HLS output is not
	// published yet. Clients should poll.
	ErrTranscodingInProgress = errors.New("transcoding in progress")
	// ErrNotFound is returned for playlists outside the published ladder.
	ErrNotFound = errors.New("playlist not found")
)

// APIPrefix is the path prefix of the asset routes.
const APIPrefix = "/api/v1/assets/"

// MasterPlaylistFile is the last path element of the master playlist route.
const MasterPlaylistFile = "master.m3u8"

// Links builds this service's own URLs. They are indirections: every fetch
// passes through entitlement and re-signs what it returns.
type Links struct {
	// BaseURL is prepended when set, e.g. "https://stream.example.com".
	BaseURL string
}

func (l Links) hls(assetID string) string {
	return strings.TrimRight(l.BaseURL, "/") + APIPrefix + assetID + "/hls/"
}

// Master is the URL of the master playlist endpoint.
func (l Links) Master(assetID string) string {
	return l.hls(assetID) + MasterPlaylistFile
}

// Quality is the URL of the quality playlist endpoint for one rendition.
func (l Links) Quality(assetID, rendition string) string {
	return l.hls(assetID) + media.QualityPlaylistName(assetID, rendition)
}

// access runs the checks shared by every playback entry point: entitlement
// first, so a denied viewer learns nothing about the asset, then the asset
// record itself.
type access struct {
	checker entitlement.Checker
	assets  library.Repository
	logger  zerolog.Logger
}

func (a access) authorize(ctx context.Context, viewerID, assetID string) (library.Asset, error) {
	if err := media.ValidateAssetID(assetID); err != nil {
		return library.Asset{}, ErrForbidden
	}
	if !entitlement.Allowed(ctx, a.checker, viewerID, assetID, a.logger) {
		return library.Asset{}, ErrForbidden
	}
	asset, err := a.assets.Get(ctx, assetID)
	if errors.Is(err, library.ErrAssetNotFound) {
		return library.Asset{}, ErrNotAvailable
	}
	if err != nil {
		return library.Asset{}, fmt.Errorf("load asset %s: %w", assetID, err)
	}
	if asset.Deleted || !asset.HasPlayable() {
		return library.Asset{}, ErrNotAvailable
	}
	return asset, nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/cinevault/internal/entitlement"
	"github.com/ManuGH/cinevault/internal/library"
	xglog "github.com/ManuGH/cinevault/internal/log"
	"github.com/ManuGH/cinevault/internal/media"
	"github.com/ManuGH/cinevault/internal/metrics"
	"github.com/ManuGH/cinevault/internal/objectstore"
)

// QualityOriginal labels the uploaded file when no variant exists.
const QualityOriginal = "original"

// Source is one directly playable file with its signed URL.
type Source struct {
	Quality   string    `json:"quality"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Info is the playback answer for one viewer and asset.
type Info struct {
	Playable bool `json:"playable"`
	IsHLS    bool `json:"isHls"`
	// MasterURL is this service's master playlist endpoint (HLS only).
	MasterURL string `json:"masterUrl,omitempty"`
	// Primary and Alternatives are set on the legacy path only.
	Primary      *Source  `json:"primary,omitempty"`
	Alternatives []Source `json:"alternatives,omitempty"`
}

// GatewayConfig tunes the legacy path.
type GatewayConfig struct {
	Ladder media.Ladder
	// SignedURLTTL is the lifetime of legacy single-file URLs.
	SignedURLTTL time.Duration
	AllowPublic  bool
}

// Gateway is the playback decision point.
type Gateway struct {
	access
	store objectstore.Store
	links Links
	cfg   GatewayConfig
}

func NewGateway(store objectstore.Store, assets library.Repository, checker entitlement.Checker, links Links, cfg GatewayConfig, logger zerolog.Logger) *Gateway {
	if len(cfg.Ladder) == 0 {
		cfg.Ladder = media.DefaultLadder()
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = time.Hour
	}
	return &Gateway{
		access: access{
			checker: checker,
			assets:  assets,
			logger:  logger.With().Str(xglog.FieldComponent, "gateway").Logger(),
		},
		store: store,
		links: links,
		cfg:   cfg,
	}
}

// Playback resolves entitlement, then the asset pointer, then picks the
// delivery path.
func (g *Gateway) Playback(ctx context.Context, viewerID, assetID string) (info Info, err error) {
	defer func() { metrics.IncPlaybackDecision(decisionOf(info, err)) }()

	asset, err := g.authorize(ctx, viewerID, assetID)
	if err != nil {
		return Info{}, err
	}
	if media.IsMasterPlaylist(asset.PlayableFile) {
		return g.hls(ctx, asset)
	}
	return g.legacy(ctx, asset)
}

func (g *Gateway) hls(ctx context.Context, asset library.Asset) (Info, error) {
	ok, err := g.store.Exists(ctx, asset.PlayableFile)
	if err != nil {
		return Info{}, fmt.Errorf("check master playlist: %w", err)
	}
	if !ok {
		return Info{}, ErrTranscodingInProgress
	}
	return Info{Playable: true, IsHLS: true, MasterURL: g.links.Master(asset.ID)}, nil
}

func (g *Gateway) legacy(ctx context.Context, asset library.Asset) (Info, error) {
	base := media.StemOf(asset.PlayableFile)

	found := make([]bool, len(g.cfg.Ladder))
	eg, egctx := errgroup.WithContext(ctx)
	for i, r := range g.cfg.Ladder {
		eg.Go(func() error {
			ok, err := g.store.Exists(egctx, media.VariantName(base, r.Name))
			if err != nil {
				return err
			}
			found[i] = ok
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Info{}, fmt.Errorf("probe variants of %s: %w", asset.ID, err)
	}

	type candidate struct{ quality, name string }
	var candidates []candidate
	for i, r := range g.cfg.Ladder {
		if found[i] {
			candidates = append(candidates, candidate{r.Name, media.VariantName(base, r.Name)})
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, candidate{QualityOriginal, asset.PlayableFile})
	}

	preferred := 0
	if mid, ok := g.cfg.Ladder.Mid(); ok {
		for i, c := range candidates {
			if c.quality == mid.Name {
				preferred = i
			}
		}
	}

	sources := make([]Source, len(candidates))
	for i, c := range candidates {
		grant, err := objectstore.SignOrDirect(ctx, g.store, c.name, g.cfg.SignedURLTTL, g.cfg.AllowPublic)
		if errors.Is(err, objectstore.ErrNotFound) {
			return Info{}, ErrNotAvailable
		}
		if err != nil {
			return Info{}, fmt.Errorf("sign %s: %w", c.name, err)
		}
		sources[i] = Source{Quality: c.quality, URL: grant.URL, ExpiresAt: grant.ExpiresAt}
	}

	primary := sources[preferred]
	alternatives := make([]Source, 0, len(sources)-1)
	for i, s := range sources {
		if i != preferred {
			alternatives = append(alternatives, s)
		}
	}
	return Info{Playable: true, Primary: &primary, Alternatives: alternatives}, nil
}

func decisionOf(info Info, err error) string {
	switch {
	case err == nil && info.IsHLS:
		return "hls"
	case err == nil:
		return "legacy"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotAvailable):
		return "not_available"
	case errors.Is(err, ErrTranscodingInProgress):
		return "in_progress"
	default:
		return "error"
	}
}

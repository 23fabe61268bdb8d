// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/cinevault/internal/entitlement"
	"github.com/ManuGH/cinevault/internal/library"
	xglog "github.com/ManuGH/cinevault/internal/log"
	"github.com/ManuGH/cinevault/internal/media"
	"github.com/ManuGH/cinevault/internal/metrics"
	"github.com/ManuGH/cinevault/internal/objectstore"
	"github.com/ManuGH/cinevault/internal/playlist"
	"github.com/ManuGH/cinevault/internal/telemetry"
)

const maxPlaylistBytes = 4 << 20

// RewriterConfig tunes playlist serving.
type RewriterConfig struct {
	Ladder media.Ladder
	// SegmentTTL is the lifetime of signed segment URLs.
	SegmentTTL time.Duration
	// FetchTTL is the lifetime of the server-side URL used to read a stored playlist.
	FetchTTL time.Duration
	// SignConcurrency bounds parallel signing per playlist.
	SignConcurrency int
	// AllowPublic permits unsigned direct URLs on backends that cannot sign.
	AllowPublic bool
	// HTTPClient fetches stored playlists by signed URL.
	HTTPClient *http.Client
}

func (c RewriterConfig) withDefaults() RewriterConfig {
	if len(c.Ladder) == 0 {
		c.Ladder = media.DefaultLadder()
	}
	if c.SegmentTTL <= 0 {
		c.SegmentTTL = 2 * time.Hour
	}
	if c.FetchTTL <= 0 {
		c.FetchTTL = time.Minute
	}
	if c.SignConcurrency <= 0 {
		c.SignConcurrency = 8
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return c
}

// Rewriter serves master and quality playlists built from stored HLS output.
type Rewriter struct {
	access
	store  objectstore.Store
	links  Links
	cfg    RewriterConfig
	tracer trace.Tracer
}

func NewRewriter(store objectstore.Store, assets library.Repository, checker entitlement.Checker, links Links, cfg RewriterConfig, logger zerolog.Logger) *Rewriter {
	return &Rewriter{
		access: access{
			checker: checker,
			assets:  assets,
			logger:  logger.With().Str(xglog.FieldComponent, "rewriter").Logger(),
		},
		store:  store,
		links:  links,
		cfg:    cfg.withDefaults(),
		tracer: telemetry.Tracer("cinevault/playback"),
	}
}

// published authorizes the viewer and requires HLS output to be live.
func (r *Rewriter) published(ctx context.Context, viewerID, assetID string) error {
	asset, err := r.authorize(ctx, viewerID, assetID)
	if err != nil {
		return err
	}
	if !media.IsMasterPlaylist(asset.PlayableFile) {
		return ErrTranscodingInProgress
	}
	return nil
}

// MasterPlaylist lists every ladder rung whose quality playlist is stored,
// pointing each at this service's quality endpoint. Missing rungs are omitted.
func (r *Rewriter) MasterPlaylist(ctx context.Context, viewerID, assetID string) (_ []byte, err error) {
	ctx, span := r.tracer.Start(ctx, "playlist.master")
	defer func() { r.finish(span, "master", err) }()

	if err := r.published(ctx, viewerID, assetID); err != nil {
		return nil, err
	}

	present := make([]bool, len(r.cfg.Ladder))
	g, gctx := errgroup.WithContext(ctx)
	for i, rend := range r.cfg.Ladder {
		g.Go(func() error {
			ok, err := r.store.Exists(gctx, media.QualityPlaylistName(assetID, rend.Name))
			if err != nil {
				return err
			}
			present[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("probe renditions of %s: %w", assetID, err)
	}

	var variants []playlist.Variant
	for i, rend := range r.cfg.Ladder {
		if present[i] {
			variants = append(variants, playlist.VariantFor(rend, r.links.Quality(assetID, rend.Name)))
		}
	}
	if len(variants) == 0 {
		return nil, ErrNotFound
	}

	var buf bytes.Buffer
	if err := playlist.WriteMaster(&buf, variants); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// QualityPlaylist returns the stored playlist for one rendition with every
// segment line replaced by a freshly signed URL.
func (r *Rewriter) QualityPlaylist(ctx context.Context, viewerID, assetID, name string) (_ []byte, err error) {
	ctx, span := r.tracer.Start(ctx, "playlist.quality")
	defer func() { r.finish(span, "quality", err) }()

	if err := r.published(ctx, viewerID, assetID); err != nil {
		return nil, err
	}
	rendition, ok := media.RenditionFromPlaylist(assetID, name)
	if !ok {
		return nil, ErrNotFound
	}
	if _, ok := r.cfg.Ladder.Lookup(rendition); !ok {
		return nil, ErrNotFound
	}

	text, err := r.fetch(ctx, name)
	if err != nil {
		return nil, err
	}

	prefix := media.SegmentPrefix(assetID, rendition)
	out, n, err := playlist.RewriteSegments(ctx, text, r.cfg.SignConcurrency, func(ctx context.Context, segment string) (string, error) {
		if !strings.HasPrefix(segment, prefix) {
			return "", fmt.Errorf("segment %q does not belong to %s", segment, name)
		}
		g, err := objectstore.SignOrDirect(ctx, r.store, segment, r.cfg.SegmentTTL, r.cfg.AllowPublic)
		if err != nil {
			return "", err
		}
		return g.URL, nil
	})
	if err != nil {
		return nil, fmt.Errorf("rewrite %s: %w", name, err)
	}
	span.SetAttributes(telemetry.StorageAttributes(r.store.Backend(), name)...)
	l := xglog.WithContext(ctx, r.logger)
	l.Debug().
		Str(xglog.FieldObject, name).
		Int("segments", n).
		Msg("quality playlist rewritten")
	return []byte(out), nil
}

// fetch reads a stored playlist through a short-lived signed URL, or directly
// from the store when the backend cannot sign.
func (r *Rewriter) fetch(ctx context.Context, name string) (string, error) {
	grant, err := r.store.SignedURL(ctx, name, r.cfg.FetchTTL)
	switch {
	case errors.Is(err, objectstore.ErrNotFound):
		return "", ErrNotFound
	case errors.Is(err, objectstore.ErrCannotSign):
		return r.open(ctx, name)
	case err != nil:
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, grant.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %v", objectstore.ErrStorageUnavailable, name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: fetch %s: status %d", objectstore.ErrStorageUnavailable, name, resp.StatusCode)
	}
	return readPlaylist(resp.Body)
}

func (r *Rewriter) open(ctx context.Context, name string) (string, error) {
	rc, err := r.store.Open(ctx, name)
	if errors.Is(err, objectstore.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	return readPlaylist(rc)
}

func readPlaylist(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxPlaylistBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: read playlist: %v", objectstore.ErrStorageUnavailable, err)
	}
	if len(b) > maxPlaylistBytes {
		return "", errors.New("stored playlist too large")
	}
	return string(b), nil
}

func (r *Rewriter) finish(span trace.Span, kind string, err error) {
	outcome := outcomeOf(err)
	metrics.IncPlaylistRequest(kind, outcome)
	if err != nil && outcome == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind+" playlist failed")
	}
	span.End()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotAvailable), errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTranscodingInProgress):
		return "in_progress"
	default:
		return "error"
	}
}

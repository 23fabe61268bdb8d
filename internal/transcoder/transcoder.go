// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transcoder turns an uploaded original into an HLS rendition ladder
// and publishes it by moving the asset's playable-file pointer.
package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ManuGH/cinevault/internal/library"
	xglog "github.com/ManuGH/cinevault/internal/log"
	"github.com/ManuGH/cinevault/internal/media"
	"github.com/ManuGH/cinevault/internal/metrics"
	"github.com/ManuGH/cinevault/internal/objectstore"
	"github.com/ManuGH/cinevault/internal/playlist"
	"github.com/ManuGH/cinevault/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Job is one transcode request. It is not persisted anywhere; success is
// observable only through the asset pointer.
type Job struct {
	AssetID    string `json:"assetId"`
	SourceName string `json:"sourceName"`
}

// Config holds the ladder and encoder settings applied to every job.
type Config struct {
	WorkRoot         string
	Ladder           media.Ladder
	SegmentSeconds   int
	AudioBitrateKbps int
	Preset           string
	// ParallelRenditions > 1 encodes renditions concurrently.
	ParallelRenditions int
}

func (c Config) withDefaults() Config {
	if c.WorkRoot == "" {
		c.WorkRoot = os.TempDir()
	}
	if len(c.Ladder) == 0 {
		c.Ladder = media.DefaultLadder()
	}
	if c.SegmentSeconds <= 0 {
		c.SegmentSeconds = 6
	}
	if c.AudioBitrateKbps <= 0 {
		c.AudioBitrateKbps = 128
	}
	if c.Preset == "" {
		c.Preset = "veryfast"
	}
	if c.ParallelRenditions <= 0 {
		c.ParallelRenditions = 1
	}
	return c
}

// Transcoder runs the ladder for one asset at a time; callers serialize per asset.
type Transcoder struct {
	store  objectstore.Store
	assets library.Repository
	enc    Encoder
	cfg    Config
	log    zerolog.Logger
	tracer trace.Tracer
}

func New(store objectstore.Store, assets library.Repository, enc Encoder, cfg Config, logger zerolog.Logger) (*Transcoder, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Ladder.Validate(); err != nil {
		return nil, fmt.Errorf("transcoder: %w", err)
	}
	return &Transcoder{
		store:  store,
		assets: assets,
		enc:    enc,
		cfg:    cfg,
		log:    logger.With().Str(xglog.FieldComponent, "transcoder").Logger(),
		tracer: telemetry.Tracer("cinevault/transcoder"),
	}, nil
}

// Ladder returns the configured renditions.
func (t *Transcoder) Ladder() media.Ladder { return t.cfg.Ladder }

// Run executes the whole pipeline for job. The pointer is moved only after
// every rendition and the master playlist are stored; on any error it is left
// untouched and earlier uploads remain as unreferenced objects that the next
// successful run overwrites by name.
func (t *Transcoder) Run(ctx context.Context, job Job) (err error) {
	if err := media.ValidateAssetID(job.AssetID); err != nil {
		return err
	}
	if job.SourceName == "" {
		job.SourceName = media.SourceName(job.AssetID)
	}

	ctx = xglog.ContextWithAssetID(ctx, job.AssetID)
	logger := xglog.WithContext(ctx, t.log)

	ctx, span := t.tracer.Start(ctx, "transcoder.run",
		trace.WithAttributes(telemetry.StorageAttributes(t.store.Backend(), job.SourceName)...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transcode failed")
		}
		span.End()
	}()

	workDir := filepath.Join(t.cfg.WorkRoot, job.AssetID+"-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			logger.Warn().Err(rmErr).Str(xglog.FieldWorkDir, workDir).Msg("work dir cleanup failed")
		}
	}()

	started := time.Now()
	logger.Info().
		Str(xglog.FieldEvent, "transcode.start").
		Str(xglog.FieldObject, job.SourceName).
		Str(xglog.FieldWorkDir, workDir).
		Strs("ladder", t.cfg.Ladder.Names()).
		Msg("transcode started")

	src, err := t.store.DownloadToLocal(ctx, job.SourceName, workDir)
	if err != nil {
		return fmt.Errorf("stage source %s: %w", job.SourceName, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.ParallelRenditions)
	for _, r := range t.cfg.Ladder {
		g.Go(func() error {
			return t.rendition(gctx, job.AssetID, src, workDir, r)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "transcode.failed").Msg("transcode aborted, pointer unchanged")
		return err
	}

	master := media.MasterPlaylistName(job.AssetID)
	if err := t.uploadMaster(ctx, job.AssetID, master); err != nil {
		return err
	}

	// publish
	if err := t.assets.SetPlayableFile(ctx, job.AssetID, master); err != nil {
		return fmt.Errorf("publish %s: %w", master, err)
	}

	logger.Info().
		Str(xglog.FieldEvent, "transcode.published").
		Str(xglog.FieldObject, master).
		Dur("duration", time.Since(started)).
		Msg("transcode published")
	return nil
}

func (t *Transcoder) rendition(ctx context.Context, assetID, src, workDir string, r media.Rendition) (err error) {
	ctx, span := t.tracer.Start(ctx, "transcoder.rendition",
		trace.WithAttributes(telemetry.RenditionAttributes(assetID, r.Name, r.Height, r.BitrateKbps)...))
	defer func() {
		if err != nil {
			metrics.IncRenditionFailure(r.Name)
			span.RecordError(err)
			span.SetStatus(codes.Error, "rendition failed")
		}
		span.End()
	}()

	spec := EncodeSpec{
		Input:            src,
		WorkDir:          workDir,
		AssetID:          assetID,
		Rendition:        r,
		SegmentSeconds:   t.cfg.SegmentSeconds,
		AudioBitrateKbps: t.cfg.AudioBitrateKbps,
		Preset:           t.cfg.Preset,
	}

	started := time.Now()
	if err := t.enc.Encode(ctx, spec); err != nil {
		return fmt.Errorf("rendition %s: %w", r.Name, err)
	}
	metrics.ObserveRendition(r.Name, time.Since(started))

	if err := t.uploadFile(ctx, workDir, spec.PlaylistName(), "playlist"); err != nil {
		return err
	}

	segments, err := localSegments(workDir, media.SegmentPrefix(assetID, r.Name))
	if err != nil {
		return fmt.Errorf("rendition %s: %w", r.Name, err)
	}
	for _, name := range segments {
		if err := t.uploadFile(ctx, workDir, name, "segment"); err != nil {
			return err
		}
		// disk usage stays bounded by one rendition's unsent segments
		if err := os.Remove(filepath.Join(workDir, name)); err != nil {
			return fmt.Errorf("remove local segment %s: %w", name, err)
		}
	}

	t.log.Debug().
		Str(xglog.FieldAssetID, assetID).
		Str(xglog.FieldRendition, r.Name).
		Int("segments", len(segments)).
		Msg("rendition uploaded")
	return nil
}

func (t *Transcoder) uploadFile(ctx context.Context, dir, name, role string) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("%w: missing encoder output %s: %v", ErrTranscodeFailed, name, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := t.store.Upload(ctx, name, f); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	if fi, err := f.Stat(); err == nil {
		metrics.AddUploadedBytes(role, fi.Size())
	}
	return nil
}

func (t *Transcoder) uploadMaster(ctx context.Context, assetID, name string) error {
	variants := make([]playlist.Variant, 0, len(t.cfg.Ladder))
	for _, r := range t.cfg.Ladder {
		variants = append(variants, playlist.VariantFor(r, media.QualityPlaylistName(assetID, r.Name)))
	}
	var buf bytes.Buffer
	if err := playlist.WriteMaster(&buf, variants); err != nil {
		return fmt.Errorf("render master: %w", err)
	}
	size := int64(buf.Len())
	if _, err := t.store.Upload(ctx, name, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	metrics.AddUploadedBytes("master", size)
	return nil
}

// localSegments lists a rendition's segment files in sequence order.
func localSegments(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, prefix) && media.IsSegment(n) {
			names = append(names, n)
		}
	}
	// sequence numbers are zero-padded to three digits but may grow past 999
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})
	return names, nil
}

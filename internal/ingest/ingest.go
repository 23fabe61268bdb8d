// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ingest implements the upload and delete triggers for an asset's media.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/cinevault/internal/library"
	xglog "github.com/ManuGH/cinevault/internal/log"
	"github.com/ManuGH/cinevault/internal/media"
	"github.com/ManuGH/cinevault/internal/metrics"
	"github.com/ManuGH/cinevault/internal/objectstore"
	"github.com/ManuGH/cinevault/internal/transcoder"
)

// ErrUnsupportedMedia rejects uploads outside the accepted container format.
var ErrUnsupportedMedia = errors.New("only .mp4 uploads are accepted")

// Queue is the part of the job runner the triggers use.
type Queue interface {
	Enqueue(job transcoder.Job) (string, error)
	// CancelAssetAndWait returns once no job for the asset can still write.
	CancelAssetAndWait(ctx context.Context, assetID, reason string) (int, error)
}

// UploadResult describes a stored original and the transcode it started.
type UploadResult struct {
	FileName  string `json:"fileName"`
	Size      int64  `json:"size"`
	JobHandle string `json:"jobHandle"`
}

// PurgeResult lists what the delete trigger removed.
type PurgeResult struct {
	Deleted      []string `json:"deleted"`
	JobsCanceled int      `json:"jobsCanceled"`
}

type Service struct {
	store  objectstore.Store
	assets library.Repository
	queue  Queue
	log    zerolog.Logger
}

func NewService(store objectstore.Store, assets library.Repository, queue Queue, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		assets: assets,
		queue:  queue,
		log:    logger.With().Str(xglog.FieldComponent, "ingest").Logger(),
	}
}

// CheckUpload validates an upload before any bytes are stored.
func CheckUpload(assetID, fileName string) error {
	if err := media.ValidateAssetID(assetID); err != nil {
		return err
	}
	if !strings.EqualFold(filepath.Ext(fileName), media.SourceExt) {
		return fmt.Errorf("%w: %q", ErrUnsupportedMedia, fileName)
	}
	return nil
}

// Upload stores body as the asset's original, points the asset at it and
// enqueues a transcode. It returns once the upload is durable; the transcode
// runs in the background.
func (s *Service) Upload(ctx context.Context, assetID, fileName string, body io.ReadSeeker) (UploadResult, error) {
	if err := CheckUpload(assetID, fileName); err != nil {
		return UploadResult{}, err
	}
	logger := xglog.WithContext(xglog.ContextWithAssetID(ctx, assetID), s.log)

	asset, err := s.assets.Ensure(ctx, assetID)
	if err != nil {
		return UploadResult{}, fmt.Errorf("load asset %s: %w", assetID, err)
	}
	if asset.Deleted {
		return UploadResult{}, library.ErrAssetDeleted
	}

	name := media.SourceName(assetID)
	if _, err := s.store.Upload(ctx, name, body); err != nil {
		return UploadResult{}, fmt.Errorf("store %s: %w", name, err)
	}
	size, err := s.store.Size(ctx, name)
	if err != nil {
		return UploadResult{}, fmt.Errorf("stat %s: %w", name, err)
	}
	metrics.AddUploadedBytes("original", size)

	if err := s.assets.SetPlayableFile(ctx, assetID, name); err != nil {
		return UploadResult{}, fmt.Errorf("point asset %s at %s: %w", assetID, name, err)
	}

	handle, err := s.queue.Enqueue(transcoder.Job{AssetID: assetID, SourceName: name})
	if err != nil {
		return UploadResult{}, fmt.Errorf("enqueue transcode of %s: %w", assetID, err)
	}

	logger.Info().
		Str(xglog.FieldObject, name).
		Int64("size", size).
		Str(xglog.FieldJobID, handle).
		Msg("original uploaded, transcode enqueued")
	return UploadResult{FileName: name, Size: size, JobHandle: handle}, nil
}

// Purge removes every stored object derived from the asset and clears its
// pointer. An already-clean asset is not an error.
func (s *Service) Purge(ctx context.Context, assetID string) (PurgeResult, error) {
	if err := media.ValidateAssetID(assetID); err != nil {
		return PurgeResult{}, err
	}
	logger := xglog.WithContext(xglog.ContextWithAssetID(ctx, assetID), s.log)

	res := PurgeResult{Deleted: []string{}}
	// a transcode still uploading or publishing after the listing would
	// leave orphans or republish the asset
	n, err := s.queue.CancelAssetAndWait(ctx, assetID, "purged")
	res.JobsCanceled = n
	if err != nil {
		return res, fmt.Errorf("cancel transcode of %s: %w", assetID, err)
	}

	names, err := s.store.ListByPrefix(ctx, assetID)
	if err != nil {
		return res, fmt.Errorf("list objects of %s: %w", assetID, err)
	}
	for _, name := range names {
		if !media.BelongsTo(name, assetID) {
			continue
		}
		if err := s.store.Delete(ctx, name); err != nil {
			return res, fmt.Errorf("delete %s: %w", name, err)
		}
		res.Deleted = append(res.Deleted, name)
	}

	if err := s.assets.ClearPlayableFile(ctx, assetID); err != nil {
		return res, fmt.Errorf("clear pointer of %s: %w", assetID, err)
	}

	logger.Info().
		Int("objects", len(res.Deleted)).
		Int("jobs_canceled", res.JobsCanceled).
		Msg("asset media purged")
	return res, nil
}

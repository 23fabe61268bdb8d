// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package library holds the Source Asset records: one per purchasable video,
// carrying the pointer to whichever stored file is currently playable.
package library

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAssetNotFound is returned when no record exists for an asset id.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrAssetDeleted is returned when a write targets a soft-deleted asset.
	ErrAssetDeleted = errors.New("asset deleted")
)

// Asset is the Source Asset record.
type Asset struct {
	ID        string    `json:"id"`
	Deleted   bool      `json:"deleted"`
	UpdatedAt time.Time `json:"updatedAt"`

	// PlayableFile is the stored object name clients are served. Empty means
	// nothing has been uploaded yet or the derived files were purged.
	PlayableFile string `json:"playableFile,omitempty"`
}

// HasPlayable reports whether the pointer is set.
func (a Asset) HasPlayable() bool { return a.PlayableFile != "" }

// Repository persists Source Assets. Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns ErrAssetNotFound for unknown ids.
	Get(ctx context.Context, id string) (Asset, error)
	// Ensure creates the record if missing and returns the current state.
	Ensure(ctx context.Context, id string) (Asset, error)
	// SetPlayableFile moves the pointer. It is the publish step of a transcode.
	SetPlayableFile(ctx context.Context, id, name string) error
	// ClearPlayableFile nulls the pointer. Unknown ids are not an error.
	ClearPlayableFile(ctx context.Context, id string) error
	// SetDeleted toggles the soft-delete flag.
	SetDeleted(ctx context.Context, id string, deleted bool) error
}

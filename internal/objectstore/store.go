// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package objectstore is the uniform blob store client used by the pipeline.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrStorageUnavailable means the backing service could not be reached.
	ErrStorageUnavailable = errors.New("object storage unavailable")
	// ErrWriteFailed means the backend was reachable but rejected or failed the write.
	ErrWriteFailed = errors.New("object write failed")
	// ErrNotFound means an operation required an object that does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrCannotSign means the backend has no key material to issue signed URLs.
	ErrCannotSign = errors.New("object store cannot sign urls")
	// ErrInvalidTTL is returned for non-positive signing lifetimes.
	ErrInvalidTTL = errors.New("signed url ttl must be positive")
	// ErrInvalidName rejects names that could escape the store namespace.
	ErrInvalidName = errors.New("invalid object name")
)

// PermissionRead is the only permission ever granted.
const PermissionRead = "read"

// Grant is a time-limited read credential for a single object, materialized as a URL.
type Grant struct {
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Permission string    `json:"permission"`
}

// Store is the blob store contract shared by all backends.
type Store interface {
	// Upload writes body under name, overwriting any existing object, and returns its URI.
	Upload(ctx context.Context, name string, body io.ReadSeeker) (string, error)
	// Exists never fails for a missing object; only transport failures are errors.
	Exists(ctx context.Context, name string) (bool, error)
	// Size returns 0 for a missing object.
	Size(ctx context.Context, name string) (int64, error)
	// Delete is idempotent.
	Delete(ctx context.Context, name string) error
	// ListByPrefix pages through the listing and returns every matching name.
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
	// SignedURL checks existence, then issues a read grant valid for ttl.
	SignedURL(ctx context.Context, name string, ttl time.Duration) (Grant, error)
	// DownloadToLocal copies the object into dir and returns the local path.
	DownloadToLocal(ctx context.Context, name, dir string) (string, error)
	// Open streams the object contents for server-side reads.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// DirectURL is the unsigned URL of an object. Only meaningful for public buckets.
	DirectURL(name string) string
	// Backend names the implementation for logs and metrics.
	Backend() string
}

// SignOrDirect issues a signed grant and, only when allowPublic is set, degrades to
// the unsigned direct URL for backends that cannot sign. A direct URL is not an
// access control mechanism; callers must only allow it for known-public buckets.
func SignOrDirect(ctx context.Context, s Store, name string, ttl time.Duration, allowPublic bool) (Grant, error) {
	g, err := s.SignedURL(ctx, name, ttl)
	if err == nil || !errors.Is(err, ErrCannotSign) || !allowPublic {
		return g, err
	}
	return Grant{
		Name:       name,
		URL:        s.DirectURL(name),
		ExpiresAt:  time.Now().Add(ttl).UTC(),
		Permission: PermissionRead,
	}, nil
}

func checkTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

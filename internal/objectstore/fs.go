// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/cinevault/internal/metrics"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// FSConfig configures the local directory backend.
type FSConfig struct {
	Root string
	// PublicBaseURL is where this service serves /objects/{name}. Required for signing.
	PublicBaseURL string
	// SigningKey enables HMAC-signed URLs. Without it SignedURL returns ErrCannotSign.
	SigningKey []byte
}

// FSStore keeps objects as flat files in one directory. Writes are atomic
// (temp file + rename) so readers never observe a partially written object.
type FSStore struct {
	root    string
	baseURL string
	key     []byte
	now     func() time.Time
	log     zerolog.Logger
}

// NewFSStore creates the root directory if needed.
func NewFSStore(cfg FSConfig, logger zerolog.Logger) (*FSStore, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("fs store: root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("fs store: resolve root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fs store: %w: %v", ErrStorageUnavailable, err)
	}
	return &FSStore{
		root:    root,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		key:     cfg.SigningKey,
		now:     time.Now,
		log:     logger,
	}, nil
}

func (s *FSStore) Backend() string { return "fs" }

func (s *FSStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, name), nil
}

func (s *FSStore) Upload(ctx context.Context, name string, body io.ReadSeeker) (uri string, err error) {
	defer func() { metrics.IncStoreOp(s.Backend(), "upload", err) }()
	p, err := s.path(name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t, err := renameio.TempFile(s.root, p)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, name, err)
	}
	defer func() { _ = t.Cleanup() }()

	if _, err := io.Copy(t, body); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrWriteFailed, name, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrWriteFailed, name, err)
	}
	return s.uri(name), nil
}

func (s *FSStore) uri(name string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.root, name))}).String()
}

func (s *FSStore) stat(name string) (fs.FileInfo, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, name, err)
	}
	return fi, nil
}

func (s *FSStore) Exists(_ context.Context, name string) (bool, error) {
	fi, err := s.stat(name)
	metrics.IncStoreOp(s.Backend(), "exists", err)
	return fi != nil, err
}

func (s *FSStore) Size(_ context.Context, name string) (int64, error) {
	fi, err := s.stat(name)
	metrics.IncStoreOp(s.Backend(), "size", err)
	if err != nil || fi == nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (s *FSStore) Delete(_ context.Context, name string) (err error) {
	defer func() { metrics.IncStoreOp(s.Backend(), "delete", err) }()
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete %s: %v", ErrWriteFailed, name, err)
	}
	return nil
}

func (s *FSStore) ListByPrefix(_ context.Context, prefix string) (names []string, err error) {
	defer func() { metrics.IncStoreOp(s.Backend(), "list", err) }()
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrStorageUnavailable, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		// renameio temp files start with "." and are never objects
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *FSStore) SignedURL(ctx context.Context, name string, ttl time.Duration) (Grant, error) {
	if err := checkTTL(ttl); err != nil {
		return Grant{}, err
	}
	ok, err := s.Exists(ctx, name)
	if err != nil {
		return Grant{}, err
	}
	if !ok {
		return Grant{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if len(s.key) == 0 || s.baseURL == "" {
		return Grant{}, ErrCannotSign
	}

	// expiry has second resolution; round up so a short ttl never expires on issue
	exp := s.now().Add(ttl + time.Second - 1).Unix()
	q := url.Values{}
	q.Set(QueryExpires, strconv.FormatInt(exp, 10))
	q.Set(QuerySignature, urlSignature(s.key, name, exp))

	metrics.IncSignedGrant(s.Backend())
	return Grant{
		Name:       name,
		URL:        s.DirectURL(name) + "?" + q.Encode(),
		ExpiresAt:  time.Unix(exp, 0).UTC(),
		Permission: PermissionRead,
	}, nil
}

// Verify checks a signed request for name issued by this store.
func (s *FSStore) Verify(name, expires, signature string) error {
	return verifyURLSignature(s.key, name, expires, signature, s.now())
}

func (s *FSStore) DirectURL(name string) string {
	return s.baseURL + "/objects/" + url.PathEscape(name)
}

func (s *FSStore) Open(_ context.Context, name string) (rc io.ReadCloser, err error) {
	defer func() { metrics.IncStoreOp(s.Backend(), "open", err) }()
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, name, err)
	}
	return f, nil
}

// OpenFile exposes the underlying file for range-capable serving.
func (s *FSStore) OpenFile(name string) (*os.File, fs.FileInfo, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, name, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, name, err)
	}
	return f, fi, nil
}

func (s *FSStore) DownloadToLocal(ctx context.Context, name, dir string) (string, error) {
	rc, err := s.Open(ctx, name)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	return copyToLocal(ctx, rc, name, dir)
}

// copyToLocal writes r to dir/name atomically.
func copyToLocal(ctx context.Context, r io.Reader, name, dir string) (string, error) {
	dst := filepath.Join(dir, filepath.Base(name))
	t, err := renameio.TempFile(dir, dst)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	defer func() { _ = t.Cleanup() }()

	if _, err := io.Copy(t, contextReader{ctx: ctx, r: r}); err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	return dst, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

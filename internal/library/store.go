// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/cinevault/internal/persistence/sqlite"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS source_assets (
		id TEXT PRIMARY KEY,
		deleted INTEGER NOT NULL DEFAULT 0 CHECK(deleted IN (0, 1)),
		playable_file TEXT,
		updated_at TEXT NOT NULL
	);`,
}

// Store provides SQLite persistence for Source Assets.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*Store)(nil)

// NewStore opens the database at dbPath and runs migrations.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sqlite.Open(ctx, dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := sqlite.Migrate(ctx, db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Check reports database integrity problems for health probes.
func (s *Store) Check(ctx context.Context) error {
	issues, err := sqlite.QuickCheck(ctx, s.db)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("sqlite integrity: %v", issues)
	}
	return nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *Store) Get(ctx context.Context, id string) (Asset, error) {
	query := `
	SELECT id, deleted, playable_file, updated_at
	FROM source_assets
	WHERE id = ?
	`
	var (
		a         Asset
		playable  sql.NullString
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Deleted, &playable, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	if err != nil {
		return Asset{}, fmt.Errorf("get asset %s: %w", id, err)
	}
	a.PlayableFile = playable.String
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return a, nil
}

func (s *Store) Ensure(ctx context.Context, id string) (Asset, error) {
	query := `
	INSERT INTO source_assets (id, updated_at)
	VALUES (?, ?)
	ON CONFLICT(id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, id, s.stamp()); err != nil {
		return Asset{}, fmt.Errorf("ensure asset %s: %w", id, err)
	}
	return s.Get(ctx, id)
}

func (s *Store) SetPlayableFile(ctx context.Context, id, name string) error {
	query := `
	INSERT INTO source_assets (id, playable_file, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		playable_file = excluded.playable_file,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, id, name, s.stamp()); err != nil {
		return fmt.Errorf("set playable file %s: %w", id, err)
	}
	return nil
}

func (s *Store) ClearPlayableFile(ctx context.Context, id string) error {
	query := `
	UPDATE source_assets
	SET playable_file = NULL, updated_at = ?
	WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, s.stamp(), id); err != nil {
		return fmt.Errorf("clear playable file %s: %w", id, err)
	}
	return nil
}

func (s *Store) SetDeleted(ctx context.Context, id string, deleted bool) error {
	query := `
	INSERT INTO source_assets (id, deleted, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		deleted = excluded.deleted,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, id, deleted, s.stamp()); err != nil {
		return fmt.Errorf("set deleted %s: %w", id, err)
	}
	return nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_AppliesWAL(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "wal.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	issues, err := QuickCheck(ctx, db)
	require.NoError(t, err)
	assert.Nil(t, issues)
}

func TestMigrate_IsIncremental(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "m.sqlite")
	db, err := Open(ctx, path, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	steps := []string{
		`CREATE TABLE a (id TEXT PRIMARY KEY)`,
	}
	require.NoError(t, Migrate(ctx, db, steps))
	// re-running must not re-apply the first step
	require.NoError(t, Migrate(ctx, db, steps))

	steps = append(steps, `ALTER TABLE a ADD COLUMN note TEXT`)
	require.NoError(t, Migrate(ctx, db, steps))

	var version int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, 2, version)

	_, err = db.ExecContext(ctx, `INSERT INTO a (id, note) VALUES ('x', 'y')`)
	require.NoError(t, err)
}

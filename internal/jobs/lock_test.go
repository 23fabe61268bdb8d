// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/cinevault/internal/transcoder"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocker(t *testing.T) (*miniredis.Miniredis, *RedisLocker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisLocker(client, "test:lock:")
}

func TestRedisLocker_Exclusive(t *testing.T) {
	mr, l := setupLocker(t)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "42", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:42"))

	_, err = l.Acquire(ctx, "42", time.Minute)
	assert.ErrorIs(t, err, ErrLockBusy)

	other, err := l.Acquire(ctx, "7", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("test:lock:42"))

	_, err = l.Acquire(ctx, "42", time.Minute)
	assert.NoError(t, err)
}

func TestRedisLocker_ReleaseDoesNotStealTakenOverLock(t *testing.T) {
	mr, l := setupLocker(t)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "42", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := l.Acquire(ctx, "42", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("test:lock:42"), "stale holder must not delete the new lease")
	assert.ErrorIs(t, stale.Refresh(ctx, time.Minute), ErrLockBusy)

	require.NoError(t, fresh.Refresh(ctx, time.Hour))
	assert.Greater(t, mr.TTL("test:lock:42"), 30*time.Minute)
}

func TestRunner_LockHeldElsewhereFailsJob(t *testing.T) {
	mr, l := setupLocker(t)
	require.NoError(t, mr.Set("test:lock:42", "someone-else"))

	called := false
	r := NewRunner(ExecutorFunc(func(context.Context, transcoder.Job) error {
		called = true
		return nil
	}), l, testConfig(), zerolog.Nop())
	defer shutdown(t, r)

	h, err := r.Enqueue(transcoder.Job{AssetID: "42"})
	require.NoError(t, err)
	st := waitState(t, r, h, StateFailed)
	assert.Equal(t, "lock_busy", st.Error)
	assert.False(t, called)
}

func TestRunner_ReleasesLockAfterJob(t *testing.T) {
	mr, l := setupLocker(t)
	r := NewRunner(ExecutorFunc(func(context.Context, transcoder.Job) error { return nil }), l, testConfig(), zerolog.Nop())
	defer shutdown(t, r)

	h, err := r.Enqueue(transcoder.Job{AssetID: "42"})
	require.NoError(t, err)
	waitState(t, r, h, StateSucceeded)
	assert.False(t, mr.Exists("test:lock:42"))
}

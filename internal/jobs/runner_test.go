// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/cinevault/internal/objectstore"
	"github.com/ManuGH/cinevault/internal/transcoder"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testConfig() Config {
	return Config{
		Workers:         2,
		QueueSize:       8,
		MaxAttempts:     1,
		RetryBackoff:    time.Millisecond,
		MaxRetryBackoff: 5 * time.Millisecond,
		JobTimeout:      5 * time.Second,
		StatusTTL:       time.Hour,
		LockTTL:         time.Second,
	}
}

func shutdown(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
}

func waitState(t *testing.T, r *Runner, handle string, want State) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		var err error
		st, err = r.Get(handle)
		return err == nil && st.State == want
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s (last %s)", handle, want, st.State)
	return st
}

func TestRunner_Succeeds(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var got atomic.Value
	r := NewRunner(ExecutorFunc(func(ctx context.Context, job transcoder.Job) error {
		got.Store(job)
		return nil
	}), nil, testConfig(), zerolog.Nop())
	defer shutdown(t, r)

	h, err := r.Enqueue(transcoder.Job{AssetID: "42"})
	require.NoError(t, err)
	assert.NotEmpty(t, h)

	st := waitState(t, r, h, StateSucceeded)
	assert.Equal(t, 1, st.Attempts)
	assert.Equal(t, "42", st.AssetID)
	assert.NotNil(t, st.StartedAt)
	assert.NotNil(t, st.FinishedAt)
	assert.Empty(t, st.Error)
	assert.Equal(t, transcoder.Job{AssetID: "42", SourceName: "42.mp4"}, got.Load())
}

func TestRunner_RejectsInvalidAsset(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := NewRunner(ExecutorFunc(func(context.Context, transcoder.Job) error { return nil }), nil, testConfig(), zerolog.Nop())
	defer shutdown(t, r)

	_, err := r.Enqueue(transcoder.Job{AssetID: "a/b"})
	assert.Error(t, err)
}

func TestRunner_SerializesPerAssetLastEnqueuedWins(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	var (
		mu      sync.Mutex
		order   []string
		running int32
		overlap atomic.Bool
	)
	exec := ExecutorFunc(func(ctx context.Context, job transcoder.Job) error {
		if atomic.AddInt32(&running, 1) > 1 {
			overlap.Store(true)
		}
		defer atomic.AddInt32(&running, -1)

		mu.Lock()
		order = append(order, job.SourceName)
		mu.Unlock()
		if job.SourceName == "first" {
			<-release
		}
		return nil
	})

	r := NewRunner(exec, nil, testConfig(), zerolog.Nop())
	defer shutdown(t, r)

	h1, err := r.Enqueue(transcoder.Job{AssetID: "42", SourceName: "first"})
	require.NoError(t, err)
	waitState(t, r, h1, StateRunning)

	h2, err := r.Enqueue(transcoder.Job{AssetID: "42", SourceName: "second"})
	require.NoError(t, err)
	h3, err := r.Enqueue(transcoder.Job{AssetID: "42", SourceName: "third"})
	require.NoError(t, err)

	st2, err := r.Get(h2)
	require.NoError(t, err)
	assert.Equal(t, StateSuperseded, st2.State)
	st3, err := r.Get(h3)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, st3.State)

	close(release)
	waitState(t, r, h1, StateSucceeded)
	waitState(t, r, h3, StateSucceeded)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "third"}, order)
	assert.False(t, overlap.Load(), "jobs for one asset must never overlap")
}

func TestRunner_DifferentAssetsRunConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var wg sync.WaitGroup
	wg.Add(2)
	both := make(chan struct{})
	go func() {
		wg.Wait()
		close(both)
	}()
	exec := ExecutorFunc(func(ctx context.Context, job transcoder.Job) error {
		wg.Done()
		select {
		case <-both:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	r := NewRunner(exec, nil, testConfig(), zerolog.Nop())
	defer shutdown(t, r)

	h1, err := r.Enqueue(transcoder.Job{AssetID: "1"})
	require.NoError(t, err)
	h2, err := r.Enqueue(transcoder.Job{AssetID: "2"})
	require.NoError(t, err)
	waitState(t, r, h1, StateSucceeded)
	waitState(t, r, h2, StateSucceeded)
}

func TestRunner_RetriesTransientFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	exec := ExecutorFunc(func(context.Context, transcoder.Job) error {
		if calls.Add(1) == 1 {
			return fmt.Errorf("upload: %w", objectstore.ErrStorageUnavailable)
		}
		return nil
	})
	cfg := testConfig()
	cfg.MaxAttempts = 3
	r := NewRunner(exec, nil, cfg, zerolog.Nop())
	defer shutdown(t, r)

	h, err := r.Enqueue(transcoder.Job{AssetID: "42"})
	require.NoError(t, err)
	st := waitState(t, r, h, StateSucceeded)
	assert.Equal(t, 2, st.Attempts)
}

func TestRunner_FailsAfterMaxAttempts(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	exec := ExecutorFunc(func(context.Context, transcoder.Job) error {
		return fmt.Errorf("rendition 1080p: %w", &transcoder.ExitError{Rendition: "1080p", ExitCode: 1})
	})
	cfg := testConfig()
	cfg.MaxAttempts = 2
	r := NewRunner(exec, nil, cfg, zerolog.Nop())
	defer shutdown(t, r)

	h, err := r.Enqueue(transcoder.Job{AssetID: "7"})
	require.NoError(t, err)
	st := waitState(t, r, h, StateFailed)
	assert.Equal(t, 2, st.Attempts)
	assert.Equal(t, "transcode_failed", st.Error)
}

func TestRunner_JobTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	exec := ExecutorFunc(func(ctx context.Context, _ transcoder.Job) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cfg := testConfig()
	cfg.JobTimeout = 20 * time.Millisecond
	r := NewRunner(exec, nil, cfg, zerolog.Nop())
	defer shutdown(t, r)

	h, err := r.Enqueue(transcoder.Job{AssetID: "42"})
	require.NoError(t, err)
	st := waitState(t, r, h, StateFailed)
	assert.Equal(t, "timeout", st.Error)
}

func TestRunner_PanicFailsJob(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRunner(ExecutorFunc(func(context.Context, transcoder.Job) error {
		panic("boom")
	}), nil, testConfig(), zerolog.Nop())
	defer shutdown(t, r)

	h, err := r.Enqueue(transcoder.Job{AssetID: "42"})
	require.NoError(t, err)
	st := waitState(t, r, h, StateFailed)
	assert.Equal(t, "internal_error", st.Error)
}

func TestRunner_ShutdownCancelsRunningJob(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, _ transcoder.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	r := NewRunner(exec, nil, testConfig(), zerolog.Nop())

	h, err := r.Enqueue(transcoder.Job{AssetID: "42"})
	require.NoError(t, err)
	<-started

	shutdown(t, r)

	st, err := r.Get(h)
	require.NoError(t, err)
	assert.Equal(t, StateCanceled, st.State)

	_, err = r.Enqueue(transcoder.Job{AssetID: "43"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRunner_QueueFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	block := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, _ transcoder.Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	r := NewRunner(exec, nil, cfg, zerolog.Nop())
	defer shutdown(t, r)
	defer close(block)

	h1, err := r.Enqueue(transcoder.Job{AssetID: "1"})
	require.NoError(t, err)
	waitState(t, r, h1, StateRunning)

	_, err = r.Enqueue(transcoder.Job{AssetID: "2"})
	require.NoError(t, err)
	_, err = r.Enqueue(transcoder.Job{AssetID: "3"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestRunner_StatusExpires(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRunner(ExecutorFunc(func(context.Context, transcoder.Job) error { return nil }), nil, testConfig(), zerolog.Nop())
	defer shutdown(t, r)

	h, err := r.Enqueue(transcoder.Job{AssetID: "42"})
	require.NoError(t, err)
	waitState(t, r, h, StateSucceeded)

	r.mu.Lock()
	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	r.mu.Unlock()

	_, err = r.Get(h)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = r.Get("unknown")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestClassify(t *testing.T) {
	cases := map[string]error{
		"timeout":          context.DeadlineExceeded,
		"lock_busy":        ErrLockBusy,
		"source_missing":   fmt.Errorf("stage: %w", objectstore.ErrNotFound),
		"storage_error":    objectstore.ErrWriteFailed,
		"transcode_failed": transcoder.ErrTranscodeFailed,
		"internal_error":   errors.New("x"),
	}
	for want, err := range cases {
		assert.Equal(t, want, classify(err), "%v", err)
	}
}

func TestRunner_CancelAsset(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{}, 1)
	r := NewRunner(ExecutorFunc(func(ctx context.Context, job transcoder.Job) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}), nil, testConfig(), zerolog.Nop())
	defer shutdown(t, r)

	active, err := r.Enqueue(transcoder.Job{AssetID: "42"})
	require.NoError(t, err)
	<-started
	pending, err := r.Enqueue(transcoder.Job{AssetID: "42"})
	require.NoError(t, err)

	assert.Equal(t, 2, r.CancelAsset("42", "purged"))

	st := waitState(t, r, active, StateCanceled)
	assert.Equal(t, "purged", st.Error)
	st = waitState(t, r, pending, StateCanceled)
	assert.Equal(t, "purged", st.Error)

	require.Eventually(t, func() bool { return r.CancelAsset("42", "purged") == 0 }, 5*time.Second, 5*time.Millisecond)
	assert.Zero(t, r.CancelAsset("7", "purged"))
}

func TestRunner_CancelAssetAndWaitBlocksUntilExecutorReturns(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	release := make(chan struct{})
	var returned atomic.Bool
	r := NewRunner(ExecutorFunc(func(ctx context.Context, _ transcoder.Job) error {
		close(started)
		<-ctx.Done()
		// an upload still draining after cancel
		<-release
		returned.Store(true)
		return ctx.Err()
	}), nil, testConfig(), zerolog.Nop())
	defer shutdown(t, r)

	h, err := r.Enqueue(transcoder.Job{AssetID: "42"})
	require.NoError(t, err)
	<-started

	type result struct {
		n   int
		err error
	}
	res := make(chan result, 1)
	go func() {
		n, err := r.CancelAssetAndWait(context.Background(), "42", "purged")
		res <- result{n, err}
	}()

	select {
	case <-res:
		t.Fatal("returned while the executor was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	got := <-res
	require.NoError(t, got.err)
	assert.Equal(t, 1, got.n)
	assert.True(t, returned.Load())

	st, err := r.Get(h)
	require.NoError(t, err)
	assert.Equal(t, StateCanceled, st.State)
	assert.Equal(t, "purged", st.Error)
}

func TestRunner_CancelAssetAndWaitHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	release := make(chan struct{})
	r := NewRunner(ExecutorFunc(func(ctx context.Context, _ transcoder.Job) error {
		close(started)
		<-release
		return nil
	}), nil, testConfig(), zerolog.Nop())
	defer shutdown(t, r)
	defer close(release)

	_, err := r.Enqueue(transcoder.Job{AssetID: "42"})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	n, err := r.CancelAssetAndWait(ctx, "42", "purged")
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunner_CancelAssetAndWaitDropsQueuedJob(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	block := make(chan struct{})
	var ran sync.Map
	exec := ExecutorFunc(func(ctx context.Context, job transcoder.Job) error {
		ran.Store(job.AssetID, true)
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})
	cfg := testConfig()
	cfg.Workers = 1
	r := NewRunner(exec, nil, cfg, zerolog.Nop())
	defer shutdown(t, r)

	h1, err := r.Enqueue(transcoder.Job{AssetID: "1"})
	require.NoError(t, err)
	waitState(t, r, h1, StateRunning)
	h2, err := r.Enqueue(transcoder.Job{AssetID: "2"})
	require.NoError(t, err)

	// the only worker is busy, so waiting must not depend on it
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := r.CancelAssetAndWait(ctx, "2", "purged")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := r.Get(h2)
	require.NoError(t, err)
	assert.Equal(t, StateCanceled, st.State)

	close(block)
	waitState(t, r, h1, StateSucceeded)
	require.Eventually(t, func() bool { return r.CancelAsset("2", "purged") == 0 }, 5*time.Second, 5*time.Millisecond)
	_, ok := ran.Load("2")
	assert.False(t, ok, "a canceled queued job must never reach the executor")
}

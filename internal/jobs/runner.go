// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	xglog "github.com/ManuGH/cinevault/internal/log"
	"github.com/ManuGH/cinevault/internal/media"
	"github.com/ManuGH/cinevault/internal/metrics"
	"github.com/ManuGH/cinevault/internal/objectstore"
	"github.com/ManuGH/cinevault/internal/telemetry"
	"github.com/ManuGH/cinevault/internal/transcoder"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// run is the runner's private record of one job.
type run struct {
	job    transcoder.Job
	status Status
	done   chan struct{} // closed once the run is terminal and its executor has returned

	// guarded by Runner.mu
	cancel   context.CancelFunc
	canceled string
}

// Runner executes jobs on a fixed pool of workers.
//
// Per asset there is at most one active job (queued for a worker or running)
// and at most one pending job parked behind it. Enqueueing while a pending
// job exists supersedes it, so the latest upload always wins and two runs
// for the same asset never overlap.
type Runner struct {
	exec   Executor
	locker Locker
	cfg    Config
	log    zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time

	mu       sync.Mutex
	closed   bool
	active   map[string]*run
	pending  map[string]*run
	statuses map[string]*run
	queue    chan *run

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner starts cfg.Workers workers. A nil locker means LocalLocker.
func NewRunner(exec Executor, locker Locker, cfg Config, logger zerolog.Logger) *Runner {
	cfg = cfg.withDefaults()
	if locker == nil {
		locker = LocalLocker{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		exec:     exec,
		locker:   locker,
		cfg:      cfg,
		log:      logger.With().Str(xglog.FieldComponent, "jobs").Logger(),
		tracer:   telemetry.Tracer("cinevault/jobs"),
		now:      time.Now,
		active:   make(map[string]*run),
		pending:  make(map[string]*run),
		statuses: make(map[string]*run),
		queue:    make(chan *run, cfg.QueueSize),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Enqueue registers job and returns its handle immediately.
func (r *Runner) Enqueue(job transcoder.Job) (string, error) {
	if err := media.ValidateAssetID(job.AssetID); err != nil {
		return "", err
	}
	if job.SourceName == "" {
		job.SourceName = media.SourceName(job.AssetID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		metrics.IncJobEnqueued("rejected")
		return "", ErrClosed
	}
	r.sweepLocked()

	now := r.now()
	j := &run{
		job: job,
		status: Status{
			Handle:     uuid.NewString(),
			AssetID:    job.AssetID,
			State:      StateQueued,
			EnqueuedAt: now,
		},
		done: make(chan struct{}),
	}
	logger := r.log.With().
		Str(xglog.FieldJobID, j.status.Handle).
		Str(xglog.FieldAssetID, job.AssetID).
		Logger()

	if _, busy := r.active[job.AssetID]; busy {
		if prev := r.pending[job.AssetID]; prev != nil {
			if r.finishLocked(prev, StateSuperseded, "") {
				metrics.IncJobFinished(string(StateSuperseded))
			}
			logger.Info().Str("superseded", prev.status.Handle).Msg("pending job superseded")
		}
		r.pending[job.AssetID] = j
		r.statuses[j.status.Handle] = j
		metrics.IncJobEnqueued("parked")
		logger.Info().Msg("job parked behind active job for asset")
		return j.status.Handle, nil
	}

	select {
	case r.queue <- j:
	default:
		metrics.IncJobEnqueued("rejected")
		return "", ErrQueueFull
	}
	r.active[job.AssetID] = j
	r.statuses[j.status.Handle] = j
	metrics.IncJobEnqueued("queued")
	logger.Info().Msg("job enqueued")
	return j.status.Handle, nil
}

// Get returns a copy of the job's status.
func (r *Runner) Get(handle string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.statuses[handle]
	if !ok || r.expiredLocked(j) {
		return Status{}, ErrJobNotFound
	}
	return j.status, nil
}

// CancelAsset drops the asset's pending job and cancels its active one.
// It reports how many jobs were affected and returns without waiting for a
// running executor to stop.
func (r *Runner) CancelAsset(assetID, reason string) int {
	n, _ := r.cancelAsset(assetID, reason)
	return n
}

// CancelAssetAndWait is CancelAsset followed by a wait until the asset's
// active job is terminal, so nothing it writes can land after the return.
func (r *Runner) CancelAssetAndWait(ctx context.Context, assetID, reason string) (int, error) {
	n, done := r.cancelAsset(assetID, reason)
	if done == nil {
		return n, nil
	}
	select {
	case <-done:
		return n, nil
	case <-ctx.Done():
		return n, fmt.Errorf("wait for job of asset %s: %w", assetID, ctx.Err())
	}
}

// cancelAsset returns the done channel of the active run, if any.
func (r *Runner) cancelAsset(assetID, reason string) (int, <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	var done <-chan struct{}
	if p := r.pending[assetID]; p != nil {
		if r.finishLocked(p, StateCanceled, reason) {
			metrics.IncJobFinished(string(StateCanceled))
		}
		delete(r.pending, assetID)
		n++
	}
	if a := r.active[assetID]; a != nil {
		a.canceled = reason
		switch {
		case a.cancel != nil:
			a.cancel()
		case a.status.State == StateQueued:
			// never handed to the executor; the worker only drops it
			if r.finishLocked(a, StateCanceled, reason) {
				metrics.IncJobFinished(string(StateCanceled))
			}
		}
		done = a.done
		n++
	}
	if n > 0 {
		r.log.Info().Str(xglog.FieldAssetID, assetID).Str("reason", reason).Int("jobs", n).Msg("jobs canceled for asset")
	}
	return n, done
}

// Shutdown stops intake, cancels running jobs and waits for workers to exit.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		for asset, p := range r.pending {
			r.finishLocked(p, StateCanceled, "shutdown")
			delete(r.pending, asset)
		}
		close(r.queue)
	}
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job runner shutdown: %w", ctx.Err())
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for j := range r.queue {
		// keep the slot for the asset's pending job so ordering holds
		for j != nil {
			r.execute(j)
			j = r.next(j)
		}
	}
}

// next releases the asset and promotes its pending job, if any.
func (r *Runner) next(done *run) *run {
	r.mu.Lock()
	defer r.mu.Unlock()
	asset := done.job.AssetID
	delete(r.active, asset)
	p := r.pending[asset]
	if p == nil {
		return nil
	}
	delete(r.pending, asset)
	if r.closed {
		return nil
	}
	r.active[asset] = p
	return p
}

func (r *Runner) execute(j *run) {
	ctx, cancel := context.WithCancel(r.baseCtx)
	defer cancel()
	ctx = xglog.ContextWithJobID(ctx, j.status.Handle)
	ctx = xglog.ContextWithAssetID(ctx, j.job.AssetID)
	logger := xglog.WithContext(ctx, r.log)

	if ctx.Err() != nil {
		r.finish(j, StateCanceled, "shutdown")
		return
	}

	r.mu.Lock()
	if reason := j.canceled; reason != "" {
		r.mu.Unlock()
		r.finish(j, StateCanceled, reason)
		return
	}
	j.cancel = cancel
	started := r.now()
	j.status.State = StateRunning
	j.status.StartedAt = &started
	r.mu.Unlock()

	metrics.JobStarted()
	defer metrics.JobDone()

	logger.Info().
		Str(xglog.FieldOldState, string(StateQueued)).
		Str(xglog.FieldNewState, string(StateRunning)).
		Msg("job started")

	err := r.attempts(ctx, j, logger)

	// a job canceled for its asset stays canceled even if its executor
	// finished anyway
	switch reason := r.canceledReason(j); {
	case reason != "":
		r.finish(j, StateCanceled, reason)
		logger.Warn().Err(err).Msg("job canceled")
	case err == nil:
		r.finish(j, StateSucceeded, "")
		logger.Info().Dur("duration", time.Since(started)).Msg("job succeeded")
	case r.baseCtx.Err() != nil:
		r.finish(j, StateCanceled, "shutdown")
		logger.Warn().Err(err).Msg("job canceled")
	default:
		r.finish(j, StateFailed, classify(err))
		logger.Error().Err(err).Int(xglog.FieldAttempt, r.attemptsOf(j)).Msg("job failed")
	}
}

// attempts runs the executor with exponential backoff. Each attempt restarts
// the job from scratch under its own timeout.
func (r *Runner) attempts(ctx context.Context, j *run, logger zerolog.Logger) (err error) {
	defer func() {
		// a panicking executor fails the job instead of the process
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("job panicked")
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryBackoff
	b.MaxInterval = r.cfg.MaxRetryBackoff

	op := func() (struct{}, error) {
		attempt := r.bumpAttempt(j)
		err := r.attempt(ctx, j, attempt)
		if err == nil {
			metrics.IncJobAttempt("ok")
			return struct{}{}, nil
		}
		metrics.IncJobAttempt("error")
		if !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(time.Duration(r.cfg.MaxAttempts)*(r.cfg.JobTimeout+r.cfg.MaxRetryBackoff)),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Warn().Err(err).Dur("retry_in", d).Msg("job attempt failed, retrying")
		}),
	)
	return err
}

func (r *Runner) attempt(ctx context.Context, j *run, attempt int) (err error) {
	ctx, span := r.tracer.Start(ctx, "jobs.attempt",
		trace.WithAttributes(telemetry.JobAttributes(j.status.Handle, j.job.AssetID, attempt, "")...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, classify(err))
		}
		span.End()
	}()

	lease, err := r.locker.Acquire(ctx, j.job.AssetID, r.cfg.LockTTL)
	if err != nil {
		return err
	}
	defer func() {
		// release must outlive a canceled job context
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if relErr := lease.Release(relCtx); relErr != nil {
			r.log.Warn().Err(relErr).Str(xglog.FieldAssetID, j.job.AssetID).Msg("lock release failed")
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()

	stopRefresh := r.keepAlive(runCtx, cancel, lease)
	defer stopRefresh()

	return r.exec.Run(runCtx, j.job)
}

// keepAlive renews the lease until stopped; losing it cancels the job so two
// instances never publish the same asset concurrently.
func (r *Runner) keepAlive(ctx context.Context, cancel context.CancelFunc, lease Lease) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(r.cfg.LockTTL / 3)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := lease.Refresh(ctx, r.cfg.LockTTL); err != nil {
					r.log.Error().Err(err).Msg("asset lock lost, canceling job")
					cancel()
					return
				}
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

func (r *Runner) canceledReason(j *run) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return j.canceled
}

func (r *Runner) bumpAttempt(j *run) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	j.status.Attempts++
	return j.status.Attempts
}

func (r *Runner) attemptsOf(j *run) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return j.status.Attempts
}

func (r *Runner) finish(j *run, state State, reason string) {
	r.mu.Lock()
	changed := r.finishLocked(j, state, reason)
	r.mu.Unlock()
	if changed {
		metrics.IncJobFinished(string(state))
	}
}

// finishLocked records the terminal state once; later calls are no-ops.
func (r *Runner) finishLocked(j *run, state State, reason string) bool {
	if j.status.FinishedAt != nil {
		return false
	}
	now := r.now()
	j.status.State = state
	j.status.FinishedAt = &now
	j.status.Error = reason
	close(j.done)
	return true
}

func (r *Runner) expiredLocked(j *run) bool {
	return j.status.FinishedAt != nil && r.now().Sub(*j.status.FinishedAt) > r.cfg.StatusTTL
}

func (r *Runner) sweepLocked() {
	for h, j := range r.statuses {
		if r.expiredLocked(j) {
			delete(r.statuses, h)
		}
	}
}

func retryable(err error) bool {
	return !errors.Is(err, media.ErrInvalidAssetID) &&
		!errors.Is(err, objectstore.ErrInvalidName) &&
		!errors.Is(err, context.Canceled)
}

// classify maps an error to the generic reason exposed on the status surface.
func classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLockBusy):
		return "lock_busy"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, transcoder.ErrTranscodeFailed):
		return "transcode_failed"
	case errors.Is(err, objectstore.ErrNotFound):
		return "source_missing"
	case errors.Is(err, objectstore.ErrStorageUnavailable), errors.Is(err, objectstore.ErrWriteFailed):
		return "storage_error"
	default:
		return "internal_error"
	}
}

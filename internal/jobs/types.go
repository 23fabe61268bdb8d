// SPDX-License-Identifier: MIT

// Package jobs runs transcode jobs out of band on a bounded worker pool,
// never letting two jobs for the same asset overlap.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/cinevault/internal/transcoder"
)

var (
	// ErrClosed is returned by Enqueue after Shutdown.
	ErrClosed = errors.New("job runner closed")
	// ErrQueueFull is returned when the worker queue has no free slot.
	ErrQueueFull = errors.New("job queue full")
	// ErrJobNotFound is returned for unknown or expired handles.
	ErrJobNotFound = errors.New("job not found")
	// ErrLockBusy means another instance holds the asset lock.
	ErrLockBusy = errors.New("asset lock held elsewhere")
)

// State of a job as seen through the status surface.
type State string

const (
	StateQueued     State = "queued"
	StateRunning    State = "running"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateSuperseded State = "superseded" // replaced by a later job for the same asset before it started
	StateCanceled   State = "canceled"
)

// Terminal reports whether the state can no longer change.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateSuperseded, StateCanceled:
		return true
	}
	return false
}

// Status is a point-in-time copy of a job's bookkeeping. Error holds a
// classification, never raw error text.
type Status struct {
	Handle     string     `json:"handle"`
	AssetID    string     `json:"assetId"`
	State      State      `json:"state"`
	Attempts   int        `json:"attempts"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Executor performs one attempt of a job.
type Executor interface {
	Run(ctx context.Context, job transcoder.Job) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job transcoder.Job) error

func (f ExecutorFunc) Run(ctx context.Context, job transcoder.Job) error { return f(ctx, job) }

// Config tunes the runner.
type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	// RetryBackoff is the first retry delay; later delays grow exponentially.
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	// JobTimeout bounds each attempt.
	JobTimeout time.Duration
	// StatusTTL is how long finished statuses stay queryable.
	StatusTTL time.Duration
	// LockTTL is the lease on the cross-instance asset lock; it is renewed while the job runs.
	LockTTL time.Duration
}

// DefaultConfig returns the daemon defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         2,
		QueueSize:       64,
		MaxAttempts:     3,
		RetryBackoff:    30 * time.Second,
		MaxRetryBackoff: 10 * time.Minute,
		JobTimeout:      2 * time.Hour,
		StatusTTL:       24 * time.Hour,
		LockTTL:         time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.MaxRetryBackoff < c.RetryBackoff {
		c.MaxRetryBackoff = max(d.MaxRetryBackoff, c.RetryBackoff)
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = d.StatusTTL
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	return c
}

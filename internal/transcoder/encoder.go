// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	xglog "github.com/ManuGH/cinevault/internal/log"
	"github.com/ManuGH/cinevault/internal/metrics"
	"github.com/ManuGH/cinevault/internal/procgroup"
	"github.com/rs/zerolog"
)

// Encoder turns a local source into one HLS rendition inside spec.WorkDir.
// A failed pass returns an error matching ErrTranscodeFailed.
type Encoder interface {
	Encode(ctx context.Context, spec EncodeSpec) error
}

// FFmpegConfig tunes encoder supervision.
type FFmpegConfig struct {
	Bin string
	// StartupGrace is how long the encoder may stay silent after start.
	StartupGrace time.Duration
	// StallTimeout kills the encoder when progress stops advancing for this long.
	StallTimeout time.Duration
	Tick         time.Duration
	// KillGrace is the delay between SIGTERM on cancellation and SIGKILL.
	KillGrace time.Duration
}

func (c FFmpegConfig) withDefaults() FFmpegConfig {
	if c.Bin == "" {
		c.Bin = "ffmpeg"
	}
	if c.StartupGrace <= 0 {
		c.StartupGrace = 30 * time.Second
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 5 * time.Minute
	}
	if c.Tick <= 0 {
		c.Tick = 5 * time.Second
	}
	if c.KillGrace <= 0 {
		c.KillGrace = 5 * time.Second
	}
	return c
}

// FFmpegEncoder runs ffmpeg with progress supervision and stall detection.
type FFmpegEncoder struct {
	cfg FFmpegConfig
	log zerolog.Logger
}

func NewFFmpegEncoder(cfg FFmpegConfig, logger zerolog.Logger) *FFmpegEncoder {
	return &FFmpegEncoder{
		cfg: cfg.withDefaults(),
		log: logger.With().Str(xglog.FieldComponent, "ffmpeg").Logger(),
	}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, spec EncodeSpec) error {
	args := append([]string{"-hide_banner", "-nostdin", "-loglevel", "error", "-progress", "pipe:1"}, BuildArgs(spec)...)
	cmd := exec.CommandContext(ctx, e.cfg.Bin, args...)
	cmd.Dir = spec.WorkDir
	procgroup.Set(cmd)
	cmd.Cancel = func() error { return procgroup.Terminate(cmd) }
	cmd.WaitDelay = e.cfg.KillGrace

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	logger := xglog.WithContext(ctx, e.log).With().
		Str(xglog.FieldRendition, spec.Rendition.Name).
		Logger()

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return fmt.Errorf("%w: start %s: %v", ErrTranscodeFailed, e.cfg.Bin, err)
	}
	logger.Debug().Int("pid", cmd.Process.Pid).Strs("args", args).Msg("encoder started")

	progressCh := make(chan progress, 16)
	go parseProgress(pr, progressCh)

	done := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		done <- err
	}()

	err := e.watch(cmd, done, progressCh, logger)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEncoderStalled):
		return fmt.Errorf("%w: %s: %w", ErrTranscodeFailed, spec.Rendition.Name, err)
	case ctx.Err() != nil:
		return ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		logger.Error().
			Int(xglog.FieldExitCode, exitErr.ExitCode()).
			Str("stderr", stderr.String()).
			Msg("encoder failed")
		return &ExitError{
			Rendition: spec.Rendition.Name,
			ExitCode:  exitErr.ExitCode(),
			Stderr:    stderr.String(),
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrTranscodeFailed, spec.Rendition.Name, err)
}

// watch returns when the process has exited. A stalled encoder is killed
// and reported as ErrEncoderStalled.
func (e *FFmpegEncoder) watch(cmd *exec.Cmd, done <-chan error, progressCh <-chan progress, logger zerolog.Logger) error {
	start := time.Now()
	lastProgressAt := start
	var last progress

	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return err

		case p, ok := <-progressCh:
			if !ok {
				progressCh = nil
				continue
			}
			if p.hasAdvanced(last) {
				last = p
				lastProgressAt = time.Now()
			}

		case <-ticker.C:
			if time.Since(start) < e.cfg.StartupGrace {
				continue
			}
			if time.Since(lastProgressAt) <= e.cfg.StallTimeout {
				continue
			}
			metrics.IncEncoderStall()
			logger.Error().
				Dur("since_progress", time.Since(lastProgressAt)).
				Int64("last_out_time_us", last.OutTimeUs).
				Int64("last_total_size", last.TotalSize).
				Str("last_speed", last.Speed).
				Msg("encoder stalled, killing process group")
			_ = procgroup.Kill(cmd)
			<-done
			return ErrEncoderStalled
		}
	}
}

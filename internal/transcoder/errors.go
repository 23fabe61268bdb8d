// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"errors"
	"fmt"
)

var (
	// ErrTranscodeFailed is matched by every encoder failure. Nothing is
	// published when it is returned, so the job is safe to retry from scratch.
	ErrTranscodeFailed = errors.New("transcode failed")
	// ErrEncoderStalled means the encoder stopped reporting progress and was killed.
	ErrEncoderStalled = errors.New("encoder stalled")
)

// ExitError reports a non-zero encoder exit for one rendition.
type ExitError struct {
	Rendition string
	ExitCode  int
	Stderr    string // tail only
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("encoder exited with status %d for %s: %s", e.ExitCode, e.Rendition, e.Stderr)
}

// Is makes errors.Is(err, ErrTranscodeFailed) hold for exit failures.
func (e *ExitError) Is(target error) bool {
	return target == ErrTranscodeFailed
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup runs encoder processes as group leaders so that the whole
// tree (ffmpeg plus any helpers it forks) can be signalled at once.
package procgroup

import (
	"errors"
	"os/exec"
)

// ErrNotStarted is returned when signalling a command that has no process.
var ErrNotStarted = errors.New("process not started")

// Set configures the command to start in a new process group.
// Must be called before cmd.Start for Terminate and Kill to reach children.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate asks the process group to exit (SIGTERM where supported).
func Terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return ErrNotStarted
	}
	return terminate(cmd)
}

// Kill forcibly stops the process group.
func Kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return ErrNotStarted
	}
	return kill(cmd)
}

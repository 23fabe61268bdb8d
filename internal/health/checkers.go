// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"os/exec"

	"github.com/ManuGH/cinevault/internal/objectstore"
)

// probeObject never exists; a reachable backend answers false without error.
const probeObject = "healthz-probe"

// FuncChecker adapts a plain error-returning probe.
type FuncChecker struct {
	name  string
	check func(ctx context.Context) error
}

// NewFuncChecker reports unhealthy whenever check returns an error.
func NewFuncChecker(name string, check func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, check: check}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) CheckResult {
	if err := c.check(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// StoreChecker verifies the object store answers an existence probe.
type StoreChecker struct {
	store objectstore.Store
}

func NewStoreChecker(store objectstore.Store) *StoreChecker {
	return &StoreChecker{store: store}
}

func (c *StoreChecker) Name() string { return "objectstore" }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	if _, err := c.store.Exists(ctx, probeObject); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.store.Backend()}
	}
	return CheckResult{Status: StatusHealthy, Message: c.store.Backend()}
}

// EncoderChecker degrades when the encoder binary disappears from PATH.
// Playback keeps working without it, so it never reports unhealthy.
type EncoderChecker struct {
	bin      string
	lookPath func(string) (string, error)
}

func NewEncoderChecker(bin string) *EncoderChecker {
	return &EncoderChecker{bin: bin, lookPath: exec.LookPath}
}

func (c *EncoderChecker) Name() string { return "encoder" }

func (c *EncoderChecker) Check(context.Context) CheckResult {
	path, err := c.lookPath(c.bin)
	if err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: "uploads will not be transcoded"}
	}
	return CheckResult{Status: StatusHealthy, Message: path}
}

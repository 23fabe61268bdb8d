// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/cinevault/internal/config"
	xglog "github.com/ManuGH/cinevault/internal/log"
)

// PerformStartupChecks validates the environment and dependencies before starting the server.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := xglog.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkWritableDir(logger, cfg.Transcode.WorkDir); err != nil {
		return fmt.Errorf("work directory check failed: %w", err)
	}
	if cfg.Storage.Backend == "fs" {
		if err := checkWritableDir(logger, cfg.Storage.FS.Root); err != nil {
			return fmt.Errorf("object root check failed: %w", err)
		}
	}
	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("database directory: %w", err)
		}
	}

	if path, err := exec.LookPath(cfg.FFmpeg.Bin); err != nil {
		// Playback still works; transcode jobs will fail until it is installed.
		logger.Warn().Err(err).Str("bin", cfg.FFmpeg.Bin).Msg("encoder binary not found")
	} else {
		logger.Info().Str("ffmpeg", path).Msg("encoder binary available")
	}

	if cfg.Entitlement.URL == "" {
		logger.Warn().Msg("entitlement url not configured; every playback request will be denied")
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("jwt secret not configured; viewer endpoints reject all tokens")
	}
	if cfg.Auth.AdminToken == "" {
		logger.Warn().Msg("admin token not configured; upload and delete endpoints are disabled")
	}

	logger.Info().Msg("startup checks passed")
	return nil
}

func checkWritableDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str(xglog.FieldPath, path).Msg("directory is writable")
	return nil
}

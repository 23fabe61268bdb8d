// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/cinevault/internal/media"
	"github.com/ManuGH/cinevault/internal/validate"
)

// withDirs points every directory setting into a temp dir so validation can
// create them.
func withDirs(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"FS_ROOT", filepath.Join(dir, "objects"))
	t.Setenv(EnvPrefix+"TRANSCODE_WORK_DIR", filepath.Join(dir, "work"))
	t.Setenv(EnvPrefix+"DATABASE_PATH", filepath.Join(dir, "db.sqlite"))
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	withDirs(t)

	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "fs", cfg.Storage.Backend)
	assert.Equal(t, 6, cfg.Transcode.SegmentSeconds)
	assert.Equal(t, 128, cfg.Transcode.AudioBitrateKbps)
	assert.Equal(t, 2*time.Hour, cfg.Transcode.JobTimeout)
	assert.Equal(t, time.Hour, cfg.Playback.SignedURLTTL)
	assert.Equal(t, 2*time.Hour, cfg.Playback.SegmentURLTTL)
	assert.Equal(t, time.Minute, cfg.Playback.FetchURLTTL)
	assert.Equal(t, media.DefaultLadder(), cfg.MediaLadder())
}

func TestLoad_PrecedenceEnvOverFileOverDefaults(t *testing.T) {
	withDirs(t)
	path := writeFile(t, `
server:
  listen_addr: ":9000"
  rate_limit_rpm: 10
transcode:
  segment_seconds: 4
jobs:
  workers: 5
`)
	t.Setenv(EnvPrefix+"JOBS_WORKERS", "7")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.ListenAddr, "file over default")
	assert.Equal(t, 10, cfg.Server.RateLimitRPM)
	assert.Equal(t, 4, cfg.Transcode.SegmentSeconds)
	assert.Equal(t, 7, cfg.Jobs.Workers, "env over file")
	assert.Equal(t, 64, cfg.Jobs.QueueSize, "untouched default")
}

func TestLoad_FileLadderReplacesDefault(t *testing.T) {
	withDirs(t)
	path := writeFile(t, `
transcode:
  ladder:
    - {name: 360p, height: 360, bitrate_kbps: 600}
    - {name: 720p, height: 720, bitrate_kbps: 2500}
`)
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, media.Ladder{
		{Name: "360p", Height: 360, BitrateKbps: 600},
		{Name: "720p", Height: 720, BitrateKbps: 2500},
	}, cfg.MediaLadder())
}

func TestLoad_EnvLadder(t *testing.T) {
	withDirs(t)
	t.Setenv(EnvPrefix+"TRANSCODE_LADDER", "480p:480:1000, 1080p:1080:5000")

	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"480p", "1080p"}, cfg.MediaLadder().Names())

	t.Setenv(EnvPrefix+"TRANSCODE_LADDER", "480p:480")
	_, err = NewLoader("", "").Load()
	assert.Error(t, err)
}

func TestLoad_StrictUnknownField(t *testing.T) {
	withDirs(t)
	path := writeFile(t, "server:\n  listen_port: 8080\n")

	_, err := NewLoader(path, "").Load()
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoad_RejectsNonYAMLAndMultiDoc(t *testing.T) {
	withDirs(t)
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte("{}"), 0o600))
	_, err := NewLoader(p, "").Load()
	assert.Error(t, err)

	_, err = NewLoader(writeFile(t, "log:\n  level: info\n---\nlog:\n  level: debug\n"), "").Load()
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	withDirs(t)
	_, err := NewLoader(writeFile(t, ""), "").Load()
	assert.NoError(t, err)
}

func TestLoad_InvalidEnvFallsBackToDefault(t *testing.T) {
	withDirs(t)
	t.Setenv(EnvPrefix+"JOBS_WORKERS", "many")
	t.Setenv(EnvPrefix+"TRANSCODE_JOB_TIMEOUT", "forever")

	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Jobs.Workers)
	assert.Equal(t, 2*time.Hour, cfg.Transcode.JobTimeout)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Backend = "s3"
	cfg.Transcode.WorkDir = t.TempDir()
	cfg.Jobs.Workers = 0
	cfg.Playback.SegmentURLTTL = 0
	cfg.Auth.JWTSecret = "short"

	err := Validate(cfg)
	require.Error(t, err)

	var ve validate.ValidationError
	require.ErrorAs(t, err, &ve)
	fields := map[string]bool{}
	for _, e := range ve.Errors() {
		fields[e.Field] = true
	}
	for _, f := range []string{"storage.s3.bucket", "jobs.workers", "playback.segment_url_ttl", "auth.jwt_secret"} {
		assert.True(t, fields[f], "missing error for %s", f)
	}
}

func TestValidate_FSSigningNeedsBaseURL(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.FS.Root = t.TempDir()
	cfg.Transcode.WorkDir = t.TempDir()
	cfg.Storage.FS.SigningKey = "0123456789abcdef"
	assert.Error(t, Validate(cfg))

	cfg.Server.PublicBaseURL = "https://stream.example.com"
	assert.NoError(t, Validate(cfg))
}

func TestConsumedEnvKeys(t *testing.T) {
	withDirs(t)
	l := NewLoader("", "")
	_, err := l.Load()
	require.NoError(t, err)
	assert.Contains(t, l.ConsumedEnvKeys, EnvPrefix+"JOBS_WORKERS")
	assert.Contains(t, l.ConsumedEnvKeys, EnvPrefix+"TRANSCODE_LADDER")
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.JWTSecret = "super-secret-value"
	cfg.Storage.S3.SecretAccessKey = "aws-secret"
	s := cfg.String()
	assert.NotContains(t, s, "super-secret-value")
	assert.NotContains(t, s, "aws-secret")
}

func TestHolder_ReloadAndWatch(t *testing.T) {
	withDirs(t)
	path := writeFile(t, "log:\n  level: info\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	h.debounce = 10 * time.Millisecond
	updates := make(chan AppConfig, 4)
	h.Subscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	deadline := time.After(5 * time.Second)
	for got := ""; got != "debug"; {
		select {
		case cfg := <-updates:
			got = cfg.Log.Level
		case <-deadline:
			t.Fatal("no reload after file change")
		}
	}
	assert.Equal(t, "debug", h.Get().Log.Level)

	// an invalid file keeps the last good config
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600))
	require.Error(t, h.Reload())
	assert.Equal(t, "debug", h.Get().Log.Level)
}

func TestHolder_WatchWithoutFile(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", ""))
	assert.NoError(t, h.Watch(context.Background()))
}

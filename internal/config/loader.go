// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every variable the loader looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path is the YAML file the loader reads, if any.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseString(EnvPrefix+key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseBool(EnvPrefix+key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt(EnvPrefix+key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt64(EnvPrefix+key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseFloat(EnvPrefix+key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseDuration(EnvPrefix+key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults, then validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.mergeEnvConfig(&cfg); err != nil {
		return cfg, err
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the YAML file over cfg with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	// a file that sets a ladder replaces the default one wholesale
	fileCfg := *cfg
	fileCfg.Transcode.Ladder = nil
	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	if fileCfg.Transcode.Ladder == nil {
		fileCfg.Transcode.Ladder = cfg.Transcode.Ladder
	}
	*cfg = fileCfg
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) error {
	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LOG_SERVICE", cfg.Log.Service)

	s := &cfg.Server
	s.ListenAddr = l.envString("LISTEN_ADDR", s.ListenAddr)
	s.PublicBaseURL = l.envString("PUBLIC_BASE_URL", s.PublicBaseURL)
	s.ReadTimeout = l.envDuration("READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = l.envDuration("WRITE_TIMEOUT", s.WriteTimeout)
	s.ShutdownTimeout = l.envDuration("SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxUploadBytes = l.envInt64("MAX_UPLOAD_BYTES", s.MaxUploadBytes)
	s.RateLimitRPM = l.envInt("RATE_LIMIT_RPM", s.RateLimitRPM)

	st := &cfg.Storage
	st.Backend = l.envString("STORAGE_BACKEND", st.Backend)
	st.PublicBucket = l.envBool("STORAGE_PUBLIC_BUCKET", st.PublicBucket)
	st.S3.Bucket = l.envString("S3_BUCKET", st.S3.Bucket)
	st.S3.Region = l.envString("S3_REGION", st.S3.Region)
	st.S3.Endpoint = l.envString("S3_ENDPOINT", st.S3.Endpoint)
	st.S3.AccessKeyID = l.envString("S3_ACCESS_KEY_ID", st.S3.AccessKeyID)
	st.S3.SecretAccessKey = l.envString("S3_SECRET_ACCESS_KEY", st.S3.SecretAccessKey)
	st.S3.UsePathStyle = l.envBool("S3_USE_PATH_STYLE", st.S3.UsePathStyle)
	st.FS.Root = l.envString("FS_ROOT", st.FS.Root)
	st.FS.PublicBaseURL = l.envString("FS_PUBLIC_BASE_URL", st.FS.PublicBaseURL)
	st.FS.SigningKey = l.envString("FS_SIGNING_KEY", st.FS.SigningKey)

	cfg.Database.Path = l.envString("DATABASE_PATH", cfg.Database.Path)

	f := &cfg.FFmpeg
	f.Bin = l.envString("FFMPEG_BIN", f.Bin)
	f.Preset = l.envString("FFMPEG_PRESET", f.Preset)
	f.StartupGrace = l.envDuration("FFMPEG_STARTUP_GRACE", f.StartupGrace)
	f.StallTimeout = l.envDuration("FFMPEG_STALL_TIMEOUT", f.StallTimeout)

	t := &cfg.Transcode
	t.WorkDir = l.envString("TRANSCODE_WORK_DIR", t.WorkDir)
	t.SegmentSeconds = l.envInt("TRANSCODE_SEGMENT_SECONDS", t.SegmentSeconds)
	t.AudioBitrateKbps = l.envInt("TRANSCODE_AUDIO_BITRATE_KBPS", t.AudioBitrateKbps)
	t.JobTimeout = l.envDuration("TRANSCODE_JOB_TIMEOUT", t.JobTimeout)
	t.ParallelRenditions = l.envInt("TRANSCODE_PARALLEL_RENDITIONS", t.ParallelRenditions)
	if raw := l.envString("TRANSCODE_LADDER", ""); raw != "" {
		ladder, err := ParseLadder(raw)
		if err != nil {
			return fmt.Errorf("%sTRANSCODE_LADDER: %w", EnvPrefix, err)
		}
		t.Ladder = ladder
	}

	j := &cfg.Jobs
	j.Workers = l.envInt("JOBS_WORKERS", j.Workers)
	j.QueueSize = l.envInt("JOBS_QUEUE_SIZE", j.QueueSize)
	j.MaxAttempts = l.envInt("JOBS_MAX_ATTEMPTS", j.MaxAttempts)
	j.RetryBackoff = l.envDuration("JOBS_RETRY_BACKOFF", j.RetryBackoff)
	j.MaxRetryBackoff = l.envDuration("JOBS_MAX_RETRY_BACKOFF", j.MaxRetryBackoff)
	j.StatusTTL = l.envDuration("JOBS_STATUS_TTL", j.StatusTTL)
	j.LockTTL = l.envDuration("JOBS_LOCK_TTL", j.LockTTL)
	j.Redis.Addr = l.envString("REDIS_ADDR", j.Redis.Addr)
	j.Redis.Password = l.envString("REDIS_PASSWORD", j.Redis.Password)
	j.Redis.DB = l.envInt("REDIS_DB", j.Redis.DB)

	e := &cfg.Entitlement
	e.URL = l.envString("ENTITLEMENT_URL", e.URL)
	e.Timeout = l.envDuration("ENTITLEMENT_TIMEOUT", e.Timeout)
	e.CacheTTL = l.envDuration("ENTITLEMENT_CACHE_TTL", e.CacheTTL)

	a := &cfg.Auth
	a.JWTSecret = l.envString("JWT_SECRET", a.JWTSecret)
	a.Issuer = l.envString("JWT_ISSUER", a.Issuer)
	a.Audience = l.envString("JWT_AUDIENCE", a.Audience)
	a.Leeway = l.envDuration("JWT_LEEWAY", a.Leeway)
	a.AdminToken = l.envString("ADMIN_TOKEN", a.AdminToken)
	a.AllowQueryToken = l.envBool("ALLOW_QUERY_TOKEN", a.AllowQueryToken)

	p := &cfg.Playback
	p.SignedURLTTL = l.envDuration("SIGNED_URL_TTL", p.SignedURLTTL)
	p.SegmentURLTTL = l.envDuration("SEGMENT_URL_TTL", p.SegmentURLTTL)
	p.FetchURLTTL = l.envDuration("FETCH_URL_TTL", p.FetchURLTTL)

	tel := &cfg.Telemetry
	tel.Enabled = l.envBool("TELEMETRY_ENABLED", tel.Enabled)
	tel.Exporter = l.envString("TELEMETRY_EXPORTER", tel.Exporter)
	tel.Endpoint = l.envString("TELEMETRY_ENDPOINT", tel.Endpoint)
	tel.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", tel.SamplingRate)
	tel.Environment = l.envString("TELEMETRY_ENVIRONMENT", tel.Environment)
	return nil
}

// ParseLadder reads "name:height:kbps" entries separated by commas,
// e.g. "480p:480:1000,720p:720:2500".
func ParseLadder(raw string) ([]RenditionConfig, error) {
	var out []RenditionConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("ladder entry %q: want name:height:kbps", entry)
		}
		h, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("ladder entry %q: height: %w", entry, err)
		}
		kbps, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("ladder entry %q: bitrate: %w", entry, err)
		}
		out = append(out, RenditionConfig{Name: parts[0], Height: h, BitrateKbps: kbps})
	}
	if len(out) == 0 {
		return nil, errors.New("ladder is empty")
	}
	return out, nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/cinevault/internal/validate"
)

// Validate reports every problem in cfg at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil || cfg.Log.Level == "" {
		v.AddError("log.level", "must be one of trace, debug, info, warn, error", cfg.Log.Level)
	}

	v.ListenAddr("server.listen_addr", cfg.Server.ListenAddr)
	if cfg.Server.PublicBaseURL != "" {
		v.URL("server.public_base_url", cfg.Server.PublicBaseURL, []string{"http", "https"})
	}
	v.PositiveDuration("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	if cfg.Server.MaxUploadBytes <= 0 {
		v.AddError("server.max_upload_bytes", "must be positive", cfg.Server.MaxUploadBytes)
	}
	v.NonNegative("server.rate_limit_rpm", cfg.Server.RateLimitRPM)

	v.OneOf("storage.backend", cfg.Storage.Backend, []string{"s3", "fs"})
	switch cfg.Storage.Backend {
	case "s3":
		v.NotEmpty("storage.s3.bucket", cfg.Storage.S3.Bucket)
		v.NotEmpty("storage.s3.region", cfg.Storage.S3.Region)
		if cfg.Storage.S3.Endpoint != "" {
			v.URL("storage.s3.endpoint", cfg.Storage.S3.Endpoint, []string{"http", "https"})
		}
		if (cfg.Storage.S3.AccessKeyID == "") != (cfg.Storage.S3.SecretAccessKey == "") {
			v.AddError("storage.s3.access_key_id", "access key id and secret must be set together", "")
		}
	case "fs":
		v.Directory("storage.fs.root", cfg.Storage.FS.Root, false)
		if cfg.Storage.FS.SigningKey != "" {
			v.MinLength("storage.fs.signing_key", cfg.Storage.FS.SigningKey, 16)
			if cfg.Storage.FS.PublicBaseURL == "" && cfg.Server.PublicBaseURL == "" {
				v.AddError("storage.fs.public_base_url", "required to sign urls", "")
			}
		}
	}

	v.NotEmpty("database.path", cfg.Database.Path)

	v.NotEmpty("ffmpeg.bin", cfg.FFmpeg.Bin)
	v.OneOf("ffmpeg.preset", cfg.FFmpeg.Preset, []string{
		"ultrafast", "superfast", "veryfast", "faster", "fast", "medium", "slow", "slower", "veryslow",
	})
	v.PositiveDuration("ffmpeg.stall_timeout", cfg.FFmpeg.StallTimeout)

	v.Directory("transcode.work_dir", cfg.Transcode.WorkDir, false)
	v.Range("transcode.segment_seconds", cfg.Transcode.SegmentSeconds, 1, 60)
	v.Range("transcode.audio_bitrate_kbps", cfg.Transcode.AudioBitrateKbps, 32, 512)
	v.PositiveDuration("transcode.job_timeout", cfg.Transcode.JobTimeout)
	v.Positive("transcode.parallel_renditions", cfg.Transcode.ParallelRenditions)
	if err := cfg.MediaLadder().Validate(); err != nil {
		v.AddError("transcode.ladder", err.Error(), len(cfg.Transcode.Ladder))
	}

	v.Positive("jobs.workers", cfg.Jobs.Workers)
	v.Positive("jobs.queue_size", cfg.Jobs.QueueSize)
	v.Range("jobs.max_attempts", cfg.Jobs.MaxAttempts, 1, 20)
	v.PositiveDuration("jobs.retry_backoff", cfg.Jobs.RetryBackoff)
	v.PositiveDuration("jobs.status_ttl", cfg.Jobs.StatusTTL)
	v.PositiveDuration("jobs.lock_ttl", cfg.Jobs.LockTTL)

	if cfg.Entitlement.URL != "" {
		v.URL("entitlement.url", cfg.Entitlement.URL, []string{"http", "https"})
	}
	v.PositiveDuration("entitlement.timeout", cfg.Entitlement.Timeout)

	if cfg.Auth.JWTSecret != "" {
		v.MinLength("auth.jwt_secret", cfg.Auth.JWTSecret, 16)
	}
	if cfg.Auth.AdminToken != "" {
		v.MinLength("auth.admin_token", cfg.Auth.AdminToken, 16)
	}

	v.PositiveDuration("playback.signed_url_ttl", cfg.Playback.SignedURLTTL)
	v.PositiveDuration("playback.segment_url_ttl", cfg.Playback.SegmentURLTTL)
	v.PositiveDuration("playback.fetch_url_ttl", cfg.Playback.FetchURLTTL)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", strings.ToLower(cfg.Telemetry.Exporter), []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("telemetry.sampling_rate", "must be within [0, 1]", cfg.Telemetry.SamplingRate)
		}
	}

	return v.Err()
}

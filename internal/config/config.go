// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration: defaults, then a strict YAML
// file, then CINEVAULT_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/cinevault/internal/media"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "CINEVAULT_"

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Database    DatabaseConfig    `yaml:"database"`
	FFmpeg      FFmpegConfig      `yaml:"ffmpeg"`
	Transcode   TranscodeConfig   `yaml:"transcode"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
	Auth        AuthConfig        `yaml:"auth"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// PublicBaseURL prefixes playlist indirection URLs; empty means root-relative.
	PublicBaseURL   string        `yaml:"public_base_url"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	// RateLimitRPM is per client IP; 0 disables limiting.
	RateLimitRPM int `yaml:"rate_limit_rpm"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	// PublicBucket allows unsigned direct URLs when the backend cannot sign.
	PublicBucket bool     `yaml:"public_bucket"`
	S3           S3Config `yaml:"s3"`
	FS           FSConfig `yaml:"fs"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type FSConfig struct {
	Root          string `yaml:"root"`
	PublicBaseURL string `yaml:"public_base_url"`
	SigningKey    string `yaml:"signing_key"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type FFmpegConfig struct {
	Bin          string        `yaml:"bin"`
	Preset       string        `yaml:"preset"`
	StartupGrace time.Duration `yaml:"startup_grace"`
	StallTimeout time.Duration `yaml:"stall_timeout"`
}

type TranscodeConfig struct {
	WorkDir            string            `yaml:"work_dir"`
	SegmentSeconds     int               `yaml:"segment_seconds"`
	AudioBitrateKbps   int               `yaml:"audio_bitrate_kbps"`
	JobTimeout         time.Duration     `yaml:"job_timeout"`
	ParallelRenditions int               `yaml:"parallel_renditions"`
	Ladder             []RenditionConfig `yaml:"ladder"`
}

type RenditionConfig struct {
	Name        string `yaml:"name"`
	Height      int    `yaml:"height"`
	BitrateKbps int    `yaml:"bitrate_kbps"`
}

type JobsConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	MaxRetryBackoff time.Duration `yaml:"max_retry_backoff"`
	StatusTTL       time.Duration `yaml:"status_ttl"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
	Redis           RedisConfig   `yaml:"redis"`
}

// RedisConfig enables the cross-instance asset lock and shared entitlement
// cache when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type EntitlementConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	Leeway    time.Duration `yaml:"leeway"`
	// AdminToken guards the upload and delete triggers.
	AdminToken      string `yaml:"admin_token"`
	AllowQueryToken bool   `yaml:"allow_query_token"`
}

type PlaybackConfig struct {
	SignedURLTTL  time.Duration `yaml:"signed_url_ttl"`
	SegmentURLTTL time.Duration `yaml:"segment_url_ttl"`
	FetchURLTTL   time.Duration `yaml:"fetch_url_ttl"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() AppConfig {
	ladder := make([]RenditionConfig, 0, 3)
	for _, r := range media.DefaultLadder() {
		ladder = append(ladder, RenditionConfig{Name: r.Name, Height: r.Height, BitrateKbps: r.BitrateKbps})
	}
	return AppConfig{
		Log: LogConfig{Level: "info", Service: "cinevault"},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  8 << 30,
			RateLimitRPM:    600,
		},
		Storage: StorageConfig{
			Backend: "fs",
			S3:      S3Config{Region: "us-east-1"},
			FS:      FSConfig{Root: "data/objects"},
		},
		Database: DatabaseConfig{Path: "data/cinevault.db"},
		FFmpeg: FFmpegConfig{
			Bin:          "ffmpeg",
			Preset:       "veryfast",
			StartupGrace: 30 * time.Second,
			StallTimeout: 2 * time.Minute,
		},
		Transcode: TranscodeConfig{
			WorkDir:            "data/work",
			SegmentSeconds:     6,
			AudioBitrateKbps:   128,
			JobTimeout:         2 * time.Hour,
			ParallelRenditions: 1,
			Ladder:             ladder,
		},
		Jobs: JobsConfig{
			Workers:         2,
			QueueSize:       64,
			MaxAttempts:     3,
			RetryBackoff:    30 * time.Second,
			MaxRetryBackoff: 10 * time.Minute,
			StatusTTL:       24 * time.Hour,
			LockTTL:         time.Minute,
		},
		Entitlement: EntitlementConfig{
			Timeout:  3 * time.Second,
			CacheTTL: time.Minute,
		},
		Auth: AuthConfig{Leeway: 30 * time.Second},
		Playback: PlaybackConfig{
			SignedURLTTL:  time.Hour,
			SegmentURLTTL: 2 * time.Hour,
			FetchURLTTL:   time.Minute,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1,
			Environment:  "production",
		},
	}
}

// MediaLadder converts the configured ladder.
func (c AppConfig) MediaLadder() media.Ladder {
	l := make(media.Ladder, 0, len(c.Transcode.Ladder))
	for _, r := range c.Transcode.Ladder {
		l = append(l, media.Rendition{Name: r.Name, Height: r.Height, BitrateKbps: r.BitrateKbps})
	}
	return l
}

// String renders the config with secrets masked, for startup logs.
func (c AppConfig) String() string {
	m := c
	m.Storage.S3.SecretAccessKey = mask(m.Storage.S3.SecretAccessKey)
	m.Storage.FS.SigningKey = mask(m.Storage.FS.SigningKey)
	m.Jobs.Redis.Password = mask(m.Jobs.Redis.Password)
	m.Auth.JWTSecret = mask(m.Auth.JWTSecret)
	m.Auth.AdminToken = mask(m.Auth.AdminToken)
	return fmt.Sprintf("%+v", struct {
		Server    ServerConfig
		Storage   StorageConfig
		Transcode TranscodeConfig
		Jobs      JobsConfig
		Auth      AuthConfig
	}{m.Server, m.Storage, m.Transcode, m.Jobs, m.Auth})
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/cinevault/internal/api"
	"github.com/ManuGH/cinevault/internal/auth"
	"github.com/ManuGH/cinevault/internal/cache"
	"github.com/ManuGH/cinevault/internal/config"
	"github.com/ManuGH/cinevault/internal/daemon"
	"github.com/ManuGH/cinevault/internal/entitlement"
	"github.com/ManuGH/cinevault/internal/health"
	"github.com/ManuGH/cinevault/internal/ingest"
	"github.com/ManuGH/cinevault/internal/jobs"
	"github.com/ManuGH/cinevault/internal/library"
	xglog "github.com/ManuGH/cinevault/internal/log"
	"github.com/ManuGH/cinevault/internal/objectstore"
	"github.com/ManuGH/cinevault/internal/playback"
	"github.com/ManuGH/cinevault/internal/transcoder"
	"github.com/ManuGH/cinevault/internal/version"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix      = "cinevault:"
	memoryCacheSweep    = time.Minute
	entitlementCacheKey = "entitlement:"
)

// services is the assembled object graph. Hooks are released in reverse order.
type services struct {
	handler http.Handler
	hooks   []hook
}

type hook struct {
	name string
	fn   daemon.ShutdownHook
}

func (s *services) onShutdown(name string, fn daemon.ShutdownHook) {
	s.hooks = append(s.hooks, hook{name: name, fn: fn})
}

func closer(fn func() error) daemon.ShutdownHook {
	return func(context.Context) error { return fn() }
}

// release runs hooks LIFO; used when wiring fails half-way.
func (s *services) release(ctx context.Context) {
	for i := len(s.hooks) - 1; i >= 0; i-- {
		_ = s.hooks[i].fn(ctx)
	}
}

// buildStore picks the object store backend. The second return value is
// non-nil only for the filesystem backend, whose signed URLs this process serves.
func buildStore(ctx context.Context, cfg config.AppConfig) (objectstore.Store, *objectstore.FSStore, error) {
	logger := xglog.WithComponent("objectstore")
	switch cfg.Storage.Backend {
	case "s3":
		s3cfg := cfg.Storage.S3
		store, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "fs", "":
		fscfg := objectstore.FSConfig{
			Root:          cfg.Storage.FS.Root,
			PublicBaseURL: cfg.Storage.FS.PublicBaseURL,
		}
		if fscfg.PublicBaseURL == "" {
			fscfg.PublicBaseURL = cfg.Server.PublicBaseURL
		}
		if cfg.Storage.FS.SigningKey != "" {
			fscfg.SigningKey = []byte(cfg.Storage.FS.SigningKey)
		}
		store, err := objectstore.NewFSStore(fscfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildEntitlement wraps the purchase-records client in a cache shared with
// other instances when redis is configured.
func buildEntitlement(cfg config.AppConfig, store cache.Cache) (entitlement.Checker, error) {
	inner := entitlement.DenyAll
	if cfg.Entitlement.URL != "" {
		c, err := entitlement.NewHTTPChecker(entitlement.HTTPConfig{
			URL:     cfg.Entitlement.URL,
			Timeout: cfg.Entitlement.Timeout,
		})
		if err != nil {
			return nil, err
		}
		inner = c
	}
	if cfg.Entitlement.CacheTTL <= 0 || store == nil {
		return inner, nil
	}
	return entitlement.NewCached(inner, store, cfg.Entitlement.CacheTTL), nil
}

// buildServices assembles every component behind the HTTP handler.
func buildServices(ctx context.Context, cfg config.AppConfig) (svc *services, err error) {
	svc = &services{}
	defer func() {
		if err != nil {
			svc.release(context.WithoutCancel(ctx))
		}
	}()

	store, fsStore, err := buildStore(ctx, cfg)
	if err != nil {
		return svc, fmt.Errorf("object store: %w", err)
	}

	lib, err := library.NewStore(ctx, cfg.Database.Path)
	if err != nil {
		return svc, fmt.Errorf("library: %w", err)
	}
	svc.onShutdown("library", closer(lib.Close))

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewFuncChecker("library", lib.Check))
	hm.RegisterChecker(health.NewStoreChecker(store))
	hm.RegisterChecker(health.NewEncoderChecker(cfg.FFmpeg.Bin))

	var (
		locker   jobs.Locker = jobs.LocalLocker{}
		ttlCache cache.Cache
	)
	if rc := cfg.Jobs.Redis; rc.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		}, xglog.WithComponent("redis"))
		if err != nil {
			return svc, err
		}
		svc.onShutdown("redis", closer(client.Close))
		locker = jobs.NewRedisLocker(client, redisKeyPrefix+"lock:")
		ttlCache = cache.NewRedisCache(client, redisKeyPrefix+entitlementCacheKey, xglog.WithComponent("cache"))
		hm.RegisterChecker(health.NewFuncChecker("redis", func(ctx context.Context) error {
			return redisPing(ctx, client)
		}))
	} else {
		ttlCache = cache.NewMemoryCache(memoryCacheSweep)
	}
	svc.onShutdown("cache", closer(ttlCache.Close))

	checker, err := buildEntitlement(cfg, ttlCache)
	if err != nil {
		return svc, fmt.Errorf("entitlement: %w", err)
	}

	ladder := cfg.MediaLadder()
	encoder := transcoder.NewFFmpegEncoder(transcoder.FFmpegConfig{
		Bin:          cfg.FFmpeg.Bin,
		StartupGrace: cfg.FFmpeg.StartupGrace,
		StallTimeout: cfg.FFmpeg.StallTimeout,
	}, xglog.WithComponent("encoder"))
	tc, err := transcoder.New(store, lib, encoder, transcoder.Config{
		WorkRoot:           cfg.Transcode.WorkDir,
		Ladder:             ladder,
		SegmentSeconds:     cfg.Transcode.SegmentSeconds,
		AudioBitrateKbps:   cfg.Transcode.AudioBitrateKbps,
		Preset:             cfg.FFmpeg.Preset,
		ParallelRenditions: cfg.Transcode.ParallelRenditions,
	}, xglog.WithComponent("transcoder"))
	if err != nil {
		return svc, fmt.Errorf("transcoder: %w", err)
	}

	runner := jobs.NewRunner(tc, locker, jobs.Config{
		Workers:         cfg.Jobs.Workers,
		QueueSize:       cfg.Jobs.QueueSize,
		MaxAttempts:     cfg.Jobs.MaxAttempts,
		RetryBackoff:    cfg.Jobs.RetryBackoff,
		MaxRetryBackoff: cfg.Jobs.MaxRetryBackoff,
		JobTimeout:      cfg.Transcode.JobTimeout,
		StatusTTL:       cfg.Jobs.StatusTTL,
		LockTTL:         cfg.Jobs.LockTTL,
	}, xglog.WithComponent("jobs"))
	svc.onShutdown("jobs", runner.Shutdown)

	links := playback.Links{BaseURL: cfg.Server.PublicBaseURL}
	gateway := playback.NewGateway(store, lib, checker, links, playback.GatewayConfig{
		Ladder:       ladder,
		SignedURLTTL: cfg.Playback.SignedURLTTL,
		AllowPublic:  cfg.Storage.PublicBucket,
	}, xglog.WithComponent("gateway"))
	rewriter := playback.NewRewriter(store, lib, checker, links, playback.RewriterConfig{
		Ladder:      ladder,
		SegmentTTL:  cfg.Playback.SegmentURLTTL,
		FetchTTL:    cfg.Playback.FetchURLTTL,
		AllowPublic: cfg.Storage.PublicBucket,
	}, xglog.WithComponent("rewriter"))

	deps := api.Deps{
		Ingest:   ingest.NewService(store, lib, runner, xglog.WithComponent("ingest")),
		Jobs:     runner,
		Gateway:  gateway,
		Rewriter: rewriter,
		Health:   hm,
	}
	if fsStore != nil {
		deps.Objects = fsStore
	}
	if cfg.Auth.JWTSecret != "" {
		resolver, err := auth.NewJWTResolver(auth.JWTConfig{
			Secret:   cfg.Auth.JWTSecret,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
			Leeway:   cfg.Auth.Leeway,
		})
		if err != nil {
			return svc, fmt.Errorf("viewer auth: %w", err)
		}
		deps.Viewers = resolver
	}

	spool := filepath.Join(cfg.Transcode.WorkDir, "spool")
	if err := os.MkdirAll(spool, 0o750); err != nil {
		return svc, fmt.Errorf("upload spool: %w", err)
	}

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.Log.Service
	}
	svc.handler = api.New(deps, api.Options{
		AdminToken:      cfg.Auth.AdminToken,
		AllowQueryToken: cfg.Auth.AllowQueryToken,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		SpoolDir:        spool,
		RateLimitRPM:    cfg.Server.RateLimitRPM,
		TracingService:  tracing,
	}, xglog.WithComponent("api")).Handler()
	return svc, nil
}

func redisPing(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

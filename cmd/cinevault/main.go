// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/cinevault/internal/config"
	"github.com/ManuGH/cinevault/internal/daemon"
	"github.com/ManuGH/cinevault/internal/health"
	xglog "github.com/ManuGH/cinevault/internal/log"
	"github.com/ManuGH/cinevault/internal/telemetry"
	"github.com/ManuGH/cinevault/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until the config is loaded
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "cinevault",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = resolveDefaultConfigPath()
	}
	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.Log.Level,
		Service: cfg.Log.Service,
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", path).
		Msg("loaded configuration")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.Server.ListenAddr).
		Str("storage", cfg.Storage.Backend).
		Msg("starting cinevault")
	logger.Debug().Str("config", cfg.String()).Msg("effective configuration")

	if err := run(ctx, cfg, loader); err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon stopped with error")
	}
	logger.Info().Str("event", "shutdown.complete").Msg("bye")
}

// run wires the services and blocks until ctx is cancelled.
func run(ctx context.Context, cfg config.AppConfig, loader *config.Loader) error {
	logger := xglog.WithComponent("daemon")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	svc, err := buildServices(ctx, cfg)
	if err != nil {
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{
		Logger:     logger,
		APIHandler: svc.handler,
	})
	if err != nil {
		svc.release(context.WithoutCancel(ctx))
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return err
	}
	// registered first so spans from the other hooks are still exported
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	for _, h := range svc.hooks {
		mgr.RegisterShutdownHook(h.name, h.fn)
	}

	holder := config.NewHolder(cfg, loader)
	if err := holder.Watch(ctx); err != nil {
		logger.Warn().Err(err).Msg("config watcher unavailable; hot reload disabled")
	}
	updates := make(chan config.AppConfig, 1)
	holder.Subscribe(updates)
	go logReloads(ctx, updates)

	return mgr.Start(ctx)
}

// logReloads reports reloads. Only the log level applies without a restart.
func logReloads(ctx context.Context, updates <-chan config.AppConfig) {
	logger := xglog.WithComponent("config")
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-updates:
			logger.Info().
				Str("event", "config.reloaded").
				Str("log_level", cfg.Log.Level).
				Msg("configuration reloaded; settings other than log.level apply on restart")
		}
	}
}

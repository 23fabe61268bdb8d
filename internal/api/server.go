// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the HTTP surface of the service: upload and delete triggers
// for operators, playback and HLS playlists for viewers.
package api

import (
	"context"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/cinevault/internal/api/middleware"
	"github.com/ManuGH/cinevault/internal/auth"
	"github.com/ManuGH/cinevault/internal/health"
	"github.com/ManuGH/cinevault/internal/ingest"
	"github.com/ManuGH/cinevault/internal/jobs"
	xglog "github.com/ManuGH/cinevault/internal/log"
	"github.com/ManuGH/cinevault/internal/playback"
)

// Ingestor runs the upload and delete triggers.
type Ingestor interface {
	Upload(ctx context.Context, assetID, fileName string, body io.ReadSeeker) (ingest.UploadResult, error)
	Purge(ctx context.Context, assetID string) (ingest.PurgeResult, error)
}

// JobStatuses exposes the runner's status registry.
type JobStatuses interface {
	Get(handle string) (jobs.Status, error)
}

// PlaybackGateway answers playback info requests.
type PlaybackGateway interface {
	Playback(ctx context.Context, viewerID, assetID string) (playback.Info, error)
}

// PlaylistRewriter serves the per-request HLS playlists.
type PlaylistRewriter interface {
	MasterPlaylist(ctx context.Context, viewerID, assetID string) ([]byte, error)
	QualityPlaylist(ctx context.Context, viewerID, assetID, name string) ([]byte, error)
}

// ViewerResolver turns a bearer token into a viewer.
type ViewerResolver interface {
	Resolve(token string) (auth.Viewer, error)
}

// ObjectServer is a store that delivers its own signed URLs (the fs backend).
type ObjectServer interface {
	Verify(name, expires, signature string) error
	OpenFile(name string) (*os.File, fs.FileInfo, error)
}

// Deps are the collaborators behind the routes. Objects and Health are optional.
type Deps struct {
	Ingest   Ingestor
	Jobs     JobStatuses
	Gateway  PlaybackGateway
	Rewriter PlaylistRewriter
	Viewers  ViewerResolver
	Objects  ObjectServer
	Health   *health.Manager
}

// Options tune request handling.
type Options struct {
	// AdminToken guards the upload and delete triggers; empty disables them.
	AdminToken      string
	AllowQueryToken bool
	MaxUploadBytes  int64
	// SpoolDir holds uploads while they are copied to the store.
	SpoolDir string
	// RetryAfter is advertised while a transcode is pending.
	RetryAfter     time.Duration
	RateLimitRPM   int
	TracingService string
}

func (o Options) withDefaults() Options {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 8 << 30
	}
	if o.RetryAfter <= 0 {
		o.RetryAfter = 30 * time.Second
	}
	return o
}

// Server routes HTTP requests to the pipeline.
type Server struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
	router chi.Router
}

// New builds the server and its routes.
func New(deps Deps, opts Options, logger zerolog.Logger) *Server {
	s := &Server{
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: logger.With().Str(xglog.FieldComponent, "api").Logger(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	// probes and scraping stay outside rate limiting and tracing
	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		middleware.ApplyStack(r, middleware.StackConfig{
			EnableSecurityHeaders: true,
			EnableMetrics:         true,
			TracingService:        s.opts.TracingService,
			EnableLogging:         true,
			RateLimitRPM:          s.opts.RateLimitRPM,
		})

		if s.deps.Objects != nil {
			r.Get("/objects/{name}", s.handleObject)
			r.Head("/objects/{name}", s.handleObject)
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/assets/{assetID}/media", s.handleUpload)
				r.Delete("/assets/{assetID}/media", s.handlePurge)
				r.Get("/jobs/{handle}", s.handleJob)
			})
			r.Group(func(r chi.Router) {
				r.Use(s.requireViewer)
				r.Get("/assets/{assetID}/playback", s.handlePlayback)
				r.Get("/assets/{assetID}/hls/"+playback.MasterPlaylistFile, s.handleMaster)
				r.Get("/assets/{assetID}/hls/{playlist}", s.handleQuality)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblemNotFound(w, r)
	})
	return r
}

// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus collectors of the media pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job runner
	jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinevault_jobs_enqueued_total",
		Help: "Transcode jobs accepted by the runner",
	}, []string{"disposition"}) // disposition=started|parked|superseded

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinevault_jobs_finished_total",
		Help: "Transcode jobs that reached a terminal state",
	}, []string{"outcome"}) // outcome=succeeded|failed|superseded|canceled

	jobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cinevault_jobs_active",
		Help: "Transcode jobs currently executing",
	})

	jobAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinevault_job_attempts_total",
		Help: "Transcode attempts by result",
	}, []string{"result"}) // result=ok|error|lock_busy

	// Transcoder
	renditionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cinevault_rendition_duration_seconds",
		Help:    "Wall time to encode and upload one rendition",
		Buckets: prometheus.ExponentialBuckets(5, 2, 10), // 5s to ~43m
	}, []string{"rendition"})

	renditionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinevault_rendition_failures_total",
		Help: "Rendition encodes that failed",
	}, []string{"rendition"})

	encoderStalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinevault_encoder_stalls_total",
		Help: "Encoder processes killed by the stall watchdog",
	})

	uploadedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinevault_uploaded_bytes_total",
		Help: "Bytes written to object storage by role",
	}, []string{"role"}) // role=source|playlist|segment

	// Object store
	storeOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinevault_objectstore_operations_total",
		Help: "Object store operations by backend, op and result",
	}, []string{"backend", "op", "result"})

	signedGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinevault_signed_grants_total",
		Help: "Signed read grants issued",
	}, []string{"backend"})

	// Delivery
	playlistRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinevault_playlist_requests_total",
		Help: "Rewritten playlist requests by kind and outcome",
	}, []string{"kind", "outcome"}) // kind=master|quality

	playbackDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinevault_playback_decisions_total",
		Help: "Streaming gateway decisions",
	}, []string{"decision"}) // decision=hls|legacy|forbidden|not_available|in_progress|error

	entitlementChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinevault_entitlement_checks_total",
		Help: "Entitlement checks by result",
	}, []string{"result"}) // result=granted|denied|error|cache_hit
)

// IncJobEnqueued records how the runner accepted a job.
func IncJobEnqueued(disposition string) { jobsEnqueued.WithLabelValues(disposition).Inc() }

// IncJobFinished records a terminal job state.
func IncJobFinished(outcome string) { jobsFinished.WithLabelValues(outcome).Inc() }

// JobStarted / JobDone track in-flight jobs.
func JobStarted() { jobsActive.Inc() }

// JobDone decrements the in-flight gauge.
func JobDone() { jobsActive.Dec() }

// IncJobAttempt records the result of one attempt.
func IncJobAttempt(result string) { jobAttempts.WithLabelValues(result).Inc() }

// ObserveRendition records a successful rendition pass.
func ObserveRendition(rendition string, d time.Duration) {
	renditionDuration.WithLabelValues(rendition).Observe(d.Seconds())
}

// IncRenditionFailure records a failed rendition pass.
func IncRenditionFailure(rendition string) { renditionFailures.WithLabelValues(rendition).Inc() }

// IncEncoderStall records a watchdog kill.
func IncEncoderStall() { encoderStalls.Inc() }

// AddUploadedBytes records bytes written to storage.
func AddUploadedBytes(role string, n int64) {
	if n > 0 {
		uploadedBytes.WithLabelValues(role).Add(float64(n))
	}
}

// IncStoreOp records an object store call.
func IncStoreOp(backend, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOps.WithLabelValues(backend, op, result).Inc()
}

// IncSignedGrant records an issued grant.
func IncSignedGrant(backend string) { signedGrants.WithLabelValues(backend).Inc() }

// IncPlaylistRequest records a playlist rewrite.
func IncPlaylistRequest(kind, outcome string) { playlistRequests.WithLabelValues(kind, outcome).Inc() }

// IncPlaybackDecision records a gateway outcome.
func IncPlaybackDecision(decision string) { playbackDecisions.WithLabelValues(decision).Inc() }

// IncEntitlementCheck records an entitlement lookup.
func IncEntitlementCheck(result string) { entitlementChecks.WithLabelValues(result).Inc() }

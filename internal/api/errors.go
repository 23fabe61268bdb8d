// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ManuGH/cinevault/internal/api/problem"
	"github.com/ManuGH/cinevault/internal/ingest"
	"github.com/ManuGH/cinevault/internal/jobs"
	"github.com/ManuGH/cinevault/internal/library"
	xglog "github.com/ManuGH/cinevault/internal/log"
	"github.com/ManuGH/cinevault/internal/media"
	"github.com/ManuGH/cinevault/internal/objectstore"
	"github.com/ManuGH/cinevault/internal/playback"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblemNotFound(w http.ResponseWriter, r *http.Request) {
	problem.Write(w, r, problem.NotFound, "", nil)
}

// writeError maps pipeline errors onto problem responses. Details of storage
// and internal failures are logged, never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	retryAfter := func() {
		w.Header().Set("Retry-After", strconv.Itoa(int(s.opts.RetryAfter.Seconds())))
	}
	var tooLarge *http.MaxBytesError

	switch {
	case errors.Is(err, playback.ErrForbidden):
		problem.Write(w, r, problem.Forbidden, "", nil)
	case errors.Is(err, playback.ErrNotAvailable):
		problem.Write(w, r, problem.NotAvailable, "no playable media for this asset", nil)
	case errors.Is(err, playback.ErrTranscodingInProgress):
		retryAfter()
		problem.Write(w, r, problem.InProgress, "the stream is being prepared", nil)
	case errors.Is(err, playback.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound):
		problem.Write(w, r, problem.NotFound, "", nil)
	case errors.Is(err, media.ErrInvalidAssetID):
		problem.Write(w, r, problem.BadRequest, "invalid asset id", nil)
	case errors.Is(err, ingest.ErrUnsupportedMedia):
		problem.Write(w, r, problem.UnsupportedMedia, ingest.ErrUnsupportedMedia.Error(), nil)
	case errors.As(err, &tooLarge):
		problem.Write(w, r, problem.PayloadTooLarge, "upload exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes", nil)
	case errors.Is(err, library.ErrAssetDeleted):
		problem.Write(w, r, problem.AssetDeleted, "asset has been deleted", nil)
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		s.logError(r, err)
		retryAfter()
		problem.Write(w, r, problem.Unavailable, "transcode queue unavailable", nil)
	case errors.Is(err, objectstore.ErrStorageUnavailable):
		s.logError(r, err)
		problem.Write(w, r, problem.Unavailable, "storage unavailable", nil)
	default:
		s.logError(r, err)
		problem.Write(w, r, problem.Internal, "", nil)
	}
}

func (s *Server) logError(r *http.Request, err error) {
	l := xglog.WithContext(r.Context(), s.logger)
	l.Error().
		Err(err).
		Str("method", r.Method).
		Str(xglog.FieldPath, r.URL.Path).
		Msg("request failed")
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/cinevault/internal/api/problem"
	"github.com/ManuGH/cinevault/internal/ingest"
	xglog "github.com/ManuGH/cinevault/internal/log"
)

// uploadField is the multipart form field carrying the file.
const uploadField = "file"

var errNoFilePart = errors.New("multipart field \"" + uploadField + "\" is missing")

// handleUpload streams the multipart file to a spool file, then hands it to
// the ingest service. The name is checked before any bytes are spooled.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		problem.Write(w, r, problem.BadRequest, "expected multipart/form-data", nil)
		return
	}
	mr, err := r.MultipartReader()
	if err != nil {
		problem.Write(w, r, problem.BadRequest, "malformed multipart body", nil)
		return
	}

	part, err := nextFilePart(mr)
	if err != nil {
		s.writeUploadReadError(w, r, err)
		return
	}
	defer func() { _ = part.Close() }()

	fileName := part.FileName()
	if err := ingest.CheckUpload(assetID, fileName); err != nil {
		s.writeError(w, r, err)
		return
	}

	spool, err := os.CreateTemp(s.opts.SpoolDir, "upload-*.mp4")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("create spool file: %w", err))
		return
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	if _, err := io.Copy(spool, part); err != nil {
		s.writeUploadReadError(w, r, err)
		return
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		s.writeError(w, r, fmt.Errorf("rewind spool file: %w", err))
		return
	}

	res, err := s.deps.Ingest.Upload(r.Context(), assetID, fileName, spool)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	l := xglog.WithContext(r.Context(), s.logger)
	l.Info().
		Str(xglog.FieldAssetID, assetID).
		Str(xglog.FieldJobID, res.JobHandle).
		Int64("size", res.Size).
		Msg("upload accepted")
	w.Header().Set("Location", "/api/v1/jobs/"+res.JobHandle)
	writeJSON(w, http.StatusAccepted, res)
}

// nextFilePart skips other form fields up to the file part.
func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFilePart
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == uploadField {
			return part, nil
		}
		_ = part.Close()
	}
}

// writeUploadReadError separates client mistakes from spool failures.
func (s *Server) writeUploadReadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	var spoolErr *os.PathError
	switch {
	case errors.As(err, &tooLarge):
		s.writeError(w, r, err)
	case errors.Is(err, errNoFilePart):
		problem.Write(w, r, problem.BadRequest, err.Error(), nil)
	case errors.As(err, &spoolErr):
		s.writeError(w, r, fmt.Errorf("spool upload: %w", err))
	default:
		problem.Write(w, r, problem.BadRequest, "malformed multipart body", nil)
	}
}

// handlePurge removes every stored object of the asset.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Ingest.Purge(r.Context(), chi.URLParam(r, "assetID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleJob reports a transcode job's status.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Jobs.Get(chi.URLParam(r, "handle"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

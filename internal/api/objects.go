// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/cinevault/internal/api/problem"
	xglog "github.com/ManuGH/cinevault/internal/log"
	"github.com/ManuGH/cinevault/internal/media"
	"github.com/ManuGH/cinevault/internal/objectstore"
)

// handleObject delivers an object behind a URL signed by the fs backend.
// Range requests are honored so players can seek in legacy mp4 files.
func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	q := r.URL.Query()
	if err := s.deps.Objects.Verify(name, q.Get("expires"), q.Get("signature")); err != nil {
		l := xglog.WithContext(r.Context(), s.logger)
		l.Debug().
			Err(err).
			Str(xglog.FieldObject, name).
			Msg("object signature rejected")
		problem.Write(w, r, problem.Forbidden, "", nil)
		return
	}

	f, info, err := s.deps.Objects.OpenFile(name)
	switch {
	case errors.Is(err, objectstore.ErrNotFound), errors.Is(err, objectstore.ErrInvalidName):
		writeProblemNotFound(w, r)
		return
	case err != nil:
		s.writeError(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", media.ContentType(name))
	w.Header().Set("Cache-Control", "private, max-age=60")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

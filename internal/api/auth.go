// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/cinevault/internal/api/problem"
	"github.com/ManuGH/cinevault/internal/auth"
	xglog "github.com/ManuGH/cinevault/internal/log"
)

// requireAdmin guards operator routes with the static admin token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.AuthorizeToken(auth.ExtractToken(r, false), s.opts.AdminToken) {
			s.unauthorized(w, r, "admin")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireViewer resolves the viewer token and stores the viewer in the context.
func (s *Server) requireViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractToken(r, s.opts.AllowQueryToken)
		if token == "" || s.deps.Viewers == nil {
			s.unauthorized(w, r, "viewer")
			return
		}
		viewer, err := s.deps.Viewers.Resolve(token)
		if err != nil {
			l := xglog.WithContext(r.Context(), s.logger)
			l.Debug().Err(err).Msg("viewer token rejected")
			s.unauthorized(w, r, "viewer")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithViewer(r.Context(), viewer)))
	})
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, realm string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="`+realm+`"`)
	problem.Write(w, r, problem.Unauthorized, "", nil)
}

// viewerID is only called behind requireViewer.
func viewerID(r *http.Request) string {
	v, _ := auth.ViewerFromContext(r.Context())
	return v.ID
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/cinevault/internal/media"
)

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Gateway.Playback(r.Context(), viewerID(r), chi.URLParam(r, "assetID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "private, no-store")
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleMaster(w http.ResponseWriter, r *http.Request) {
	body, err := s.deps.Rewriter.MasterPlaylist(r.Context(), viewerID(r), chi.URLParam(r, "assetID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePlaylist(w, body)
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	body, err := s.deps.Rewriter.QualityPlaylist(r.Context(), viewerID(r), chi.URLParam(r, "assetID"), chi.URLParam(r, "playlist"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePlaylist(w, body)
}

// writePlaylist serves a playlist that embeds short-lived signed URLs, so it
// must never be cached by intermediaries.
func writePlaylist(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", media.ContentType(".m3u8"))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lindelatv/channeld/internal/fsutil"
	"github.com/lindelatv/channeld/internal/log"
	"github.com/lindelatv/channeld/internal/model"
)

// handleInit implements channel.init (spec §6): POST /channels.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := s.registry.Init(r.Context(), req.ID, req.Name)
	if errors.Is(err, ErrInitRateLimited) {
		writeError(w, http.StatusTooManyRequests, "too many channel.init calls, slow down")
		return
	}
	if err != nil {
		apiLogger := log.WithComponentFromContext(r.Context(), "api")
		apiLogger.Error().Err(err).Msg("channel.init failed")
		writeError(w, http.StatusInternalServerError, "failed to initialize channel")
		return
	}
	writeJSON(w, http.StatusOK, initResponse{ID: id})
}

// handleEnqueue implements channel.enqueue (spec §6): POST /channels/{id}/queue.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctrl := s.registry.Get(id)
	if ctrl == nil {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "title and filePath are required")
		return
	}

	resolved, err := fsutil.ConfineRelPath(s.getMediaRoot(), req.FilePath)
	if err != nil {
		writeError(w, http.StatusBadRequest, "filePath escapes the configured media root")
		return
	}

	ctrl.Enqueue(model.Movie{
		Title:    req.Title,
		FilePath: resolved,
		AddedBy:  req.AddedBy,
		FileSize: req.FileSize,
		Format:   req.Format,
	})
	w.WriteHeader(http.StatusAccepted)
}

// handleStatus implements channel.status (spec §6): GET /channels/{id}/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctrl := s.registry.Get(chi.URLParam(r, "id"))
	if ctrl == nil {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Status())
}

// handleQueue implements channel.queue (spec §6): GET /channels/{id}/queue.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	ctrl := s.registry.Get(chi.URLParam(r, "id"))
	if ctrl == nil {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	entries, err := ctrl.Queue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleSchedule implements channel.schedule (spec §6): GET /channels/{id}/schedule.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	ctrl := s.registry.Get(chi.URLParam(r, "id"))
	if ctrl == nil {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	rows, err := ctrl.Schedule()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read schedule")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleDebug exposes Controller.Diagnostics: GET /channels/{id}/debug.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	ctrl := s.registry.Get(chi.URLParam(r, "id"))
	if ctrl == nil {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Diagnostics())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

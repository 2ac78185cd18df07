// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/lindelatv/channeld/internal/metrics"
)

// Server wires the Core API (spec §6) onto a chi router. It holds no state
// of its own beyond what's needed to route requests: the Registry owns
// every channel.Controller.
type Server struct {
	registry *Registry

	mu        sync.RWMutex
	mediaRoot string
}

// NewServer builds a Server fronting registry. mediaRoot confines every
// channel.enqueue filePath (internal/fsutil.ConfineRelPath).
func NewServer(registry *Registry, mediaRoot string) *Server {
	return &Server{registry: registry, mediaRoot: mediaRoot}
}

// SetMediaRoot swaps the confinement root for future channel.enqueue calls —
// wired to config hot-reload.
func (s *Server) SetMediaRoot(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mediaRoot = root
}

func (s *Server) getMediaRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mediaRoot
}

// Routes returns the http.Handler serving the Core API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(httprate.Limit(
		600, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	))

	r.Handle("/metrics", metricsHandler())

	r.Route("/channels", func(r chi.Router) {
		r.Post("/", s.handleInit)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Get("/queue", s.handleQueue)
			r.Post("/queue", s.handleEnqueue)
			r.Get("/schedule", s.handleSchedule)
			r.Get("/debug", s.handleDebug)
		})
	})

	return r
}

func metricsHandler() http.Handler {
	return metrics.Handler()
}

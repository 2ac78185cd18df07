// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the channel engine's Core API (spec §6) over HTTP:
// channel.init, channel.enqueue, channel.status, channel.queue and
// channel.schedule, plus a read-only debug snapshot endpoint.
package api

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/lindelatv/channeld/internal/catalog"
	"github.com/lindelatv/channeld/internal/channel"
	"github.com/lindelatv/channeld/internal/config"
	"github.com/lindelatv/channeld/internal/ratelimit"
)

// initRateLimit/initBurst bound how fast new channels can be spun up: each
// channel.init eventually starts an ffmpeg child, so unlike read-mostly
// endpoints this needs a real token bucket, not just httprate's per-IP
// counter.
const (
	initRateLimit = 2.0
	initBurst     = 5
)

// Registry owns every live channel.Controller, keyed by channel id. It is
// the construction point the HTTP handlers and cmd/channeld's bootstrap
// both use to create/reuse controllers.
type Registry struct {
	mu          sync.Mutex
	cat         *catalog.Catalog
	cfg         config.Config
	controllers map[string]*channel.Controller
	initLimiter *ratelimit.GlobalLimiter
}

func NewRegistry(cat *catalog.Catalog, cfg config.Config) *Registry {
	return &Registry{
		cat:         cat,
		cfg:         cfg,
		controllers: make(map[string]*channel.Controller),
		initLimiter: ratelimit.NewGlobalLimiter(initRateLimit, initBurst),
	}
}

// ErrInitRateLimited is returned when channel.init is called faster than
// initLimiter allows.
var ErrInitRateLimited = fmt.Errorf("channel init rate limit exceeded")

// Init implements channel.init (spec §6): create the persisted record if
// absent and start its controller. Idempotent — calling it again for an
// already-running channel is a no-op that returns the existing id.
func (r *Registry) Init(ctx context.Context, id, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, running := r.controllers[id]; !running && !r.initLimiter.Allow() {
		return "", ErrInitRateLimited
	}

	outputDir := filepath.Join(r.cfg.OutputRoot, id)
	resolvedID, err := r.cat.EnsureChannel(id, name, outputDir)
	if err != nil {
		return "", fmt.Errorf("ensure channel: %w", err)
	}
	// EnsureChannel may have generated an id when the caller passed none;
	// the output directory must match what was actually persisted.
	if resolvedID != id {
		outputDir = filepath.Join(r.cfg.OutputRoot, resolvedID)
	}

	if _, running := r.controllers[resolvedID]; running {
		return resolvedID, nil
	}

	ctrl := channel.New(resolvedID, name, outputDir, r.cat, r.cfg)
	ctrl.Start(ctx)
	r.controllers[resolvedID] = ctrl
	return resolvedID, nil
}

// UpdateConfig replaces the Config used for future channel.init calls.
// Already-running controllers keep the Config they were started with —
// applying a reload mid-playback would shift timing knobs and watermark
// text out from under an in-flight transcode.
func (r *Registry) UpdateConfig(cfg config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// Get returns the running controller for id, or nil if no such channel has
// been initialized in this process.
func (r *Registry) Get(id string) *channel.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controllers[id]
}

// StopAll shuts every running controller down, in no particular order.
func (r *Registry) StopAll() {
	r.mu.Lock()
	controllers := make([]*channel.Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		controllers = append(controllers, c)
	}
	r.mu.Unlock()

	for _, c := range controllers {
		c.Stop()
	}
}

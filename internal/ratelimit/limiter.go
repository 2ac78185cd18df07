// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ratelimit throttles expensive, process-wide operations — starting
// a channel spawns an actor goroutine and, shortly after, an ffmpeg child —
// with a token bucket rather than httprate's per-IP sliding window, which
// only bounds request volume, not the cost each request triggers.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// GlobalLimiter wraps a token bucket shared across every caller in the
// process, matching the Global*/PerIP* split the proxy's rate limiter uses —
// here there is only one tier, since channel.init is an operator action, not
// per-viewer traffic.
type GlobalLimiter struct {
	limiter *rate.Limiter
}

// NewGlobalLimiter allows ratePerSecond sustained calls with a burst of
// burst, matching the teacher's DefaultConfig pattern of generous bursts
// over a modest steady rate.
func NewGlobalLimiter(ratePerSecond float64, burst int) *GlobalLimiter {
	return &GlobalLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Allow reports whether a call may proceed right now, consuming a token if
// so. It never blocks — callers reject over-limit requests outright rather
// than queuing them, since a queued channel.init is still an expensive spawn
// waiting to happen.
func (g *GlobalLimiter) Allow() bool {
	return g.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (g *GlobalLimiter) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import "github.com/lindelatv/channeld/internal/model"

// The channel actor (spec §9) reads these off a single mailbox channel, one
// at a time, so every state mutation in operations.go is serialized by
// construction — no locks are needed around *model.RuntimeState.

type msgEnqueue struct {
	movie model.Movie
}

// msgReady is posted by a supervisor.Handle's onReady callback: the
// Readiness Detector first observed a playable slot.
type msgReady struct {
	slot model.Slot
	role string
}

// msgStabilized fires cfg.AdStabilizationDelay after an ad slot becomes
// ready, before the controller trusts it enough to publish (spec §4.1 item
// "a 3-second stabilization delay").
type msgStabilized struct {
	slot model.Slot
	role string
}

// msgExit is posted by a supervisor.Handle's onExit callback.
type msgExit struct {
	slot model.Slot
	role string
	code int
}

// msgPreloadDeadline fires cfg.PreloadDeadline after PreloadNext starts a
// spawn, if neither msgReady nor msgExit has resolved it by then.
type msgPreloadDeadline struct {
	slot model.Slot
}

// msgRetryPreload re-attempts PreloadNext; PreloadNext's own guard makes
// this a no-op if preload already succeeded or is still in flight.
type msgRetryPreload struct{}

// msgRetryPlayNext re-attempts PlayNext after PreloadWaitIfInFlight or
// PreloadRetryInterval has elapsed.
type msgRetryPlayNext struct{}

// msgAdRestart re-spawns the ad loop after an unexpected ad exit.
type msgAdRestart struct{}

// msgStatusQuery is the public channel.status read that needs the actor
// goroutine (msgDiagnosticsQuery is the debug one) — it reads in-memory
// flags (IsPlaying, PlayingAd, PreloadReady) that are never persisted to
// the catalog.
type msgStatusQuery struct {
	reply chan model.Status
}

// msgDiagnosticsQuery backs Controller.Diagnostics, the debug snapshot
// supplementing channel.status (SPEC_FULL §7).
type msgDiagnosticsQuery struct {
	reply chan Diagnostics
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import "github.com/lindelatv/channeld/internal/fsm"

// State is one of the six named controller states (spec §4.1). It exists
// for observability (metrics, status snapshots, the testable-property
// suite) — the actual preconditions that gate PreloadNext/PlayNext are
// expressed over model.RuntimeState's flags, exactly as spec §3/§4.1 state
// them, not over this enum.
type State string

const (
	StateIdle          State = "idle"
	StateAdLoop        State = "ad_loop"
	StatePreloading    State = "preloading"
	StatePlaying       State = "playing"
	StateTransitioning State = "transitioning"
	StateRecovering    State = "recovering"
)

// Event drives fsm.Machine transitions; it is a separate vocabulary from
// the typed mailbox messages in messages.go, which drive the actor loop
// itself. Firing an event only updates the observable state label.
type Event string

const (
	evInitEmpty               Event = "init_empty"
	evInitNonEmpty            Event = "init_nonempty"
	evPreloadReady            Event = "preload_ready"
	evPreloadFailed           Event = "preload_failed"
	evFirstEnqueue            Event = "first_enqueue"
	evAdExited                Event = "ad_exited"
	evTransitionStart         Event = "transition_start"
	evTransitionDone          Event = "transition_done"
	evTransitionToAd          Event = "transition_to_ad"
	evCrash                   Event = "crash"
	evRecoveredToAd           Event = "recovered_to_ad"
	evRecoveredToPreloading   Event = "recovered_to_preloading"
	evRecoveredToPlaying      Event = "recovered_to_playing"
)

func newMachine() *fsm.Machine[State, Event] {
	m, err := fsm.New(StateIdle, []fsm.Transition[State, Event]{
		{From: StateIdle, Event: evInitEmpty, To: StateAdLoop},
		{From: StateIdle, Event: evInitNonEmpty, To: StatePreloading},

		{From: StatePreloading, Event: evPreloadReady, To: StatePlaying},
		{From: StatePreloading, Event: evPreloadFailed, To: StateRecovering},

		{From: StateAdLoop, Event: evFirstEnqueue, To: StatePreloading},
		{From: StateAdLoop, Event: evAdExited, To: StateAdLoop},
		{From: StateAdLoop, Event: evCrash, To: StateRecovering},

		{From: StatePlaying, Event: evTransitionStart, To: StateTransitioning},
		{From: StatePlaying, Event: evCrash, To: StateRecovering},

		{From: StateTransitioning, Event: evTransitionDone, To: StatePlaying},
		{From: StateTransitioning, Event: evTransitionToAd, To: StateAdLoop},
		{From: StateTransitioning, Event: evCrash, To: StateRecovering},

		{From: StateRecovering, Event: evRecoveredToAd, To: StateAdLoop},
		{From: StateRecovering, Event: evRecoveredToPreloading, To: StatePreloading},
		{From: StateRecovering, Event: evRecoveredToPlaying, To: StatePlaying},
	})
	if err != nil {
		// The transition table above is a fixed literal with no duplicate
		// (from, event) pairs; a construction error here means the table
		// itself was edited incorrectly, which a test catches immediately.
		panic(err)
	}
	return m
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "testing"

// fuzzEventCount mirrors the 10,000-event sequence length spec §8 property 1
// names for the slot-parity invariant.
const fuzzEventCount = 10000

// applyFuzzEvent replays one byte-driven enqueue/complete/fail event against
// rt, mimicking the transitions internal/channel.Controller's actor loop
// performs on RuntimeState (preloadNext/onPreloadReady/playNext/preload
// failure), without any of the I/O those real operations also do.
func applyFuzzEvent(rt *RuntimeState, b byte) {
	switch b % 3 {
	case 0: // enqueue -> start a preload, if one isn't already in flight/ready
		if !rt.IsPreloading && !rt.PreloadReady {
			rt.Preload = &fakeHandle{slot: rt.NextSlot, role: "movie"}
			rt.IsPreloading = true
		}
	case 1: // complete -> preload becomes ready, then PlayNext swaps it in
		if rt.IsPreloading {
			rt.IsPreloading = false
			rt.PreloadReady = true
		}
		if rt.PreloadReady {
			rt.SwapSlots()
			rt.Current = rt.Preload
			rt.Preload = nil
			rt.PreloadReady = false
			rt.IsPlaying = true
			rt.PlayingAd = false
		}
	case 2: // fail -> preload (or the active slot) is torn down
		if rt.IsPreloading {
			rt.IsPreloading = false
			rt.Preload = nil
		} else {
			rt.Current = nil
			rt.IsPlaying = false
			rt.PlayingAd = false
		}
	}
}

func FuzzSlotParityInvariant(f *testing.F) {
	f.Add([]byte{0, 1, 2, 1, 0, 2, 1})
	f.Add([]byte{1, 1, 1, 1})
	f.Add([]byte{2, 2, 2, 2})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, seed []byte) {
		if len(seed) == 0 {
			seed = []byte{0}
		}
		rt := NewRuntimeState()
		for i := 0; i < fuzzEventCount; i++ {
			applyFuzzEvent(rt, seed[i%len(seed)]+byte(i))
			if err := rt.CheckInvariants(); err != nil {
				t.Fatalf("event %d (code %d): invariant violated: %v", i, seed[i%len(seed)], err)
			}
		}
	})
}

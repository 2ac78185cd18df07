// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ratelimit

import "testing"

func TestGlobalLimiter_EnforcesBurstThenRate(t *testing.T) {
	l := NewGlobalLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Errorf("request %d: expected burst capacity to allow it", i+1)
		}
	}

	if l.Allow() {
		t.Error("4th request: expected burst to be exhausted")
	}
}

func TestGlobalLimiter_IndependentInstances(t *testing.T) {
	a := NewGlobalLimiter(1, 1)
	b := NewGlobalLimiter(1, 1)

	if !a.Allow() {
		t.Error("limiter a: first request should be allowed")
	}
	if a.Allow() {
		t.Error("limiter a: second request should be rate limited")
	}
	if !b.Allow() {
		t.Error("limiter b: independent bucket, first request should be allowed")
	}
}

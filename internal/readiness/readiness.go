// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package readiness implements the Readiness Detector (spec §4.3): it polls
// a slot's output directory until its HLS playlist is "playable" — the
// master and stream playlists exist and are non-empty, the stream playlist
// names at least two segment files for the slot, and those segment files
// exist on disk above a minimum size.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lindelatv/channeld/internal/config"
	"github.com/lindelatv/channeld/internal/hls"
	"github.com/lindelatv/channeld/internal/model"
)

// ErrTimeout is returned by Wait when the deadline elapses without the
// slot ever becoming playable.
var ErrTimeout = errors.New("readiness: deadline exceeded")

// Paths returns the paths of the slot's master playlist and stream
// playlist inside outputDir.
func Paths(outputDir string, slot model.Slot) (master, stream string) {
	s := slot.String()
	return filepath.Join(outputDir, "master_"+s+".m3u8"), filepath.Join(outputDir, "stream_"+s+".m3u8")
}

// Check performs a single, synchronous playability check of slot's output
// in outputDir against cfg's segment-size/count thresholds (spec §4.3).
func Check(outputDir string, slot model.Slot, cfg config.Config) (bool, error) {
	masterPath, streamPath := Paths(outputDir, slot)

	masterInfo, err := os.Stat(masterPath)
	if err != nil || masterInfo.Size() == 0 {
		return false, nil
	}
	streamInfo, err := os.Stat(streamPath)
	if err != nil || streamInfo.Size() == 0 {
		return false, nil
	}

	streamData, err := os.ReadFile(streamPath)
	if err != nil {
		return false, nil
	}
	if !hls.IsNonEmptyPlaylist(string(streamData)) {
		return false, nil
	}

	uris := hls.SegmentURIs(string(streamData), slot.String())
	if len(uris) < cfg.MinReadySegments {
		return false, nil
	}

	ready := 0
	for _, uri := range uris {
		segInfo, err := os.Stat(filepath.Join(outputDir, uri))
		if err != nil {
			continue
		}
		if segInfo.Size() > cfg.MinSegmentBytes {
			ready++
		}
	}
	return ready >= cfg.MinReadySegments, nil
}

// Wait blocks, polling at cfg.ReadinessPollInterval, until slot's output in
// outputDir is playable, the deadline (cfg.ReadinessDeadline) elapses, or
// ctx is cancelled. On deadline it performs one final check and reports
// ready only if that check now passes (spec §4.3); otherwise it returns
// ErrTimeout.
func Wait(ctx context.Context, outputDir string, slot model.Slot, cfg config.Config) error {
	deadline := time.Now().Add(cfg.ReadinessDeadline)
	ticker := time.NewTicker(cfg.ReadinessPollInterval)
	defer ticker.Stop()

	for {
		ready, err := Check(outputDir, slot, cfg)
		if err != nil {
			return fmt.Errorf("readiness check: %w", err)
		}
		if ready {
			return nil
		}

		if !time.Now().Before(deadline) {
			ready, err := Check(outputDir, slot, cfg)
			if err != nil {
				return fmt.Errorf("readiness final check: %w", err)
			}
			if ready {
				return nil
			}
			return ErrTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

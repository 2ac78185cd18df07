// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"time"

	"github.com/lindelatv/channeld/internal/config"
	"github.com/lindelatv/channeld/internal/log"
	"github.com/lindelatv/channeld/internal/metrics"
)

// ProbeDuration exposes probeDuration to callers outside this package — the
// channel controller needs the same duration lookup to compute a just-aired
// movie's end time (spec §4.1 PlayNext step "update currentMovie").
func ProbeDuration(ctx context.Context, cfg config.Config, channelID, path string) time.Duration {
	return probeDuration(ctx, cfg, channelID, path)
}

type probeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// probeDuration shells out to ffprobe for path's duration, falling back to
// cfg.ProbeFallbackDuration if the probe fails or exceeds cfg.ProbeTimeout
// (spec §4.5, §7 ProbeFailed — "does not block playback").
func probeDuration(ctx context.Context, cfg config.Config, channelID, path string) time.Duration {
	logger := log.WithComponent("schedule")

	probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_entries", "format=duration",
		path,
	}
	bin := cfg.FFprobeBin
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(probeCtx, bin, args...) // #nosec G204 -- path is an internal catalog field, not raw user input
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("ffprobe failed, using fallback duration")
		metrics.ProbeFailureTotal.WithLabelValues(channelID).Inc()
		return cfg.ProbeFallbackDuration
	}

	var data probeFormat
	if err := json.Unmarshal(stdout.Bytes(), &data); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("ffprobe returned unparseable output, using fallback duration")
		metrics.ProbeFailureTotal.WithLabelValues(channelID).Inc()
		return cfg.ProbeFallbackDuration
	}

	seconds, err := strconv.ParseFloat(data.Format.Duration, 64)
	if err != nil || seconds <= 0 {
		logger.Warn().Str("path", path).Msg("ffprobe returned no usable duration, using fallback duration")
		metrics.ProbeFailureTotal.WithLabelValues(channelID).Inc()
		return cfg.ProbeFallbackDuration
	}

	return time.Duration(seconds * float64(time.Second))
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package supervisor implements the Transcoder Supervisor (spec §4.2): it
// spawns one transcoder child per slot, attaches the Readiness Detector to
// its output, drains stderr into a bounded ring buffer, and reports
// lifecycle events (ready once, exit exactly once) to the caller via
// callbacks, mirroring the channel actor's single-mailbox design (spec §9).
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/lindelatv/channeld/internal/config"
	"github.com/lindelatv/channeld/internal/log"
	"github.com/lindelatv/channeld/internal/metrics"
	"github.com/lindelatv/channeld/internal/model"
	"github.com/lindelatv/channeld/internal/procgroup"
	"github.com/lindelatv/channeld/internal/readiness"
)

// ExitSpawnFailed is the code passed to onExit when the input file is
// missing/unreadable or the OS refused to launch the child (spec §4.2
// item 1, §7 InputMissing/SpawnFailed — "failed to even start").
const ExitSpawnFailed = -1

// Handle is a running (or just-exited) transcoder child. It satisfies
// model.TranscoderHandle so the channel controller can hold a reference
// without importing this package.
type Handle struct {
	spec      Spec
	cmd       *exec.Cmd
	ring      *lineRing
	killGrace time.Duration

	mu     sync.Mutex
	killed bool
}

func (h *Handle) Slot() model.Slot { return h.spec.Slot }
func (h *Handle) Role() string     { return h.spec.Role }

// Kill hard-terminates the child (SIGTERM then SIGKILL via procgroup),
// matching spec §5's cancellation semantics: kills are immediate, not a
// graceful drain, because the transcoder's output is rolling and disposable.
func (h *Handle) Kill() {
	h.mu.Lock()
	if h.killed {
		h.mu.Unlock()
		return
	}
	h.killed = true
	cmd := h.cmd
	h.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := procgroup.KillGroup(cmd.Process.Pid, 0, h.killGrace); err != nil {
		killLogger := log.L()
		killLogger.Debug().Err(err).Str("slot", h.spec.Slot.String()).Msg("kill transcoder process group")
	}
}

// LastLogLines returns up to n of the most recent stderr lines captured
// from the child, for diagnostics after a crash.
func (h *Handle) LastLogLines(n int) []string {
	return h.ring.LastN(n)
}

// Spawn launches a transcoder child for spec. onReady is invoked at most
// once, when the Readiness Detector first observes a playable slot.
// onExit is invoked exactly once, with the child's exit code, or
// ExitSpawnFailed if the input was missing/unreadable or the OS refused to
// start the process (spec §4.2).
func Spawn(ctx context.Context, cfg config.Config, spec Spec, onReady func(), onExit func(code int)) *Handle {
	h := &Handle{spec: spec, ring: newLineRing(256), killGrace: cfg.PostKillSettleTime}
	logger := log.WithComponent("supervisor").With().Str("slot", spec.Slot.String()).Str("role", spec.Role).Logger()

	if info, err := os.Stat(spec.InputPath); err != nil || info.IsDir() {
		logger.Warn().Str("input", spec.InputPath).Msg("transcoder input missing or unreadable")
		metrics.TranscoderStartTotal.WithLabelValues(spec.ChannelID, spec.Role, "input_missing").Inc()
		onExit(ExitSpawnFailed)
		return h
	}

	watermark := cfg.Watermark
	args := buildArgs(spec, watermark)
	cmd := exec.CommandContext(ctx, cfg.FFmpegBin, args...) // #nosec G204 -- args are built, not shell-interpolated
	procgroup.Set(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to attach stderr pipe")
		metrics.TranscoderStartTotal.WithLabelValues(spec.ChannelID, spec.Role, "pipe_failed").Inc()
		onExit(ExitSpawnFailed)
		return h
	}

	if err := cmd.Start(); err != nil {
		logger.Warn().Err(err).Msg("failed to start transcoder process")
		metrics.TranscoderStartTotal.WithLabelValues(spec.ChannelID, spec.Role, "start_failed").Inc()
		onExit(ExitSpawnFailed)
		return h
	}
	h.cmd = cmd
	metrics.TranscoderStartTotal.WithLabelValues(spec.ChannelID, spec.Role, "ok").Inc()
	logger.Info().Str("command", cmd.String()).Msg("transcoder started")

	var ioWg sync.WaitGroup
	ioWg.Add(1)
	go func() {
		defer ioWg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			_, _ = h.ring.Write(scanner.Bytes())
			_, _ = h.ring.Write([]byte("\n"))
		}
	}()

	readyCtx, cancelReady := context.WithCancel(ctx)
	var readyOnce sync.Once
	go func() {
		defer cancelReady()
		if err := readiness.Wait(readyCtx, spec.OutputDir, spec.Slot, cfg); err != nil {
			if readyCtx.Err() == nil {
				metrics.ReadinessTimeoutTotal.WithLabelValues(spec.ChannelID, spec.Slot.String()).Inc()
				logger.Warn().Err(err).Msg("slot never became ready")
			}
			return
		}
		readyOnce.Do(onReady)
	}()

	go func() {
		waitErr := cmd.Wait()
		cancelReady()
		ioWg.Wait()

		code := 0
		reason := "clean"
		if waitErr != nil {
			code = 1
			reason = "error"
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				code = exitErr.ExitCode()
			}
			stderrLines := h.ring.LastN(20)
			logger.Warn().Int("exit_code", code).Strs("stderr", stderrLines).Msg("transcoder exited with error")
		} else {
			logger.Info().Msg("transcoder exited cleanly")
		}
		metrics.TranscoderExitTotal.WithLabelValues(spec.ChannelID, spec.Role, reason).Inc()
		onExit(code)
	}()

	return h
}

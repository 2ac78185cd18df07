// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/lindelatv/channeld/internal/metrics"
	"github.com/lindelatv/channeld/internal/model"
	"github.com/lindelatv/channeld/internal/publisher"
	"github.com/lindelatv/channeld/internal/readiness"
	"github.com/lindelatv/channeld/internal/schedule"
	"github.com/lindelatv/channeld/internal/supervisor"
)

// initialize implements InitializeChannel (spec §4.1): wipe and recreate
// the channel's output directory, reset runtime state to activeSlot=A,
// nextSlot=B with every flag false, then route to PlayAd or PreloadNext
// depending on whether the persisted queue is empty. It is idempotent per
// channel and fails only on an unwritable output directory.
func (c *Controller) initialize(ctx context.Context) {
	if err := os.RemoveAll(c.outputDir); err != nil {
		c.logger.Error().Err(err).Msg("failed to clear channel output directory")
		return
	}
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		c.logger.Error().Err(err).Msg("failed to recreate channel output directory")
		return
	}

	c.rt = model.NewRuntimeState()

	ch := c.cat.Get(c.id)
	if ch == nil {
		c.logger.Error().Msg("initialize called for channel missing from catalog")
		return
	}
	if ch.Current != nil {
		// A process restart leaves a stale "currently playing" snapshot
		// with no transcoder actually running behind it (Open Question,
		// resolved in DESIGN.md): treat every restart as a cold start and
		// let PlayAd/PreloadNext establish a fresh current movie.
		_ = c.cat.SetCurrent(c.id, nil)
	}

	if len(ch.Queue) == 0 {
		c.fire(evInitEmpty)
		c.playAd(ctx)
		return
	}

	c.fire(evInitNonEmpty)
	c.initialPlayPending = true
	c.preloadNext(ctx)
}

// playAd implements the PlayAd half of spec §4.1: spawn the looping
// advertisement on the active slot, publishing it once the Readiness
// Detector and a stabilization delay both pass.
func (c *Controller) playAd(ctx context.Context) {
	slot := c.rt.ActiveSlot
	c.pruneSlot(slot)

	spec := supervisor.Spec{
		ChannelID: c.id,
		InputPath: c.cfg.AdFilePath,
		OutputDir: c.outputDir,
		Slot:      slot,
		Role:      supervisor.RoleAd,
	}
	handle := c.spawnFor(ctx, spec)
	c.rt.Current = handle
	c.rt.PlayingAd = true
}

// preloadNext implements PreloadNext (spec §4.1): start transcoding the
// queue's head movie into the (currently inactive) next slot. Refuses if a
// preload is already in flight or already ready.
func (c *Controller) preloadNext(ctx context.Context) {
	if c.rt.IsPreloading || c.rt.PreloadReady {
		return
	}

	ch := c.cat.Get(c.id)
	if ch == nil || len(ch.Queue) == 0 {
		return
	}
	movie := ch.Queue[0]

	slot := c.rt.NextSlot
	c.pruneSlot(slot)

	spec := supervisor.Spec{
		ChannelID: c.id,
		InputPath: movie.FilePath,
		OutputDir: c.outputDir,
		Slot:      slot,
		Title:     movie.Title,
		Role:      supervisor.RoleMovie,
	}
	handle := c.spawnFor(ctx, spec)
	c.rt.Preload = handle
	c.rt.IsPreloading = true

	time.AfterFunc(c.cfg.PreloadDeadline, func() {
		c.post(msgPreloadDeadline{slot: slot})
	})
}

// handlePreloadDeadline is PreloadNext's "25-second overall deadline"
// fallback (spec §4.1): if the supervisor's own onReady/onExit callbacks
// haven't already resolved this preload, perform one manual filesystem
// check before giving up and scheduling a retry.
func (c *Controller) handlePreloadDeadline(ctx context.Context, slot model.Slot) {
	if !c.rt.IsPreloading || slot != c.rt.NextSlot {
		return
	}

	ready, err := readiness.Check(c.outputDir, slot, c.cfg)
	if err == nil && ready {
		c.onPreloadReady(ctx)
		return
	}

	c.logger.Warn().Str("slot", slot.String()).Msg("preload deadline exceeded, killing and retrying")
	metrics.ReadinessTimeoutTotal.WithLabelValues(c.id, slot.String()).Inc()
	if c.rt.Preload != nil {
		c.rt.Preload.Kill()
		c.rt.Preload = nil
	}
	c.rt.IsPreloading = false
	c.fire(evPreloadFailed)

	time.AfterFunc(c.cfg.PreloadRetryInterval, func() {
		c.post(msgRetryPreload{})
	})
}

// playNext implements PlayNext (spec §4.1, §5) in the order spec §4.1
// literally lists: swap → kill-if-ad → clear preloadReady → publish-with-
// retry → store current-movie timestamps → regenerate schedule → shift
// queue head → persist. The queue head is captured into locals before any
// of this runs and only shifted from the catalog as the very last step, so
// a crash anywhere in between leaves the movie still at the queue head on
// restart (spec §5's ordering guarantee, spec §8 property 4).
func (c *Controller) playNext(ctx context.Context) {
	ch := c.cat.Get(c.id)
	if ch == nil || len(ch.Queue) == 0 {
		return
	}

	if !c.rt.PreloadReady {
		if c.rt.IsPreloading {
			time.AfterFunc(c.cfg.PreloadWaitIfInFlight, func() {
				c.post(msgRetryPlayNext{})
			})
			return
		}
		c.preloadNext(ctx)
		time.AfterFunc(c.cfg.PreloadRetryInterval, func() {
			c.post(msgRetryPlayNext{})
		})
		return
	}

	// Capture the queue head's metadata into locals now — the catalog
	// record may be mutated again by a concurrent Enqueue at any point
	// between here and the ShiftHead call at the end.
	head := ch.Queue[0]
	title, path := head.Title, head.FilePath

	oldActive := c.rt.Current
	oldActiveWasAd := oldActive != nil && oldActive.Role() == supervisor.RoleAd
	newHandle := c.rt.Preload

	c.rt.SwapSlots()
	c.rt.Current = newHandle
	c.rt.Preload = nil

	if oldActiveWasAd {
		time.AfterFunc(c.cfg.TransitionExitDelay, func() {
			oldActive.Kill()
		})
	}

	c.rt.PreloadReady = false
	c.rt.IsPlaying = true
	c.rt.PlayingAd = false

	c.fire(evTransitionStart)
	c.publishWithRetry(c.rt.ActiveSlot)

	duration := schedule.ProbeDuration(ctx, c.cfg, c.id, path)
	now := time.Now()
	current := &model.CurrentMovie{Title: title, StartTime: now, EndTime: now.Add(duration)}
	_ = c.cat.SetCurrent(c.id, current)
	c.regenerateSchedule(ctx)
	c.fire(evTransitionDone)

	if _, err := c.cat.ShiftHead(c.id); err != nil {
		c.logger.Error().Err(err).Msg("playNext: queue head vanished after preload became ready")
	}

	metrics.QueueLength.WithLabelValues(c.id).Set(float64(len(c.cat.Get(c.id).Queue)))

	leadDelay := duration - c.cfg.PreloadLeadTime
	if leadDelay < 0 {
		leadDelay = 0
	}
	time.AfterFunc(leadDelay, func() {
		c.post(msgRetryPreload{})
	})
}

// handleEnqueue implements the persistence half of channel.enqueue (spec
// §6, §8 property 3) and, if the queue was empty while an ad was looping,
// breaks the ad loop by starting a preload (AdLoop -> Preloading, spec
// §4.1 "first_enqueue").
func (c *Controller) handleEnqueue(ctx context.Context, movie model.Movie) {
	if movie.AddedAt.IsZero() {
		movie.AddedAt = time.Now()
	}
	if err := c.cat.Enqueue(c.id, movie); err != nil {
		c.logger.Error().Err(err).Msg("enqueue failed")
		return
	}
	c.regenerateSchedule(ctx)

	ch := c.cat.Get(c.id)
	if ch != nil {
		metrics.QueueLength.WithLabelValues(c.id).Set(float64(len(ch.Queue)))
	}

	if c.rt.PlayingAd && !c.rt.IsPreloading && !c.rt.PreloadReady {
		c.fire(evFirstEnqueue)
		c.initialPlayPending = true
		c.preloadNext(ctx)
	}
}

// handleReady routes a supervisor's onReady callback to the right
// follow-up: ads get a stabilization delay before publishing, preloading
// movies just flip PreloadReady.
func (c *Controller) handleReady(ctx context.Context, slot model.Slot, role string) {
	switch {
	case role == supervisor.RoleAd && slot == c.rt.ActiveSlot:
		time.AfterFunc(c.cfg.AdStabilizationDelay, func() {
			c.post(msgStabilized{slot: slot, role: role})
		})
	case role == supervisor.RoleMovie && slot == c.rt.NextSlot:
		c.onPreloadReady(ctx)
	default:
		c.logger.Debug().Str("slot", slot.String()).Str("role", role).Msg("ready signal for a slot the controller no longer tracks")
	}
}

// onPreloadReady is the shared success path for a preload resolving either
// via msgReady or via handlePreloadDeadline's manual fallback check.
func (c *Controller) onPreloadReady(ctx context.Context) {
	if !c.rt.IsPreloading {
		return
	}
	c.rt.IsPreloading = false
	c.rt.PreloadReady = true
	c.fire(evPreloadReady)

	if c.initialPlayPending {
		c.initialPlayPending = false
		c.playNext(ctx)
	}
}

// handleStabilized publishes an ad slot after it has survived the
// stabilization delay (spec §4.1 item "publishes the slot").
func (c *Controller) handleStabilized(ctx context.Context, slot model.Slot, role string) {
	if role != supervisor.RoleAd || slot != c.rt.ActiveSlot {
		return
	}
	c.publishWithRetry(slot)
	c.rt.IsPlaying = true
}

// handleExit routes a supervisor's onExit callback. Any exit of the active
// movie, clean or not, is the "this movie finished" signal and leads to
// PlayNext (a non-zero code additionally fires the FSM's crash event); ad
// and preload exits are handled as failures per spec §7.
func (c *Controller) handleExit(ctx context.Context, slot model.Slot, role string, code int) {
	switch {
	case slot == c.rt.NextSlot && role == supervisor.RoleMovie && c.rt.IsPreloading:
		c.logger.Warn().Int("code", code).Msg("preload transcoder exited before becoming ready")
		c.rt.IsPreloading = false
		c.rt.Preload = nil
		c.fire(evPreloadFailed)
		if code == supervisor.ExitSpawnFailed {
			// InputMissing/SpawnFailed (spec §7): the file itself is
			// unusable, not merely slow — drop it rather than retry the
			// same path forever.
			if _, err := c.cat.ShiftHead(c.id); err != nil {
				c.logger.Warn().Err(err).Msg("drop missing-input movie: queue already empty")
			}
			c.regenerateSchedule(ctx)
		}
		time.AfterFunc(c.cfg.PreloadRetryInterval, func() {
			c.post(msgRetryPreload{})
		})

	case slot == c.rt.ActiveSlot && role == supervisor.RoleAd:
		c.fire(evCrash)
		c.rt.Current = nil
		c.rt.IsPlaying = false
		c.rt.PlayingAd = false
		backoff := c.cfg.AdRestartBackoffNormal
		if code != 0 {
			backoff = c.cfg.AdRestartBackoffFailure
		}
		time.AfterFunc(backoff, func() {
			c.post(msgAdRestart{})
		})

	case slot == c.rt.ActiveSlot && role == supervisor.RoleMovie:
		c.rt.Current = nil
		c.rt.IsPlaying = false
		if code != 0 {
			c.fire(evCrash)
		}
		if c.rt.PreloadReady {
			c.playNext(ctx)
		} else {
			// Nothing is ready to take over immediately; fall back to the
			// ad loop rather than leave the slot silent (spec §8 "no
			// silent gap" property) and let the in-flight/forced preload
			// resolve on its own and trigger PlayNext when ready.
			c.playAd(ctx)
			c.initialPlayPending = true
			c.preloadNext(ctx)
		}

	default:
		c.logger.Debug().Str("slot", slot.String()).Str("role", role).Int("code", code).Msg("exit for a slot the controller no longer tracks")
	}
}

// publishWithRetry retries the Active-Slot Publisher up to
// cfg.PublishRetryAttempts times (spec §4.1 "publish retries", §7
// PublishFailed), logging and giving up silently on exhaustion — the next
// successful publish (from the next transition) will recover visibility.
func (c *Controller) publishWithRetry(slot model.Slot) {
	var err error
	for attempt := 0; attempt < c.cfg.PublishRetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(c.cfg.PublishRetryInterval)
		}
		if err = publisher.Publish(c.outputDir, slot, c.cfg); err == nil {
			metrics.PublishResultTotal.WithLabelValues(c.id, "ok").Inc()
			return
		}
	}
	metrics.PublishResultTotal.WithLabelValues(c.id, "failed").Inc()
	c.logger.Error().Err(err).Str("slot", slot.String()).Msg("publish failed after all retries")
}

// regenerateSchedule recomputes the projected schedule from the catalog's
// current queue/current-movie snapshot (spec §4.5: "on enqueue and on
// movie-start").
func (c *Controller) regenerateSchedule(ctx context.Context) {
	ch := c.cat.Get(c.id)
	if ch == nil {
		return
	}
	rows := schedule.Project(ctx, c.id, ch.Queue, ch.Current, c.cfg)
	_ = c.cat.SetSchedule(c.id, rows)
}

// spawnFor wraps c.spawn, wiring onReady/onExit back into the actor's
// mailbox so the spawned transcoder's callbacks never touch RuntimeState
// directly — they only ever post a message (spec §9).
func (c *Controller) spawnFor(ctx context.Context, spec supervisor.Spec) model.TranscoderHandle {
	onReady := func() {
		c.post(msgReady{slot: spec.Slot, role: spec.Role})
	}
	onExit := func(code int) {
		c.post(msgExit{slot: spec.Slot, role: spec.Role, code: code})
	}
	return c.spawn(ctx, c.cfg, spec, onReady, onExit)
}

// pruneSlot removes a slot's stale playlists and segments before it is
// reused by a new spawn (spec §4.2: "the output directory is pruned of its
// segments/playlists" on slot reuse).
func (c *Controller) pruneSlot(slot model.Slot) {
	s := slot.String()
	matches, _ := filepath.Glob(filepath.Join(c.outputDir, "segment_"+s+"_*.ts"))
	for _, m := range matches {
		_ = os.Remove(m)
	}
	_ = os.Remove(filepath.Join(c.outputDir, "master_"+s+".m3u8"))
	_ = os.Remove(filepath.Join(c.outputDir, "stream_"+s+".m3u8"))
}

// statusSnapshot builds the channel.status response (spec §6) from
// in-memory runtime flags plus the persisted queue/current-movie snapshot.
func (c *Controller) statusSnapshot() model.Status {
	st := model.Status{
		Name:         c.name,
		IsPlaying:    c.rt.IsPlaying,
		PlayingAd:    c.rt.PlayingAd,
		PreloadReady: c.rt.PreloadReady,
	}
	if ch := c.cat.Get(c.id); ch != nil {
		st.QueueLength = len(ch.Queue)
		if ch.Current != nil {
			st.CurrentMovie = ch.Current.Title
		}
	}
	return st
}

// diagnosticsSnapshot builds the debug snapshot (see type Diagnostics).
func (c *Controller) diagnosticsSnapshot() Diagnostics {
	d := Diagnostics{
		FSMState:     string(c.machine.State()),
		ActiveSlot:   c.rt.ActiveSlot.String(),
		NextSlot:     c.rt.NextSlot.String(),
		IsPlaying:    c.rt.IsPlaying,
		PlayingAd:    c.rt.PlayingAd,
		IsPreloading: c.rt.IsPreloading,
		PreloadReady: c.rt.PreloadReady,
	}
	if ch := c.cat.Get(c.id); ch != nil {
		d.QueueLengthRaw = len(ch.Queue)
	}
	return d
}

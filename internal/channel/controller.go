// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package channel implements the Channel Controller (spec §4.1): one actor
// goroutine per channel owning a single mailbox, serializing every state
// transition so that at most one outstanding action is ever in flight for
// a channel (spec §5, §9). Transport and the catalog's own locking are the
// only other concurrency in this package; everything touching
// *model.RuntimeState happens on the actor goroutine.
package channel

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lindelatv/channeld/internal/catalog"
	"github.com/lindelatv/channeld/internal/config"
	"github.com/lindelatv/channeld/internal/fsm"
	"github.com/lindelatv/channeld/internal/log"
	"github.com/lindelatv/channeld/internal/metrics"
	"github.com/lindelatv/channeld/internal/model"
	"github.com/lindelatv/channeld/internal/supervisor"
)

// spawnFunc is the dependency-injection seam for tests: production code
// uses defaultSpawn (a thin wrapper over supervisor.Spawn); tests substitute
// a fake that never touches os/exec, mirroring the teacher's pattern of
// swapping out the transcoder binary rather than the Go call site.
type spawnFunc func(ctx context.Context, cfg config.Config, spec supervisor.Spec, onReady func(), onExit func(code int)) model.TranscoderHandle

func defaultSpawn(ctx context.Context, cfg config.Config, spec supervisor.Spec, onReady func(), onExit func(code int)) model.TranscoderHandle {
	return supervisor.Spawn(ctx, cfg, spec, onReady, onExit)
}

// Controller runs one channel's actor loop. Construct with New, then Start
// it; Stop tears the actor down and kills any transcoders it owns.
type Controller struct {
	id        string
	name      string
	outputDir string

	cat *catalog.Catalog
	cfg config.Config

	machine *fsm.Machine[State, Event]
	logger  zerolog.Logger

	spawn spawnFunc

	mailbox chan any
	done    chan struct{}
	wg      sync.WaitGroup

	// rt and initialPlayPending are owned exclusively by the actor
	// goroutine (see operations.go); every other field above is read-only
	// after New or safe for concurrent use on its own terms.
	rt                 *model.RuntimeState
	initialPlayPending bool
}

// New constructs a Controller for channel id/name, writing transcoder
// output under outputDir. The channel must already exist in cat (created
// via catalog.EnsureChannel) before Start is called.
func New(id, name, outputDir string, cat *catalog.Catalog, cfg config.Config) *Controller {
	return &Controller{
		id:        id,
		name:      name,
		outputDir: outputDir,
		cat:       cat,
		cfg:       cfg,
		machine:   newMachine(),
		logger:    log.WithComponent("channel").With().Str("channel_id", id).Logger(),
		spawn:     defaultSpawn,
		mailbox:   make(chan any, 64),
		done:      make(chan struct{}),
	}
}

// Start runs InitializeChannel (spec §4.1) and then the actor loop in a
// background goroutine. It returns immediately.
func (c *Controller) Start(ctx context.Context) {
	metrics.ActiveChannels.Inc()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.initialize(ctx)
		c.loop(ctx)
	}()
}

// Stop halts the actor loop and kills any transcoder processes the channel
// currently owns. It blocks until the actor goroutine has exited.
func (c *Controller) Stop() {
	close(c.done)
	c.wg.Wait()
	metrics.ActiveChannels.Dec()

	if c.rt == nil {
		return
	}
	if c.rt.Current != nil {
		c.rt.Current.Kill()
	}
	if c.rt.Preload != nil {
		c.rt.Preload.Kill()
	}
}

// ID returns the channel's id.
func (c *Controller) ID() string { return c.id }

// Enqueue appends movie to the channel's queue (channel.enqueue, spec §6).
// It posts to the actor's mailbox and returns without waiting for the
// enqueue to be processed; durability is guaranteed by catalog.Enqueue,
// which the actor calls synchronously before doing anything else.
func (c *Controller) Enqueue(movie model.Movie) {
	c.post(msgEnqueue{movie: movie})
}

// Status returns the live view the actor holds in memory (channel.status,
// spec §6): isPlaying/playingAd/preloadReady never touch the catalog.
func (c *Controller) Status() model.Status {
	reply := make(chan model.Status, 1)
	c.post(msgStatusQuery{reply: reply})
	select {
	case st := <-reply:
		return st
	case <-c.done:
		return model.Status{Name: c.name}
	}
}

// Queue returns the persisted queue view (channel.queue, spec §6). This
// reads the catalog directly — it needs no actor round trip since the
// catalog already guarantees a consistent snapshot.
func (c *Controller) Queue() ([]model.QueueEntry, error) {
	return c.cat.QueueView(c.id)
}

// Schedule returns the persisted projected schedule (channel.schedule,
// spec §6), same rationale as Queue.
func (c *Controller) Schedule() ([]model.ScheduleRow, error) {
	return c.cat.ScheduleView(c.id)
}

// Diagnostics is a debug-only snapshot of the actor's internal state,
// beyond what channel.status exposes — backs the optional /debug endpoint
// and gives tests a race-free way to read which slot is active.
type Diagnostics struct {
	FSMState       string `json:"fsmState"`
	ActiveSlot     string `json:"activeSlot"`
	NextSlot       string `json:"nextSlot"`
	IsPlaying      bool   `json:"isPlaying"`
	PlayingAd      bool   `json:"playingAd"`
	IsPreloading   bool   `json:"isPreloading"`
	PreloadReady   bool   `json:"preloadReady"`
	QueueLengthRaw int    `json:"queueLength"`
}

// Diagnostics returns the current snapshot (see type Diagnostics).
func (c *Controller) Diagnostics() Diagnostics {
	reply := make(chan Diagnostics, 1)
	c.post(msgDiagnosticsQuery{reply: reply})
	select {
	case d := <-reply:
		return d
	case <-c.done:
		return Diagnostics{}
	}
}

// post delivers msg to the actor, or drops it silently if the actor has
// already been stopped.
func (c *Controller) post(msg any) {
	select {
	case c.mailbox <- msg:
	case <-c.done:
	}
}

func (c *Controller) loop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg := <-c.mailbox:
			c.dispatch(ctx, msg)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case msgEnqueue:
		c.handleEnqueue(ctx, m.movie)
	case msgReady:
		c.handleReady(ctx, m.slot, m.role)
	case msgStabilized:
		c.handleStabilized(ctx, m.slot, m.role)
	case msgExit:
		c.handleExit(ctx, m.slot, m.role, m.code)
	case msgPreloadDeadline:
		c.handlePreloadDeadline(ctx, m.slot)
	case msgRetryPreload:
		c.preloadNext(ctx)
	case msgRetryPlayNext:
		c.playNext(ctx)
	case msgAdRestart:
		c.playAd(ctx)
	case msgStatusQuery:
		m.reply <- c.statusSnapshot()
	case msgDiagnosticsQuery:
		m.reply <- c.diagnosticsSnapshot()
	default:
		c.logger.Warn().Msgf("unknown mailbox message type %T", msg)
	}
}

// fire drives the observable FSM (state.go). A rejected transition is
// logged, not fatal — the FSM mirrors reality for metrics/tests; the real
// guards live on *model.RuntimeState, checked directly in operations.go.
func (c *Controller) fire(ev Event) {
	from := c.machine.State()
	to, err := c.machine.Fire(context.Background(), ev)
	if err != nil {
		c.logger.Debug().Err(err).Str("event", string(ev)).Str("state", string(from)).Msg("fsm transition rejected")
		return
	}
	metrics.ChannelState.WithLabelValues(c.id, string(from)).Set(0)
	metrics.ChannelState.WithLabelValues(c.id, string(to)).Set(1)
	metrics.TransitionTotal.WithLabelValues(c.id, string(from), string(to)).Inc()
}

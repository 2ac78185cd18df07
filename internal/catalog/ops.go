// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"fmt"

	"github.com/lindelatv/channeld/internal/model"
)

// Enqueue appends m to the channel's queue and persists immediately,
// satisfying spec §8 property 3 (queue persistence law: "a movie is
// durable the instant Enqueue returns successfully").
func (c *Catalog) Enqueue(id string, m model.Movie) error {
	return c.Mutate(id, func(ch *model.Channel) error {
		ch.Queue = append(ch.Queue, m)
		return nil
	})
}

// ShiftHead removes and returns the first queued movie, persisting the
// shortened queue immediately. Callers must capture the returned movie's
// metadata into local variables before acting on it — the catalog record
// can be mutated again by a concurrent Enqueue as soon as this returns.
func (c *Catalog) ShiftHead(id string) (model.Movie, error) {
	var head model.Movie
	err := c.Mutate(id, func(ch *model.Channel) error {
		if len(ch.Queue) == 0 {
			return fmt.Errorf("channel %s: %w", id, ErrQueueEmpty)
		}
		head = ch.Queue[0]
		ch.Queue = ch.Queue[1:]
		return nil
	})
	return head, err
}

// SetCurrent replaces the channel's current-movie snapshot. playNext calls
// it after the active slot has been swapped and published (spec §5
// ordering: slot swap, then publish, then metadata update, then queue shift
// last); initialize calls it with nil to clear a stale snapshot.
func (c *Catalog) SetCurrent(id string, cur *model.CurrentMovie) error {
	return c.Mutate(id, func(ch *model.Channel) error {
		ch.Current = cur
		return nil
	})
}

// SetSchedule replaces the channel's projected schedule rows.
func (c *Catalog) SetSchedule(id string, rows []model.ScheduleRow) error {
	return c.Mutate(id, func(ch *model.Channel) error {
		ch.Schedule = rows
		return nil
	})
}

// QueueView returns a deep copy of the channel's pending queue entries,
// numbered from 1, for the channel.queue operation (spec §6).
func (c *Catalog) QueueView(id string) ([]model.QueueEntry, error) {
	ch := c.Get(id)
	if ch == nil {
		return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	entries := make([]model.QueueEntry, 0, len(ch.Queue))
	for i, m := range ch.Queue {
		entries = append(entries, model.QueueEntry{
			Position: i + 1,
			Title:    m.Title,
			AddedBy:  m.AddedBy,
		})
	}
	return entries, nil
}

// ScheduleView returns a deep copy of the channel's projected schedule
// rows for the channel.schedule operation (spec §6).
func (c *Catalog) ScheduleView(id string) ([]model.ScheduleRow, error) {
	ch := c.Get(id)
	if ch == nil {
		return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	return ch.Schedule, nil
}

// ErrQueueEmpty is returned by ShiftHead when the channel's queue has no
// pending movies to pull from.
var ErrQueueEmpty = fmt.Errorf("queue empty")

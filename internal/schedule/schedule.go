// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package schedule implements the Schedule Projector (spec §4.5): given a
// channel's persisted queue and an optional current-movie snapshot, it
// derives a forward-looking, human-readable schedule of up to 11 rows.
package schedule

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lindelatv/channeld/internal/config"
	"github.com/lindelatv/channeld/internal/model"
)

// maxUpcomingRows bounds the projected schedule to the current entry plus
// up to 10 upcoming entries (spec §4.5).
const maxUpcomingRows = 10

// wat is the fixed display timezone for user-facing schedule rows
// (spec §4.5, GLOSSARY "WAT" — West Africa Time, UTC+1).
var wat = time.FixedZone("WAT", 1*60*60)

// Project probes each upcoming queue entry's duration (bounded to
// maxUpcomingRows movies, fanned out concurrently since probes are
// independent of each other) and chains their start/end times starting
// from current's end time (or now, if no movie is currently playing).
// Recompute only on enqueue and on movie-start — not on every viewer poll
// (spec §4.5).
func Project(ctx context.Context, channelID string, queue []model.Movie, current *model.CurrentMovie, cfg config.Config) []model.ScheduleRow {
	upcoming := queue
	if len(upcoming) > maxUpcomingRows {
		upcoming = upcoming[:maxUpcomingRows]
	}

	durations := make([]time.Duration, len(upcoming))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, movie := range upcoming {
		i, movie := i, movie
		group.Go(func() error {
			durations[i] = probeDuration(groupCtx, cfg, channelID, movie.FilePath)
			return nil
		})
	}
	_ = group.Wait() // probeDuration never returns an error; failures resolve to the fallback duration

	rows := make([]model.ScheduleRow, 0, len(upcoming)+1)

	cursor := time.Now().In(wat)
	if current != nil {
		rows = append(rows, model.ScheduleRow{
			Title:     current.Title,
			StartTime: current.StartTime.In(wat).Format("15:04"),
			EndTime:   current.EndTime.In(wat).Format("15:04"),
			Current:   true,
		})
		cursor = current.EndTime.In(wat)
	}

	for i, movie := range upcoming {
		start := cursor.Add(1 * time.Second)
		end := start.Add(durations[i])
		rows = append(rows, model.ScheduleRow{
			Title:     movie.Title,
			StartTime: start.Format("15:04"),
			EndTime:   end.Format("15:04"),
			Current:   false,
		})
		cursor = end
	}

	return rows
}

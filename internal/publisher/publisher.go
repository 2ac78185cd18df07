// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package publisher implements the Active-Slot Publisher (spec §4.4): it
// atomically republishes a channel's public playlist to point at a chosen
// slot's files, by copy rather than by symbolic link, because some viewer
// chains and static file servers mishandle symlinks.
package publisher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/lindelatv/channeld/internal/config"
	"github.com/lindelatv/channeld/internal/hls"
	"github.com/lindelatv/channeld/internal/log"
	"github.com/lindelatv/channeld/internal/model"
)

// ErrNotReady is returned when a slot fails the Publisher's own
// verification pass (spec §4.4 steps 1-3); the caller is expected to retry.
var ErrNotReady = errors.New("publisher: slot not ready")

const (
	publicMaster = "master.m3u8"
	publicStream = "stream.m3u8"

	// minFirstSegmentsChecked is the "first three referenced segment
	// files" window spec §4.4 step 3 verifies at least two of against
	// cfg.MinSegmentBytes.
	minFirstSegmentsChecked = 3
)

// Publish verifies slot's output in outputDir and, if it passes, copies its
// master/stream playlists onto the channel's stable public names. It
// returns ErrNotReady (wrapped) if verification fails; that is not itself a
// filesystem error and callers should retry per spec §4.1/§7 PublishFailed.
func Publish(outputDir string, slot model.Slot, cfg config.Config) error {
	logger := log.WithComponent("publisher")
	s := slot.String()
	masterPath := filepath.Join(outputDir, "master_"+s+".m3u8")
	streamPath := filepath.Join(outputDir, "stream_"+s+".m3u8")

	masterData, streamData, err := verify(outputDir, masterPath, streamPath, s, cfg)
	if err != nil {
		return err
	}

	for _, name := range []string{publicMaster, publicStream} {
		path := filepath.Join(outputDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", path).Msg("failed to unlink existing public playlist, continuing")
		}
	}

	if err := atomicWrite(filepath.Join(outputDir, publicMaster), masterData); err != nil {
		return fmt.Errorf("publish master for slot %s: %w", s, err)
	}
	if err := atomicWrite(filepath.Join(outputDir, publicStream), streamData); err != nil {
		return fmt.Errorf("publish stream for slot %s: %w", s, err)
	}

	logger.Info().Str("slot", s).Msg("published slot")
	return nil
}

// verify runs spec §4.4 steps 1-3 and returns the playlists' bytes on
// success, ready to be copied verbatim onto the public names.
func verify(outputDir, masterPath, streamPath, slot string, cfg config.Config) (masterData, streamData []byte, err error) {
	masterData, err = os.ReadFile(masterPath)
	if err != nil || len(masterData) == 0 {
		return nil, nil, fmt.Errorf("%w: master playlist missing or empty", ErrNotReady)
	}

	streamData, err = os.ReadFile(streamPath)
	if err != nil || len(streamData) == 0 {
		return nil, nil, fmt.Errorf("%w: stream playlist missing or empty", ErrNotReady)
	}

	uris := hls.SegmentURIs(string(streamData), slot)
	if len(uris) < 2 {
		return nil, nil, fmt.Errorf("%w: fewer than 2 segment references", ErrNotReady)
	}

	checkCount := minFirstSegmentsChecked
	if len(uris) < checkCount {
		checkCount = len(uris)
	}
	largeEnough := 0
	for _, uri := range uris[:checkCount] {
		info, statErr := os.Stat(filepath.Join(outputDir, uri))
		if statErr != nil {
			continue
		}
		if info.Size() >= cfg.MinSegmentBytes {
			largeEnough++
		}
	}
	if largeEnough < 2 {
		return nil, nil, fmt.Errorf("%w: fewer than 2 of first %d segments are large enough", ErrNotReady, checkCount)
	}

	return masterData, streamData, nil
}

// atomicWrite replaces path's contents with data via write-temp-then-rename
// (spec §9 "Atomic persistence" — the same guarantee applied here to the
// public playlist names so viewers never observe a half-written file).
func atomicWrite(path string, data []byte) error {
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		_ = pendingFile.Cleanup()
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace file: %w", err)
	}
	return nil
}

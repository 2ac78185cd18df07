// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hls parses HLS media playlists to extract the segment references
// the Readiness Detector and Active-Slot Publisher need to verify before
// trusting a slot's output (spec §4.3, §4.4).
package hls

import (
	"bufio"
	"regexp"
	"strings"
)

// segmentPattern matches bare (non-comment) playlist lines naming a
// segment file for the given slot, e.g. "segment_A_003.ts".
func segmentPattern(slot string) *regexp.Regexp {
	return regexp.MustCompile(`^segment_` + regexp.QuoteMeta(slot) + `_\d+\.(ts|m4s)$`)
}

// SegmentURIs scans a stream playlist's text and returns, in playlist
// order, every URI line that names a segment file belonging to slot.
// Comment/tag lines (starting with '#') and blank lines are ignored.
func SegmentURIs(playlist, slot string) []string {
	pattern := segmentPattern(slot)
	var uris []string

	scanner := bufio.NewScanner(strings.NewReader(playlist))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if pattern.MatchString(line) {
			uris = append(uris, line)
		}
	}
	return uris
}

// IsNonEmptyPlaylist reports whether playlist contains at least one
// non-comment, non-blank line — the minimal sanity check before attempting
// segment extraction.
func IsNonEmptyPlaylist(playlist string) bool {
	scanner := bufio.NewScanner(strings.NewReader(playlist))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			return true
		}
	}
	return false
}

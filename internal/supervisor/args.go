// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lindelatv/channeld/internal/model"
)

// Spec describes a single transcoder invocation (spec §4.2): an input file,
// an output directory owned exclusively by the issuing channel, the slot it
// writes into, a display title (burned in for movies), and the role that
// decides watermark text and input-loop behavior.
type Spec struct {
	ChannelID string
	InputPath string
	OutputDir string
	Slot      model.Slot
	Title     string
	Role      string // "ad" or "movie"
}

const (
	RoleAd    = "ad"
	RoleMovie = "movie"

	segmentSeconds = 2
	playlistWindow = 6
)

// buildArgs constructs the ffmpeg CLI invocation for spec, burning the
// channel watermark into ads and the movie title into movies (spec §4.2
// item 2), with small rolling-window HLS output and delete_segments so old
// segment files are pruned automatically (spec §4.2 item 2, §6).
func buildArgs(spec Spec, watermark string) []string {
	s := spec.Slot.String()
	master := filepath.Join(spec.OutputDir, "master_"+s+".m3u8")
	stream := filepath.Join(spec.OutputDir, "stream_"+s+".m3u8")
	segmentPattern := filepath.Join(spec.OutputDir, "segment_"+s+"_%03d.ts")

	text := watermark
	if spec.Role == RoleMovie && spec.Title != "" {
		text = spec.Title
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
	}

	if spec.Role == RoleAd {
		args = append(args, "-stream_loop", "-1")
	}

	args = append(args, "-i", spec.InputPath)

	args = append(args,
		"-vf", fmt.Sprintf("drawtext=text='%s':fontcolor=white:fontsize=18:x=10:y=h-th-10:box=1:boxcolor=black@0.5", escapeDrawtext(text)),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-b:a", "128k",
	)

	args = append(args,
		"-f", "hls",
		"-hls_time", itoa(segmentSeconds),
		"-hls_list_size", itoa(playlistWindow),
		"-hls_flags", "delete_segments+independent_segments+temp_file",
		"-hls_segment_filename", segmentPattern,
		"-master_pl_name", filepath.Base(master),
		stream,
	)

	return args
}

func escapeDrawtext(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	return replacer.Replace(s)
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

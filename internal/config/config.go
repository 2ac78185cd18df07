// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the channel engine's runtime configuration. Bootstrap values
// (channel display names, output root) come from an optional YAML file;
// the path, binary and watermark fields can also be overridden by
// environment variables (see Load). The timing knobs keep their Default()
// values.
type Config struct {
	// OutputRoot is the parent directory under which each channel gets
	// hls_output/<channelId>/ (spec §6).
	OutputRoot string `yaml:"outputRoot"`
	// CatalogPath is the persisted catalog file (spec §6 channels.json).
	CatalogPath string `yaml:"catalogPath"`
	// AdFilePath is the looping advertisement played when a channel's
	// queue is empty (spec §4.1 PlayAd).
	AdFilePath string `yaml:"adFilePath"`
	// MediaRoot confines the filePath the channel.enqueue API accepts:
	// every submitted path is resolved relative to it and rejected if it
	// would escape (internal/fsutil.ConfineRelPath).
	MediaRoot string `yaml:"mediaRoot"`
	// Watermark is the channel-wide text burned into ad output, and into
	// movies that have no title; titled movies carry their title instead
	// (spec §4.2 item 2).
	Watermark string `yaml:"watermark"`

	FFmpegBin  string `yaml:"ffmpegBin"`
	FFprobeBin string `yaml:"ffprobeBin"`

	// Bootstrap channels: id -> display name. Additional channels may
	// still be created at runtime via channel.init.
	Channels map[string]string `yaml:"channels"`

	// Timing knobs. Defaults match spec.md exactly; Load reads none of
	// them from the YAML file or the environment, so only code (tests)
	// changes them.
	AdRestartBackoffNormal  time.Duration `yaml:"-"`
	AdRestartBackoffFailure time.Duration `yaml:"-"`
	PreloadLeadTime         time.Duration `yaml:"-"`
	TransitionExitDelay     time.Duration `yaml:"-"`
	AdStabilizationDelay    time.Duration `yaml:"-"`
	PreloadDeadline         time.Duration `yaml:"-"`
	PreloadRetryInterval    time.Duration `yaml:"-"`
	PreloadWaitIfInFlight   time.Duration `yaml:"-"`
	PublishRetryInterval    time.Duration `yaml:"-"`
	PublishRetryAttempts    int           `yaml:"-"`
	PostKillSettleTime      time.Duration `yaml:"-"`
	ReadinessPollInterval   time.Duration `yaml:"-"`
	ReadinessDeadline       time.Duration `yaml:"-"`
	ProbeTimeout            time.Duration `yaml:"-"`
	ProbeFallbackDuration   time.Duration `yaml:"-"`
	MinSegmentBytes         int64         `yaml:"-"`
	MinReadySegments        int           `yaml:"-"`
}

// Default returns the spec-mandated defaults (spec.md §4.1–§4.5).
func Default() Config {
	return Config{
		OutputRoot:  "hls_output",
		CatalogPath: "channels.json",
		AdFilePath:  "ads/default.mp4",
		MediaRoot:   "media",
		Watermark:   "LIVE",
		FFmpegBin:   "ffmpeg",

		AdRestartBackoffNormal:  1 * time.Second,
		AdRestartBackoffFailure: 5 * time.Second,
		PreloadLeadTime:         10 * time.Second,
		TransitionExitDelay:     2 * time.Second,
		AdStabilizationDelay:    3 * time.Second,
		PreloadDeadline:         25 * time.Second,
		PreloadRetryInterval:    5 * time.Second,
		PreloadWaitIfInFlight:   3 * time.Second,
		PublishRetryInterval:    500 * time.Millisecond,
		PublishRetryAttempts:    3,
		PostKillSettleTime:      2500 * time.Millisecond,
		ReadinessPollInterval:   500 * time.Millisecond,
		ReadinessDeadline:       20 * time.Second,
		ProbeTimeout:            10 * time.Second,
		ProbeFallbackDuration:   90 * time.Minute,
		MinSegmentBytes:         5000,
		MinReadySegments:        2,
	}
}

// Load reads an optional YAML bootstrap file, falls back to Default() for
// anything unset, then applies environment variable overrides (env always
// wins — matches the teacher's resolution order in ffprobe_resolve.go).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
			applyFileOverrides(&cfg, fileCfg)
		}
	}

	cfg.OutputRoot = ParseString("CHANNELD_OUTPUT_ROOT", cfg.OutputRoot)
	cfg.CatalogPath = ParseString("CHANNELD_CATALOG_PATH", cfg.CatalogPath)
	cfg.AdFilePath = ParseString("CHANNELD_AD_FILE", cfg.AdFilePath)
	cfg.MediaRoot = ParseString("CHANNELD_MEDIA_ROOT", cfg.MediaRoot)
	cfg.Watermark = ParseString("CHANNELD_WATERMARK", cfg.Watermark)
	cfg.FFmpegBin = ParseString("CHANNELD_FFMPEG_BIN", cfg.FFmpegBin)
	cfg.FFprobeBin = ResolveFFprobeBin(ParseString("CHANNELD_FFPROBE_BIN", cfg.FFprobeBin), cfg.FFmpegBin)

	return cfg, nil
}

func applyFileOverrides(cfg *Config, file Config) {
	if file.OutputRoot != "" {
		cfg.OutputRoot = file.OutputRoot
	}
	if file.CatalogPath != "" {
		cfg.CatalogPath = file.CatalogPath
	}
	if file.AdFilePath != "" {
		cfg.AdFilePath = file.AdFilePath
	}
	if file.MediaRoot != "" {
		cfg.MediaRoot = file.MediaRoot
	}
	if file.Watermark != "" {
		cfg.Watermark = file.Watermark
	}
	if file.FFmpegBin != "" {
		cfg.FFmpegBin = file.FFmpegBin
	}
	if file.FFprobeBin != "" {
		cfg.FFprobeBin = file.FFprobeBin
	}
	if len(file.Channels) > 0 {
		cfg.Channels = file.Channels
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes Prometheus instrumentation for the channel
// playback engine: state transitions, transcoder lifecycle, publish and
// probe outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the standard Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

var (
	// ChannelState is a gauge-per-label-set: 1 for the channel's current
	// FSM state, 0 otherwise. Queried as channeld_channel_state{state="..."}.
	ChannelState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "channeld_channel_state",
		Help: "Current controller state per channel (1 = active state, 0 = inactive)",
	}, []string{"channel", "state"})

	TransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channeld_transition_total",
		Help: "Total number of FSM transitions per channel",
	}, []string{"channel", "from", "to"})

	TranscoderStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channeld_transcoder_start_total",
		Help: "Total number of transcoder spawns",
	}, []string{"channel", "role", "result"})

	TranscoderExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channeld_transcoder_exit_total",
		Help: "Total number of transcoder exits by reason",
	}, []string{"channel", "role", "reason"})

	ReadinessTimeoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channeld_readiness_timeout_total",
		Help: "Total number of readiness deadline expirations",
	}, []string{"channel", "slot"})

	PublishResultTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channeld_publish_result_total",
		Help: "Total publish attempts by result",
	}, []string{"channel", "result"})

	ProbeFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channeld_probe_failure_total",
		Help: "Total duration probe failures (fallback duration used)",
	}, []string{"channel"})

	QueueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "channeld_queue_length",
		Help: "Current queue length per channel",
	}, []string{"channel"})

	ActiveChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "channeld_active_channels",
		Help: "Number of channels currently initialized",
	})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channeld_proc_terminate_total",
		Help: "Total signals sent to transcoder process groups",
	}, []string{"signal", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channeld_proc_wait_total",
		Help: "Total process-group wait outcomes",
	}, []string{"outcome"})
)

// IncProcTerminate records a signal sent to a process group by
// internal/procgroup during a kill sequence.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records the outcome of waiting for a signaled process group
// to exit.
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}

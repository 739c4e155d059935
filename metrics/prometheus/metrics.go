// Package prometheus provides Prometheus metrics for realtime sessions.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "realtimekit"

var (
	// messagesSentTotal counts outbound frames by kind.
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of frames sent to the realtime endpoint",
		},
		[]string{"kind"},
	)

	// bytesSentTotal counts outbound payload bytes by kind.
	bytesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total bytes of frames sent to the realtime endpoint",
		},
		[]string{"kind"},
	)

	// messagesDroppedTotal counts outbound frames that were not sent.
	messagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total number of outbound frames dropped",
		},
		[]string{"kind", "reason"}, // reason: backpressure, not_open, queue_full
	)

	// messagesReceivedTotal counts inbound frames by kind.
	messagesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of frames received from the realtime endpoint",
		},
		[]string{"kind"},
	)

	// parseErrorsTotal counts inbound frames that could not be decoded.
	parseErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Total number of inbound frames that failed to parse",
		},
	)

	// reconnectsTotal counts scheduled reconnect attempts.
	reconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total number of scheduled reconnect attempts",
		},
		[]string{"attempt"},
	)

	// sessionStatus is 1 for the current status of each session and 0 otherwise.
	sessionStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_status",
			Help:      "Current session status, one series per status",
		},
		[]string{"session", "status"},
	)

	// toolCallsTotal counts tool calls requested by the model.
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls requested by the model",
		},
		[]string{"tool"},
	)

	// toolExecutionDuration is a histogram of tool executor run time.
	toolExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_execution_duration_seconds",
			Help:      "Duration of tool executions in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"tool", "status"}, // status: success, error
	)

	// playbackScheduledSeconds sums the duration of scheduled reply audio.
	playbackScheduledSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_scheduled_seconds_total",
			Help:      "Total seconds of reply audio scheduled for playback",
		},
	)

	// screenFramesTotal counts screen frames by outcome.
	screenFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screen_frames_total",
			Help:      "Total number of captured screen frames",
		},
		[]string{"status"}, // status: sent, dropped, error
	)
)

// allMetrics returns all realtime metrics for registration.
var allMetrics = []prometheus.Collector{
	messagesSentTotal,
	bytesSentTotal,
	messagesDroppedTotal,
	messagesReceivedTotal,
	parseErrorsTotal,
	reconnectsTotal,
	sessionStatus,
	toolCallsTotal,
	toolExecutionDuration,
	playbackScheduledSeconds,
	screenFramesTotal,
}

// RecordToolExecution records one tool executor run.
func RecordToolExecution(tool, status string, durationSeconds float64) {
	toolExecutionDuration.WithLabelValues(tool, status).Observe(durationSeconds)
}

// RecordPlayback records one scheduled reply buffer. Its signature matches
// audio.Config.OnPlayback.
func RecordPlayback(_, duration time.Duration) {
	playbackScheduledSeconds.Add(duration.Seconds())
}

// RecordScreenFrame records the outcome of one captured frame.
func RecordScreenFrame(status string) {
	screenFramesTotal.WithLabelValues(status).Inc()
}

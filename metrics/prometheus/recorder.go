package prometheus

import (
	"strconv"

	"github.com/AltairaLabs/RealtimeKit/realtime"
)

var allStatuses = []realtime.Status{
	realtime.StatusDisconnected,
	realtime.StatusConnecting,
	realtime.StatusConnected,
	realtime.StatusReconnecting,
}

// Recorder records one session's activity. It implements realtime.Metrics.
type Recorder struct {
	session string
}

// NewRecorder creates a Recorder whose status gauge is labelled with session.
func NewRecorder(session string) *Recorder {
	r := &Recorder{session: session}
	r.StatusChanged(realtime.StatusDisconnected)
	return r
}

// MessageSent implements realtime.Metrics.
func (r *Recorder) MessageSent(kind string, bytes int) {
	messagesSentTotal.WithLabelValues(kind).Inc()
	bytesSentTotal.WithLabelValues(kind).Add(float64(bytes))
}

// MessageDropped implements realtime.Metrics.
func (r *Recorder) MessageDropped(kind, reason string) {
	messagesDroppedTotal.WithLabelValues(kind, reason).Inc()
}

// MessageReceived implements realtime.Metrics.
func (r *Recorder) MessageReceived(kind string) {
	messagesReceivedTotal.WithLabelValues(kind).Inc()
}

// ParseError implements realtime.Metrics.
func (r *Recorder) ParseError() {
	parseErrorsTotal.Inc()
}

// ReconnectScheduled implements realtime.Metrics.
func (r *Recorder) ReconnectScheduled(attempt int) {
	reconnectsTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

// ToolCall implements realtime.Metrics.
func (r *Recorder) ToolCall(name string) {
	toolCallsTotal.WithLabelValues(name).Inc()
}

// StatusChanged implements realtime.Metrics.
func (r *Recorder) StatusChanged(status realtime.Status) {
	for _, s := range allStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		sessionStatus.WithLabelValues(r.session, s.String()).Set(v)
	}
}

// Forget removes the session's status series.
func (r *Recorder) Forget() {
	for _, s := range allStatuses {
		sessionStatus.DeleteLabelValues(r.session, s.String())
	}
}

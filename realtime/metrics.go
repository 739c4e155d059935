package realtime

// Metrics observes client activity. Implementations must be safe for
// concurrent use.
type Metrics interface {
	MessageSent(kind string, bytes int)
	MessageDropped(kind, reason string)
	MessageReceived(kind string)
	ParseError()
	ReconnectScheduled(attempt int)
	ToolCall(name string)
	StatusChanged(status Status)
}

// Outbound message kinds reported to Metrics.
const (
	KindSetup        = "setup"
	KindAudio        = "audio"
	KindScreen       = "screen"
	KindKeepAlive    = "keepalive"
	KindText         = "text"
	KindToolResponse = "tool_response"
)

// Drop reasons reported to Metrics.
const (
	DropBackpressure = "backpressure"
	DropNotOpen      = "not_open"
	DropQueueFull    = "queue_full"
)

type nopMetrics struct{}

func (nopMetrics) MessageSent(string, int)       {}
func (nopMetrics) MessageDropped(string, string) {}
func (nopMetrics) MessageReceived(string)        {}
func (nopMetrics) ParseError()                   {}
func (nopMetrics) ReconnectScheduled(int)        {}
func (nopMetrics) ToolCall(string)               {}
func (nopMetrics) StatusChanged(Status)          {}

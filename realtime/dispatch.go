package realtime

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/RealtimeKit/audio"
	"github.com/AltairaLabs/RealtimeKit/logger"
)

// Inbound message kinds reported to Metrics.
const (
	InboundSetupComplete    = "setup_complete"
	InboundServerContent    = "server_content"
	InboundToolCall         = "tool_call"
	InboundToolCancellation = "tool_call_cancellation"
	InboundResumptionUpdate = "session_resumption_update"
	InboundGoAway           = "go_away"
	InboundUsageMetadata    = "usage_metadata"
	InboundUnknown          = "unknown"
)

// dispatch routes one parsed server message.
func (c *Client) dispatch(msg *ServerMessage) {
	handled := false

	if msg.SetupComplete != nil {
		handled = true
		c.metrics.MessageReceived(InboundSetupComplete)
		logger.DebugContext(c.ctx, "setup complete")
		if c.handlers.OnSetupComplete != nil {
			c.handlers.OnSetupComplete()
		}
	}

	if msg.ServerContent != nil {
		handled = true
		c.metrics.MessageReceived(InboundServerContent)
		c.handleServerContent(msg.ServerContent)
	}

	if msg.ToolCall != nil {
		handled = true
		c.metrics.MessageReceived(InboundToolCall)
		c.handleToolCall(msg.ToolCall)
	}

	if msg.ToolCallCancellation != nil {
		handled = true
		c.metrics.MessageReceived(InboundToolCancellation)
		logger.InfoContext(c.ctx, "tool calls cancelled", "ids", msg.ToolCallCancellation.IDs)
	}

	if u := msg.SessionResumptionUpdate; u != nil {
		handled = true
		c.metrics.MessageReceived(InboundResumptionUpdate)
		if u.Resumable && u.NewHandle != "" {
			c.saveResumeHandle(u.NewHandle)
		}
	}

	if msg.GoAway != nil {
		handled = true
		c.metrics.MessageReceived(InboundGoAway)
		logger.WarnContext(c.ctx, "server going away", "time_left", msg.GoAway.TimeLeft)
	}

	if u := msg.UsageMetadata; u != nil {
		handled = true
		c.metrics.MessageReceived(InboundUsageMetadata)
		logger.DebugContext(c.ctx, "usage",
			"prompt_tokens", u.PromptTokenCount,
			"response_tokens", u.ResponseTokenCount,
			"total_tokens", u.TotalTokenCount)
	}

	if !handled {
		c.metrics.MessageReceived(InboundUnknown)
		logger.DebugContext(c.ctx, "unhandled server message")
	}
}

func (c *Client) handleServerContent(sc *ServerContent) {
	if sc.Interrupted {
		logger.DebugContext(c.ctx, "model output interrupted")
		if c.audio != nil {
			c.audio.Interrupt()
		}
		if c.handlers.OnInterrupted != nil {
			c.handlers.OnInterrupted()
		}
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		c.emitTranscript(RoleUser, sc.InputTranscription.Text)
	}

	if sc.ModelTurn != nil {
		for i := range sc.ModelTurn.Parts {
			c.handlePart(&sc.ModelTurn.Parts[i])
		}
	}

	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		c.emitTranscript(RoleModel, sc.OutputTranscription.Text)
	}

	if sc.TurnComplete {
		logger.DebugContext(c.ctx, "turn complete")
		if c.handlers.OnTurnComplete != nil {
			c.handlers.OnTurnComplete()
		}
	}
}

// handlePart handles each field of a part independently; a part may carry
// text and audio together.
func (c *Client) handlePart(p *Part) {
	handled := false
	if p.Text != "" {
		handled = true
		if c.handlers.OnText != nil {
			c.handlers.OnText(p.Text)
		}
	}
	if p.InlineData != nil && p.InlineData.Data != "" {
		handled = true
		c.playAudio(p.InlineData.Data)
	}
	if len(p.ExecutableCode) > 0 {
		handled = true
		logger.DebugContext(c.ctx, "ignoring executable code part")
	}
	if !handled {
		logger.DebugContext(c.ctx, "ignoring unknown part")
	}
}

func (c *Client) playAudio(data string) {
	if c.audio == nil {
		return
	}
	if err := c.audio.PlayAudioChunk(data); err != nil {
		if errors.Is(err, audio.ErrNoDevice) {
			logger.DebugContext(c.ctx, "no speaker, dropping reply audio")
			return
		}
		logger.WarnContext(c.ctx, "failed to play audio chunk", "error", err)
	}
}

func (c *Client) emitTranscript(role TranscriptRole, text string) {
	if c.handlers.OnTranscript != nil {
		c.handlers.OnTranscript(role, text)
	}
}

func (c *Client) handleToolCall(tc *ToolCall) {
	logger.DebugContext(c.ctx, "tool calls received", "count", len(tc.FunctionCalls))
	for _, call := range tc.FunctionCalls {
		c.metrics.ToolCall(call.Name)
		if c.handlers.OnToolCall == nil {
			continue
		}
		_, span := c.tracer.Start(c.ctx, "realtime.tool_call", trace.WithAttributes(
			attribute.String("realtime.tool.name", call.Name),
			attribute.String("realtime.tool.id", call.ID),
		))
		c.handlers.OnToolCall(call)
		span.End()
	}
}

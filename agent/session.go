// Package agent is the application-facing facade over a realtime session.
//
// A Session owns one realtime.Client and, optionally, a screen share
// streamer. It republishes status, text and tool calls to registered
// callbacks on a single ordered dispatcher goroutine, so callbacks may call
// back into the Session.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AltairaLabs/RealtimeKit/logger"
	"github.com/AltairaLabs/RealtimeKit/realtime"
	"github.com/AltairaLabs/RealtimeKit/screen"
)

// DefaultToolTimeout bounds a single tool executor run.
const DefaultToolTimeout = 30 * time.Second

// Tool execution outcomes reported to Options.OnToolExecuted.
const (
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"
	ToolStatusInvalid = "invalid"
)

// ToolExecutor interprets one tool call. A non-nil result or error is sent
// back to the model as the call's response; (nil, nil) sends nothing.
type ToolExecutor func(ctx context.Context, name string, args json.RawMessage) (any, error)

// Options configures a Session.
type Options struct {
	// Client supplies the realtime collaborators. Its Handlers are replaced.
	Client realtime.Options

	// Screen enables screen sharing when set.
	Screen       screen.Source
	ScreenConfig screen.Config

	// ToolTimeout bounds each executor run. Defaults to DefaultToolTimeout.
	ToolTimeout time.Duration

	// OnToolExecuted observes executor runs.
	OnToolExecuted func(tool, status string, seconds float64)
}

// Session is the facade. Create it with New and release it with Close.
type Session struct {
	client    *realtime.Client
	dispatch  *dispatcher
	opts      Options
	validator *argValidator

	streamer      *screen.Streamer
	screenEnabled atomic.Bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	mu         sync.Mutex
	statusSubs []func(realtime.Status)
	textSubs   []func(string)
	toolSubs   []func(name string, args json.RawMessage)
	executor   ToolExecutor
	transcript strings.Builder
	closed     bool
}

// New creates a disconnected Session.
func New(cfg realtime.Config, opts Options) (*Session, error) {
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}
	validator, err := newArgValidator(cfg.Tools)
	if err != nil {
		return nil, err
	}
	s := &Session{opts: opts, validator: validator}
	s.screenEnabled.Store(!opts.ScreenConfig.Disabled)

	copts := opts.Client
	copts.Handlers = realtime.Handlers{
		OnStatus:   func(st realtime.Status) { s.dispatch.enqueue(func() { s.publishStatus(st) }) },
		OnText:     func(text string) { s.dispatch.enqueue(func() { s.publishText(text) }) },
		OnToolCall: func(call realtime.FunctionCall) { s.dispatch.enqueue(func() { s.runToolCall(call) }) },
	}

	// The dispatcher must exist before the client can publish.
	s.dispatch = newDispatcher()
	client, err := realtime.New(cfg, copts)
	if err != nil {
		s.dispatch.close()
		return nil, err
	}
	s.client = client

	ctx, cancel := context.WithCancel(logger.WithComponent(context.Background(), "agent"))
	s.cancel = cancel
	if opts.Screen != nil {
		scfg := opts.ScreenConfig
		scfg.Active = s.IsListening
		s.streamer = screen.NewStreamer(opts.Screen, client.SendScreenFrame, scfg)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.streamer.Run(ctx)
		}()
	}
	return s, nil
}

// Connect starts a disconnected session and clears the transcript. It is a
// no-op otherwise.
func (s *Session) Connect() {
	s.client.Connect()
}

// Disconnect ends the session.
func (s *Session) Disconnect() {
	s.client.Disconnect()
}

// Toggle connects a disconnected session and disconnects any other.
func (s *Session) Toggle() {
	if s.client.Status() == realtime.StatusDisconnected {
		s.Connect()
		return
	}
	s.Disconnect()
}

// Status returns the current session status.
func (s *Session) Status() realtime.Status {
	return s.client.Status()
}

// IsListening reports whether the session is connected.
func (s *Session) IsListening() bool {
	return s.client.Status() == realtime.StatusConnected
}

// IsProcessing reports whether a connection attempt is in flight.
func (s *Session) IsProcessing() bool {
	st := s.client.Status()
	return st == realtime.StatusConnecting || st == realtime.StatusReconnecting
}

// OnStatus registers fn for status changes.
func (s *Session) OnStatus(fn func(realtime.Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusSubs = append(s.statusSubs, fn)
}

// OnText registers fn for incremental model text.
func (s *Session) OnText(fn func(text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textSubs = append(s.textSubs, fn)
}

// OnToolCall registers fn for every tool call, before the executor runs.
func (s *Session) OnToolCall(fn func(name string, args json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolSubs = append(s.toolSubs, fn)
}

// RegisterToolExecutor installs fn as the tool executor, replacing any
// previous one. A nil fn removes it.
func (s *Session) RegisterToolExecutor(fn ToolExecutor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executor = fn
}

// Transcript returns the model text received since the last Connect.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.String()
}

// SendText sends a user text turn.
func (s *Session) SendText(text string) error {
	return s.client.SendText(text)
}

// ScreenShareEnabled reports whether screen frames are being shared.
func (s *Session) ScreenShareEnabled() bool {
	return s.screenEnabled.Load()
}

// ToggleScreenShare flips screen sharing and returns the new state.
func (s *Session) ToggleScreenShare() bool {
	on := !s.screenEnabled.Load()
	s.screenEnabled.Store(on)
	if s.streamer != nil {
		s.streamer.SetEnabled(on)
	} else {
		logger.Debug("screen share toggled without a capture source", "enabled", on)
	}
	return on
}

// State returns the underlying client snapshot.
func (s *Session) State() realtime.State {
	return s.client.State()
}

// Close disconnects, stops screen sharing and drains pending callbacks.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	err := s.client.Close()
	s.wg.Wait()
	s.dispatch.close()
	return err
}

// ---- dispatcher side ----

func (s *Session) resetTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript.Reset()
}

// publishStatus clears the transcript when a new session starts connecting.
// Reconnects publish StatusReconnecting and keep it.
func (s *Session) publishStatus(st realtime.Status) {
	if st == realtime.StatusConnecting {
		s.resetTranscript()
	}
	s.mu.Lock()
	subs := append([]func(realtime.Status){}, s.statusSubs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

func (s *Session) publishText(text string) {
	s.mu.Lock()
	s.transcript.WriteString(text)
	subs := append([]func(string){}, s.textSubs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(text)
	}
}

func (s *Session) runToolCall(call realtime.FunctionCall) {
	s.mu.Lock()
	subs := append([]func(string, json.RawMessage){}, s.toolSubs...)
	exec := s.executor
	s.mu.Unlock()

	for _, fn := range subs {
		fn(call.Name, call.Args)
	}
	if exec == nil {
		logger.Debug("no tool executor registered", "tool", call.Name)
		return
	}

	start := time.Now()
	var result any
	err := s.validator.validate(call.Name, call.Args)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ToolTimeout)
		result, err = exec(ctx, call.Name, call.Args)
		cancel()
	}
	s.observeTool(call.Name, err, time.Since(start))

	var response any
	switch {
	case err != nil:
		logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		response = map[string]any{"error": err.Error()}
	case result != nil:
		response = result
	default:
		return
	}

	sendErr := s.client.SendToolResponse(realtime.FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: response,
	})
	if sendErr != nil && !errors.Is(sendErr, realtime.ErrClosed) {
		logger.Warn("failed to send tool response", "tool", call.Name, "error", sendErr)
	}
}

func (s *Session) observeTool(name string, err error, d time.Duration) {
	if s.opts.OnToolExecuted == nil {
		return
	}
	var argsErr *ArgsError
	status := ToolStatusSuccess
	switch {
	case errors.As(err, &argsErr):
		status = ToolStatusInvalid
	case err != nil:
		status = ToolStatusError
	}
	s.opts.OnToolExecuted(name, status, d.Seconds())
}

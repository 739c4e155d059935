// Package realtime implements a duplex session with a Gemini Live style
// BidiGenerateContent endpoint.
//
// A Client owns at most one socket at a time. All state changes happen on a
// single event loop goroutine: socket opens, inbound frames, closes, timer
// fires, captured audio and public calls are queued to it and handled one at
// a time in arrival order. Handlers run on that goroutine and must not call
// blocking Client methods.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/RealtimeKit/audio"
	rterrors "github.com/AltairaLabs/RealtimeKit/internal/errors"
	"github.com/AltairaLabs/RealtimeKit/internal/streaming"
	"github.com/AltairaLabs/RealtimeKit/logger"
)

const (
	// instrumentationName is the OTel tracer name.
	instrumentationName = "github.com/AltairaLabs/RealtimeKit/realtime"

	// closeAbnormal is reported for dial failures and dropped sockets.
	closeAbnormal = 1006
	// closeNormal is used for manual disconnects.
	closeNormal = 1000

	eventQueueSize = 256
	resumeTimeout  = 5 * time.Second
)

var (
	// ErrNotOpen is returned by sends while no socket is open.
	ErrNotOpen = errors.New("realtime socket not open")
	// ErrBackpressure is returned when a media chunk is dropped.
	ErrBackpressure = errors.New("outbound buffer above threshold")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("realtime client closed")
)

// Status is the session lifecycle state.
type Status int32

// Session states.
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the lowercase state name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// AudioEngine captures and plays session audio.
type AudioEngine interface {
	StartRecording(ctx context.Context, onChunk func(audio.Chunk)) error
	StopRecording()
	PlayAudioChunk(data string) error
	Interrupt()
}

// HandleStore persists session resumption handles.
type HandleStore interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, handle string) error
}

// TranscriptRole identifies the speaker of a transcription.
type TranscriptRole string

// Transcript roles.
const (
	RoleUser  TranscriptRole = "user"
	RoleModel TranscriptRole = "model"
)

// Handlers receive session events. All are optional and run on the event loop.
type Handlers struct {
	OnStatus        func(Status)
	OnText          func(text string)
	OnToolCall      func(call FunctionCall)
	OnTurnComplete  func()
	OnInterrupted   func()
	OnTranscript    func(role TranscriptRole, text string)
	OnSetupComplete func()
}

// Options supplies the Client's collaborators. Zero values are replaced with
// production defaults, except Audio which is optional.
type Options struct {
	Dialer         Dialer
	Clock          Clock
	Audio          AudioEngine
	Metrics        Metrics
	TracerProvider trace.TracerProvider
	Resume         HandleStore
	// ResumeKey names the stored handle. Defaults to the model path.
	ResumeKey string
	Handlers  Handlers
}

// State is a point-in-time view of the Client.
type State struct {
	Status          Status
	Attempts        int
	Delay           time.Duration
	RetryPending    bool
	KeepAliveActive bool
	Recording       bool
	SessionID       string
	ResumeHandle    string
}

// Client is a realtime session client.
type Client struct {
	cfg      Config
	dialURL  string
	dialer   Dialer
	clock    Clock
	audio    AudioEngine
	metrics  Metrics
	tracer   trace.Tracer
	store    HandleStore
	storeKey string
	handlers Handlers

	events    chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	status atomic.Int32

	saveMu    sync.Mutex
	savedSeq  uint64
	resumeSeq uint64

	// Owned by the event loop.
	ctx          context.Context
	st           Status
	attempts     int
	delay        time.Duration
	manual       bool
	gen          uint64
	sock         Socket
	dialCancel   context.CancelFunc
	retryTimer   Timer
	keepAlive    Timer
	recording    bool
	sessionID    string
	resumeHandle string
}

// New validates cfg and starts the Client's event loop. The Client starts
// disconnected.
func New(cfg Config, opts Options) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialURL, err := cfg.DialURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	c := &Client{
		cfg:      cfg,
		dialURL:  dialURL,
		dialer:   opts.Dialer,
		clock:    opts.Clock,
		audio:    opts.Audio,
		metrics:  opts.Metrics,
		store:    opts.Resume,
		storeKey: opts.ResumeKey,
		handlers: opts.Handlers,
		events:   make(chan func(), eventQueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      logger.WithComponent(context.Background(), "realtime"),
	}
	if c.dialer == nil {
		c.dialer = &WebSocketDialer{}
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	c.tracer = tp.Tracer(instrumentationName)
	if c.storeKey == "" {
		c.storeKey = ModelPath(cfg.Model)
	}

	go c.run()
	return c, nil
}

func (c *Client) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.quit:
			return
		}
	}
}

// post queues fn on the event loop. It reports false after Close.
func (c *Client) post(fn func()) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.events <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// tryPost queues fn unless the event queue is full.
func (c *Client) tryPost(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	default:
		return false
	}
}

// do runs fn on the event loop and waits for it to finish.
func (c *Client) do(fn func()) bool {
	finished := make(chan struct{})
	if !c.post(func() { fn(); close(finished) }) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-c.quit:
		return false
	}
}

// Connect opens a session. It is a no-op unless the Client is disconnected,
// and returns before the socket is open; watch OnStatus for the outcome.
func (c *Client) Connect() {
	c.do(func() {
		if c.st != StatusDisconnected {
			logger.DebugContext(c.ctx, "connect ignored", "status", c.st.String())
			return
		}
		c.manual = false
		c.attempts = 0
		c.delay = 0
		c.sessionID = uuid.NewString()
		c.ctx = logger.WithLoggingContext(context.Background(), &logger.LoggingFields{
			SessionID: c.sessionID,
			Component: "realtime",
			Model:     ModelPath(c.cfg.Model),
		})
		c.dial()
	})
}

// Disconnect ends the session and suppresses any pending reconnect. It is
// idempotent.
func (c *Client) Disconnect() {
	c.do(c.disconnect)
}

// Close disconnects and stops the event loop. The Client cannot be reused.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.do(c.disconnect)
		close(c.quit)
		<-c.done
	})
	return nil
}

// Status returns the current session state.
func (c *Client) Status() Status {
	return Status(c.status.Load())
}

// State returns a consistent snapshot taken on the event loop.
func (c *Client) State() State {
	var s State
	ok := c.do(func() {
		s = State{
			Status:          c.st,
			Attempts:        c.attempts,
			Delay:           c.delay,
			RetryPending:    c.retryTimer != nil,
			KeepAliveActive: c.keepAlive != nil,
			Recording:       c.recording,
			SessionID:       c.sessionID,
			ResumeHandle:    c.resumeHandle,
		}
	})
	if !ok {
		s.Status = c.Status()
	}
	return s
}

// SendText sends a complete user text turn.
func (c *Client) SendText(text string) error {
	return c.sendOnLoop(KindText, &ClientMessage{ClientContent: &ClientContent{
		Turns:        []Content{{Role: "user", Parts: []TextPart{{Text: text}}}},
		TurnComplete: true,
	}}, false)
}

// SendToolResponse returns tool results to the model.
func (c *Client) SendToolResponse(responses ...FunctionResponse) error {
	if len(responses) == 0 {
		return nil
	}
	return c.sendOnLoop(KindToolResponse, &ClientMessage{ToolResponse: &ToolResponse{
		FunctionResponses: responses,
	}}, false)
}

// SendAudio sends one base64 PCM chunk. It is dropped under backpressure.
func (c *Client) SendAudio(chunk MediaChunk) error {
	return c.sendOnLoop(KindAudio, mediaMessage(chunk), true)
}

// SendScreenFrame sends one JPEG frame. It is dropped under backpressure.
func (c *Client) SendScreenFrame(jpeg []byte) error {
	return c.sendOnLoop(KindScreen, mediaMessage(MediaChunk{
		MimeType: MimeTypeJPEG,
		Data:     base64.StdEncoding.EncodeToString(jpeg),
	}), true)
}

func mediaMessage(chunk MediaChunk) *ClientMessage {
	return &ClientMessage{RealtimeInput: &RealtimeInput{MediaChunks: []MediaChunk{chunk}}}
}

func (c *Client) sendOnLoop(kind string, msg *ClientMessage, media bool) error {
	var err error
	if !c.do(func() { err = c.send(kind, msg, media) }) {
		return ErrClosed
	}
	return err
}

// ---- event loop internals ----

func (c *Client) setStatus(s Status) {
	if s == c.st {
		return
	}
	old := c.st
	c.st = s
	c.status.Store(int32(s))
	c.metrics.StatusChanged(s)
	logger.StatusChange(c.ctx, old.String(), s.String())
	if c.handlers.OnStatus != nil {
		c.handlers.OnStatus(s)
	}
}

func (c *Client) dial() {
	if c.attempts > 0 {
		c.setStatus(StatusReconnecting)
	} else {
		c.setStatus(StatusConnecting)
	}

	c.gen++
	gen := c.gen
	attempt := c.attempts
	memHandle := c.resumeHandle
	connID := uuid.NewString()

	ctx, cancel := context.WithCancel(logger.WithConnectionID(c.ctx, connID))
	c.dialCancel = cancel

	go func() {
		fields := logger.ExtractLoggingFields(ctx)
		ctx, span := c.tracer.Start(ctx, "realtime.dial", trace.WithAttributes(
			attribute.Int("realtime.attempt", attempt),
			attribute.String("realtime.session_id", fields.SessionID),
			attribute.String("realtime.connection_id", fields.ConnectionID),
			attribute.String("realtime.model", fields.Model),
		))
		defer span.End()

		handle := c.loadResumeHandle(ctx, memHandle)

		// Socket events wait until the open event is queued.
		ready := make(chan struct{})
		sock, err := c.dialer.Dial(ctx, c.dialURL, SocketHandlers{
			OnMessage: func(binary bool, data []byte) {
				<-ready
				c.post(func() { c.onMessage(gen, binary, data) })
			},
			OnClose: func(code int, reason string) {
				<-ready
				c.post(func() { c.onClose(gen, code, reason) })
			},
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "dial failed")
			c.post(func() { c.onDialFailed(gen, err) })
			return
		}
		if !c.post(func() { c.onOpen(gen, sock, connID, handle) }) {
			_ = sock.Close(closeNormal, "client closed")
		}
		close(ready)
	}()
}

func (c *Client) loadResumeHandle(ctx context.Context, fallback string) string {
	if !c.cfg.SessionResumption || c.store == nil {
		return fallback
	}
	ctx, cancel := context.WithTimeout(ctx, resumeTimeout)
	defer cancel()
	handle, err := c.store.Load(ctx, c.storeKey)
	if err != nil {
		logger.WarnContext(ctx, "failed to load resumption handle", "error", err)
		return fallback
	}
	if handle == "" {
		return fallback
	}
	return handle
}

func (c *Client) onOpen(gen uint64, sock Socket, connID, handle string) {
	if gen != c.gen {
		logger.DebugContext(c.ctx, "closing stale socket", "connection_id", connID)
		_ = sock.Close(closeNormal, "stale connection")
		return
	}

	c.sock = sock
	c.releaseDial()
	c.attempts = 0
	c.delay = 0
	c.resumeHandle = handle

	logger.InfoContext(c.ctx, "realtime socket open", "connection_id", connID, "model", ModelPath(c.cfg.Model))
	if err := c.send(KindSetup, &ClientMessage{Setup: buildSetup(&c.cfg, handle)}, false); err != nil {
		logger.ErrorContext(c.ctx, "failed to send setup", "error", err)
	}
	c.setStatus(StatusConnected)
	c.startRecording()
	c.scheduleKeepAlive(gen)
}

func (c *Client) onDialFailed(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	c.releaseDial()
	logger.WarnContext(c.ctx, "realtime dial failed",
		"error", err, "status", rterrors.StatusOf(err), "attempt", c.attempts)
	c.onClose(gen, closeAbnormal, err.Error())
}

func (c *Client) onClose(gen uint64, code int, reason string) {
	if gen != c.gen {
		logger.DebugContext(c.ctx, "ignoring close from stale socket", "code", code)
		return
	}

	c.sock = nil
	c.stopKeepAlive()
	c.stopRecording()
	logger.SocketClosed(c.ctx, code, reason)

	maxAttempts := max(c.cfg.MaxReconnectAttempts, 0)
	switch {
	case c.manual:
		c.setStatus(StatusDisconnected)
	case slices.Contains(c.cfg.TerminalCloseCodes, code):
		logger.ErrorContext(c.ctx, "cannot reconnect: session rejected", "code", code)
		c.setStatus(StatusDisconnected)
	case c.attempts < maxAttempts:
		c.attempts++
		c.delay = Backoff(c.cfg.ReconnectBaseDelay, c.attempts)
		c.metrics.ReconnectScheduled(c.attempts)
		logger.InfoContext(c.ctx, "reconnect scheduled",
			"attempt", c.attempts, "max_attempts", maxAttempts, "delay", c.delay)
		c.setStatus(StatusReconnecting)
		token := c.gen
		c.retryTimer = c.clock.AfterFunc(c.delay, func() {
			c.post(func() { c.onRetry(token) })
		})
	default:
		logger.ErrorContext(c.ctx, "max reconnection attempts reached", "attempts", c.attempts)
		c.attempts = 0
		c.delay = 0
		c.setStatus(StatusDisconnected)
	}
}

func (c *Client) releaseDial() {
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
}

func (c *Client) onRetry(token uint64) {
	if c.manual || token != c.gen || c.st != StatusReconnecting {
		return
	}
	c.retryTimer = nil
	c.dial()
}

func (c *Client) disconnect() {
	c.manual = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.stopKeepAlive()
	c.releaseDial()
	// Events from the current socket are stale from here on.
	c.gen++
	if c.sock != nil {
		sock := c.sock
		c.sock = nil
		if err := sock.Close(closeNormal, "Manual disconnect"); err != nil {
			logger.WarnContext(c.ctx, "error closing socket", "error", err)
		}
	}
	c.stopRecording()
	c.attempts = 0
	c.delay = 0
	c.setStatus(StatusDisconnected)
}

func (c *Client) scheduleKeepAlive(gen uint64) {
	c.keepAlive = c.clock.AfterFunc(c.cfg.KeepAliveInterval, func() {
		c.post(func() { c.onKeepAlive(gen) })
	})
}

func (c *Client) onKeepAlive(gen uint64) {
	if gen != c.gen || c.sock == nil || c.keepAlive == nil {
		return
	}
	if err := c.send(KindKeepAlive, &ClientMessage{ClientContent: &ClientContent{}}, false); err == nil {
		logger.DebugContext(c.ctx, "keep-alive sent")
	}
	c.scheduleKeepAlive(gen)
}

func (c *Client) stopKeepAlive() {
	if c.keepAlive != nil {
		c.keepAlive.Stop()
		c.keepAlive = nil
	}
}

func (c *Client) startRecording() {
	if c.audio == nil || c.recording {
		return
	}
	gen := c.gen
	err := c.audio.StartRecording(c.ctx, func(chunk audio.Chunk) {
		msg := mediaMessage(MediaChunk{MimeType: chunk.MimeType, Data: chunk.Data})
		if !c.tryPost(func() {
			if gen == c.gen {
				_ = c.send(KindAudio, msg, true)
			}
		}) {
			c.metrics.MessageDropped(KindAudio, DropQueueFull)
		}
	})
	if err != nil {
		// Voice input is optional; the session continues text-only.
		logger.WarnContext(c.ctx, "audio capture unavailable", "error", err)
		return
	}
	c.recording = true
}

func (c *Client) stopRecording() {
	if c.audio == nil || !c.recording {
		return
	}
	c.audio.StopRecording()
	c.recording = false
}

// send serializes msg onto the open socket. Media is subject to the
// buffered-bytes threshold; control frames are not.
func (c *Client) send(kind string, msg *ClientMessage, media bool) error {
	if c.sock == nil {
		logger.WarnContext(c.ctx, "dropping message: socket not open", "kind", kind)
		c.metrics.MessageDropped(kind, DropNotOpen)
		return ErrNotOpen
	}
	if media {
		if buffered := c.sock.BufferedAmount(); buffered > c.cfg.MaxBufferedBytes {
			logger.WarnContext(c.ctx, "socket buffer full, skipping media chunk",
				"kind", kind, "buffered", buffered)
			c.metrics.MessageDropped(kind, DropBackpressure)
			return ErrBackpressure
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", kind, err)
	}
	if err := c.sock.Send(data); err != nil {
		reason := DropNotOpen
		if errors.Is(err, streaming.ErrQueueFull) {
			reason = DropQueueFull
		}
		logger.WarnContext(c.ctx, "failed to send message", "kind", kind, "error", err)
		c.metrics.MessageDropped(kind, reason)
		return fmt.Errorf("send %s: %w", kind, err)
	}
	c.metrics.MessageSent(kind, len(data))
	return nil
}

func (c *Client) onMessage(gen uint64, binary bool, data []byte) {
	if gen != c.gen {
		return
	}
	if binary && !utf8.Valid(data) {
		logger.WarnContext(c.ctx, "dropping binary frame that is not UTF-8 text", "bytes", len(data))
		c.metrics.ParseError()
		return
	}

	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.WarnContext(c.ctx, "error parsing message", "error", err, "binary", binary)
		c.metrics.ParseError()
		return
	}
	c.logRawMessage(data)
	c.dispatch(&msg)
}

// logRawMessage logs the inbound frame with media payloads truncated.
func (c *Client) logRawMessage(data []byte) {
	if !logger.DefaultLogger.Enabled(c.ctx, slog.LevelDebug) {
		return
	}
	var logMsg map[string]interface{}
	if json.Unmarshal(data, &logMsg) != nil {
		return
	}
	keys := make([]string, 0, len(logMsg))
	for k := range logMsg {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	truncateInlineData(logMsg)
	out, _ := json.Marshal(logMsg)
	logger.DebugContext(c.ctx, "realtime message", "keys", keys, "content", string(out))
}

func (c *Client) saveResumeHandle(handle string) {
	c.resumeHandle = handle
	if c.store == nil {
		return
	}
	c.resumeSeq++
	seq := c.resumeSeq
	ctx := c.ctx
	go func() {
		c.saveMu.Lock()
		defer c.saveMu.Unlock()
		if seq < c.savedSeq {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resumeTimeout)
		defer cancel()
		if err := c.store.Save(ctx, c.storeKey, handle); err != nil {
			logger.WarnContext(ctx, "failed to save resumption handle", "error", err)
			return
		}
		c.savedSeq = seq
	}()
}

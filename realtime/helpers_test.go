package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/RealtimeKit/audio"
	"github.com/AltairaLabs/RealtimeKit/internal/streaming"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// manualClock fires timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(0, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that became due.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// Pending returns the remaining delays of active timers.
func (c *manualClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.at.Sub(c.now))
		}
	}
	return out
}

// fakeSocket records outbound frames and lets tests inject inbound ones.
type fakeSocket struct {
	mu          sync.Mutex
	h           SocketHandlers
	sent        [][]byte
	buffered    int64
	closed      bool
	closeCode   int
	closeReason string
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return streaming.ErrNotOpen
	}
	s.sent = append(s.sent, data)
	return nil
}

func (s *fakeSocket) BufferedAmount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

func (s *fakeSocket) setBuffered(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffered = n
}

func (s *fakeSocket) Close(code int, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.closeCode = code
	s.closeReason = reason
	s.mu.Unlock()
	go s.h.OnClose(code, reason)
	return nil
}

// serverClose simulates the peer closing the socket.
func (s *fakeSocket) serverClose(code int, reason string) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.h.OnClose(code, reason)
}

func (s *fakeSocket) serverSend(t *testing.T, binary bool, msg any) {
	t.Helper()
	var data []byte
	switch v := msg.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		var err error
		data, err = json.Marshal(v)
		require.NoError(t, err)
	}
	s.h.OnMessage(binary, data)
}

func (s *fakeSocket) frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, b := range s.sent {
		out[i] = string(b)
	}
	return out
}

func (s *fakeSocket) decoded(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, f := range s.frames() {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(f), &m))
		out = append(out, m)
	}
	return out
}

// fakeDialer hands out fakeSockets, or errors queued with failNext.
type fakeDialer struct {
	mu      sync.Mutex
	urls    []string
	sockets []*fakeSocket
	failAll error
	dials   int
}

func (d *fakeDialer) Dial(_ context.Context, url string, h SocketHandlers) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.urls = append(d.urls, url)
	if d.failAll != nil {
		return nil, d.failAll
	}
	s := &fakeSocket{h: h}
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = err
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) dialURLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.sockets) {
		return nil
	}
	return d.sockets[i]
}

// fakeAudio records engine calls.
type fakeAudio struct {
	mu         sync.Mutex
	startErr   error
	starts     int
	recording  bool
	onChunk    func(audio.Chunk)
	played     []string
	interrupts int
	playErr    error
}

func (a *fakeAudio) StartRecording(_ context.Context, onChunk func(audio.Chunk)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts++
	if a.startErr != nil {
		return a.startErr
	}
	a.recording = true
	a.onChunk = onChunk
	return nil
}

func (a *fakeAudio) StopRecording() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recording = false
	a.onChunk = nil
}

func (a *fakeAudio) PlayAudioChunk(data string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.played = append(a.played, data)
	return a.playErr
}

func (a *fakeAudio) Interrupt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interrupts++
}

func (a *fakeAudio) isRecording() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recording
}

func (a *fakeAudio) emit(data string) error {
	a.mu.Lock()
	cb := a.onChunk
	a.mu.Unlock()
	if cb == nil {
		return errors.New("not recording")
	}
	cb(audio.Chunk{MimeType: "audio/pcm;rate=16000", Data: data})
	return nil
}

func (a *fakeAudio) playedChunks() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.played...)
}

// fakeMetrics counts observations.
type fakeMetrics struct {
	mu          sync.Mutex
	sent        map[string]int
	dropped     map[string]int
	received    map[string]int
	parseErrors int
	reconnects  []int
	toolCalls   []string
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{sent: map[string]int{}, dropped: map[string]int{}, received: map[string]int{}}
}

func (m *fakeMetrics) MessageSent(kind string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[kind]++
}

func (m *fakeMetrics) MessageDropped(kind, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[kind+"/"+reason]++
}

func (m *fakeMetrics) MessageReceived(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received[kind]++
}

func (m *fakeMetrics) ParseError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parseErrors++
}

func (m *fakeMetrics) ReconnectScheduled(attempt int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects = append(m.reconnects, attempt)
}

func (m *fakeMetrics) ToolCall(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = append(m.toolCalls, name)
}

func (m *fakeMetrics) StatusChanged(Status) {}

func (m *fakeMetrics) parseErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parseErrors
}

func (m *fakeMetrics) droppedCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[key]
}

// events records handler callbacks.
type events struct {
	mu          sync.Mutex
	statuses    []Status
	texts       []string
	toolCalls   []FunctionCall
	turns       int
	interrupts  int
	transcripts []string
	setups      int
}

func (e *events) handlers() Handlers {
	return Handlers{
		OnStatus: func(s Status) { e.mu.Lock(); e.statuses = append(e.statuses, s); e.mu.Unlock() },
		OnText:   func(s string) { e.mu.Lock(); e.texts = append(e.texts, s); e.mu.Unlock() },
		OnToolCall: func(c FunctionCall) {
			e.mu.Lock()
			e.toolCalls = append(e.toolCalls, c)
			e.mu.Unlock()
		},
		OnTurnComplete: func() { e.mu.Lock(); e.turns++; e.mu.Unlock() },
		OnInterrupted:  func() { e.mu.Lock(); e.interrupts++; e.mu.Unlock() },
		OnTranscript: func(role TranscriptRole, text string) {
			e.mu.Lock()
			e.transcripts = append(e.transcripts, string(role)+":"+text)
			e.mu.Unlock()
		},
		OnSetupComplete: func() { e.mu.Lock(); e.setups++; e.mu.Unlock() },
	}
}

func (e *events) statusList() []Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Status(nil), e.statuses...)
}

func (e *events) textList() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.texts...)
}

func (e *events) toolCallList() []FunctionCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]FunctionCall(nil), e.toolCalls...)
}

// harness wires a Client to fakes.
type harness struct {
	client  *Client
	clock   *manualClock
	dialer  *fakeDialer
	audio   *fakeAudio
	metrics *fakeMetrics
	events  *events
}

func newHarness(t *testing.T, mutate func(*Config, *Options)) *harness {
	t.Helper()
	h := &harness{
		clock:   newManualClock(),
		dialer:  &fakeDialer{},
		audio:   &fakeAudio{},
		metrics: newFakeMetrics(),
		events:  &events{},
	}
	cfg := Config{APIKey: "test-key", Endpoint: "wss://example.test/ws"}
	opts := Options{
		Dialer:   h.dialer,
		Clock:    h.clock,
		Audio:    h.audio,
		Metrics:  h.metrics,
		Handlers: h.events.handlers(),
	}
	if mutate != nil {
		mutate(&cfg, &opts)
	}
	c, err := New(cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	h.client = c
	return h
}

// connect runs Connect and waits for the first socket to open.
func (h *harness) connect(t *testing.T) *fakeSocket {
	t.Helper()
	h.client.Connect()
	h.waitStatus(t, StatusConnected)
	return h.dialer.socket(h.dialer.dialCount() - 1)
}

func (h *harness) waitStatus(t *testing.T, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return h.client.State().Status == want },
		waitFor, tick, "status never became %s", want)
}

// sync waits until every event queued so far has been handled.
func (h *harness) sync() {
	h.client.State()
}

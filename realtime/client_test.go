package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{}, Options{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{APIKey: "k", ResponseModalities: []string{"TEXT", "AUDIO"}}, Options{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClient_StartsDisconnected(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, StatusDisconnected, h.client.Status())
	st := h.client.State()
	assert.Equal(t, StatusDisconnected, st.Status)
	assert.Zero(t, st.Attempts)
	assert.False(t, st.RetryPending)
	assert.Zero(t, h.dialer.dialCount())
}

func TestClient_HappyPathHandshakeFirst(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *Options) {
		cfg.SystemInstruction = "be brief"
		cfg.Tools = []FunctionDeclaration{{Name: "lookup"}}
	})
	sock := h.connect(t)
	require.NotNil(t, sock)

	assert.Equal(t, []Status{StatusConnecting, StatusConnected}, h.events.statusList())
	assert.Equal(t, "wss://example.test/ws?key=test-key", h.dialer.dialURLs()[0])

	msgs := sock.decoded(t)
	require.NotEmpty(t, msgs)
	setup, ok := msgs[0]["setup"].(map[string]any)
	require.True(t, ok, "first frame must be the handshake: %v", msgs[0])
	assert.Equal(t, DefaultModel, setup["model"])
	gen := setup["generation_config"].(map[string]any)
	assert.Equal(t, []any{"AUDIO"}, gen["response_modalities"])
	voice := gen["speech_config"].(map[string]any)["voice_config"].(map[string]any)["prebuilt_voice_config"].(map[string]any)
	assert.Equal(t, "Puck", voice["voice_name"])
	assert.NotNil(t, setup["system_instruction"])
	assert.NotNil(t, setup["tools"])
	assert.NotContains(t, setup, "session_resumption")

	st := h.client.State()
	assert.True(t, st.KeepAliveActive)
	assert.True(t, st.Recording)
	assert.NotEmpty(t, st.SessionID)
	assert.True(t, h.audio.isRecording())
	assert.Equal(t, []time.Duration{DefaultKeepAliveInterval}, h.clock.Pending())
}

func TestClient_ConnectIsNoOpUnlessDisconnected(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)
	first := h.client.State().SessionID

	h.client.Connect()
	h.sync()
	assert.Equal(t, 1, h.dialer.dialCount())
	assert.Equal(t, first, h.client.State().SessionID)
}

func TestClient_KeepAlive(t *testing.T) {
	h := newHarness(t, nil)
	sock := h.connect(t)

	h.clock.Advance(DefaultKeepAliveInterval - time.Millisecond)
	h.sync()
	assert.Len(t, sock.frames(), 1)

	h.clock.Advance(time.Millisecond)
	h.sync()
	frames := sock.frames()
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"client_content":{}}`, frames[1])
	assert.True(t, h.client.State().KeepAliveActive)

	h.clock.Advance(DefaultKeepAliveInterval)
	h.sync()
	assert.Len(t, sock.frames(), 3)
}

func TestClient_AudioChunksForwarded(t *testing.T) {
	h := newHarness(t, nil)
	sock := h.connect(t)

	require.NoError(t, h.audio.emit("AAAA"))
	h.sync()

	frames := sock.frames()
	require.Len(t, frames, 2)
	assert.JSONEq(t,
		`{"realtime_input":{"media_chunks":[{"mime_type":"audio/pcm;rate=16000","data":"AAAA"}]}}`,
		frames[1])
}

func TestClient_BackpressureDropsMedia(t *testing.T) {
	h := newHarness(t, nil)
	sock := h.connect(t)
	sock.setBuffered(DefaultMaxBufferedBytes + 1)

	err := h.client.SendAudio(MediaChunk{MimeType: "audio/pcm;rate=16000", Data: "AAAA"})
	require.ErrorIs(t, err, ErrBackpressure)
	require.NoError(t, h.audio.emit("BBBB"))
	err = h.client.SendScreenFrame([]byte{0xff, 0xd8})
	require.ErrorIs(t, err, ErrBackpressure)
	h.sync()

	assert.Len(t, sock.frames(), 1, "only the handshake was sent")
	assert.Equal(t, StatusConnected, h.client.Status())
	assert.Equal(t, 2, h.metrics.droppedCount(KindAudio+"/"+DropBackpressure))
	assert.Equal(t, 1, h.metrics.droppedCount(KindScreen+"/"+DropBackpressure))

	// Control messages are not throttled.
	require.NoError(t, h.client.SendText("hello"))
	assert.Len(t, sock.frames(), 2)

	// At exactly the threshold media still goes out.
	sock.setBuffered(DefaultMaxBufferedBytes)
	require.NoError(t, h.client.SendAudio(MediaChunk{MimeType: "audio/pcm;rate=16000", Data: "CCCC"}))
	assert.Len(t, sock.frames(), 3)
}

func TestClient_SendWithoutSocket(t *testing.T) {
	h := newHarness(t, nil)
	require.ErrorIs(t, h.client.SendText("hi"), ErrNotOpen)
	require.ErrorIs(t, h.client.SendAudio(MediaChunk{Data: "AA"}), ErrNotOpen)
	assert.Equal(t, 1, h.metrics.droppedCount(KindText+"/"+DropNotOpen))
}

func TestClient_SendTextAndToolResponse(t *testing.T) {
	h := newHarness(t, nil)
	sock := h.connect(t)

	require.NoError(t, h.client.SendText("what time is it"))
	require.NoError(t, h.client.SendToolResponse(FunctionResponse{
		ID: "c1", Name: "clock", Response: map[string]string{"time": "noon"},
	}))
	require.NoError(t, h.client.SendToolResponse())

	frames := sock.frames()
	require.Len(t, frames, 3)
	assert.JSONEq(t,
		`{"client_content":{"turns":[{"role":"user","parts":[{"text":"what time is it"}]}],"turn_complete":true}}`,
		frames[1])
	assert.JSONEq(t,
		`{"tool_response":{"function_responses":[{"id":"c1","name":"clock","response":{"time":"noon"}}]}}`,
		frames[2])
}

func TestClient_TransientDropRecovers(t *testing.T) {
	h := newHarness(t, nil)
	sock := h.connect(t)

	sock.serverClose(1006, "")
	h.waitStatus(t, StatusReconnecting)

	st := h.client.State()
	assert.Equal(t, 1, st.Attempts)
	assert.Equal(t, time.Second, st.Delay)
	assert.True(t, st.RetryPending)
	assert.False(t, st.KeepAliveActive)
	assert.False(t, st.Recording)
	assert.False(t, h.audio.isRecording())

	h.clock.Advance(999 * time.Millisecond)
	h.sync()
	assert.Equal(t, 1, h.dialer.dialCount())

	h.clock.Advance(time.Millisecond)
	h.waitStatus(t, StatusConnected)
	assert.Equal(t, 2, h.dialer.dialCount())

	st = h.client.State()
	assert.Zero(t, st.Attempts)
	assert.False(t, st.RetryPending)
	assert.True(t, st.KeepAliveActive)
	assert.True(t, h.audio.isRecording())

	second := h.dialer.socket(1)
	_, ok := second.decoded(t)[0]["setup"]
	assert.True(t, ok, "handshake is resent on reconnect")
	assert.Equal(t,
		[]Status{StatusConnecting, StatusConnected, StatusReconnecting, StatusConnected},
		h.events.statusList())
}

func TestClient_BackoffGrowsAndStops(t *testing.T) {
	h := newHarness(t, nil)
	sock := h.connect(t)
	h.dialer.setFail(errors.New("connection refused"))

	sock.serverClose(1006, "")
	h.waitStatus(t, StatusReconnecting)

	for attempt, delay := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		want := attempt + 1
		require.Eventually(t, func() bool {
			st := h.client.State()
			return st.Attempts == want && st.RetryPending
		}, waitFor, tick, "attempt %d never scheduled", want)
		assert.Equal(t, delay, h.client.State().Delay)
		assert.Equal(t, []time.Duration{delay}, h.clock.Pending())
		h.clock.Advance(delay)
	}

	h.waitStatus(t, StatusDisconnected)
	st := h.client.State()
	assert.Zero(t, st.Attempts, "counter resets after giving up")
	assert.False(t, st.RetryPending)

	h.clock.Advance(time.Hour)
	h.sync()
	assert.Equal(t, 4, h.dialer.dialCount(), "one connect plus three retries")
	assert.Equal(t, []int{1, 2, 3}, h.metrics.reconnects)
}

func TestClient_FirstDialFailureRetries(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.setFail(errors.New("no route"))

	h.client.Connect()
	h.waitStatus(t, StatusReconnecting)
	assert.Equal(t, 1, h.client.State().Attempts)

	h.dialer.setFail(nil)
	h.clock.Advance(time.Second)
	h.waitStatus(t, StatusConnected)
	assert.Zero(t, h.client.State().Attempts)
}

func TestClient_TerminalCloseCodes(t *testing.T) {
	for _, code := range []int{1000, 1003, 1008} {
		t.Run(fmt.Sprintf("code_%d", code), func(t *testing.T) {
			h := newHarness(t, nil)
			sock := h.connect(t)

			sock.serverClose(code, "rejected")
			h.waitStatus(t, StatusDisconnected)

			st := h.client.State()
			assert.False(t, st.RetryPending)
			assert.Zero(t, st.Attempts)
			assert.Empty(t, h.clock.Pending())

			h.clock.Advance(time.Minute)
			h.sync()
			assert.Equal(t, 1, h.dialer.dialCount())
		})
	}
}

func TestClient_TerminalCodesConfigurable(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *Options) {
		cfg.TerminalCloseCodes = []int{4001}
	})
	sock := h.connect(t)
	sock.serverClose(1008, "policy")
	h.waitStatus(t, StatusReconnecting)
}

func TestClient_RetriesDisabled(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *Options) {
		cfg.MaxReconnectAttempts = -1
	})
	sock := h.connect(t)
	sock.serverClose(1006, "")
	h.waitStatus(t, StatusDisconnected)
	assert.Empty(t, h.clock.Pending())
}

func TestClient_DisconnectSuppressesPendingRetry(t *testing.T) {
	h := newHarness(t, nil)
	sock := h.connect(t)
	sock.serverClose(1006, "")
	h.waitStatus(t, StatusReconnecting)

	h.client.Disconnect()
	assert.Equal(t, StatusDisconnected, h.client.Status())
	assert.False(t, h.client.State().RetryPending)

	h.clock.Advance(10 * time.Second)
	h.sync()
	assert.Equal(t, 1, h.dialer.dialCount())
	assert.Equal(t, StatusDisconnected, h.client.Status())
}

func TestClient_DisconnectClosesSocket(t *testing.T) {
	h := newHarness(t, nil)
	sock := h.connect(t)

	h.client.Disconnect()
	h.client.Disconnect()

	sock.mu.Lock()
	assert.True(t, sock.closed)
	assert.Equal(t, 1000, sock.closeCode)
	assert.Equal(t, "Manual disconnect", sock.closeReason)
	sock.mu.Unlock()

	st := h.client.State()
	assert.Equal(t, StatusDisconnected, st.Status)
	assert.False(t, st.KeepAliveActive)
	assert.False(t, st.Recording)
	assert.False(t, h.audio.isRecording())
	assert.Empty(t, h.clock.Pending())

	// The close event of the old socket must not trigger a retry.
	time.Sleep(20 * time.Millisecond)
	h.sync()
	assert.Equal(t, StatusDisconnected, h.client.Status())
	assert.Equal(t,
		[]Status{StatusConnecting, StatusConnected, StatusDisconnected},
		h.events.statusList())

	// Connect works again after a manual disconnect.
	h.connect(t)
	assert.Equal(t, 2, h.dialer.dialCount())
}

func TestClient_StaleSocketEventsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	old := h.connect(t)
	h.client.Disconnect()
	h.connect(t)

	old.serverSend(t, false, `{"serverContent":{"modelTurn":{"parts":[{"text":"late"}]}}}`)
	old.serverClose(1006, "")
	h.sync()

	assert.Equal(t, StatusConnected, h.client.Status())
	assert.Empty(t, h.events.textList())
}

func TestClient_AudioUnavailableContinuesTextOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.audio.startErr = errors.New("no microphone")
	sock := h.connect(t)

	assert.False(t, h.client.State().Recording)
	require.NoError(t, h.client.SendText("typed"))
	assert.Len(t, sock.frames(), 2)
}

func TestClient_NoAudioEngine(t *testing.T) {
	h := newHarness(t, func(_ *Config, opts *Options) { opts.Audio = nil })
	sock := h.connect(t)
	sock.serverSend(t, false, `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm","data":"AAAA"}}]},"interrupted":true}}`)
	h.sync()
	assert.Equal(t, StatusConnected, h.client.Status())
}

func TestClient_CloseStopsLoop(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)
	require.NoError(t, h.client.Close())
	require.NoError(t, h.client.Close())

	assert.Equal(t, StatusDisconnected, h.client.Status())
	assert.ErrorIs(t, h.client.SendText("x"), ErrClosed)
	h.client.Connect()
	h.client.Disconnect()
	assert.Equal(t, StatusDisconnected, h.client.State().Status)
}

type memoryHandles struct {
	mu      sync.Mutex
	handles map[string]string
	saves   int
}

func (m *memoryHandles) Load(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[key], nil
}

func (m *memoryHandles) Save(_ context.Context, key, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handles == nil {
		m.handles = map[string]string{}
	}
	m.handles[key] = handle
	m.saves++
	return nil
}

func (m *memoryHandles) get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[key]
}

func TestClient_SessionResumption(t *testing.T) {
	store := &memoryHandles{handles: map[string]string{DefaultModel: "h0"}}
	h := newHarness(t, func(cfg *Config, opts *Options) {
		cfg.SessionResumption = true
		opts.Resume = store
	})
	sock := h.connect(t)

	setup := sock.decoded(t)[0]["setup"].(map[string]any)
	assert.Equal(t, map[string]any{"handle": "h0"}, setup["session_resumption"])

	sock.serverSend(t, false, `{"sessionResumptionUpdate":{"newHandle":"h1","resumable":true}}`)
	sock.serverSend(t, false, `{"sessionResumptionUpdate":{"newHandle":"ignored","resumable":false}}`)
	require.Eventually(t, func() bool { return store.get(DefaultModel) == "h1" }, waitFor, tick)
	assert.Equal(t, "h1", h.client.State().ResumeHandle)

	sock.serverClose(1006, "")
	h.waitStatus(t, StatusReconnecting)
	h.clock.Advance(time.Second)
	h.waitStatus(t, StatusConnected)

	setup = h.dialer.socket(1).decoded(t)[0]["setup"].(map[string]any)
	assert.Equal(t, map[string]any{"handle": "h1"}, setup["session_resumption"])
}

func TestClient_TracesDialAndToolCalls(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h := newHarness(t, func(_ *Config, opts *Options) { opts.TracerProvider = tp })
	sock := h.connect(t)
	sock.serverSend(t, false, `{"toolCall":{"functionCalls":[{"id":"1","name":"lookup","args":{"q":"x"}}]}}`)
	h.sync()

	require.Eventually(t, func() bool { return len(exporter.GetSpans()) >= 2 }, waitFor, tick)
	names := map[string]bool{}
	for _, s := range exporter.GetSpans() {
		names[s.Name] = true
	}
	assert.True(t, names["realtime.dial"])
	assert.True(t, names["realtime.tool_call"])

	for _, s := range exporter.GetSpans() {
		if s.Name != "realtime.dial" {
			continue
		}
		attrs := map[string]string{}
		for _, kv := range s.Attributes {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		assert.Equal(t, h.client.State().SessionID, attrs["realtime.session_id"])
		assert.Equal(t, DefaultModel, attrs["realtime.model"])
		assert.NotEmpty(t, attrs["realtime.connection_id"])
	}
}

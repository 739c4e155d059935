// Package streaming provides the WebSocket transport used by the realtime
// session client.
//
// A Conn owns one socket. Writes are queued and drained by a single writer
// goroutine, and the number of queued-but-unwritten bytes is exposed through
// BufferedAmount so callers can shed load before the queue grows without
// bound. Inbound frames and the final close are reported through callbacks
// from a single reader goroutine, in socket order.
package streaming

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	rterrors "github.com/AltairaLabs/RealtimeKit/internal/errors"
)

// Default connection constants.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultMaxMessageSize   = 16 * 1024 * 1024 // 16MB
	DefaultCloseGracePeriod = 5 * time.Second
	DefaultSendQueueSize    = 1024
)

// CloseAbnormal is reported when the socket ends without a close frame.
const CloseAbnormal = websocket.CloseAbnormalClosure

// Message types delivered to OnMessage.
const (
	TextMessage   = websocket.TextMessage
	BinaryMessage = websocket.BinaryMessage
)

var (
	// ErrNotOpen is returned by Send after the socket started closing.
	ErrNotOpen = errors.New("websocket is not open")
	// ErrQueueFull is returned by Send when the outbound queue is saturated.
	ErrQueueFull = errors.New("websocket send queue full")
)

// ConnConfig configures the WebSocket connection behavior.
type ConnConfig struct {
	// URL is the WebSocket endpoint URL.
	URL string

	// Headers are sent during the WebSocket handshake.
	Headers http.Header

	// DialTimeout is the handshake timeout. Defaults to DefaultDialTimeout.
	DialTimeout time.Duration

	// WriteWait is the write deadline for each message. Defaults to DefaultWriteWait.
	WriteWait time.Duration

	// MaxMessageSize is the read limit. Defaults to DefaultMaxMessageSize.
	MaxMessageSize int64

	// CloseGracePeriod bounds how long Close waits for the peer's close frame.
	// Defaults to DefaultCloseGracePeriod.
	CloseGracePeriod time.Duration

	// SendQueueSize is the number of frames that may wait for the writer.
	// Defaults to DefaultSendQueueSize.
	SendQueueSize int

	// Logger receives debug/warn/error log messages. Optional.
	Logger Logger
}

// Logger is an optional interface for structured logging.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// noopLogger discards all log output.
type noopLogger struct{}

// Debug implements Logger.
func (noopLogger) Debug(_ string, _ ...interface{}) {}

// Info implements Logger.
func (noopLogger) Info(_ string, _ ...interface{}) {}

// Warn implements Logger.
func (noopLogger) Warn(_ string, _ ...interface{}) {}

// Error implements Logger.
func (noopLogger) Error(_ string, _ ...interface{}) {}

func (c *ConnConfig) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = DefaultCloseGracePeriod
	}
	if c.SendQueueSize == 0 {
		c.SendQueueSize = DefaultSendQueueSize
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
}

// Handlers receive inbound traffic. Both are called from the reader goroutine.
type Handlers struct {
	// OnMessage is called once per text or binary frame.
	OnMessage func(messageType int, data []byte)

	// OnClose is called exactly once when the socket is gone.
	OnClose func(code int, reason string)
}

// Conn is an open WebSocket with a queued writer.
type Conn struct {
	cfg      ConnConfig
	ws       *websocket.Conn
	handlers Handlers

	sendCh   chan []byte
	buffered atomic.Int64

	mu          sync.Mutex
	closing     bool
	localCode   int
	localReason string
	closeCh     chan struct{}
	done        chan struct{}
}

// Dial opens a WebSocket to cfg.URL and starts its reader and writer.
func Dial(ctx context.Context, cfg *ConnConfig, h Handlers) (*Conn, error) {
	c := *cfg
	c.defaults()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	ws, resp, err := dialer.DialContext(ctx, c.URL, c.Headers)
	if err != nil {
		opErr := rterrors.New("streaming", "dial", err)
		if resp != nil {
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			c.Logger.Error("WebSocket dial failed", "error", err, "status", resp.StatusCode)
			opErr = opErr.WithStatus(resp.StatusCode)
		}
		return nil, opErr
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	ws.SetReadLimit(c.MaxMessageSize)

	conn := &Conn{
		cfg:      c,
		ws:       ws,
		handlers: h,
		sendCh:   make(chan []byte, c.SendQueueSize),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go conn.writeLoop()
	go conn.readLoop()

	c.Logger.Info("WebSocket connected successfully")
	return conn, nil
}

// Send queues a text frame. It never blocks on the network.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return ErrNotOpen
	}

	select {
	case c.sendCh <- data:
		c.buffered.Add(int64(len(data)))
		return nil
	default:
		return ErrQueueFull
	}
}

// BufferedAmount returns the bytes queued but not yet written to the socket.
func (c *Conn) BufferedAmount() int64 {
	return c.buffered.Load()
}

// Close sends a close frame with code and reason and tears the socket down
// once the peer answers or the grace period expires. Pending frames are
// discarded. OnClose still fires, reporting the peer's code when it echoes
// one and code otherwise.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.localCode = code
	c.localReason = reason
	close(c.closeCh)
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.CloseGracePeriod))
	if err != nil {
		c.cfg.Logger.Debug("failed to write close frame", "error", err)
		return c.ws.Close()
	}

	select {
	case <-c.done:
	case <-time.After(c.cfg.CloseGracePeriod):
		c.cfg.Logger.Warn("peer did not acknowledge close", "code", code)
		_ = c.ws.Close()
	}
	return nil
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case data := <-c.sendCh:
			err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err == nil {
				err = c.ws.WriteMessage(websocket.TextMessage, data)
			}
			c.buffered.Add(-int64(len(data)))
			if err != nil {
				c.cfg.Logger.Warn("failed to write message", "error", err)
				// Unblocks the reader, which reports the close.
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			code, reason := c.closeStatus(err)
			c.mu.Lock()
			if !c.closing {
				c.closing = true
				close(c.closeCh)
			}
			c.mu.Unlock()
			_ = c.ws.Close()
			c.cfg.Logger.Debug("WebSocket closed", "code", code, "reason", reason)
			if c.handlers.OnClose != nil {
				c.handlers.OnClose(code, reason)
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(msgType, data)
		}
	}
}

func (c *Conn) closeStatus(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.localCode != 0 {
		return c.localCode, c.localReason
	}
	return CloseAbnormal, err.Error()
}

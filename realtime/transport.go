package realtime

import (
	"context"

	"github.com/AltairaLabs/RealtimeKit/internal/streaming"
	"github.com/AltairaLabs/RealtimeKit/logger"
	"github.com/AltairaLabs/RealtimeKit/telemetry"
)

// Socket is one open connection.
type Socket interface {
	Send(data []byte) error
	BufferedAmount() int64
	Close(code int, reason string) error
}

// SocketHandlers receive inbound traffic from a Socket.
type SocketHandlers struct {
	OnMessage func(binary bool, data []byte)
	OnClose   func(code int, reason string)
}

// Dialer opens sockets.
type Dialer interface {
	Dial(ctx context.Context, url string, h SocketHandlers) (Socket, error)
}

// WebSocketDialer dials with the streaming transport.
type WebSocketDialer struct {
	Config streaming.ConnConfig
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, url string, h SocketHandlers) (Socket, error) {
	cfg := d.Config
	cfg.URL = url
	cfg.Headers = telemetry.InjectHeaders(ctx, cfg.Headers)
	if cfg.Logger == nil {
		cfg.Logger = &loggerAdapter{component: "streaming"}
	}
	return streaming.Dial(ctx, &cfg, streaming.Handlers{
		OnMessage: func(mt int, data []byte) { h.OnMessage(mt == streaming.BinaryMessage, data) },
		OnClose:   h.OnClose,
	})
}

// loggerAdapter adapts the package logger to streaming.Logger.
type loggerAdapter struct {
	component string
}

func (a *loggerAdapter) Debug(msg string, keysAndValues ...interface{}) {
	logger.Debug(msg, append([]interface{}{"component", a.component}, keysAndValues...)...)
}

func (a *loggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	logger.Info(msg, append([]interface{}{"component", a.component}, keysAndValues...)...)
}

func (a *loggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	logger.Warn(msg, append([]interface{}{"component", a.component}, keysAndValues...)...)
}

func (a *loggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	logger.Error(msg, append([]interface{}{"component", a.component}, keysAndValues...)...)
}

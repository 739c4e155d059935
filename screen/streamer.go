package screen

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/AltairaLabs/RealtimeKit/logger"
	"github.com/AltairaLabs/RealtimeKit/realtime"
)

// DefaultInterval is the time between captured frames.
const DefaultInterval = 2 * time.Second

// Frame outcomes reported to Config.OnFrame.
const (
	FrameSent    = "sent"
	FrameDropped = "dropped"
	FrameError   = "error"
)

// Config configures a Streamer.
type Config struct {
	Interval time.Duration
	MaxWidth int
	Quality  int
	// Disabled starts the Streamer with sharing off.
	Disabled bool
	// Active gates capture, typically on the session being connected.
	Active func() bool
	// OnFrame observes the outcome of every capture attempt.
	OnFrame func(outcome string)
}

// Sender delivers one JPEG frame.
type Sender func(jpeg []byte) error

// Streamer periodically captures, encodes and sends screen frames while
// sharing is enabled.
type Streamer struct {
	src     Source
	send    Sender
	cfg     Config
	enabled atomic.Bool
}

// NewStreamer creates a Streamer. Call Run to start it.
func NewStreamer(src Source, send Sender, cfg Config) *Streamer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxWidth == 0 {
		cfg.MaxWidth = DefaultMaxWidth
	}
	if cfg.Quality == 0 {
		cfg.Quality = DefaultQuality
	}
	s := &Streamer{src: src, send: send, cfg: cfg}
	s.enabled.Store(!cfg.Disabled)
	return s
}

// Enabled reports whether sharing is on.
func (s *Streamer) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled turns sharing on or off. It takes effect at the next tick.
func (s *Streamer) SetEnabled(on bool) {
	if s.enabled.Swap(on) != on {
		logger.Info("screen share toggled", "enabled", on)
	}
}

// Toggle flips sharing and returns the new state.
func (s *Streamer) Toggle() bool {
	for {
		old := s.enabled.Load()
		if s.enabled.CompareAndSwap(old, !old) {
			logger.Info("screen share toggled", "enabled", !old)
			return !old
		}
	}
}

// Run captures frames until ctx is done. It always returns nil once ctx ends.
func (s *Streamer) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(s.cfg.Interval), 1)
	ctx = logger.WithComponent(ctx, "screen")
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		if !s.Enabled() || (s.cfg.Active != nil && !s.cfg.Active()) {
			continue
		}
		s.captureOnce(ctx)
	}
}

func (s *Streamer) captureOnce(ctx context.Context) {
	img, err := s.src.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.WarnContext(ctx, "screen capture failed", "error", err)
		s.report(FrameError)
		return
	}
	data, err := Encode(img, s.cfg.MaxWidth, s.cfg.Quality)
	if err != nil {
		logger.WarnContext(ctx, "screen frame encoding failed", "error", err)
		s.report(FrameError)
		return
	}
	if err := s.send(data); err != nil {
		if errors.Is(err, realtime.ErrBackpressure) || errors.Is(err, realtime.ErrNotOpen) {
			logger.DebugContext(ctx, "screen frame dropped", "reason", err)
			s.report(FrameDropped)
			return
		}
		logger.WarnContext(ctx, "failed to send screen frame", "error", err)
		s.report(FrameError)
		return
	}
	s.report(FrameSent)
}

func (s *Streamer) report(outcome string) {
	if s.cfg.OnFrame != nil {
		s.cfg.OnFrame(outcome)
	}
}

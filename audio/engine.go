package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AltairaLabs/RealtimeKit/logger"
	"github.com/AltairaLabs/RealtimeKit/pcm"
)

// Default engine settings.
const (
	DefaultDeviceSampleRate = SampleRate24kHz
	DefaultSendSampleRate   = SampleRate16kHz
	DefaultReplySampleRate  = SampleRate24kHz
	DefaultBlockSize        = 2048
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("audio engine closed")

// Chunk is one encoded capture block ready to be sent as a media chunk.
type Chunk struct {
	MimeType string
	Data     string
}

// Config configures an Engine. Zero values take the defaults above.
type Config struct {
	// DeviceSampleRate is the rate both streams are opened at.
	DeviceSampleRate int
	// SendSampleRate is the rate of outgoing chunks.
	SendSampleRate int
	// ReplySampleRate is the rate of incoming reply audio.
	ReplySampleRate int
	// BlockSize is the capture block length in device samples.
	BlockSize int
	// OnPlayback, if set, observes every scheduled reply buffer.
	OnPlayback func(start, duration time.Duration)
}

func (c *Config) defaults() {
	if c.DeviceSampleRate == 0 {
		c.DeviceSampleRate = DefaultDeviceSampleRate
	}
	if c.SendSampleRate == 0 {
		c.SendSampleRate = DefaultSendSampleRate
	}
	if c.ReplySampleRate == 0 {
		c.ReplySampleRate = DefaultReplySampleRate
	}
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
}

// Engine owns the microphone and speaker of one session.
type Engine struct {
	cfg    Config
	device Device

	mu     sync.Mutex
	input  InputStream
	sink   Sink
	cursor PlaybackCursor
	closed bool
}

// NewEngine creates an Engine on device. Streams are opened on demand.
func NewEngine(device Device, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{cfg: cfg, device: device}
}

// MimeType returns the tag attached to captured chunks.
func (e *Engine) MimeType() string {
	return pcm.MimeType(e.cfg.SendSampleRate)
}

// StartRecording opens the microphone and delivers encoded blocks to onChunk
// in capture order. Calling it while recording is a no-op.
func (e *Engine) StartRecording(ctx context.Context, onChunk func(Chunk)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.input != nil {
		return nil
	}

	mime := e.MimeType()
	stream, err := e.device.OpenInput(e.cfg.DeviceSampleRate, e.cfg.BlockSize, func(block []float32) {
		samples, rerr := Resample(block, e.cfg.DeviceSampleRate, e.cfg.SendSampleRate)
		if rerr != nil {
			logger.Warn("capture resample failed", "error", rerr)
			return
		}
		onChunk(Chunk{MimeType: mime, Data: pcm.EncodeFloats(samples)})
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to open microphone", "error", err)
		return fmt.Errorf("open microphone: %w", err)
	}

	e.input = stream
	logger.DebugContext(ctx, "recording started",
		"device_rate", e.cfg.DeviceSampleRate, "send_rate", e.cfg.SendSampleRate)
	return nil
}

// StopRecording releases the microphone. It is safe to call at any time.
func (e *Engine) StopRecording() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopRecordingLocked()
}

func (e *Engine) stopRecordingLocked() {
	if e.input == nil {
		return
	}
	if err := e.input.Close(); err != nil {
		logger.Warn("failed to close microphone", "error", err)
	}
	e.input = nil
	logger.Debug("recording stopped")
}

// IsRecording reports whether the microphone is open.
func (e *Engine) IsRecording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.input != nil
}

// PlayAudioChunk decodes base64 PCM16 reply audio and schedules it directly
// after whatever is already queued. It returns once the buffer is scheduled.
func (e *Engine) PlayAudioChunk(data string) error {
	samples, err := pcm.DecodeFloats(data)
	if err != nil {
		return err
	}
	if e.cfg.ReplySampleRate != e.cfg.DeviceSampleRate {
		samples, err = Resample(samples, e.cfg.ReplySampleRate, e.cfg.DeviceSampleRate)
		if err != nil {
			return err
		}
	}
	if len(samples) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	sink, err := e.ensureSinkLocked()
	if err != nil {
		return err
	}

	d := pcm.Duration(len(samples), e.cfg.DeviceSampleRate)
	start := e.cursor.Schedule(sink.Now(), d)
	if err := sink.Schedule(start, samples); err != nil {
		return fmt.Errorf("schedule playback: %w", err)
	}
	if e.cfg.OnPlayback != nil {
		e.cfg.OnPlayback(start, d)
	}
	return nil
}

func (e *Engine) ensureSinkLocked() (Sink, error) {
	if e.sink != nil {
		return e.sink, nil
	}
	sink, err := e.device.OpenOutput(e.cfg.DeviceSampleRate)
	if err != nil {
		return nil, fmt.Errorf("open speaker: %w", err)
	}
	e.sink = sink
	e.cursor.Reset(sink.Now())
	return sink, nil
}

// Interrupt makes the next reply buffer start at the current device time.
func (e *Engine) Interrupt() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sink == nil {
		return
	}
	e.cursor.Reset(e.sink.Now())
}

// Close stops capture and releases the output stream and the device.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.stopRecordingLocked()

	var errs []error
	if e.sink != nil {
		errs = append(errs, e.sink.Close())
		e.sink = nil
	}
	errs = append(errs, e.device.Close())
	return errors.Join(errs...)
}

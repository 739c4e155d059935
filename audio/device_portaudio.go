//go:build portaudio

package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/AltairaLabs/RealtimeKit/logger"
)

// outputFramesPerBuffer is 40ms of audio at 24kHz.
const outputFramesPerBuffer = 960

// DefaultDevice initializes PortAudio and returns the host's default
// input and output devices.
func DefaultDevice() (Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &paDevice{}, nil
}

type paDevice struct {
	mu     sync.Mutex
	closed bool
}

func (d *paDevice) OpenInput(sampleRate, blockSize int, onBlock func([]float32)) (InputStream, error) {
	in := make([]float32, blockSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), blockSize, in)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	s := &paInput{stream: stream, done: make(chan struct{}), stopped: make(chan struct{})}
	go s.captureLoop(in, onBlock)
	return s, nil
}

type paInput struct {
	stream  *portaudio.Stream
	once    sync.Once
	done    chan struct{}
	stopped chan struct{}
}

func (s *paInput) captureLoop(in []float32, onBlock func([]float32)) {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			// Overflow is reported as an error but the buffer is still usable.
			if err != portaudio.InputOverflowed {
				logger.Debug("microphone read failed", "error", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		block := make([]float32, len(in))
		copy(block, in)
		onBlock(block)
	}
}

func (s *paInput) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.stream.Stop()
		<-s.stopped
		if cerr := s.stream.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

func (d *paDevice) OpenOutput(sampleRate int) (Sink, error) {
	out := make([]float32, outputFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(out), out)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	s := &paSink{
		stream:  stream,
		mix:     newMixer(sampleRate),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.playbackLoop(out)
	return s, nil
}

// paSink feeds a blocking output stream from a mixer. Now reports the end of
// the last buffer handed to the stream, so new audio is never placed inside a
// range that was already mixed.
type paSink struct {
	stream *portaudio.Stream
	mix    *mixer

	once    sync.Once
	done    chan struct{}
	stopped chan struct{}
}

func (s *paSink) Now() time.Duration {
	return s.mix.now()
}

func (s *paSink) Schedule(at time.Duration, samples []float32) error {
	s.mix.schedule(at, samples)
	return nil
}

func (s *paSink) playbackLoop(out []float32) {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mix.fill(out)
		if err := s.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
			logger.Debug("speaker write failed", "error", err)
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (s *paSink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.stream.Stop()
		<-s.stopped
		if cerr := s.stream.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

func (d *paDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return portaudio.Terminate()
}

package audio

import (
	"errors"
	"time"
)

// ErrNoDevice indicates that no audio hardware is available in this build
// or on this host.
var ErrNoDevice = errors.New("audio device unavailable")

// InputStream is an open microphone.
type InputStream interface {
	Close() error
}

// Sink is an open output stream with its own sample clock.
type Sink interface {
	// Now returns the amount of audio the device has consumed so far.
	Now() time.Duration
	// Schedule queues samples to start at the given device time.
	Schedule(at time.Duration, samples []float32) error
	Close() error
}

// Device opens mono float32 audio streams.
type Device interface {
	// OpenInput starts capture. onBlock is called sequentially with blocks of
	// blockSize samples and may retain them.
	OpenInput(sampleRate, blockSize int, onBlock func([]float32)) (InputStream, error)
	// OpenOutput starts an output stream at sampleRate.
	OpenOutput(sampleRate int) (Sink, error)
	// Close releases the device.
	Close() error
}

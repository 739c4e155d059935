// Package pcm converts between float32 audio samples, signed 16-bit
// little-endian PCM and the base64 text form carried in realtime media chunks.
//
// Scaling is asymmetric: negative samples map onto [-32768, 0) and
// non-negative samples onto [0, 32767], so both ends of the int16 range are
// reachable and the inverse conversion returns exactly -1.0 and 1.0.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// BytesPerSample is the width of one mono 16-bit sample.
	BytesPerSample = 2

	negScale = 32768
	posScale = 32767
)

var (
	// ErrOddLength indicates a byte slice that is not a whole number of samples.
	ErrOddLength = errors.New("pcm data not aligned to 16-bit samples")
)

// FloatToInt16 clamps each sample to [-1, 1] and scales it to int16,
// rounding to the nearest step. NaN maps to silence.
func FloatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		case math.IsNaN(float64(s)):
			s = 0
		}
		if s < 0 {
			out[i] = int16(math.Round(float64(s) * negScale))
		} else {
			out[i] = int16(math.Round(float64(s) * posScale))
		}
	}
	return out
}

// Int16ToFloat is the inverse of FloatToInt16.
func Int16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		if s < 0 {
			out[i] = float32(s) / negScale
		} else {
			out[i] = float32(s) / posScale
		}
	}
	return out
}

// Int16ToBytes serializes samples as little-endian 16-bit PCM.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

// BytesToInt16 parses little-endian 16-bit PCM.
func BytesToInt16(data []byte) ([]int16, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(data))
	}
	out := make([]int16, len(data)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
	}
	return out, nil
}

// EncodeBase64 encodes bytes with the standard base64 alphabet.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes standard base64. Malformed input is an error.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	return data, nil
}

// EncodeFloats runs the full capture path: float32 -> int16 -> bytes -> base64.
func EncodeFloats(samples []float32) string {
	return EncodeBase64(Int16ToBytes(FloatToInt16(samples)))
}

// DecodeFloats runs the full playback path: base64 -> bytes -> int16 -> float32.
func DecodeFloats(s string) ([]float32, error) {
	data, err := DecodeBase64(s)
	if err != nil {
		return nil, err
	}
	ints, err := BytesToInt16(data)
	if err != nil {
		return nil, err
	}
	return Int16ToFloat(ints), nil
}

// Duration returns the play time of n mono samples at sampleRate.
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}

// MimeType returns the media chunk tag for raw PCM at sampleRate.
func MimeType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

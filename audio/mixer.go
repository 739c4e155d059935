package audio

import (
	"sync"
	"time"
)

// segment is a scheduled buffer positioned on the sample clock.
type segment struct {
	start   int64
	samples []float32
}

// mixer positions scheduled buffers on a sample clock and mixes them into
// fixed-size output buffers. The clock is the end of the last mixed range;
// anything scheduled before it is heard only partially.
type mixer struct {
	rate int

	mu       sync.Mutex
	mixed    int64
	segments []segment
}

func newMixer(rate int) *mixer {
	return &mixer{rate: rate}
}

// now returns the earliest time that can still be scheduled in full.
func (m *mixer) now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Duration(m.mixed) * time.Second / time.Duration(m.rate)
}

// schedule queues samples at the given device time. The time is rounded to
// the nearest sample so consecutive buffers neither overlap nor gap.
func (m *mixer) schedule(at time.Duration, samples []float32) {
	start := (int64(at)*int64(m.rate) + int64(time.Second)/2) / int64(time.Second)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments = append(m.segments, segment{start: start, samples: samples})
}

// fill mixes the next len(out) samples into out and advances the clock.
func (m *mixer) fill(out []float32) {
	for i := range out {
		out[i] = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.mixed
	to := from + int64(len(out))
	kept := m.segments[:0]
	for _, seg := range m.segments {
		end := seg.start + int64(len(seg.samples))
		lo, hi := max(seg.start, from), min(end, to)
		for pos := lo; pos < hi; pos++ {
			out[pos-from] += seg.samples[pos-seg.start]
		}
		if end > to {
			kept = append(kept, seg)
		}
	}
	m.segments = kept
	m.mixed = to

	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}
}

package audio

import (
	"errors"
	"sync"
	"time"
)

type scheduled struct {
	at      time.Duration
	samples []float32
}

// fakeDevice records opens and lets tests drive the input callback and the
// output clock directly.
type fakeDevice struct {
	mu        sync.Mutex
	inputErr  error
	outputErr error
	onBlock   func([]float32)
	inputs    int
	outputs   int
	closed    bool
	sink      *fakeSink
	inputRate int
}

type fakeInput struct {
	dev    *fakeDevice
	closed bool
}

func (i *fakeInput) Close() error {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	i.closed = true
	i.dev.onBlock = nil
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	now    time.Duration
	queued []scheduled
	closed bool
}

func (s *fakeSink) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeSink) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now += d
}

func (s *fakeSink) Schedule(at time.Duration, samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, scheduled{at: at, samples: samples})
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (d *fakeDevice) OpenInput(sampleRate, _ int, onBlock func([]float32)) (InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inputErr != nil {
		return nil, d.inputErr
	}
	d.inputs++
	d.inputRate = sampleRate
	d.onBlock = onBlock
	return &fakeInput{dev: d}, nil
}

func (d *fakeDevice) OpenOutput(int) (Sink, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.outputErr != nil {
		return nil, d.outputErr
	}
	d.outputs++
	d.sink = &fakeSink{}
	return d.sink, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) emit(block []float32) error {
	d.mu.Lock()
	cb := d.onBlock
	d.mu.Unlock()
	if cb == nil {
		return errors.New("no input open")
	}
	cb(block)
	return nil
}

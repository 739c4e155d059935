package agent

import (
	"fmt"
	"sync"

	"github.com/AltairaLabs/RealtimeKit/logger"
)

// dispatcher runs application callbacks one at a time, in enqueue order, on
// its own goroutine. Enqueue never blocks, so the realtime event loop can
// publish into it freely.
type dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// enqueue schedules fn. It reports false after close.
func (d *dispatcher) enqueue(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	// wake is only closed under mu.
	select {
	case d.wake <- struct{}{}:
	default:
	}
	d.mu.Unlock()
	return true
}

// sync waits until everything enqueued before it has run.
func (d *dispatcher) sync() {
	ran := make(chan struct{})
	if d.enqueue(func() { close(ran) }) {
		<-ran
	}
}

// close stops accepting work, runs what is queued and waits for the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.wake)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range batch {
			safeInvoke(fn)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

func safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session callback panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

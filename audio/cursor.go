package audio

import "time"

// PlaybackCursor tracks where the next output buffer should start on the
// device clock. The zero value starts at time zero.
type PlaybackCursor struct {
	next time.Duration
}

// Schedule reserves d of output starting no earlier than now and returns the
// reserved start time.
func (c *PlaybackCursor) Schedule(now, d time.Duration) time.Duration {
	start := c.next
	if now > start {
		start = now
	}
	c.next = start + d
	return start
}

// Reset moves the cursor to now. Buffers already handed to the sink keep
// playing.
func (c *PlaybackCursor) Reset(now time.Duration) {
	c.next = now
}

// Next returns the earliest start time of the next buffer.
func (c *PlaybackCursor) Next() time.Duration {
	return c.next
}

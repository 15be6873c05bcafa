package engine

import "sync/atomic"

// Clock is a monotonic logical clock. Event seq_nums within a run and the
// global document order in the broker are both stamped from Clock
// instances, so ordering never depends on wall time.
//
// Thread-safety: safe for concurrent use (atomic operations), though the
// interpreter's single-writer design means only one goroutine normally
// calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0; the first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

package engine

import "sync/atomic"

// Clock hands out emission sequence numbers.
//
// Every emitted event is stamped with a strictly increasing seq from this
// clock. Wall-clock time is never used for ordering.
//
// Clock is safe for concurrent use so that readers such as Describe can
// sample it, but only the driver cycle advances it.
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that will hand out start+1 next.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}

// Peek returns the value Next would return, without advancing.
func (c *Clock) Peek() uint64 {
	return c.seq.Load() + 1
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() uint64 {
	return c.seq.Load()
}

// Reset rewinds the clock to 0.
func (c *Clock) Reset() {
	c.seq.Store(0)
}

package crdt

import "sync/atomic"

// Clock is a monotonic Lamport clock for cell ordering.
//
// Every local write is stamped with a strictly increasing counter from this
// clock, and merging witnesses the remote document's highest counter, so a
// write issued after observing remote state always orders above it.
//
// Thread-safety: safe for concurrent use (atomic operations), though the
// document's single-writer transactions mean one goroutine typically calls
// Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific counter.
// Used when loading a document to resume from its recorded position.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next counter and advances the clock.
// Each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the counter without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Witness raises the clock to at least remote. Never lowers it, so a
// racing local Next cannot be regressed by a concurrent merge.
func (c *Clock) Witness(remote int64) {
	for {
		cur := c.seq.Load()
		if remote <= cur {
			return
		}
		if c.seq.CompareAndSwap(cur, remote) {
			return
		}
	}
}

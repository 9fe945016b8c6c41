package engine

import "sync/atomic"

// Clock is the logical clock that numbers sync passes.
//
// Every pass, whatever triggered it, takes the next seq. Journal entries are
// ordered by seq, never by wall clock, so a replayed scenario produces the
// same trace.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock at 0. The first pass gets seq 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start, for an engine that
// appends to an existing journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued seq without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

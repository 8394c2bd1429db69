package tools

import (
	"sync"
	"time"
)

// FrameInterval is the pointer update rate of a drag
const FrameInterval = 17 * time.Millisecond

// Coalescer merges pointer moves so a drag updates at most once per frame.
// The first move after a quiet frame passes through at once.
type Coalescer struct {
	Interval time.Duration

	mu      sync.Mutex
	last    time.Time
	pending *Pointer
	samples []Point
}

// Add records p at now. When a frame has passed since the last update it
// returns the merged pointer, carrying every sample since then.
func (c *Coalescer) Add(now time.Time, p Pointer) (Pointer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = append(c.samples, p.Samples()...)
	merged := p
	c.pending = &merged
	if !c.last.IsZero() && now.Sub(c.last) < c.interval() {
		return Pointer{}, false
	}
	return c.take(now), true
}

// Flush returns the pending merged pointer, if any
func (c *Coalescer) Flush(now time.Time) (Pointer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Pointer{}, false
	}
	return c.take(now), true
}

// Reset drops pending samples, e.g. when the drag ends
func (c *Coalescer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	c.samples = nil
	c.last = time.Time{}
}

// Pending reports whether samples wait for the next frame
func (c *Coalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// caller holds mu
func (c *Coalescer) take(now time.Time) Pointer {
	p := *c.pending
	p.Coalesced = c.samples
	c.pending = nil
	c.samples = nil
	c.last = now
	return p
}

func (c *Coalescer) interval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	return FrameInterval
}

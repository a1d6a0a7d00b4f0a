package rulekit

import (
	"sync"
	"time"
)

// TimeProvider supplies pacing information to modules and rules. It is injected once
// into a Process and shared by everything below it.
type TimeProvider interface {
	// DeltaTime is the duration of the last frame.
	DeltaTime() time.Duration
	// Time is the accumulated frame time since the provider started.
	Time() time.Duration
	// FrameCount is the number of frames advanced so far.
	FrameCount() int64
	// RealtimeSinceStartup is wall-clock time since the provider was created.
	RealtimeSinceStartup() time.Duration
}

// FrameClock is a TimeProvider advanced explicitly by the host once per frame.
type FrameClock struct {
	mu      sync.RWMutex
	now     func() time.Time
	started time.Time
	delta   time.Duration
	total   time.Duration
	frames  int64
}

// ClockOption configures a FrameClock.
type ClockOption func(*FrameClock)

// WithNow replaces the wall clock, typically with a fake in tests.
func WithNow(now func() time.Time) ClockOption {
	return func(c *FrameClock) {
		c.now = now
	}
}

// NewFrameClock creates a clock at frame zero.
func NewFrameClock(opts ...ClockOption) *FrameClock {
	c := &FrameClock{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.started = c.now()
	return c
}

// Advance records a new frame of duration dt.
func (c *FrameClock) Advance(dt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delta = dt
	c.total += dt
	c.frames++
}

func (c *FrameClock) DeltaTime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delta
}

func (c *FrameClock) Time() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}

func (c *FrameClock) FrameCount() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames
}

func (c *FrameClock) RealtimeSinceStartup() time.Duration {
	return c.now().Sub(c.started)
}

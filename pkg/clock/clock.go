// Package clock provides the microsecond time base shared by the payload
// core and bounded spin-waits on top of it.
//
// Timestamps are uint32 microseconds and wrap after ~71 minutes; elapsed
// time is always computed as an unsigned difference so wrap-around is safe.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns the current time in microseconds.
type Clock interface {
	Micros() uint32
}

var (
	_ Clock = (*System)(nil)
	_ Clock = (*Manual)(nil)
)

// System is a Clock backed by the monotonic wall clock, counting from
// its creation.
type System struct {
	start time.Time
}

// NewSystem creates a System clock starting at zero.
func NewSystem() *System {
	return &System{start: time.Now()}
}

// Micros implements Clock.
func (c *System) Micros() uint32 {
	return uint32(time.Since(c.start).Microseconds())
}

// Manual is a Clock that only moves when told to. Every call to Micros
// also advances it by Step, which models time passing while a caller
// spins on a condition.
type Manual struct {
	now  atomic.Uint32
	step atomic.Uint32
}

// NewManual creates a Manual clock at t0 that advances by step on every read.
func NewManual(t0, step uint32) *Manual {
	c := &Manual{}
	c.now.Store(t0)
	c.step.Store(step)
	return c
}

// Micros implements Clock.
func (c *Manual) Micros() uint32 {
	return c.now.Add(c.step.Load()) - c.step.Load()
}

// Advance moves the clock forward by us microseconds.
func (c *Manual) Advance(us uint32) {
	c.now.Add(us)
}

// Set moves the clock to t.
func (c *Manual) Set(t uint32) {
	c.now.Store(t)
}

// SetStep changes the per-read advance.
func (c *Manual) SetStep(step uint32) {
	c.step.Store(step)
}

// Since returns the microseconds elapsed since t.
func Since(c Clock, t uint32) uint32 {
	return c.Micros() - t
}

// Wait spins until ready returns true or timeout microseconds elapse.
// It reports whether ready returned true. A zero timeout checks ready once.
func Wait(c Clock, timeout uint32, ready func() bool) bool {
	start := c.Micros()
	for {
		if ready() {
			return true
		}
		if c.Micros()-start >= timeout {
			return false
		}
	}
}

// ToMicros converts d to whole microseconds, saturating at the uint32 range.
func ToMicros(d time.Duration) uint32 {
	us := d.Microseconds()
	switch {
	case us < 0:
		return 0
	case us > int64(^uint32(0)):
		return ^uint32(0)
	}
	return uint32(us)
}

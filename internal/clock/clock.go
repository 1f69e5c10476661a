// Package clock abstracts wall-clock time (live) from simulated time
// (backtest) behind one capability so the engine never branches per event.
package clock

import (
	"sync"
	"time"
)

// Callback fires when a scheduled timer is due. fireTs is the scheduled
// timestamp, not the observation time.
type Callback func(fireTs int64)

// Clock is the engine's only time source. Now is monotonic non-decreasing
// within one run.
type Clock interface {
	Now() int64
	ScheduleAt(ts int64, fn Callback) (cancel func())
}

// WallClock is the live variant backed by real time and runtime timers.
type WallClock struct {
	mu   sync.Mutex
	last int64
}

// NewWallClock creates a wall-clock time source.
func NewWallClock() *WallClock {
	return &WallClock{}
}

// Now returns the current wall time in unix nanoseconds, clamped to be
// non-decreasing across calls.
func (c *WallClock) Now() int64 {
	now := time.Now().UTC().UnixNano()
	c.mu.Lock()
	defer c.mu.Unlock()
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}

// ScheduleAt fires fn once the wall clock reaches ts. A ts in the past
// fires immediately.
func (c *WallClock) ScheduleAt(ts int64, fn Callback) func() {
	delay := time.Duration(ts - c.Now())
	if delay < 0 {
		delay = 0
	}
	t := time.AfterFunc(delay, func() {
		fn(ts)
	})
	return func() { t.Stop() }
}

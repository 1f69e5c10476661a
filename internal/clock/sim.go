package clock

import "container/heap"

// SimClock is the backtest variant. Time advances strictly by the next
// replayed event's timestamp; there is no wall-clock sleep. It is driven
// from the single replay goroutine and is not safe for concurrent use.
type SimClock struct {
	now    int64
	nextID uint64
	timers timerHeap
}

// NewSimClock creates a simulated clock starting at the given timestamp.
func NewSimClock(start int64) *SimClock {
	return &SimClock{now: start}
}

// Now returns the current simulated time.
func (c *SimClock) Now() int64 {
	return c.now
}

// ScheduleAt registers fn to fire when simulated time reaches ts. Timers
// scheduled for the past fire on the next Advance.
func (c *SimClock) ScheduleAt(ts int64, fn Callback) func() {
	c.nextID++
	t := &simTimer{id: c.nextID, ts: ts, fn: fn}
	heap.Push(&c.timers, t)
	return func() { t.cancelled = true }
}

// Advance moves simulated time forward to ts, firing every due timer in
// timestamp order along the way. Advancing backwards is a no-op so time
// stays monotonic.
func (c *SimClock) Advance(ts int64) {
	if ts < c.now {
		return
	}
	for c.timers.Len() > 0 {
		next := c.timers[0]
		if next.ts > ts {
			break
		}
		heap.Pop(&c.timers)
		if next.cancelled {
			continue
		}
		if next.ts > c.now {
			c.now = next.ts
		}
		next.fn(next.ts)
	}
	c.now = ts
}

// PendingTimers returns the number of scheduled, uncancelled timers.
func (c *SimClock) PendingTimers() int {
	count := 0
	for _, t := range c.timers {
		if !t.cancelled {
			count++
		}
	}
	return count
}

type simTimer struct {
	id        uint64
	ts        int64
	fn        Callback
	cancelled bool
}

// timerHeap orders by fire time, then schedule order for equal timestamps.
type timerHeap []*simTimer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].ts != h[j].ts {
		return h[i].ts < h[j].ts
	}
	return h[i].id < h[j].id
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*simTimer)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}

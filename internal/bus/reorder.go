package bus

import (
	"container/heap"
	"time"
)

// Reorder buffers market data events inside a watermark window so that
// streams arriving slightly out of order are re-sorted by event timestamp
// before delivery. Events older than the watermark relative to the newest
// seen timestamp are too stale to reorder and are dropped.
type Reorder struct {
	watermark   int64
	pending     eventHeap
	arrivals    uint64
	maxSeen     int64
	lastEmitted int64
	stale       uint64
}

// NewReorder creates a buffer with the given watermark window.
func NewReorder(watermark time.Duration) *Reorder {
	if watermark < 0 {
		watermark = 0
	}
	return &Reorder{watermark: int64(watermark)}
}

// Push buffers an event and returns the events that fell out of the
// watermark window, in timestamp order. The second return value is false
// when the pushed event was stale and dropped.
func (r *Reorder) Push(e Event) ([]Event, bool) {
	ts := e.Header.TsEvent
	if ts < r.lastEmitted || ts < r.maxSeen-r.watermark {
		r.stale++
		return r.drain(), false
	}
	if ts > r.maxSeen {
		r.maxSeen = ts
	}
	heap.Push(&r.pending, pendingEvent{Event: e, arrival: r.arrivals})
	r.arrivals++
	return r.drain(), true
}

// Flush returns all buffered events in timestamp order.
func (r *Reorder) Flush() []Event {
	out := make([]Event, 0, r.pending.Len())
	for r.pending.Len() > 0 {
		pe := heap.Pop(&r.pending).(pendingEvent)
		r.lastEmitted = pe.Header.TsEvent
		out = append(out, pe.Event)
	}
	return out
}

// StaleDrops returns the number of events dropped as too stale.
func (r *Reorder) StaleDrops() uint64 {
	return r.stale
}

// Pending returns the number of buffered events.
func (r *Reorder) Pending() int {
	return r.pending.Len()
}

func (r *Reorder) drain() []Event {
	var out []Event
	cutoff := r.maxSeen - r.watermark
	for r.pending.Len() > 0 {
		next := r.pending[0]
		if next.Header.TsEvent > cutoff {
			break
		}
		pe := heap.Pop(&r.pending).(pendingEvent)
		r.lastEmitted = pe.Header.TsEvent
		out = append(out, pe.Event)
	}
	return out
}

// pendingEvent carries the arrival counter so equal timestamps pop in
// arrival order.
type pendingEvent struct {
	Event
	arrival uint64
}

type eventHeap []pendingEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Header.TsEvent != h[j].Header.TsEvent {
		return h[i].Header.TsEvent < h[j].Header.TsEvent
	}
	return h[i].arrival < h[j].arrival
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(pendingEvent)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

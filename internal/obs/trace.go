package obs

import (
	"sync/atomic"
	"time"
)

// TraceGenerator hands out increasing trace IDs so one market event can be
// followed through intent, approval and fill.
type TraceGenerator struct {
	next uint64
}

// NewTraceGenerator returns a generator seeded with the given value. A
// zero seed is replaced with the current time.
func NewTraceGenerator(seed uint64) *TraceGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	return &TraceGenerator{next: seed}
}

// Next returns the next trace ID.
func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return atomic.AddUint64(&g.next, 1)
}

package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

// Metrics collects lightweight counters and latency stats on the hot
// path. Everything is atomic; nothing blocks the pipeline.
type Metrics struct {
	eventCounts  [schema.EventTypeCount]uint64
	rejectCounts [schema.RejectReasonCount]uint64

	ordersApproved uint64
	ordersRejected uint64
	ordersResized  uint64
	fills          uint64
	staleDrops     uint64
	queueDrops     uint64

	eventLatency    LatencyStats
	riskEvalLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts     map[schema.EventType]uint64
	RejectCounts    map[schema.RejectReason]uint64
	OrdersApproved  uint64
	OrdersRejected  uint64
	OrdersResized   uint64
	Fills           uint64
	StaleDrops      uint64
	QueueDrops      uint64
	EventLatency    LatencySnapshot
	RiskEvalLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts a processed event and tracks delivery latency when
// both timestamps are present.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	idx := int(header.Type)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	if header.TsEvent > 0 && header.TsRecv > 0 {
		delta := header.TsRecv - header.TsEvent
		if delta >= 0 {
			m.eventLatency.Observe(time.Duration(delta))
		}
	}
}

// IncApproved counts an approved order.
func (m *Metrics) IncApproved() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersApproved, 1)
}

// IncResized counts a resized order.
func (m *Metrics) IncResized() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersResized, 1)
}

// IncRejected counts a rejected order by reason.
func (m *Metrics) IncRejected(reason schema.RejectReason) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersRejected, 1)
	idx := int(reason)
	if idx >= 0 && idx < len(m.rejectCounts) {
		atomic.AddUint64(&m.rejectCounts[idx], 1)
	}
}

// IncFill counts an applied fill.
func (m *Metrics) IncFill() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.fills, 1)
}

// IncStaleDrop counts a tick dropped for arriving past the watermark.
func (m *Metrics) IncStaleDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.staleDrops, 1)
}

// IncQueueDrop counts a market data event dropped on a full queue.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// ObserveRiskEval measures risk evaluation latency.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil {
		return
	}
	m.riskEvalLatency.Observe(d)
}

// StaleDrops returns the stale tick drop count.
func (m *Metrics) StaleDrops() uint64 {
	if m == nil {
		return 0
	}
	return atomic.LoadUint64(&m.staleDrops)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	rejectCounts := make(map[schema.RejectReason]uint64)
	for i := range m.rejectCounts {
		if v := atomic.LoadUint64(&m.rejectCounts[i]); v > 0 {
			rejectCounts[schema.RejectReason(i)] = v
		}
	}
	return Snapshot{
		EventCounts:     eventCounts,
		RejectCounts:    rejectCounts,
		OrdersApproved:  atomic.LoadUint64(&m.ordersApproved),
		OrdersRejected:  atomic.LoadUint64(&m.ordersRejected),
		OrdersResized:   atomic.LoadUint64(&m.ordersResized),
		Fills:           atomic.LoadUint64(&m.fills),
		StaleDrops:      atomic.LoadUint64(&m.staleDrops),
		QueueDrops:      atomic.LoadUint64(&m.queueDrops),
		EventLatency:    m.eventLatency.Snapshot(),
		RiskEvalLatency: m.riskEvalLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}

package obs

import (
	"sync"
	"testing"
	"time"

	"main/internal/schema"
)

func TestMetricsCountsEventsByType(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 3; i++ {
		m.ObserveEvent(schema.NewHeader(schema.EventBar, 1, 100, 150))
	}
	m.ObserveEvent(schema.NewHeader(schema.EventFill, 1, 100, 150))

	snap := m.Snapshot()
	if snap.EventCounts[schema.EventBar] != 3 {
		t.Fatalf("bar count mismatch: got %d want 3", snap.EventCounts[schema.EventBar])
	}
	if snap.EventCounts[schema.EventFill] != 1 {
		t.Fatalf("fill count mismatch: got %d want 1", snap.EventCounts[schema.EventFill])
	}
	if _, ok := snap.EventCounts[schema.EventTimer]; ok {
		t.Fatal("zero counts must be omitted from the snapshot")
	}
}

func TestMetricsEventLatency(t *testing.T) {
	m := NewMetrics()
	m.ObserveEvent(schema.NewHeader(schema.EventBar, 1, 100, 150))
	m.ObserveEvent(schema.NewHeader(schema.EventBar, 1, 100, 350))

	lat := m.Snapshot().EventLatency
	if lat.Count != 2 {
		t.Fatalf("latency count mismatch: got %d want 2", lat.Count)
	}
	if lat.Min != 50 || lat.Max != 250 || lat.Avg != 150 {
		t.Fatalf("latency stats mismatch: %+v", lat)
	}
}

func TestMetricsOrderCounters(t *testing.T) {
	m := NewMetrics()
	m.IncApproved()
	m.IncApproved()
	m.IncResized()
	m.IncRejected(schema.RejectReasonDrawdownBreach)
	m.IncRejected(schema.RejectReasonDrawdownBreach)
	m.IncRejected(schema.RejectReasonValidation)
	m.IncFill()
	m.IncStaleDrop()
	m.IncQueueDrop()

	snap := m.Snapshot()
	if snap.OrdersApproved != 2 || snap.OrdersResized != 1 || snap.OrdersRejected != 3 {
		t.Fatalf("order counters mismatch: %+v", snap)
	}
	if snap.RejectCounts[schema.RejectReasonDrawdownBreach] != 2 {
		t.Fatalf("risk reject count mismatch: got %d", snap.RejectCounts[schema.RejectReasonDrawdownBreach])
	}
	if snap.Fills != 1 || snap.StaleDrops != 1 || snap.QueueDrops != 1 {
		t.Fatalf("flow counters mismatch: %+v", snap)
	}
	if m.StaleDrops() != 1 {
		t.Fatalf("stale drops accessor mismatch: got %d", m.StaleDrops())
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveEvent(schema.NewHeader(schema.EventBar, 1, 1, 2))
	m.IncApproved()
	m.IncRejected(schema.RejectReasonValidation)
	m.IncFill()
	m.ObserveRiskEval(time.Millisecond)
	if snap := m.Snapshot(); snap.Fills != 0 {
		t.Fatalf("nil snapshot mismatch: %+v", snap)
	}
}

func TestLatencyStatsConcurrentObserve(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.ObserveRiskEval(time.Duration(i+1) * time.Microsecond)
			}
		}()
	}
	wg.Wait()

	lat := m.Snapshot().RiskEvalLatency
	if lat.Count != 800 {
		t.Fatalf("sample count mismatch: got %d want 800", lat.Count)
	}
	if lat.Min != time.Microsecond || lat.Max != 100*time.Microsecond {
		t.Fatalf("bounds mismatch: %+v", lat)
	}
}

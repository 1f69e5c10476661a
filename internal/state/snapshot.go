package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"main/internal/schema"
)

// Snapshot captures ledger state at a point in time.
type Snapshot struct {
	Timestamp   int64           `json:"timestamp"`
	LastSeq     uint64          `json:"lastSeq"`
	LastEventTs int64           `json:"lastEventTs"`
	Cash        float64         `json:"cash"`
	InitialCash float64         `json:"initialCash"`
	HighWater   float64         `json:"highWater"`
	Positions   []PositionEntry `json:"positions"`

	// Orders lists registered order ids so fills replayed from the journal
	// tail still find their orders.
	Orders []uint64 `json:"orders,omitempty"`
}

// PositionEntry is a single instrument entry in a snapshot.
type PositionEntry struct {
	SymbolID    uint32          `json:"symbolId"`
	Qty         schema.Quantity `json:"qty"`
	AvgCost     float64         `json:"avgCost"`
	RealizedPnL float64         `json:"realizedPnl"`
	Fees        float64         `json:"fees"`
	Mark        float64         `json:"mark"`
}

// SnapshotState builds a persistable snapshot from current ledger state.
func (l *Ledger) SnapshotState() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]PositionEntry, 0, len(l.positions))
	for id, pos := range l.positions {
		entries = append(entries, PositionEntry{
			SymbolID:    id,
			Qty:         pos.Qty,
			AvgCost:     pos.AvgCost,
			RealizedPnL: pos.RealizedPnL,
			Fees:        pos.Fees,
			Mark:        l.marks[id],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SymbolID < entries[j].SymbolID
	})
	orders := make([]uint64, 0, len(l.orders))
	for id := range l.orders {
		orders = append(orders, id)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i] < orders[j] })
	return Snapshot{
		Timestamp:   time.Now().UTC().UnixNano(),
		LastSeq:     l.lastSeq,
		LastEventTs: l.lastEventTs,
		Cash:        l.cash,
		InitialCash: l.initialCash,
		HighWater:   l.highWater,
		Positions:   entries,
		Orders:      orders,
	}
}

// Restore replaces ledger state with a snapshot. Fill idempotency history
// is not restored; the journal tail replayed after a snapshot carries only
// fills newer than LastSeq.
func (l *Ledger) Restore(snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = snap.Cash
	if snap.InitialCash != 0 {
		l.initialCash = snap.InitialCash
	}
	l.highWater = snap.HighWater
	l.lastSeq = snap.LastSeq
	l.lastEventTs = snap.LastEventTs
	l.positions = make(map[uint32]*Position, len(snap.Positions))
	l.marks = make(map[uint32]float64, len(snap.Positions))
	l.orders = make(map[uint64]struct{}, len(snap.Orders))
	for _, id := range snap.Orders {
		l.orders[id] = struct{}{}
	}
	for _, entry := range snap.Positions {
		l.positions[entry.SymbolID] = &Position{
			SymbolID:    entry.SymbolID,
			Qty:         entry.Qty,
			AvgCost:     entry.AvgCost,
			RealizedPnL: entry.RealizedPnL,
			Fees:        entry.Fees,
		}
		l.marks[entry.SymbolID] = entry.Mark
	}
	l.lastEquity = l.equityLocked()
	if l.highWater < l.lastEquity {
		l.highWater = l.lastEquity
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks if two snapshots hold the same positions.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[uint32]PositionEntry, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[entry.SymbolID] = entry
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[entry.SymbolID]
		if !ok {
			return fmt.Errorf("snapshot missing symbol: %d", entry.SymbolID)
		}
		if want.Qty != entry.Qty {
			return fmt.Errorf("snapshot qty mismatch: symbol=%d expected=%d actual=%d", entry.SymbolID, want.Qty, entry.Qty)
		}
	}
	return nil
}

package state

import "main/internal/schema"

// PositionView is an immutable copy of one position for risk evaluation.
type PositionView struct {
	SymbolID    uint32
	Qty         schema.Quantity
	QtyFloat    float64
	AvgCost     float64
	Mark        float64
	Notional    float64
	RealizedPnL float64
}

// UnrealizedPnL is the mark-to-market P&L of the open position.
func (p PositionView) UnrealizedPnL() float64 {
	return (p.Mark - p.AvgCost) * p.QtyFloat
}

// View is an immutable read snapshot of the ledger. The risk engine
// evaluates intents against a View and never touches live ledger state, so
// multiple intents can be evaluated against one consistent picture.
type View struct {
	Cash          float64
	Equity        float64
	HighWater     float64
	InitialCash   float64
	Positions     map[uint32]PositionView
	EquityReturns []float64
	SymbolReturns map[uint32][]float64
	LastSeq       uint64
	LastEventTs   int64
}

// Drawdown is the fractional decline from the high-water mark.
func (v View) Drawdown() float64 {
	if v.HighWater <= 0 {
		return 0
	}
	dd := 1 - v.Equity/v.HighWater
	if dd < 0 {
		return 0
	}
	return dd
}

// Position returns the position copy for an instrument, zero when flat.
func (v View) Position(symbolID uint32) PositionView {
	return v.Positions[symbolID]
}

// Snapshot captures an immutable View of the ledger.
func (l *Ledger) Snapshot() View {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := make(map[uint32]PositionView, len(l.positions))
	for id, pos := range l.positions {
		sym, ok := l.registry.Symbol(schema.SymbolID(id))
		if !ok {
			continue
		}
		qtyF := sym.Scale.QtyToFloat(pos.Qty)
		mark := l.marks[id]
		positions[id] = PositionView{
			SymbolID:    id,
			Qty:         pos.Qty,
			QtyFloat:    qtyF,
			AvgCost:     pos.AvgCost,
			Mark:        mark,
			Notional:    qtyF * mark,
			RealizedPnL: pos.RealizedPnL,
		}
	}
	symReturns := make(map[uint32][]float64, len(l.symReturns))
	for id, rw := range l.symReturns {
		symReturns[id] = rw.Samples()
	}
	return View{
		Cash:          l.cash,
		Equity:        l.equityLocked(),
		HighWater:     l.highWater,
		InitialCash:   l.initialCash,
		Positions:     positions,
		EquityReturns: l.returns.Samples(),
		SymbolReturns: symReturns,
		LastSeq:       l.lastSeq,
		LastEventTs:   l.lastEventTs,
	}
}

// RealizedPnL sums realized P&L across all positions, fees excluded.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0.0
	for _, pos := range l.positions {
		total += pos.RealizedPnL
	}
	return total
}

// Fees sums fees paid across all positions.
func (l *Ledger) Fees() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0.0
	for _, pos := range l.positions {
		total += pos.Fees
	}
	return total
}

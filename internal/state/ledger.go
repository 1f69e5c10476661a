package state

import (
	"errors"
	"sync"

	"main/internal/schema"
)

var (
	ErrUnknownOrder  = errors.New("fill references unknown order")
	ErrUnknownSymbol = errors.New("fill references unknown symbol")
	ErrInvalidFill   = errors.New("invalid fill quantity")
)

// Position is the ledger's view of one instrument. Owned exclusively by the
// ledger; mutated only on confirmed fills.
type Position struct {
	SymbolID    uint32
	Qty         schema.Quantity
	AvgCost     float64
	RealizedPnL float64
	Fees        float64
}

// Ledger is the authoritative in-memory position, cash and P&L state.
// Apply is the only mutator of position state and is idempotent per fill id
// to tolerate at-least-once delivery from retrying broker adapters.
type Ledger struct {
	registry *schema.Registry

	mu          sync.RWMutex
	initialCash float64
	cash        float64
	positions   map[uint32]*Position
	marks       map[uint32]float64
	orders      map[uint64]struct{}
	fills       map[uint64]struct{}
	highWater   float64
	lastEquity  float64
	maxDrawdown float64
	returns     *ReturnWindow
	symReturns  map[uint32]*ReturnWindow
	window      int
	lastSeq     uint64
	lastEventTs int64
}

// NewLedger creates a ledger with the given starting cash and rolling
// return-history window length.
func NewLedger(registry *schema.Registry, initialCash float64, window int) *Ledger {
	if window <= 0 {
		window = 64
	}
	return &Ledger{
		registry:    registry,
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[uint32]*Position),
		marks:       make(map[uint32]float64),
		orders:      make(map[uint64]struct{}),
		fills:       make(map[uint64]struct{}),
		highWater:   initialCash,
		lastEquity:  initialCash,
		returns:     NewReturnWindow(window),
		symReturns:  make(map[uint32]*ReturnWindow),
		window:      window,
	}
}

// RegisterOrder records an approved order id so its fills can be applied.
// A fill for an unregistered order is a fatal consistency error.
func (l *Ledger) RegisterOrder(orderID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders[orderID] = struct{}{}
}

// Apply mutates positions and cash from a confirmed fill. The returned bool
// is false when the fill id was already applied; applying a duplicate is a
// no-op, not an error.
func (l *Ledger) Apply(fill schema.Fill) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.fills[fill.FillID]; done {
		return false, nil
	}
	if _, ok := l.orders[fill.OrderID]; !ok {
		return false, ErrUnknownOrder
	}
	sym, ok := l.registry.Symbol(schema.SymbolID(fill.SymbolID))
	if !ok {
		return false, ErrUnknownSymbol
	}
	if fill.Qty <= 0 {
		return false, ErrInvalidFill
	}

	price := sym.Scale.PriceToFloat(fill.Price)
	qty := sym.Scale.QtyToFloat(fill.Qty)
	fee := sym.Scale.FeeToFloat(fill.Fee)

	delta := fill.Qty
	signed := qty
	if fill.Side == schema.OrderSideSell {
		delta = -delta
		signed = -signed
	}

	pos, ok := l.positions[fill.SymbolID]
	if !ok {
		pos = &Position{SymbolID: fill.SymbolID}
		l.positions[fill.SymbolID] = pos
	}
	l.applyToPosition(pos, sym.Scale, delta, signed, price)
	pos.Fees += fee

	l.cash -= signed*price + fee
	l.marks[fill.SymbolID] = price
	l.fills[fill.FillID] = struct{}{}
	if pos.Qty == 0 {
		pos.AvgCost = 0
	}
	l.observeEquity()
	return true, nil
}

// applyToPosition updates quantity, average cost and realized P&L for a
// signed quantity delta at the given price.
func (l *Ledger) applyToPosition(pos *Position, scale schema.ScaleSpec, delta schema.Quantity, signed, price float64) {
	cur := pos.Qty
	curF := scale.QtyToFloat(cur)

	switch {
	case cur == 0 || (cur > 0) == (delta > 0):
		// Opening or adding: weighted average cost.
		total := absFloat(curF) + absFloat(signed)
		if total > 0 {
			pos.AvgCost = (absFloat(curF)*pos.AvgCost + absFloat(signed)*price) / total
		}
	default:
		// Reducing or crossing: realize P&L on the closed portion.
		closed := minFloat(absFloat(signed), absFloat(curF))
		direction := 1.0
		if cur < 0 {
			direction = -1.0
		}
		pos.RealizedPnL += (price - pos.AvgCost) * closed * direction
		if absFloat(signed) > absFloat(curF) {
			// Crossed through zero: remainder opens at the fill price.
			pos.AvgCost = price
		}
	}
	pos.Qty = cur + delta
}

// MarkPrice updates the mark for an instrument and records equity and
// per-instrument return samples.
func (l *Ledger) MarkPrice(symbolID uint32, price schema.Price) {
	sym, ok := l.registry.Symbol(schema.SymbolID(symbolID))
	if !ok {
		return
	}
	mark := sym.Scale.PriceToFloat(price)
	if mark <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rw, ok := l.symReturns[symbolID]
	if !ok {
		rw = NewReturnWindow(l.window)
		l.symReturns[symbolID] = rw
	}
	rw.Observe(mark)
	l.marks[symbolID] = mark
	l.observeEquity()
}

// Advance records the last processed event position for snapshots.
func (l *Ledger) Advance(seq uint64, tsEvent int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq > l.lastSeq {
		l.lastSeq = seq
	}
	if tsEvent > l.lastEventTs {
		l.lastEventTs = tsEvent
	}
}

// Equity returns cash plus the marked value of all open positions.
func (l *Ledger) Equity() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.equityLocked()
}

func (l *Ledger) equityLocked() float64 {
	equity := l.cash
	for id, pos := range l.positions {
		sym, ok := l.registry.Symbol(schema.SymbolID(id))
		if !ok {
			continue
		}
		equity += sym.Scale.QtyToFloat(pos.Qty) * l.marks[id]
	}
	return equity
}

// observeEquity folds the current equity into the high-water mark and the
// portfolio return window. Callers hold the write lock.
func (l *Ledger) observeEquity() {
	equity := l.equityLocked()
	l.returns.Observe(equity)
	l.lastEquity = equity
	if equity > l.highWater {
		l.highWater = equity
	}
	if l.highWater > 0 {
		if dd := 1 - equity/l.highWater; dd > l.maxDrawdown {
			l.maxDrawdown = dd
		}
	}
}

// MaxDrawdown returns the deepest drawdown observed during the run.
func (l *Ledger) MaxDrawdown() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.maxDrawdown
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

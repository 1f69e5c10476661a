package state

import (
	"errors"
	"math"
	"testing"

	"main/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	venueID, err := reg.AddVenue("SIM")
	if err != nil {
		t.Fatalf("add venue failed: %v", err)
	}
	scale := schema.ScaleSpec{PriceScale: 2, QuantityScale: 0, FeeScale: 2}
	for _, name := range []string{"AAA-USD", "BBB-USD"} {
		if _, err := reg.AddSymbol(name, venueID, scale); err != nil {
			t.Fatalf("add symbol failed: %v", err)
		}
	}
	return reg
}

func approxEqual(a, b float64) bool {
	diff := math.Abs(a - b)
	if diff < 1e-9 {
		return true
	}
	ref := math.Max(math.Abs(a), math.Abs(b))
	return diff/ref < 1e-6
}

// fill builds a fill with PriceScale 2 and QuantityScale 0.
func fill(fillID, orderID uint64, side schema.OrderSide, price float64, qty int64, fee float64) schema.Fill {
	return schema.Fill{
		FillID:   fillID,
		OrderID:  orderID,
		SymbolID: 1,
		Side:     side,
		Price:    schema.Price(math.Round(price * 100)),
		Qty:      schema.Quantity(qty),
		Fee:      schema.Fee(math.Round(fee * 100)),
	}
}

func TestApplyBuyUpdatesCashAndAvgCost(t *testing.T) {
	l := NewLedger(testRegistry(t), 100_000, 16)
	l.RegisterOrder(1)

	applied, err := l.Apply(fill(1, 1, schema.OrderSideBuy, 100, 10, 1))
	if err != nil || !applied {
		t.Fatalf("apply failed: applied=%v err=%v", applied, err)
	}

	view := l.Snapshot()
	if !approxEqual(view.Cash, 100_000-1000-1) {
		t.Fatalf("cash mismatch: got %f", view.Cash)
	}
	pos := view.Position(1)
	if pos.Qty != 10 || !approxEqual(pos.AvgCost, 100) {
		t.Fatalf("position mismatch: qty=%d avgCost=%f", pos.Qty, pos.AvgCost)
	}
}

func TestApplyAveragesCostOnAdd(t *testing.T) {
	l := NewLedger(testRegistry(t), 100_000, 16)
	l.RegisterOrder(1)

	mustApply(t, l, fill(1, 1, schema.OrderSideBuy, 100, 10, 0))
	mustApply(t, l, fill(2, 1, schema.OrderSideBuy, 110, 10, 0))

	pos := l.Snapshot().Position(1)
	if pos.Qty != 20 || !approxEqual(pos.AvgCost, 105) {
		t.Fatalf("avg cost mismatch: qty=%d avgCost=%f", pos.Qty, pos.AvgCost)
	}
}

func TestApplyRealizesPnLOnReduce(t *testing.T) {
	l := NewLedger(testRegistry(t), 100_000, 16)
	l.RegisterOrder(1)

	mustApply(t, l, fill(1, 1, schema.OrderSideBuy, 100, 10, 0))
	mustApply(t, l, fill(2, 1, schema.OrderSideSell, 120, 4, 0))

	pos := l.Snapshot().Position(1)
	if pos.Qty != 6 {
		t.Fatalf("qty mismatch: got %d want 6", pos.Qty)
	}
	if !approxEqual(pos.RealizedPnL, (120-100)*4) {
		t.Fatalf("realized pnl mismatch: got %f want 80", pos.RealizedPnL)
	}
	if !approxEqual(pos.AvgCost, 100) {
		t.Fatalf("avg cost changed on reduce: got %f", pos.AvgCost)
	}
}

func TestApplyCrossingZeroReopensAtFillPrice(t *testing.T) {
	l := NewLedger(testRegistry(t), 100_000, 16)
	l.RegisterOrder(1)

	mustApply(t, l, fill(1, 1, schema.OrderSideBuy, 100, 10, 0))
	mustApply(t, l, fill(2, 1, schema.OrderSideSell, 90, 25, 0))

	pos := l.Snapshot().Position(1)
	if pos.Qty != -15 {
		t.Fatalf("qty mismatch: got %d want -15", pos.Qty)
	}
	if !approxEqual(pos.RealizedPnL, (90-100)*10) {
		t.Fatalf("realized pnl mismatch: got %f want -100", pos.RealizedPnL)
	}
	if !approxEqual(pos.AvgCost, 90) {
		t.Fatalf("reopened avg cost mismatch: got %f want 90", pos.AvgCost)
	}
}

func TestApplyFlatResetsAvgCost(t *testing.T) {
	l := NewLedger(testRegistry(t), 100_000, 16)
	l.RegisterOrder(1)

	mustApply(t, l, fill(1, 1, schema.OrderSideBuy, 100, 10, 0))
	mustApply(t, l, fill(2, 1, schema.OrderSideSell, 110, 10, 0))

	pos := l.Snapshot().Position(1)
	if pos.Qty != 0 || pos.AvgCost != 0 {
		t.Fatalf("flat position not reset: qty=%d avgCost=%f", pos.Qty, pos.AvgCost)
	}
}

func TestApplyDuplicateFillIsNoOp(t *testing.T) {
	l := NewLedger(testRegistry(t), 100_000, 16)
	l.RegisterOrder(1)

	mustApply(t, l, fill(1, 1, schema.OrderSideBuy, 100, 10, 1))
	cashAfter := l.Snapshot().Cash

	applied, err := l.Apply(fill(1, 1, schema.OrderSideBuy, 100, 10, 1))
	if err != nil {
		t.Fatalf("duplicate apply errored: %v", err)
	}
	if applied {
		t.Fatal("duplicate fill was applied")
	}
	view := l.Snapshot()
	if view.Cash != cashAfter || view.Position(1).Qty != 10 {
		t.Fatalf("state changed on duplicate: cash=%f qty=%d", view.Cash, view.Position(1).Qty)
	}
}

func TestApplyUnknownOrderFails(t *testing.T) {
	l := NewLedger(testRegistry(t), 100_000, 16)
	_, err := l.Apply(fill(1, 99, schema.OrderSideBuy, 100, 10, 0))
	if !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected ErrUnknownOrder, got %v", err)
	}
}

func TestApplyInvalidQtyFails(t *testing.T) {
	l := NewLedger(testRegistry(t), 100_000, 16)
	l.RegisterOrder(1)
	_, err := l.Apply(fill(1, 1, schema.OrderSideBuy, 100, 0, 0))
	if !errors.Is(err, ErrInvalidFill) {
		t.Fatalf("expected ErrInvalidFill, got %v", err)
	}
}

func TestApplyUnknownSymbolFails(t *testing.T) {
	l := NewLedger(testRegistry(t), 100_000, 16)
	l.RegisterOrder(1)
	f := fill(1, 1, schema.OrderSideBuy, 100, 10, 0)
	f.SymbolID = 42
	_, err := l.Apply(f)
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

// Equity must always reconcile with initial cash plus realized and
// unrealized P&L minus fees.
func TestEquityReconciliation(t *testing.T) {
	l := NewLedger(testRegistry(t), 100_000, 16)
	l.RegisterOrder(1)

	mustApply(t, l, fill(1, 1, schema.OrderSideBuy, 100, 50, 2.50))
	mustApply(t, l, fill(2, 1, schema.OrderSideSell, 104, 20, 1.25))
	l.MarkPrice(1, schema.Price(10650)) // 106.50

	view := l.Snapshot()
	unrealized := view.Position(1).UnrealizedPnL()
	expected := view.InitialCash + l.RealizedPnL() + unrealized - l.Fees()
	if !approxEqual(view.Equity, expected) {
		t.Fatalf("equity does not reconcile: got %f want %f", view.Equity, expected)
	}
}

func TestMaxDrawdownTracksTrough(t *testing.T) {
	l := NewLedger(testRegistry(t), 100_000, 16)
	l.RegisterOrder(1)

	mustApply(t, l, fill(1, 1, schema.OrderSideBuy, 100, 100, 0))
	l.MarkPrice(1, schema.Price(12000)) // equity 102_000, new high water
	l.MarkPrice(1, schema.Price(9000))  // equity 99_000
	l.MarkPrice(1, schema.Price(11000)) // recovery must not shrink the max

	want := 1 - 99_000.0/102_000.0
	if !approxEqual(l.MaxDrawdown(), want) {
		t.Fatalf("max drawdown mismatch: got %f want %f", l.MaxDrawdown(), want)
	}
	view := l.Snapshot()
	if !approxEqual(view.HighWater, 102_000) {
		t.Fatalf("high water mismatch: got %f", view.HighWater)
	}
}

func TestMarkPriceRecordsSymbolReturns(t *testing.T) {
	l := NewLedger(testRegistry(t), 100_000, 16)
	l.MarkPrice(1, schema.Price(10000))
	l.MarkPrice(1, schema.Price(10100))
	l.MarkPrice(1, schema.Price(10201))

	returns := l.Snapshot().SymbolReturns[1]
	if len(returns) != 2 {
		t.Fatalf("return count mismatch: got %d want 2", len(returns))
	}
	for _, r := range returns {
		if !approxEqual(r, 0.01) {
			t.Fatalf("return mismatch: got %f want 0.01", r)
		}
	}
}

func mustApply(t *testing.T, l *Ledger, f schema.Fill) {
	t.Helper()
	applied, err := l.Apply(f)
	if err != nil || !applied {
		t.Fatalf("apply fill %d failed: applied=%v err=%v", f.FillID, applied, err)
	}
}

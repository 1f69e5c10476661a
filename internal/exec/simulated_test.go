package exec

import (
	"context"
	"math"
	"testing"

	"main/internal/clock"
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
	if _, err := reg.AddSymbol("AAA-USD", venueID, scale); err != nil {
		t.Fatalf("add symbol failed: %v", err)
	}
	return reg
}

type sinkRecorder struct {
	events []schema.Payload
	times  []int64
}

func (r *sinkRecorder) sink(tsEvent int64, payload schema.Payload) error {
	r.events = append(r.events, payload)
	r.times = append(r.times, tsEvent)
	return nil
}

func (r *sinkRecorder) fills() []schema.Fill {
	var out []schema.Fill
	for _, e := range r.events {
		if f, ok := e.(schema.Fill); ok {
			out = append(out, f)
		}
	}
	return out
}

func (r *sinkRecorder) rejections() []schema.OrderRejected {
	var out []schema.OrderRejected
	for _, e := range r.events {
		if rej, ok := e.(schema.OrderRejected); ok {
			out = append(out, rej)
		}
	}
	return out
}

func approvedOrder(id uint64, side schema.OrderSide, orderType schema.OrderType, price float64, qty int64) schema.OrderApproved {
	return schema.OrderApproved{
		OrderID:  id,
		SymbolID: 1,
		Side:     side,
		Type:     orderType,
		Price:    schema.Price(math.Round(price * 100)),
		Qty:      schema.Quantity(qty),
		OrigQty:  schema.Quantity(qty),
	}
}

func bar(open, high, low, close float64, volume int64) schema.Bar {
	return schema.Bar{
		SymbolID: 1,
		Open:     schema.Price(math.Round(open * 100)),
		High:     schema.Price(math.Round(high * 100)),
		Low:      schema.Price(math.Round(low * 100)),
		Close:    schema.Price(math.Round(close * 100)),
		Volume:   schema.Quantity(volume),
	}
}

func TestSimulatedMarketFillsAtClose(t *testing.T) {
	rec := &sinkRecorder{}
	clk := clock.NewSimClock(1000)
	sim := NewSimulated(testRegistry(t), SimConfig{}, clk, rec.sink)

	if err := sim.OnBar(bar(100, 101, 99, 100.50, 1000)); err != nil {
		t.Fatalf("on bar failed: %v", err)
	}
	if err := sim.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 0, 10)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	fills := rec.fills()
	if len(fills) != 1 {
		t.Fatalf("fill count mismatch: got %d want 1", len(fills))
	}
	if fills[0].Price != 10050 || fills[0].Qty != 10 {
		t.Fatalf("fill mismatch: price=%d qty=%d", fills[0].Price, fills[0].Qty)
	}
	if fills[0].FillID != 1 || fills[0].OrderID != 1 {
		t.Fatalf("fill ids mismatch: %+v", fills[0])
	}
	if rec.times[0] != 1000 {
		t.Fatalf("fill timestamp mismatch: got %d want 1000", rec.times[0])
	}
	order, ok := sim.Order(1)
	if !ok || order.State != schema.OrderStateFilled {
		t.Fatalf("order state mismatch: ok=%v state=%v", ok, order.State)
	}
}

func TestSimulatedFixedBpsSlippage(t *testing.T) {
	rec := &sinkRecorder{}
	cfg := SimConfig{Slippage: SlippageFixedBps, SlippageBps: 10}
	sim := NewSimulated(testRegistry(t), cfg, clock.NewSimClock(0), rec.sink)

	sim.OnBar(bar(100, 101, 99, 100, 1000))
	sim.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 0, 10))
	sim.Submit(context.Background(), approvedOrder(2, schema.OrderSideSell, schema.OrderTypeMarket, 0, 10))

	fills := rec.fills()
	if len(fills) != 2 {
		t.Fatalf("fill count mismatch: got %d", len(fills))
	}
	// 10bps on 100.00: buys pay 100.10, sells receive 99.90.
	if fills[0].Price != 10010 {
		t.Fatalf("buy slippage mismatch: got %d want 10010", fills[0].Price)
	}
	if fills[1].Price != 9990 {
		t.Fatalf("sell slippage mismatch: got %d want 9990", fills[1].Price)
	}
}

func TestSimulatedVolumeProportionalSlippage(t *testing.T) {
	rec := &sinkRecorder{}
	cfg := SimConfig{Slippage: SlippageVolumeProportional, VolumeImpactBps: 100, SlippageBps: 5}
	sim := NewSimulated(testRegistry(t), cfg, clock.NewSimClock(0), rec.sink)

	// 100 of 1000 volume at 100bps impact: 10bps slip.
	sim.OnBar(bar(100, 101, 99, 100, 1000))
	sim.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 0, 100))
	if got := rec.fills()[0].Price; got != 10010 {
		t.Fatalf("volume slippage mismatch: got %d want 10010", got)
	}

	// Zero-volume bars fall back to the fixed bps figure.
	sim.OnBar(bar(100, 101, 99, 100, 0))
	sim.Submit(context.Background(), approvedOrder(2, schema.OrderSideBuy, schema.OrderTypeMarket, 0, 100))
	if got := rec.fills()[1].Price; got != 10005 {
		t.Fatalf("fallback slippage mismatch: got %d want 10005", got)
	}
}

func TestSimulatedCommission(t *testing.T) {
	rec := &sinkRecorder{}
	cfg := SimConfig{CommissionBps: 10, Commission: 0.50}
	sim := NewSimulated(testRegistry(t), cfg, clock.NewSimClock(0), rec.sink)

	sim.OnBar(bar(100, 101, 99, 100, 1000))
	sim.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 0, 10))

	// 10bps of 1000 notional plus 0.50 flat: 1.50, scaled by 1e2.
	if got := rec.fills()[0].Fee; got != 150 {
		t.Fatalf("fee mismatch: got %d want 150", got)
	}
}

func TestSimulatedLimitFillsOnlyWhenCrossed(t *testing.T) {
	rec := &sinkRecorder{}
	sim := NewSimulated(testRegistry(t), SimConfig{}, clock.NewSimClock(0), rec.sink)

	sim.OnBar(bar(100, 101, 99.50, 100, 1000))
	// Buy limit 99.00 is below the bar low: rests.
	if err := sim.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeLimit, 99, 10)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(rec.fills()) != 0 {
		t.Fatal("resting limit filled prematurely")
	}
	order, _ := sim.Order(1)
	if order.State != schema.OrderStateSubmitted {
		t.Fatalf("resting state mismatch: %v", order.State)
	}

	// A later bar trading down through 99.00 fills at the limit price.
	if err := sim.OnBar(bar(99.50, 99.80, 98.90, 99.20, 1000)); err != nil {
		t.Fatalf("on bar failed: %v", err)
	}
	fills := rec.fills()
	if len(fills) != 1 || fills[0].Price != 9900 {
		t.Fatalf("limit fill mismatch: %+v", fills)
	}
}

func TestSimulatedMarketableLimitFillsImmediately(t *testing.T) {
	rec := &sinkRecorder{}
	sim := NewSimulated(testRegistry(t), SimConfig{}, clock.NewSimClock(0), rec.sink)

	sim.OnBar(bar(100, 101, 99.50, 100, 1000))
	sim.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeLimit, 100, 10))

	fills := rec.fills()
	if len(fills) != 1 || fills[0].Price != 10000 {
		t.Fatalf("marketable limit fill mismatch: %+v", fills)
	}
}

func TestSimulatedSellLimitCrossing(t *testing.T) {
	rec := &sinkRecorder{}
	sim := NewSimulated(testRegistry(t), SimConfig{}, clock.NewSimClock(0), rec.sink)

	sim.OnBar(bar(100, 100.50, 99, 100, 1000))
	// Sell limit 101 above the bar high: rests.
	sim.Submit(context.Background(), approvedOrder(1, schema.OrderSideSell, schema.OrderTypeLimit, 101, 10))
	if len(rec.fills()) != 0 {
		t.Fatal("sell limit filled prematurely")
	}
	sim.OnBar(bar(100, 101.20, 99.90, 101, 1000))
	fills := rec.fills()
	if len(fills) != 1 || fills[0].Price != 10100 {
		t.Fatalf("sell limit fill mismatch: %+v", fills)
	}
}

func TestSimulatedRejectsWithoutBarData(t *testing.T) {
	rec := &sinkRecorder{}
	sim := NewSimulated(testRegistry(t), SimConfig{}, clock.NewSimClock(0), rec.sink)

	if err := sim.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 0, 10)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	rejections := rec.rejections()
	if len(rejections) != 1 || rejections[0].Reason != schema.RejectReasonValidation {
		t.Fatalf("rejection mismatch: %+v", rejections)
	}
	order, _ := sim.Order(1)
	if order.State != schema.OrderStateRejected {
		t.Fatalf("order state mismatch: %v", order.State)
	}
}

func TestSimulatedCancelRemovesRestingOrder(t *testing.T) {
	rec := &sinkRecorder{}
	sim := NewSimulated(testRegistry(t), SimConfig{}, clock.NewSimClock(0), rec.sink)

	sim.OnBar(bar(100, 101, 99.50, 100, 1000))
	sim.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeLimit, 99, 10))
	if err := sim.Cancel(context.Background(), 1); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	sim.OnBar(bar(99, 99.50, 98, 99, 1000))
	if len(rec.fills()) != 0 {
		t.Fatal("canceled order filled")
	}
	order, _ := sim.Order(1)
	if order.State != schema.OrderStateCanceled {
		t.Fatalf("order state mismatch: %v", order.State)
	}
}

func TestSimulatedDuplicateSubmitFails(t *testing.T) {
	rec := &sinkRecorder{}
	sim := NewSimulated(testRegistry(t), SimConfig{}, clock.NewSimClock(0), rec.sink)

	sim.OnBar(bar(100, 101, 99, 100, 1000))
	order := approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 0, 10)
	if err := sim.Submit(context.Background(), order); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if err := sim.Submit(context.Background(), order); err == nil {
		t.Fatal("duplicate submit accepted")
	}
}

func TestParseSlippageMode(t *testing.T) {
	cases := map[string]SlippageMode{
		"":                    SlippageNone,
		"none":                SlippageNone,
		"fixed_bps":           SlippageFixedBps,
		"volume_proportional": SlippageVolumeProportional,
	}
	for in, want := range cases {
		got, err := ParseSlippageMode(in)
		if err != nil || got != want {
			t.Fatalf("parse %q: got %v err %v", in, got, err)
		}
	}
	if _, err := ParseSlippageMode("bogus"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

package strategy

import (
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
	if _, err := reg.AddSymbol("AAA-USD", venueID, scale); err != nil {
		t.Fatalf("add symbol failed: %v", err)
	}
	return reg
}

func closeBar(price float64) schema.Bar {
	px := schema.Price(math.Round(price * 100))
	return schema.Bar{SymbolID: 1, Open: px, High: px, Low: px, Close: px, Volume: 1000}
}

func feedCloses(s *SMACross, prices ...float64) []schema.OrderIntent {
	var out []schema.OrderIntent
	for i, price := range prices {
		out = append(out, s.OnBar(int64(i+1)*100, closeBar(price))...)
	}
	return out
}

// Fast window 2, slow window 3. With closes 100, 99, 98, 97 both averages
// fall; the jump to 103 flips the fast average above the slow one.
func TestSMAGoldenCrossEmitsBuy(t *testing.T) {
	s := NewSMACross(testRegistry(t), SMAConfig{StrategyID: 7, FastWindow: 2, SlowWindow: 3, OrderQty: 5})

	intents := feedCloses(s, 100, 99, 98, 97)
	if len(intents) != 0 {
		t.Fatalf("unexpected intents before cross: %+v", intents)
	}
	intents = feedCloses(s, 103)
	if len(intents) != 1 {
		t.Fatalf("intent count mismatch: got %d want 1", len(intents))
	}
	intent := intents[0]
	if intent.Side != schema.OrderSideBuy || intent.Type != schema.OrderTypeMarket {
		t.Fatalf("intent mismatch: %+v", intent)
	}
	if intent.StrategyID != 7 || intent.SymbolID != 1 || intent.Qty != 5 {
		t.Fatalf("intent fields mismatch: %+v", intent)
	}
}

func TestSMADeathCrossFlattensPosition(t *testing.T) {
	s := NewSMACross(testRegistry(t), SMAConfig{FastWindow: 2, SlowWindow: 3, OrderQty: 5})

	intents := feedCloses(s, 100, 99, 98, 97, 103)
	if len(intents) != 1 {
		t.Fatalf("expected entry intent, got %+v", intents)
	}
	s.OnFill(600, schema.Fill{FillID: 1, OrderID: 1, SymbolID: 1, Side: schema.OrderSideBuy, Price: 10300, Qty: 5})

	// 96 keeps the fast average above the slow one; 90 crosses down.
	intents = feedCloses(s, 96)
	if len(intents) != 0 {
		t.Fatalf("unexpected intents before death cross: %+v", intents)
	}
	intents = feedCloses(s, 90)
	if len(intents) != 1 {
		t.Fatalf("intent count mismatch: got %d want 1", len(intents))
	}
	intent := intents[0]
	if intent.Side != schema.OrderSideSell || intent.Qty != 5 {
		t.Fatalf("exit intent mismatch: %+v", intent)
	}
}

func TestSMADeathCrossWithoutPositionIsSilent(t *testing.T) {
	s := NewSMACross(testRegistry(t), SMAConfig{FastWindow: 2, SlowWindow: 3})

	// Same path as the flatten test but no fill ever arrives.
	intents := feedCloses(s, 100, 99, 98, 97, 103)
	if len(intents) != 1 {
		t.Fatalf("expected entry intent, got %+v", intents)
	}
	intents = feedCloses(s, 96, 90)
	if len(intents) != 0 {
		t.Fatalf("expected no exit without a position, got %+v", intents)
	}
}

func TestSMANoSignalBeforeSlowWindowFills(t *testing.T) {
	s := NewSMACross(testRegistry(t), SMAConfig{FastWindow: 2, SlowWindow: 3})
	if intents := feedCloses(s, 100, 200); len(intents) != 0 {
		t.Fatalf("signaled before slow window primed: %+v", intents)
	}
}

func TestSMATracksPositionPerSymbol(t *testing.T) {
	reg := testRegistry(t)
	venueID, _ := reg.VenueIDByName("SIM")
	if _, err := reg.AddSymbol("BBB-USD", venueID, schema.ScaleSpec{PriceScale: 2, QuantityScale: 0, FeeScale: 2}); err != nil {
		t.Fatalf("add symbol failed: %v", err)
	}
	s := NewSMACross(reg, SMAConfig{FastWindow: 2, SlowWindow: 3, OrderQty: 1})

	// A fill on one instrument must not gate signals on another.
	s.OnFill(1, schema.Fill{FillID: 1, OrderID: 1, SymbolID: 2, Side: schema.OrderSideBuy, Price: 10000, Qty: 3})
	intents := feedCloses(s, 100, 99, 98, 97, 103)
	if len(intents) != 1 || intents[0].SymbolID != 1 {
		t.Fatalf("cross-symbol position leak: %+v", intents)
	}
}

func TestSMAConfigDefaults(t *testing.T) {
	s := NewSMACross(testRegistry(t), SMAConfig{})
	if s.cfg.FastWindow != 10 || s.cfg.SlowWindow != 30 || s.cfg.OrderQty != 1 {
		t.Fatalf("defaults mismatch: %+v", s.cfg)
	}
}

package strategy

import (
	"main/internal/schema"
)

// SMAConfig controls the moving-average crossover strategy.
type SMAConfig struct {
	StrategyID uint32  `json:"strategyId" yaml:"strategyId"`
	FastWindow int     `json:"fastWindow" yaml:"fastWindow"`
	SlowWindow int     `json:"slowWindow" yaml:"slowWindow"`
	OrderQty   float64 `json:"orderQty" yaml:"orderQty"`
}

// SMACross goes long on a golden cross of two simple moving averages and
// flattens on the death cross. One position per instrument, entries as
// market orders.
type SMACross struct {
	registry *schema.Registry
	cfg      SMAConfig
	books    map[uint32]*book
}

type book struct {
	closes   []float64
	fastSum  float64
	slowSum  float64
	prevDiff float64
	primed   bool
	position float64
}

// NewSMACross creates a moving-average crossover strategy.
func NewSMACross(registry *schema.Registry, cfg SMAConfig) *SMACross {
	if cfg.FastWindow <= 0 {
		cfg.FastWindow = 10
	}
	if cfg.SlowWindow <= cfg.FastWindow {
		cfg.SlowWindow = cfg.FastWindow * 3
	}
	if cfg.OrderQty <= 0 {
		cfg.OrderQty = 1
	}
	return &SMACross{
		registry: registry,
		cfg:      cfg,
		books:    make(map[uint32]*book),
	}
}

// ID identifies the strategy on emitted intents.
func (s *SMACross) ID() uint32 {
	return s.cfg.StrategyID
}

// OnBar updates the moving averages and emits an intent on a crossover.
func (s *SMACross) OnBar(ts int64, bar schema.Bar) []schema.OrderIntent {
	_ = ts

	scale := s.registry.Scale(schema.SymbolID(bar.SymbolID))
	closePx := scale.PriceToFloat(bar.Close)

	b, ok := s.books[bar.SymbolID]
	if !ok {
		b = &book{}
		s.books[bar.SymbolID] = b
	}

	b.closes = append(b.closes, closePx)
	b.fastSum += closePx
	b.slowSum += closePx
	if len(b.closes) > s.cfg.FastWindow {
		b.fastSum -= b.closes[len(b.closes)-1-s.cfg.FastWindow]
	}
	if len(b.closes) > s.cfg.SlowWindow {
		b.slowSum -= b.closes[len(b.closes)-1-s.cfg.SlowWindow]
		b.closes = b.closes[1:]
	}
	if len(b.closes) < s.cfg.SlowWindow {
		return nil
	}

	diff := b.fastSum/float64(s.cfg.FastWindow) - b.slowSum/float64(s.cfg.SlowWindow)
	defer func() {
		b.prevDiff = diff
		b.primed = true
	}()
	if !b.primed {
		return nil
	}

	switch {
	case b.prevDiff <= 0 && diff > 0 && b.position <= 0:
		return []schema.OrderIntent{{
			StrategyID: s.cfg.StrategyID,
			SymbolID:   bar.SymbolID,
			Side:       schema.OrderSideBuy,
			Type:       schema.OrderTypeMarket,
			Qty:        scale.QtyFromFloat(s.cfg.OrderQty),
		}}
	case b.prevDiff >= 0 && diff < 0 && b.position > 0:
		return []schema.OrderIntent{{
			StrategyID: s.cfg.StrategyID,
			SymbolID:   bar.SymbolID,
			Side:       schema.OrderSideSell,
			Type:       schema.OrderTypeMarket,
			Qty:        scale.QtyFromFloat(b.position),
		}}
	}
	return nil
}

// OnTick is unused; the strategy trades on bars.
func (s *SMACross) OnTick(ts int64, tick schema.MarketTick) []schema.OrderIntent {
	return nil
}

// OnFill tracks the strategy's net position.
func (s *SMACross) OnFill(ts int64, fill schema.Fill) {
	_ = ts

	b, ok := s.books[fill.SymbolID]
	if !ok {
		b = &book{}
		s.books[fill.SymbolID] = b
	}
	scale := s.registry.Scale(schema.SymbolID(fill.SymbolID))
	qty := scale.QtyToFloat(fill.Qty)
	if fill.Side == schema.OrderSideSell {
		qty = -qty
	}
	b.position += qty
}

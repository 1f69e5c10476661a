package feed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"main/internal/schema"
)

// SyntheticConfig controls the synthetic bar generator.
type SyntheticConfig struct {
	// Seed drives the random walk. The same seed always produces the same
	// stream, keeping backtests reproducible.
	Seed int64 `json:"seed" yaml:"seed"`

	// Count is the number of bars generated per symbol.
	Count int `json:"count" yaml:"count"`

	Interval time.Duration `json:"interval" yaml:"interval"`
	StartTs  int64         `json:"startTs" yaml:"startTs"`

	BasePrice     float64 `json:"basePrice" yaml:"basePrice"`
	VolatilityBps float64 `json:"volatilityBps" yaml:"volatilityBps"`
	BaseVolume    float64 `json:"baseVolume" yaml:"baseVolume"`

	// Ticks emits a MarketTick at each bar close in addition to the bar.
	Ticks bool `json:"ticks" yaml:"ticks"`
}

// Synthetic generates a deterministic random-walk bar stream for every
// symbol in the registry.
type Synthetic struct {
	registry *schema.Registry
	cfg      SyntheticConfig
}

// NewSynthetic creates a synthetic bar source.
func NewSynthetic(registry *schema.Registry, cfg SyntheticConfig) (*Synthetic, error) {
	if registry == nil || registry.SymbolCount() == 0 {
		return nil, fmt.Errorf("registry has no symbols")
	}
	if cfg.Count <= 0 {
		cfg.Count = 1000
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = 100
	}
	if cfg.VolatilityBps <= 0 {
		cfg.VolatilityBps = 20
	}
	if cfg.BaseVolume <= 0 {
		cfg.BaseVolume = 1000
	}
	if cfg.StartTs == 0 {
		cfg.StartTs = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano()
	}
	return &Synthetic{registry: registry, cfg: cfg}, nil
}

// Run emits Count bars per symbol in timestamp order.
func (s *Synthetic) Run(ctx context.Context, emit EmitFunc) error {
	rng := rand.New(rand.NewSource(s.cfg.Seed))
	vol := s.cfg.VolatilityBps / 10000

	count := s.registry.SymbolCount()
	prices := make([]float64, count)
	for i := range prices {
		prices[i] = s.cfg.BasePrice * (1 + 0.1*float64(i))
	}

	ts := s.cfg.StartTs
	for step := 0; step < s.cfg.Count; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := 0; i < count; i++ {
			symbol, ok := s.registry.SymbolAt(i)
			if !ok {
				continue
			}
			open := prices[i]
			move := vol * rng.NormFloat64()
			closePx := open * (1 + move)
			high := math.Max(open, closePx) * (1 + vol*math.Abs(rng.NormFloat64())/2)
			low := math.Min(open, closePx) * (1 - vol*math.Abs(rng.NormFloat64())/2)
			volume := s.cfg.BaseVolume * (0.5 + rng.Float64())
			prices[i] = closePx

			scale := symbol.Scale
			bar := schema.Bar{
				SymbolID: uint32(symbol.ID),
				Open:     scale.PriceFromFloat(open),
				High:     scale.PriceFromFloat(high),
				Low:      scale.PriceFromFloat(low),
				Close:    scale.PriceFromFloat(closePx),
				Volume:   scale.QtyFromFloat(volume),
			}
			if err := emit(ts, bar); err != nil {
				return err
			}
			if s.cfg.Ticks {
				tick := schema.MarketTick{
					SymbolID: uint32(symbol.ID),
					Price:    bar.Close,
					Size:     bar.Volume,
				}
				if err := emit(ts, tick); err != nil {
					return err
				}
			}
		}
		ts += int64(s.cfg.Interval)
	}
	return nil
}

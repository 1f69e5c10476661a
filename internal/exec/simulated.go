package exec

import (
	"context"
	"fmt"
	"sync"

	"main/internal/clock"
	"main/internal/schema"
)

// SlippageMode selects the simulated fill price adjustment.
type SlippageMode uint16

const (
	SlippageNone SlippageMode = iota
	SlippageFixedBps
	SlippageVolumeProportional
)

// String returns a human readable slippage mode name.
func (m SlippageMode) String() string {
	switch m {
	case SlippageNone:
		return "none"
	case SlippageFixedBps:
		return "fixed_bps"
	case SlippageVolumeProportional:
		return "volume_proportional"
	default:
		return "unknown"
	}
}

// ParseSlippageMode parses a slippage mode from its config name.
func ParseSlippageMode(s string) (SlippageMode, error) {
	switch s {
	case "", "none":
		return SlippageNone, nil
	case "fixed_bps":
		return SlippageFixedBps, nil
	case "volume_proportional":
		return SlippageVolumeProportional, nil
	default:
		return SlippageNone, fmt.Errorf("unknown slippage mode: %s", s)
	}
}

// SimConfig controls simulated execution.
type SimConfig struct {
	Slippage SlippageMode `json:"-" yaml:"-"`

	// SlippageBps applies in fixed-bps mode and as the volume-proportional
	// fallback when a bar reports zero volume.
	SlippageBps float64 `json:"slippageBps" yaml:"slippageBps"`

	// VolumeImpactBps scales price impact by the order's share of bar
	// volume in volume-proportional mode.
	VolumeImpactBps float64 `json:"volumeImpactBps" yaml:"volumeImpactBps"`

	CommissionBps float64 `json:"commissionBps" yaml:"commissionBps"`
	Commission    float64 `json:"commission" yaml:"commission"`
}

// Simulated fills approved orders deterministically from bar data. Market
// orders fill at the bar close adjusted for slippage; limit orders fill at
// the limit price iff the bar's range crosses it, resting until a later
// bar does. Everything completes within the same simulated time step.
type Simulated struct {
	registry *schema.Registry
	cfg      SimConfig
	clk      clock.Clock
	sink     EventSink

	mu      sync.Mutex
	tracker *Tracker
	bars    map[uint32]schema.Bar
	resting map[uint64]schema.OrderApproved
}

// NewSimulated creates a simulated execution coordinator.
func NewSimulated(registry *schema.Registry, cfg SimConfig, clk clock.Clock, sink EventSink) *Simulated {
	return &Simulated{
		registry: registry,
		cfg:      cfg,
		clk:      clk,
		sink:     sink,
		tracker:  NewTracker(),
		bars:     make(map[uint32]schema.Bar),
		resting:  make(map[uint64]schema.OrderApproved),
	}
}

// OnBar records the latest bar and fills resting limit orders whose limit
// price the bar's range crosses.
func (s *Simulated) OnBar(bar schema.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bars[bar.SymbolID] = bar
	for id, order := range s.resting {
		if order.SymbolID != bar.SymbolID {
			continue
		}
		if !limitCrossed(order, bar) {
			continue
		}
		delete(s.resting, id)
		if err := s.fillLocked(order, order.Price); err != nil {
			return err
		}
	}
	return nil
}

// Submit fills a market order against the current bar, or rests a limit
// order that the current bar does not cross.
func (s *Simulated) Submit(ctx context.Context, order schema.OrderApproved) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.tracker.Track(order); err != nil {
		return err
	}
	bar, ok := s.bars[order.SymbolID]
	if !ok {
		_, _ = s.tracker.Reject(order.OrderID)
		return s.sink(s.clk.Now(), schema.OrderRejected{
			OrderID:    order.OrderID,
			StrategyID: order.StrategyID,
			SymbolID:   order.SymbolID,
			Reason:     schema.RejectReasonValidation,
		})
	}

	switch order.Type {
	case schema.OrderTypeLimit:
		if !limitCrossed(order, bar) {
			s.resting[order.OrderID] = order
			return nil
		}
		return s.fillLocked(order, order.Price)
	default:
		return s.fillLocked(order, s.marketPrice(order, bar))
	}
}

// Cancel removes a resting order. Filled orders cannot be canceled.
func (s *Simulated) Cancel(ctx context.Context, orderID uint64) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.resting, orderID)
	_, err := s.tracker.Cancel(orderID)
	return err
}

// Close is a no-op for simulated execution.
func (s *Simulated) Close() error {
	return nil
}

// Order exposes lifecycle state for inspection.
func (s *Simulated) Order(id uint64) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.tracker.Order(id)
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func (s *Simulated) fillLocked(order schema.OrderApproved, price schema.Price) error {
	scale := s.registry.Scale(schema.SymbolID(order.SymbolID))
	notional := scale.PriceToFloat(price) * scale.QtyToFloat(order.Qty)
	if notional < 0 {
		notional = -notional
	}
	fee := notional*s.cfg.CommissionBps/10000 + s.cfg.Commission

	fill := schema.Fill{
		FillID:   order.OrderID,
		OrderID:  order.OrderID,
		SymbolID: order.SymbolID,
		Side:     order.Side,
		Price:    price,
		Qty:      order.Qty,
		Fee:      scale.FeeFromFloat(fee),
	}
	if _, err := s.tracker.ApplyFill(fill); err != nil {
		return err
	}
	return s.sink(s.clk.Now(), fill)
}

func (s *Simulated) marketPrice(order schema.OrderApproved, bar schema.Bar) schema.Price {
	scale := s.registry.Scale(schema.SymbolID(order.SymbolID))
	px := scale.PriceToFloat(bar.Close)
	slip := s.slippage(scale.QtyToFloat(order.Qty), scale.QtyToFloat(bar.Volume))
	if order.Side == schema.OrderSideSell {
		slip = -slip
	}
	return scale.PriceFromFloat(px * (1 + slip))
}

func (s *Simulated) slippage(qty, barVolume float64) float64 {
	switch s.cfg.Slippage {
	case SlippageFixedBps:
		return s.cfg.SlippageBps / 10000
	case SlippageVolumeProportional:
		if barVolume <= 0 {
			return s.cfg.SlippageBps / 10000
		}
		return s.cfg.VolumeImpactBps / 10000 * (qty / barVolume)
	default:
		return 0
	}
}

func limitCrossed(order schema.OrderApproved, bar schema.Bar) bool {
	switch order.Side {
	case schema.OrderSideBuy:
		return bar.Low <= order.Price
	case schema.OrderSideSell:
		return bar.High >= order.Price
	default:
		return false
	}
}

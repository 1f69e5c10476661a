package exec

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/schema"
)

// PaperConfig controls the in-process paper broker.
type PaperConfig struct {
	SlippageBps   float64       `json:"slippageBps" yaml:"slippageBps"`
	CommissionBps float64       `json:"commissionBps" yaml:"commissionBps"`
	Commission    float64       `json:"commission" yaml:"commission"`
	FillDelay     time.Duration `json:"fillDelay" yaml:"fillDelay"`
	FillBuffer    int           `json:"fillBuffer" yaml:"fillBuffer"`
}

// PaperBroker is a BrokerAdapter that fills orders against the last
// observed market price. Market orders and marketable limit orders fill
// immediately, optionally after a configured latency; non-marketable limit
// orders rest until a price update crosses them.
type PaperBroker struct {
	registry *schema.Registry
	cfg      PaperConfig

	mu      sync.Mutex
	marks   map[uint32]float64
	resting map[uint64]schema.OrderApproved
	placed  map[uint64]struct{}

	fills      chan schema.Fill
	nextFillID atomic.Uint64
}

// NewPaperBroker creates a paper broker.
func NewPaperBroker(registry *schema.Registry, cfg PaperConfig) *PaperBroker {
	if cfg.FillBuffer <= 0 {
		cfg.FillBuffer = 128
	}
	return &PaperBroker{
		registry: registry,
		cfg:      cfg,
		marks:    make(map[uint32]float64),
		resting:  make(map[uint64]schema.OrderApproved),
		placed:   make(map[uint64]struct{}),
		fills:    make(chan schema.Fill, cfg.FillBuffer),
	}
}

// OnTick updates the mark for the tick's instrument and fills resting
// limit orders the new price crosses.
func (b *PaperBroker) OnTick(tick schema.MarketTick) {
	scale := b.registry.Scale(schema.SymbolID(tick.SymbolID))
	b.MarkPrice(tick.SymbolID, scale.PriceToFloat(tick.Price))
}

// MarkPrice sets the last price for an instrument.
func (b *PaperBroker) MarkPrice(symbolID uint32, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.marks[symbolID] = price
	for id, order := range b.resting {
		if order.SymbolID != symbolID {
			continue
		}
		if !limitMarketable(order, price, b.registry) {
			continue
		}
		delete(b.resting, id)
		scale := b.registry.Scale(schema.SymbolID(order.SymbolID))
		b.emit(order, scale.PriceToFloat(order.Price))
	}
}

// PlaceOrder accepts an order against the current mark. Duplicate order
// IDs are acknowledged without a second fill, making retries idempotent.
func (b *PaperBroker) PlaceOrder(ctx context.Context, order schema.OrderApproved) error {
	_ = ctx

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.placed[order.OrderID]; ok {
		return nil
	}
	mark, ok := b.marks[order.SymbolID]
	if !ok || mark <= 0 {
		return ErrNoMarketPrice
	}
	b.placed[order.OrderID] = struct{}{}
	scale := b.registry.Scale(schema.SymbolID(order.SymbolID))

	if order.Type == schema.OrderTypeLimit {
		if !limitMarketable(order, mark, b.registry) {
			b.resting[order.OrderID] = order
			return nil
		}
		b.emit(order, scale.PriceToFloat(order.Price))
		return nil
	}

	slip := b.cfg.SlippageBps / 10000
	if order.Side == schema.OrderSideSell {
		slip = -slip
	}
	b.emit(order, mark*(1+slip))
	return nil
}

// CancelOrder removes a resting order. Canceling an unknown or already
// filled order is a no-op, matching broker best-effort semantics.
func (b *PaperBroker) CancelOrder(ctx context.Context, orderID uint64) error {
	_ = ctx

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.resting, orderID)
	return nil
}

// Fills returns the asynchronous fill notification channel.
func (b *PaperBroker) Fills() <-chan schema.Fill {
	return b.fills
}

func (b *PaperBroker) emit(order schema.OrderApproved, price float64) {
	scale := b.registry.Scale(schema.SymbolID(order.SymbolID))
	notional := price * scale.QtyToFloat(order.Qty)
	if notional < 0 {
		notional = -notional
	}
	fee := notional*b.cfg.CommissionBps/10000 + b.cfg.Commission

	fill := schema.Fill{
		FillID:   b.nextFillID.Add(1),
		OrderID:  order.OrderID,
		SymbolID: order.SymbolID,
		Side:     order.Side,
		Price:    scale.PriceFromFloat(price),
		Qty:      order.Qty,
		Fee:      scale.FeeFromFloat(fee),
	}
	if b.cfg.FillDelay > 0 {
		time.AfterFunc(b.cfg.FillDelay, func() {
			b.fills <- fill
		})
		return
	}
	b.fills <- fill
}

func limitMarketable(order schema.OrderApproved, mark float64, registry *schema.Registry) bool {
	scale := registry.Scale(schema.SymbolID(order.SymbolID))
	limit := scale.PriceToFloat(order.Price)
	switch order.Side {
	case schema.OrderSideBuy:
		return mark <= limit
	case schema.OrderSideSell:
		return mark >= limit
	default:
		return false
	}
}

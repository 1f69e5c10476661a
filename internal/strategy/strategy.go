package strategy

import "main/internal/schema"

// Strategy is the external collaborator boundary. Implementations consume
// market and fill events and return order intents; the engine assigns
// order IDs to intents that carry none and routes them through risk
// evaluation. Strategies never see broker or ledger internals.
type Strategy interface {
	// ID identifies the strategy on emitted intents.
	ID() uint32

	// OnBar reacts to a completed bar.
	OnBar(ts int64, bar schema.Bar) []schema.OrderIntent

	// OnTick reacts to a market tick.
	OnTick(ts int64, tick schema.MarketTick) []schema.OrderIntent

	// OnFill observes fills for the strategy's own orders.
	OnFill(ts int64, fill schema.Fill)
}

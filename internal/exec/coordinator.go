package exec

import (
	"context"
	"errors"

	"main/internal/schema"
)

var (
	ErrBrokerTimeout   = errors.New("broker timeout")
	ErrBrokerRejected  = errors.New("broker rejected order")
	ErrNoMarketPrice   = errors.New("no market price for instrument")
	ErrSubmitQueueFull = errors.New("submit queue full")
)

// EventSink publishes coordinator output back onto the event bus. Fills,
// rejections and everything else re-enter the engine as ordinary events.
type EventSink func(tsEvent int64, payload schema.Payload) error

// Coordinator turns approved orders into fills. The simulated variant
// completes synchronously from bar data; the live variant delegates to a
// broker adapter. Both emit the same Fill shape so downstream consumers
// are execution-mode-agnostic.
type Coordinator interface {
	// Submit hands an approved order to the execution venue.
	Submit(ctx context.Context, order schema.OrderApproved) error

	// Cancel attempts a best-effort cancel of an open order.
	Cancel(ctx context.Context, orderID uint64) error

	// Close releases resources and cancels in-flight work.
	Close() error
}

// BrokerAdapter is the external collaborator behind the live coordinator.
// PlaceOrder must be idempotent on order ID so retries are safe. Fills
// arrive asynchronously on the notification channel.
type BrokerAdapter interface {
	PlaceOrder(ctx context.Context, order schema.OrderApproved) error
	CancelOrder(ctx context.Context, orderID uint64) error
	Fills() <-chan schema.Fill
}

package exec

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"main/internal/clock"
	"main/internal/schema"
)

type fakeBroker struct {
	mu            sync.Mutex
	calls         int
	errs          []error // per-call results; calls beyond the slice succeed
	fillOnSuccess bool
	canceled      []uint64
	fills         chan schema.Fill
}

func newFakeBroker(errs ...error) *fakeBroker {
	return &fakeBroker{errs: errs, fills: make(chan schema.Fill, 16)}
}

func (b *fakeBroker) PlaceOrder(ctx context.Context, order schema.OrderApproved) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls <= len(b.errs) && b.errs[b.calls-1] != nil {
		return b.errs[b.calls-1]
	}
	if b.fillOnSuccess {
		b.fills <- schema.Fill{
			FillID:   order.OrderID,
			OrderID:  order.OrderID,
			SymbolID: order.SymbolID,
			Side:     order.Side,
			Price:    order.Price,
			Qty:      order.Qty,
		}
	}
	return nil
}

func (b *fakeBroker) CancelOrder(ctx context.Context, orderID uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.canceled = append(b.canceled, orderID)
	return nil
}

func (b *fakeBroker) Fills() <-chan schema.Fill { return b.fills }

func (b *fakeBroker) placeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type asyncSink struct {
	ch chan schema.Payload
}

func newAsyncSink() *asyncSink {
	return &asyncSink{ch: make(chan schema.Payload, 16)}
}

func (s *asyncSink) sink(tsEvent int64, payload schema.Payload) error {
	s.ch <- payload
	return nil
}

func (s *asyncSink) wait(t *testing.T) schema.Payload {
	t.Helper()
	select {
	case p := <-s.ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func fastLiveConfig() LiveConfig {
	return LiveConfig{
		Workers:      1,
		MaxAttempts:  4,
		RetryBackoff: time.Millisecond,
	}
}

func TestLiveRetriesTransientThenFills(t *testing.T) {
	broker := newFakeBroker(ErrBrokerTimeout, ErrBrokerTimeout, nil)
	broker.fillOnSuccess = true
	sink := newAsyncSink()
	live := NewLive(broker, fastLiveConfig(), clock.NewSimClock(0), sink.sink)
	if err := live.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer live.Close()

	if err := live.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 100, 10)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	fill, ok := sink.wait(t).(schema.Fill)
	if !ok {
		t.Fatal("expected a fill event")
	}
	if fill.OrderID != 1 || fill.Qty != 10 {
		t.Fatalf("fill mismatch: %+v", fill)
	}
	if got := broker.placeCalls(); got != 3 {
		t.Fatalf("broker call count mismatch: got %d want 3", got)
	}
	order, _ := live.Order(1)
	if order.State != schema.OrderStateFilled {
		t.Fatalf("order state mismatch: %v", order.State)
	}
}

func TestLiveLastAttemptFillsAtRetryLimit(t *testing.T) {
	// Three timeouts consume all the retries; the fourth and final attempt
	// must still go through rather than reject as a timeout.
	broker := newFakeBroker(ErrBrokerTimeout, ErrBrokerTimeout, ErrBrokerTimeout)
	broker.fillOnSuccess = true
	sink := newAsyncSink()
	live := NewLive(broker, fastLiveConfig(), clock.NewSimClock(0), sink.sink)
	if err := live.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer live.Close()

	if err := live.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 100, 10)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	fill, ok := sink.wait(t).(schema.Fill)
	if !ok {
		t.Fatal("expected a fill event")
	}
	if fill.OrderID != 1 {
		t.Fatalf("fill mismatch: %+v", fill)
	}
	if got := broker.placeCalls(); got != 4 {
		t.Fatalf("broker call count mismatch: got %d want 4", got)
	}
	order, _ := live.Order(1)
	if order.State != schema.OrderStateFilled {
		t.Fatalf("order state mismatch: %v", order.State)
	}
}

func TestLiveNonTransientErrorRejectsImmediately(t *testing.T) {
	broker := newFakeBroker(ErrBrokerRejected)
	sink := newAsyncSink()
	live := NewLive(broker, fastLiveConfig(), clock.NewSimClock(0), sink.sink)
	if err := live.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer live.Close()

	if err := live.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 100, 10)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	rejected, ok := sink.wait(t).(schema.OrderRejected)
	if !ok {
		t.Fatal("expected a rejection event")
	}
	if rejected.Reason != schema.RejectReasonBrokerReject {
		t.Fatalf("reject reason mismatch: %v", rejected.Reason)
	}
	if got := broker.placeCalls(); got != 1 {
		t.Fatalf("broker call count mismatch: got %d want 1", got)
	}
}

func TestLiveExhaustedRetriesRejectAsTimeout(t *testing.T) {
	broker := newFakeBroker(ErrBrokerTimeout, ErrBrokerTimeout)
	sink := newAsyncSink()
	cfg := fastLiveConfig()
	cfg.MaxAttempts = 2
	live := NewLive(broker, cfg, clock.NewSimClock(0), sink.sink)
	if err := live.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer live.Close()

	if err := live.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 100, 10)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	rejected, ok := sink.wait(t).(schema.OrderRejected)
	if !ok {
		t.Fatal("expected a rejection event")
	}
	if rejected.Reason != schema.RejectReasonBrokerTimeout {
		t.Fatalf("reject reason mismatch: %v", rejected.Reason)
	}
	if got := broker.placeCalls(); got != 2 {
		t.Fatalf("broker call count mismatch: got %d want 2", got)
	}
	order, _ := live.Order(1)
	if order.State != schema.OrderStateRejected {
		t.Fatalf("order state mismatch: %v", order.State)
	}
}

func TestLiveBreakerShortCircuitsBrokerCalls(t *testing.T) {
	broker := newFakeBroker(ErrBrokerTimeout, ErrBrokerTimeout, ErrBrokerTimeout)
	sink := newAsyncSink()
	cfg := fastLiveConfig()
	cfg.MaxAttempts = 3
	cfg.BreakerFailures = 1
	cfg.BreakerCooldown = time.Minute
	live := NewLive(broker, cfg, clock.NewSimClock(0), sink.sink)
	if err := live.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer live.Close()

	if err := live.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 100, 10)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	rejected, ok := sink.wait(t).(schema.OrderRejected)
	if !ok {
		t.Fatal("expected a rejection event")
	}
	if rejected.Reason != schema.RejectReasonBrokerTimeout {
		t.Fatalf("reject reason mismatch: %v", rejected.Reason)
	}
	// The first failure trips the breaker; later attempts fail open without
	// reaching the broker.
	if got := broker.placeCalls(); got != 1 {
		t.Fatalf("broker call count mismatch: got %d want 1", got)
	}
}

func TestLiveSubmitQueueFull(t *testing.T) {
	broker := newFakeBroker()
	sink := newAsyncSink()
	cfg := fastLiveConfig()
	cfg.QueueSize = 1
	// Not started: nothing drains the queue.
	live := NewLive(broker, cfg, clock.NewSimClock(0), sink.sink)

	if err := live.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 100, 10)); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	err := live.Submit(context.Background(), approvedOrder(2, schema.OrderSideBuy, schema.OrderTypeMarket, 100, 10))
	if !errors.Is(err, ErrSubmitQueueFull) {
		t.Fatalf("expected ErrSubmitQueueFull, got %v", err)
	}
	order, _ := live.Order(2)
	if order.State != schema.OrderStateRejected {
		t.Fatalf("order state mismatch: %v", order.State)
	}
}

func TestLiveCloseCancelsOpenOrders(t *testing.T) {
	broker := newFakeBroker()
	sink := newAsyncSink()
	live := NewLive(broker, fastLiveConfig(), clock.NewSimClock(0), sink.sink)

	if err := live.Submit(context.Background(), approvedOrder(1, schema.OrderSideBuy, schema.OrderTypeMarket, 100, 10)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := live.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	broker.mu.Lock()
	defer broker.mu.Unlock()
	if len(broker.canceled) != 1 || broker.canceled[0] != 1 {
		t.Fatalf("canceled orders mismatch: %v", broker.canceled)
	}
}

func TestLiveCancelUnknownOrder(t *testing.T) {
	live := NewLive(newFakeBroker(), fastLiveConfig(), clock.NewSimClock(0), newAsyncSink().sink)
	if err := live.Cancel(context.Background(), 42); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected ErrUnknownOrder, got %v", err)
	}
}

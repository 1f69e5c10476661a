package exec

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"

	"main/internal/clock"
	"main/internal/schema"
)

const (
	defaultLiveWorkers       = 4
	defaultLiveQueueSize     = 256
	defaultMaxAttempts       = 4
	defaultRetryBackoff      = 100 * time.Millisecond
	defaultSubmitTimeout     = 2 * time.Second
	defaultBreakerFailures   = 5
	defaultBreakerCooldown   = 10 * time.Second
	defaultCancelGracePeriod = 3 * time.Second
)

// LiveConfig controls live execution.
type LiveConfig struct {
	Workers   int `json:"workers" yaml:"workers"`
	QueueSize int `json:"queueSize" yaml:"queueSize"`

	// MaxAttempts bounds broker submission retries. Each transient failure
	// backs off exponentially from RetryBackoff before the next attempt.
	MaxAttempts   int           `json:"maxAttempts" yaml:"maxAttempts"`
	RetryBackoff  time.Duration `json:"retryBackoff" yaml:"retryBackoff"`
	SubmitTimeout time.Duration `json:"submitTimeout" yaml:"submitTimeout"`

	// RateLimit caps broker calls per second. 0 disables the limiter.
	RateLimit float64 `json:"rateLimit" yaml:"rateLimit"`
	RateBurst int     `json:"rateBurst" yaml:"rateBurst"`

	BreakerFailures uint32        `json:"breakerFailures" yaml:"breakerFailures"`
	BreakerCooldown time.Duration `json:"breakerCooldown" yaml:"breakerCooldown"`

	CancelGracePeriod time.Duration `json:"cancelGracePeriod" yaml:"cancelGracePeriod"`
}

func (c LiveConfig) withDefaults() LiveConfig {
	if c.Workers <= 0 {
		c.Workers = defaultLiveWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultLiveQueueSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = defaultSubmitTimeout
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = defaultBreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaultBreakerCooldown
	}
	if c.CancelGracePeriod <= 0 {
		c.CancelGracePeriod = defaultCancelGracePeriod
	}
	return c
}

// Live delegates approved orders to a broker adapter. Submissions run on a
// worker pool so broker I/O never stalls the event pipeline; fills arrive
// asynchronously and re-enter the bus through the sink.
type Live struct {
	cfg     LiveConfig
	broker  BrokerAdapter
	clk     clock.Clock
	sink    EventSink
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	queue   chan schema.OrderApproved
	mu      sync.Mutex
	tracker *Tracker

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	closed  bool
}

// NewLive creates a live execution coordinator.
func NewLive(broker BrokerAdapter, cfg LiveConfig, clk clock.Clock, sink EventSink) *Live {
	cfg = cfg.withDefaults()
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "broker",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
	})
	return &Live{
		cfg:     cfg,
		broker:  broker,
		clk:     clk,
		sink:    sink,
		limiter: limiter,
		breaker: breaker,
		queue:   make(chan schema.OrderApproved, cfg.QueueSize),
		tracker: NewTracker(),
	}
}

// Start launches the worker pool and the fill pump.
func (l *Live) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return errors.New("live coordinator already started")
	}
	l.started = true

	ctx, l.cancel = context.WithCancel(ctx)
	for i := 0; i < l.cfg.Workers; i++ {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.worker(ctx)
		}()
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.pumpFills(ctx)
	}()
	return nil
}

// Submit enqueues an approved order for broker submission. Returns
// ErrSubmitQueueFull when the worker pool is saturated.
func (l *Live) Submit(ctx context.Context, order schema.OrderApproved) error {
	_ = ctx

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.New("live coordinator closed")
	}
	if _, err := l.tracker.Track(order); err != nil {
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()

	select {
	case l.queue <- order:
		return nil
	default:
		l.mu.Lock()
		_, _ = l.tracker.Reject(order.OrderID)
		l.mu.Unlock()
		return ErrSubmitQueueFull
	}
}

// Cancel requests a broker-side cancel for an open order.
func (l *Live) Cancel(ctx context.Context, orderID uint64) error {
	l.mu.Lock()
	if _, ok := l.tracker.Order(orderID); !ok {
		l.mu.Unlock()
		return ErrUnknownOrder
	}
	l.mu.Unlock()
	return l.broker.CancelOrder(ctx, orderID)
}

// Close cancels open orders best-effort, stops the workers and waits for
// in-flight submissions to finish.
func (l *Live) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	open := l.tracker.Open()
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CancelGracePeriod)
	defer cancel()
	for _, o := range open {
		if err := l.broker.CancelOrder(ctx, o.ID); err != nil {
			logs.Warnf("cancel order on close failed, order: %d, err: %+v", o.ID, err)
		}
	}

	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	return nil
}

// Order exposes lifecycle state for inspection.
func (l *Live) Order(id uint64) (Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.tracker.Order(id)
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func (l *Live) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case order := <-l.queue:
			l.submitWithRetry(ctx, order)
		}
	}
}

// submitWithRetry places an order with exponential backoff on transient
// failures. Placement is idempotent on order ID so a retry after an
// ambiguous timeout is safe.
func (l *Live) submitWithRetry(ctx context.Context, order schema.OrderApproved) {
	backoff := l.cfg.RetryBackoff
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return
			}
		}

		err := l.placeOnce(ctx, order)
		if err == nil {
			return
		}
		if !transient(err) {
			logs.Errorf("broker rejected order, order: %d, err: %+v", order.OrderID, err)
			l.reject(order, schema.RejectReasonBrokerReject)
			return
		}
		logs.Warnf("broker submit attempt failed, order: %d, attempt: %d, err: %+v", order.OrderID, attempt, err)
		if attempt == l.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	l.reject(order, schema.RejectReasonBrokerTimeout)
}

func (l *Live) placeOnce(ctx context.Context, order schema.OrderApproved) error {
	attemptCtx, cancel := context.WithTimeout(ctx, l.cfg.SubmitTimeout)
	defer cancel()
	_, err := l.breaker.Execute(func() (any, error) {
		return nil, l.broker.PlaceOrder(attemptCtx, order)
	})
	return err
}

func (l *Live) reject(order schema.OrderApproved, reason schema.RejectReason) {
	l.mu.Lock()
	_, _ = l.tracker.Reject(order.OrderID)
	l.mu.Unlock()
	if err := l.sink(l.clk.Now(), schema.OrderRejected{
		OrderID:    order.OrderID,
		StrategyID: order.StrategyID,
		SymbolID:   order.SymbolID,
		Reason:     reason,
	}); err != nil {
		logs.Errorf("publish order rejection failed, order: %d, err: %+v", order.OrderID, err)
	}
}

func (l *Live) pumpFills(ctx context.Context) {
	fills := l.broker.Fills()
	for {
		select {
		case <-ctx.Done():
			return
		case fill, ok := <-fills:
			if !ok {
				return
			}
			l.mu.Lock()
			_, err := l.tracker.ApplyFill(fill)
			l.mu.Unlock()
			if err != nil {
				logs.Errorf("apply broker fill failed, order: %d, fill: %d, err: %+v", fill.OrderID, fill.FillID, err)
				continue
			}
			if err := l.sink(l.clk.Now(), fill); err != nil {
				logs.Errorf("publish fill failed, fill: %d, err: %+v", fill.FillID, err)
			}
		}
	}
}

func transient(err error) bool {
	return errors.Is(err, ErrBrokerTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

var (
	ErrBusClosed     = errors.New("event bus closed")
	ErrBusStarted    = errors.New("event bus already started")
	ErrNilHandler    = errors.New("subscriber handler is nil")
	ErrNoEventTypes  = errors.New("subscriber has no event types")
	ErrDuplicateName = errors.New("subscriber name already registered")
)

// Mode selects the delivery strategy fixed at construction.
type Mode uint8

const (
	// ModeSync delivers events on the publisher goroutine, in subscriber
	// registration order, before Publish returns. Backtest mode.
	ModeSync Mode = iota
	// ModeAsync delivers through one bounded ordered queue per subscriber.
	// Live mode.
	ModeAsync
)

// Event is the unit passed through the bus.
type Event struct {
	Header  schema.EventHeader
	Payload schema.Payload
}

// Handler consumes a delivered event. A returned error is isolated and
// reported as a SystemError event; it never aborts delivery to others.
type Handler func(Event) error

// Config controls bus construction.
type Config struct {
	Mode          Mode
	QueueCapacity int
}

type subscriber struct {
	id      uint16
	name    string
	handler Handler
	queue   *Queue
}

// Bus is the ordered, typed publish/subscribe backbone. Publish assigns a
// strictly increasing sequence number per bus instance; for two events
// published by one producer, subscribers observe them in publication order.
// Across producers the sequence assignment (publication order) is the
// authoritative tie-break for simultaneous timestamps.
type Bus struct {
	mode     Mode
	queueCap int

	mu      sync.Mutex
	seq     uint64
	subs    [schema.EventTypeCount][]*subscriber
	all     []*subscriber
	names   map[string]struct{}
	started bool
	closed  bool

	drops uint64
	wg    sync.WaitGroup
}

// New creates a bus in the given mode.
func New(cfg Config) *Bus {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}
	return &Bus{
		mode:     cfg.Mode,
		queueCap: cfg.QueueCapacity,
		names:    make(map[string]struct{}),
	}
}

// Subscribe registers a handler for the given event types. Registration
// order defines delivery order. Must be called before Start.
func (b *Bus) Subscribe(name string, handler Handler, types ...schema.EventType) error {
	if handler == nil {
		return ErrNilHandler
	}
	if len(types) == 0 {
		return ErrNoEventTypes
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrBusStarted
	}
	if _, ok := b.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	sub := &subscriber{
		id:      uint16(len(b.all) + 1),
		name:    name,
		handler: handler,
	}
	if b.mode == ModeAsync {
		sub.queue = NewQueue(b.queueCap)
	}
	for _, t := range types {
		if int(t) >= schema.EventTypeCount {
			return fmt.Errorf("unknown event type: %d", t)
		}
		b.subs[t] = append(b.subs[t], sub)
	}
	b.all = append(b.all, sub)
	b.names[name] = struct{}{}
	return nil
}

// Start launches the per-subscriber consumers in async mode. It is a no-op
// in sync mode.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	subs := b.all
	b.mu.Unlock()

	if b.mode != ModeAsync {
		return
	}
	for _, sub := range subs {
		b.wg.Add(1)
		go func(sub *subscriber) {
			defer b.wg.Done()
			sub.queue.Run(ctx, func(e Event) {
				b.deliver(sub, e)
			})
		}(sub)
	}
}

// Publish assigns the next sequence number and delivers the event. The
// returned header carries the assigned sequence.
func (b *Bus) Publish(e Event) (schema.EventHeader, error) {
	if e.Payload == nil || e.Header.Type != e.Payload.EventType() {
		return e.Header, fmt.Errorf("payload does not match header type %v", e.Header.Type)
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return e.Header, ErrBusClosed
	}
	b.seq++
	e.Header.Seq = b.seq
	subs := b.subs[e.Header.Type]
	b.mu.Unlock()

	for _, sub := range subs {
		if b.mode == ModeSync {
			b.deliver(sub, e)
			continue
		}
		b.enqueue(sub, e)
	}
	return e.Header, nil
}

// enqueue pushes to a subscriber queue. Market data is dropped when the
// queue is at capacity so a slow consumer never stalls the feed; order
// flow and faults are enqueued past the bound, so a handler publishing to
// its own full queue cannot wedge the consumer that must drain it.
func (b *Bus) enqueue(sub *subscriber, e Event) {
	if droppable(e.Header.Type) {
		if err := sub.queue.TryPublish(e); err != nil {
			if errors.Is(err, ErrQueueFull) {
				b.mu.Lock()
				b.drops++
				b.mu.Unlock()
			}
		}
		return
	}
	if err := sub.queue.Publish(e); err != nil {
		logs.Errorf("bus enqueue failed, subscriber: %s, type: %s, err: %+v", sub.name, e.Header.Type, err)
	}
}

func (b *Bus) deliver(sub *subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("subscriber panic, subscriber: %s, type: %s, panic: %v", sub.name, e.Header.Type, r)
			b.reportFault(sub, e, schema.SystemErrorSubscriberPanic)
		}
	}()
	if err := sub.handler(e); err != nil {
		logs.Warnf("subscriber error, subscriber: %s, type: %s, err: %+v", sub.name, e.Header.Type, err)
		b.reportFault(sub, e, schema.SystemErrorSubscriberError)
	}
}

// reportFault re-enters a SystemError event on the bus. Faults raised while
// handling a SystemError are only logged, never republished.
func (b *Bus) reportFault(sub *subscriber, e Event, code schema.SystemErrorCode) {
	if e.Header.Type == schema.EventSystemError {
		return
	}
	sysErr := schema.SystemError{
		Source: sub.id,
		Code:   code,
		Seq:    e.Header.Seq,
	}
	header := schema.NewHeader(schema.EventSystemError, sub.id, e.Header.TsEvent, e.Header.TsRecv)
	header.TraceID = e.Header.TraceID
	if _, err := b.Publish(Event{Header: header, Payload: sysErr}); err != nil {
		logs.Errorf("system error publish failed, err: %+v", err)
	}
}

// Drops returns the number of market data events dropped on full queues.
func (b *Bus) Drops() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drops
}

// LastSeq returns the last assigned sequence number.
func (b *Bus) LastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Close stops accepting publishes, drains async queues and waits for the
// consumers to exit.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.all
	b.mu.Unlock()

	if b.mode == ModeAsync {
		for _, sub := range subs {
			sub.queue.Close()
		}
		b.wg.Wait()
	}
}

func droppable(t schema.EventType) bool {
	switch t {
	case schema.EventMarketTick, schema.EventBar:
		return true
	default:
		return false
	}
}

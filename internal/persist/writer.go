package persist

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

const (
	defaultBatchSize     = 128
	defaultFlushInterval = time.Second
	defaultWriteRetries  = 3
	defaultRetryDelay    = 250 * time.Millisecond
	defaultQueueSize     = 4096
)

// WriterConfig controls the async persistence writer.
type WriterConfig struct {
	BatchSize     int           `json:"batchSize" yaml:"batchSize"`
	FlushInterval time.Duration `json:"flushInterval" yaml:"flushInterval"`

	// WriteRetries bounds retries per batch before the batch is dropped
	// with an error log. Persistence is fire-and-forget; the hot path
	// never waits on it.
	WriteRetries int           `json:"writeRetries" yaml:"writeRetries"`
	RetryDelay   time.Duration `json:"retryDelay" yaml:"retryDelay"`
	QueueSize    int           `json:"queueSize" yaml:"queueSize"`
}

func (c WriterConfig) withDefaults() WriterConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.WriteRetries <= 0 {
		c.WriteRetries = defaultWriteRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	return c
}

type item struct {
	bar    *MarketBarRecord
	trade  *TradeRecord
	equity *EquitySnapshotRecord
}

// Writer batches records and writes them to a Store off the hot path.
// Records are tagged with a run ID so several runs share one database.
type Writer struct {
	cfg      WriterConfig
	store    Store
	registry *schema.Registry
	runID    string

	ch      chan item
	wg      sync.WaitGroup
	started bool
	closed  bool
	mu      sync.Mutex
}

// NewWriter creates a persistence writer with a fresh run ID.
func NewWriter(store Store, registry *schema.Registry, cfg WriterConfig) *Writer {
	cfg = cfg.withDefaults()
	return &Writer{
		cfg:      cfg,
		store:    store,
		registry: registry,
		runID:    uuid.NewString(),
		ch:       make(chan item, cfg.QueueSize),
	}
}

// RunID returns the identifier tagged onto every record of this run.
func (w *Writer) RunID() string {
	return w.runID
}

// Start launches the batching loop.
func (w *Writer) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close drains pending records and stops the writer.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	close(w.ch)
	w.wg.Wait()
}

// RecordBar enqueues a bar. Full queues drop the record; market data is
// reproducible from the journal.
func (w *Writer) RecordBar(ts int64, bar schema.Bar) {
	symbol, ok := w.registry.Symbol(schema.SymbolID(bar.SymbolID))
	if !ok {
		return
	}
	scale := symbol.Scale
	w.enqueue(item{bar: &MarketBarRecord{
		RunID:     w.runID,
		Symbol:    symbol.Name,
		Timestamp: ts,
		Open:      scale.PriceToFloat(bar.Open),
		High:      scale.PriceToFloat(bar.High),
		Low:       scale.PriceToFloat(bar.Low),
		Close:     scale.PriceToFloat(bar.Close),
		Volume:    scale.QtyToFloat(bar.Volume),
	}})
}

// RecordFill enqueues a trade with optional metadata.
func (w *Writer) RecordFill(ts int64, fill schema.Fill, metadata map[string]any) {
	symbol, ok := w.registry.Symbol(schema.SymbolID(fill.SymbolID))
	if !ok {
		return
	}
	scale := symbol.Scale
	meta := ""
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			meta = string(data)
		}
	}
	w.enqueue(item{trade: &TradeRecord{
		RunID:     w.runID,
		FillID:    fill.FillID,
		OrderID:   fill.OrderID,
		Symbol:    symbol.Name,
		Side:      fill.Side.String(),
		Timestamp: ts,
		Price:     scale.PriceToFloat(fill.Price),
		Qty:       scale.QtyToFloat(fill.Qty),
		Fee:       scale.FeeToFloat(fill.Fee),
		Metadata:  meta,
	}})
}

// RecordEquity enqueues an equity snapshot.
func (w *Writer) RecordEquity(ts int64, equity, cash, drawdown, realizedPnL float64) {
	w.enqueue(item{equity: &EquitySnapshotRecord{
		RunID:       w.runID,
		Timestamp:   ts,
		Equity:      equity,
		Cash:        cash,
		Drawdown:    drawdown,
		RealizedPnL: realizedPnL,
	}})
}

func (w *Writer) enqueue(it item) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	select {
	case w.ch <- it:
	default:
		logs.Warnf("persist queue full, record dropped")
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	var (
		bars    []MarketBarRecord
		trades  []TradeRecord
		equity  []EquitySnapshotRecord
		pending int
	)
	flush := func() {
		if pending == 0 {
			return
		}
		w.writeBatch(ctx, bars, trades, equity)
		bars, trades, equity, pending = nil, nil, nil, 0
	}
	defer flush()

	for {
		select {
		case it, ok := <-w.ch:
			if !ok {
				return
			}
			switch {
			case it.bar != nil:
				bars = append(bars, *it.bar)
			case it.trade != nil:
				trades = append(trades, *it.trade)
			case it.equity != nil:
				equity = append(equity, *it.equity)
			}
			pending++
			if pending >= w.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (w *Writer) writeBatch(ctx context.Context, bars []MarketBarRecord, trades []TradeRecord, equity []EquitySnapshotRecord) {
	w.withRetry(ctx, "bars", func() error { return w.store.SaveBars(ctx, bars) })
	w.withRetry(ctx, "trades", func() error { return w.store.SaveTrades(ctx, trades) })
	w.withRetry(ctx, "equity", func() error { return w.store.SaveEquity(ctx, equity) })
}

func (w *Writer) withRetry(ctx context.Context, kind string, write func() error) {
	var err error
	for attempt := 1; attempt <= w.cfg.WriteRetries; attempt++ {
		if err = write(); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.RetryDelay):
		}
	}
	logs.Errorf("persist batch dropped after retries, kind: %s, err: %+v", kind, err)
}

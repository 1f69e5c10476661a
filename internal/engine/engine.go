package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/clock"
	"main/internal/codec"
	"main/internal/exec"
	"main/internal/feed"
	"main/internal/journal"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/persist"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/state"
	"main/internal/strategy"
)

// Engine wires the bus, clock, risk engine, execution coordinator and
// ledger into one runnable trading process. Backtest and live runs share
// every component above the execution layer; the mode only selects the
// clock, the bus delivery strategy and the coordinator.
type Engine struct {
	cfg      ops.Loaded
	registry *schema.Registry

	broker     exec.BrokerAdapter
	strategies []strategy.Strategy
	store      persist.Store
}

// New creates an engine from a resolved configuration.
func New(cfg ops.Loaded) *Engine {
	e := &Engine{cfg: cfg, registry: cfg.Registry}
	if cfg.File.Strategy.Kind == "sma" {
		e.strategies = append(e.strategies, strategy.NewSMACross(cfg.Registry, cfg.File.Strategy.SMA))
	}
	return e
}

// WithBroker replaces the default paper broker for live runs.
func (e *Engine) WithBroker(broker exec.BrokerAdapter) *Engine {
	e.broker = broker
	return e
}

// WithStrategy adds a strategy beyond the configured one.
func (e *Engine) WithStrategy(s strategy.Strategy) *Engine {
	e.strategies = append(e.strategies, s)
	return e
}

// WithStore replaces the PostgreSQL store, mainly for tests.
func (e *Engine) WithStore(store persist.Store) *Engine {
	e.store = store
	return e
}

// Run executes the configured mode until the feed is exhausted or ctx is
// canceled, and returns the performance report.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	switch e.cfg.File.Mode {
	case ops.ModeLive:
		return e.runLive(ctx)
	default:
		return e.runBacktest(ctx)
	}
}

// run holds everything built for one run.
type run struct {
	bus      *bus.Bus
	clk      clock.Clock
	ledger   *state.Ledger
	pipe     *pipeline
	metrics  *obs.Metrics
	exporter *obs.Exporter
	trace    *obs.TraceGenerator

	journal *journal.Writer
	persist *persist.Writer

	cancel   context.CancelFunc
	fatalErr error
	fatalMu  sync.Mutex
}

func (r *run) fatal(err error) {
	r.fatalMu.Lock()
	if r.fatalErr == nil {
		r.fatalErr = err
	}
	r.fatalMu.Unlock()
	r.cancel()
}

func (r *run) fatalError() error {
	r.fatalMu.Lock()
	defer r.fatalMu.Unlock()
	return r.fatalErr
}

// build wires the components shared by both modes. The caller sets the
// mode-specific coordinator on the pipeline before starting the bus.
func (e *Engine) build(ctx context.Context, mode bus.Mode, clk clock.Clock, cancel context.CancelFunc) (*run, error) {
	cfg := e.cfg.File

	riskEngine, err := risk.NewEngine(e.registry, cfg.Risk)
	if err != nil {
		return nil, err
	}

	r := &run{
		bus:      bus.New(bus.Config{Mode: mode, QueueCapacity: cfg.Bus.QueueCapacity}),
		clk:      clk,
		ledger:   state.NewLedger(e.registry, cfg.InitialCash, cfg.ReturnWindow),
		metrics:  obs.NewMetrics(),
		exporter: obs.NewExporter(),
		trace:    obs.NewTraceGenerator(1),
		cancel:   cancel,
	}

	r.pipe = &pipeline{
		registry:   e.registry,
		clk:        clk,
		ledger:     r.ledger,
		riskEngine: riskEngine,
		strategies: e.strategies,
		metrics:    r.metrics,
		exporter:   r.exporter,
		runCtx:     ctx,
		fatal:      r.fatal,
	}
	r.pipe.publish = func(tsEvent int64, traceID uint64, payload schema.Payload) error {
		header := schema.NewHeader(payload.EventType(), sourcePipeline, tsEvent, clk.Now())
		header.TraceID = traceID
		_, err := r.bus.Publish(bus.Event{Header: header, Payload: payload})
		return err
	}

	if err := r.bus.Subscribe("pipeline", r.pipe.handle, r.pipe.types()...); err != nil {
		return nil, err
	}

	if cfg.Journal.Enabled {
		wcfg := cfg.Journal.Writer
		// The journal handler reuses its encode buffer between events.
		wcfg.CopyPayload = true
		writer, err := journal.NewWriter(wcfg)
		if err != nil {
			return nil, err
		}
		r.journal = writer
		if err := r.bus.Subscribe("journal", journalHandler(writer), allEventTypes()...); err != nil {
			return nil, err
		}
	}

	if cfg.Persist.Enabled {
		store := e.store
		if store == nil {
			store, err = persist.OpenPG(cfg.Persist.Postgres)
			if err != nil {
				return nil, err
			}
		}
		r.persist = persist.NewWriter(store, e.registry, cfg.Persist.Writer)
		if err := r.bus.Subscribe("persist", persistHandler(r.persist, r.ledger),
			schema.EventBar, schema.EventFill); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func allEventTypes() []schema.EventType {
	types := make([]schema.EventType, 0, schema.EventTypeCount-1)
	for t := 1; t < schema.EventTypeCount; t++ {
		types = append(types, schema.EventType(t))
	}
	return types
}

// journalHandler appends every event to the journal. The writer queue is
// bounded; a full queue drops the record with a warning rather than
// stalling delivery.
func journalHandler(writer *journal.Writer) bus.Handler {
	buf := make([]byte, 0, 64)
	return func(e bus.Event) error {
		payload, err := codec.EncodePayload(buf[:0], e.Payload)
		if err != nil {
			return err
		}
		if err := writer.TryAppend(e.Header, payload); err != nil {
			if errors.Is(err, journal.ErrQueueFull) {
				logs.Warnf("journal queue full, event dropped, seq: %d", e.Header.Seq)
				return nil
			}
			return err
		}
		return nil
	}
}

// persistHandler forwards bars, trades and equity snapshots to the
// batched persistence writer. Fire and forget.
func persistHandler(writer *persist.Writer, ledger *state.Ledger) bus.Handler {
	return func(e bus.Event) error {
		switch payload := e.Payload.(type) {
		case schema.Bar:
			writer.RecordBar(e.Header.TsEvent, payload)
		case schema.Fill:
			writer.RecordFill(e.Header.TsEvent, payload, map[string]any{
				"seq":   e.Header.Seq,
				"trace": e.Header.TraceID,
			})
			view := ledger.Snapshot()
			writer.RecordEquity(e.Header.TsEvent, view.Equity, view.Cash, view.Drawdown(), ledger.RealizedPnL())
		}
		return nil
	}
}

func (e *Engine) newSource() (feed.Source, error) {
	cfg := e.cfg.File.Feed
	var (
		source feed.Source
		err    error
	)
	switch cfg.Kind {
	case "csv":
		source, err = feed.NewCSVSource(e.registry, cfg.CSV)
	case "journal":
		source, err = feed.NewJournalSource(cfg.Journal)
	default:
		source, err = feed.NewSynthetic(e.registry, cfg.Synthetic)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Scramble.Enabled {
		return feed.NewScrambler(source, cfg.Scramble)
	}
	return source, nil
}

// runBacktest replays the feed on a single goroutine. The bus delivers
// synchronously, the simulated clock advances strictly by event
// timestamps, and two runs over the same input produce identical output.
func (e *Engine) runBacktest(ctx context.Context) (Report, error) {
	cfg := e.cfg.File
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clk := clock.NewSimClock(0)

	r, err := e.build(ctx, bus.ModeSync, clk, cancel)
	if err != nil {
		return Report{}, err
	}
	simCfg := cfg.Exec.Sim
	simCfg.Slippage = e.cfg.Slippage
	coordinator := exec.NewSimulated(e.registry, simCfg, clk, func(tsEvent int64, payload schema.Payload) error {
		header := schema.NewHeader(payload.EventType(), sourceExec, tsEvent, clk.Now())
		_, err := r.bus.Publish(bus.Event{Header: header, Payload: payload})
		return err
	})
	r.pipe.coordinator = coordinator

	source, err := e.newSource()
	if err != nil {
		return Report{}, err
	}

	r.bus.Start(ctx)
	if r.journal != nil {
		if err := r.journal.Start(ctx); err != nil {
			return Report{}, err
		}
	}
	if r.persist != nil {
		r.persist.Start(ctx)
	}

	logs.Infof("backtest started, symbols: %d", e.registry.SymbolCount())
	runErr := source.Run(ctx, func(tsEvent int64, payload schema.Payload) error {
		if err := r.fatalError(); err != nil {
			return err
		}
		clk.Advance(tsEvent)
		header := schema.NewHeader(payload.EventType(), sourceFeed, tsEvent, clk.Now())
		header.TraceID = r.trace.Next()
		_, err := r.bus.Publish(bus.Event{Header: header, Payload: payload})
		return err
	})
	if errors.Is(runErr, context.Canceled) && r.fatalError() != nil {
		runErr = r.fatalError()
	}

	report, closeErr := e.finish(r)
	if runErr == nil {
		runErr = closeErr
	}
	logs.Infof("backtest finished, equity: %.2f, fills: %d", report.FinalEquity, report.Fills)
	return report, runErr
}

// runLive consumes the feed from concurrent producers through the async
// bus. Market data passes a reorder buffer bounded by the watermark;
// older ticks are dropped and counted.
func (e *Engine) runLive(ctx context.Context) (Report, error) {
	cfg := e.cfg.File
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clk := clock.NewWallClock()

	broker := e.broker
	if broker == nil {
		broker = exec.NewPaperBroker(e.registry, cfg.Exec.Paper)
	}

	r, err := e.build(ctx, bus.ModeAsync, clk, cancel)
	if err != nil {
		return Report{}, err
	}
	coordinator := exec.NewLive(broker, cfg.Exec.Live, clk, func(tsEvent int64, payload schema.Payload) error {
		header := schema.NewHeader(payload.EventType(), sourceExec, tsEvent, clk.Now())
		_, err := r.bus.Publish(bus.Event{Header: header, Payload: payload})
		return err
	})
	r.pipe.coordinator = coordinator

	// The paper broker marks to market off the same event stream.
	if consumer, ok := broker.(interface{ OnTick(schema.MarketTick) }); ok {
		if err := r.bus.Subscribe("broker-marks", func(ev bus.Event) error {
			switch payload := ev.Payload.(type) {
			case schema.MarketTick:
				consumer.OnTick(payload)
			case schema.Bar:
				consumer.OnTick(schema.MarketTick{SymbolID: payload.SymbolID, Price: payload.Close})
			}
			return nil
		}, schema.EventMarketTick, schema.EventBar); err != nil {
			return Report{}, err
		}
	}

	if cfg.Journal.Enabled {
		if err := e.recover(ctx, r); err != nil {
			return Report{}, err
		}
	}

	source, err := e.newSource()
	if err != nil {
		return Report{}, err
	}

	r.bus.Start(ctx)
	if r.journal != nil {
		if err := r.journal.Start(ctx); err != nil {
			return Report{}, err
		}
	}
	if r.persist != nil {
		r.persist.Start(ctx)
	}
	if err := coordinator.Start(ctx); err != nil {
		return Report{}, err
	}

	if cfg.Obs.MetricsAddr != "" {
		go func() {
			if err := r.exporter.Serve(ctx, cfg.Obs.MetricsAddr); err != nil {
				logs.Errorf("metrics endpoint failed, err: %+v", err)
			}
		}()
	}

	stopTimers := e.scheduleGaugeTimer(ctx, r, clk)
	defer stopTimers()

	logs.Infof("live engine started, symbols: %d", e.registry.SymbolCount())
	reorder := bus.NewReorder(cfg.Bus.Watermark)
	runErr := source.Run(ctx, func(tsEvent int64, payload schema.Payload) error {
		if err := r.fatalError(); err != nil {
			return err
		}
		header := schema.NewHeader(payload.EventType(), sourceFeed, tsEvent, clk.Now())
		header.TraceID = r.trace.Next()
		event := bus.Event{Header: header, Payload: payload}

		switch header.Type {
		case schema.EventMarketTick, schema.EventBar:
			ready, stale := reorder.Push(event)
			if stale {
				r.metrics.IncStaleDrop()
				r.exporter.IncStaleDrop()
				return nil
			}
			for _, due := range ready {
				if _, err := r.bus.Publish(due); err != nil {
					return err
				}
			}
			return nil
		default:
			_, err := r.bus.Publish(event)
			return err
		}
	})
	for _, due := range reorder.Flush() {
		if _, err := r.bus.Publish(due); err != nil && runErr == nil {
			runErr = err
		}
	}
	if errors.Is(runErr, context.Canceled) {
		if fatalErr := r.fatalError(); fatalErr != nil {
			runErr = fatalErr
		} else {
			// A canceled live run is a graceful stop.
			runErr = nil
		}
	}

	// Stop the coordinator first so in-flight orders get a best-effort
	// cancel and their terminal fills drain through the bus.
	if err := coordinator.Close(); err != nil && runErr == nil {
		runErr = err
	}

	report, closeErr := e.finish(r)
	if runErr == nil {
		runErr = closeErr
	}
	logs.Infof("live engine stopped, equity: %.2f, fills: %d", report.FinalEquity, report.Fills)
	return report, runErr
}

// scheduleGaugeTimer emits a Timer event every few seconds so risk gauges
// and equity snapshots stay fresh between fills.
func (e *Engine) scheduleGaugeTimer(ctx context.Context, r *run, clk clock.Clock) (stop func()) {
	const interval = 10 * time.Second

	var (
		mu       sync.Mutex
		cancelAt func()
		timerID  uint64
		stopped  bool
	)
	var schedule func()
	schedule = func() {
		mu.Lock()
		defer mu.Unlock()
		if stopped || ctx.Err() != nil {
			return
		}
		timerID++
		id := timerID
		fireAt := clk.Now() + int64(interval)
		cancelAt = clk.ScheduleAt(fireAt, func(fireTs int64) {
			header := schema.NewHeader(schema.EventTimer, sourceTimer, fireTs, clk.Now())
			if _, err := r.bus.Publish(bus.Event{Header: header, Payload: schema.Timer{TimerID: id, FireTs: fireTs}}); err != nil {
				logs.Warnf("timer publish failed, err: %+v", err)
			}
			schedule()
		})
	}
	schedule()
	return func() {
		mu.Lock()
		defer mu.Unlock()
		stopped = true
		if cancelAt != nil {
			cancelAt()
		}
	}
}

// recover rebuilds the ledger from the latest snapshot and the journal
// tail before a live run starts.
func (e *Engine) recover(ctx context.Context, r *run) error {
	cfg := e.cfg.File.Journal
	if _, err := os.Stat(cfg.Dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	snapshotPath := cfg.SnapshotPath
	if snapshotPath != "" {
		if _, err := os.Stat(snapshotPath); errors.Is(err, os.ErrNotExist) {
			snapshotPath = ""
		}
	}
	result, err := state.RecoverLedger(ctx, r.ledger, state.RecoverConfig{
		JournalDir:   cfg.Dir,
		SnapshotPath: snapshotPath,
		FilePrefix:   cfg.Writer.FilePrefix,
	})
	if err != nil {
		return fmt.Errorf("ledger recovery failed: %w", err)
	}
	if result.LastSeq > 0 {
		logs.Infof("ledger recovered, seq: %d, equity: %.2f", result.LastSeq, r.ledger.Equity())
	}
	return nil
}

// finish drains the bus and collaborators, writes the final snapshot and
// builds the report.
func (e *Engine) finish(r *run) (Report, error) {
	r.bus.Close()

	var closeErr error
	if r.journal != nil {
		if err := r.journal.Close(); err != nil {
			closeErr = err
		}
	}
	runID := ""
	if r.persist != nil {
		runID = r.persist.RunID()
		r.persist.Close()
	}
	if path := e.cfg.File.Journal.SnapshotPath; e.cfg.File.Journal.Enabled && path != "" {
		if err := state.WriteSnapshot(path, r.ledger.SnapshotState()); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return buildReport(runID, r.ledger, r.metrics.Snapshot()), closeErr
}

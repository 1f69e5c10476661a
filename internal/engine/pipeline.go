package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/clock"
	"main/internal/exec"
	"main/internal/obs"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/state"
	"main/internal/strategy"
)

// Event source identifiers stamped into headers.
const (
	sourceFeed uint16 = iota + 1
	sourcePipeline
	sourceExec
	sourceTimer
)

// barConsumer is implemented by coordinators that fill against bar data.
type barConsumer interface {
	OnBar(bar schema.Bar) error
}

// pipeline is the single-threaded evaluation path. It is the only writer
// of order and position state: one event is processed fully, including any
// resulting order submission, before the next is consumed. In live mode it
// runs as one bus subscriber; in backtest mode delivery is inline.
type pipeline struct {
	registry    *schema.Registry
	clk         clock.Clock
	ledger      *state.Ledger
	riskEngine  *risk.Engine
	coordinator exec.Coordinator
	strategies  []strategy.Strategy
	metrics     *obs.Metrics
	exporter    *obs.Exporter

	publish     func(tsEvent int64, traceID uint64, payload schema.Payload) error
	fatal       func(error)
	runCtx      context.Context
	nextOrderID atomic.Uint64
}

func (p *pipeline) types() []schema.EventType {
	return []schema.EventType{
		schema.EventMarketTick,
		schema.EventBar,
		schema.EventOrderIntent,
		schema.EventOrderApproved,
		schema.EventOrderRejected,
		schema.EventFill,
		schema.EventTimer,
	}
}

func (p *pipeline) handle(e bus.Event) error {
	p.metrics.ObserveEvent(e.Header)
	p.exporter.IncEvent(e.Header.Type)

	var err error
	switch payload := e.Payload.(type) {
	case schema.MarketTick:
		err = p.handleTick(e.Header, payload)
	case schema.Bar:
		err = p.handleBar(e.Header, payload)
	case schema.OrderIntent:
		err = p.handleIntent(e.Header, payload)
	case schema.OrderApproved:
		err = p.handleApproved(e.Header, payload)
	case schema.OrderRejected:
		err = p.handleRejected(e.Header, payload)
	case schema.Fill:
		err = p.handleFill(e.Header, payload)
	case schema.Timer:
		p.refreshGauges()
	}
	p.ledger.Advance(e.Header.Seq, e.Header.TsEvent)
	return err
}

func (p *pipeline) handleTick(header schema.EventHeader, tick schema.MarketTick) error {
	p.ledger.MarkPrice(tick.SymbolID, tick.Price)
	for _, s := range p.strategies {
		intents := s.OnTick(header.TsEvent, tick)
		if err := p.emitIntents(header, s.ID(), intents); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) handleBar(header schema.EventHeader, bar schema.Bar) error {
	p.ledger.MarkPrice(bar.SymbolID, bar.Close)
	if consumer, ok := p.coordinator.(barConsumer); ok {
		if err := consumer.OnBar(bar); err != nil {
			return err
		}
	}
	for _, s := range p.strategies {
		intents := s.OnBar(header.TsEvent, bar)
		if err := p.emitIntents(header, s.ID(), intents); err != nil {
			return err
		}
	}
	p.refreshGauges()
	return nil
}

func (p *pipeline) emitIntents(header schema.EventHeader, strategyID uint32, intents []schema.OrderIntent) error {
	for _, intent := range intents {
		if intent.OrderID == 0 {
			intent.OrderID = p.nextOrderID.Add(1)
		}
		if intent.StrategyID == 0 {
			intent.StrategyID = strategyID
		}
		if err := p.publish(header.TsEvent, header.TraceID, intent); err != nil {
			return err
		}
	}
	return nil
}

// handleIntent owns the Pending to Approved/Rejected transition. The risk
// engine evaluates against an immutable snapshot; breaches are published
// for observability even though the decision also flows through events.
func (p *pipeline) handleIntent(header schema.EventHeader, intent schema.OrderIntent) error {
	start := time.Now()
	view := p.ledger.Snapshot()
	decision := p.riskEngine.Evaluate(intent, view)
	p.metrics.ObserveRiskEval(time.Since(start))

	switch decision.Action {
	case risk.ActionApprove, risk.ActionResize:
		p.ledger.RegisterOrder(intent.OrderID)
		approved := schema.OrderApproved{
			OrderID:    intent.OrderID,
			StrategyID: intent.StrategyID,
			SymbolID:   intent.SymbolID,
			Side:       intent.Side,
			Type:       intent.Type,
			Flags:      intent.Flags,
			Price:      intent.Price,
			Qty:        decision.Qty,
			OrigQty:    intent.Qty,
		}
		if decision.Action == risk.ActionResize {
			p.metrics.IncResized()
			p.exporter.IncResized()
			if err := p.publishBreach(header, intent.SymbolID, decision, schema.BreachActionResized); err != nil {
				return err
			}
		} else {
			p.metrics.IncApproved()
			p.exporter.IncApproved()
		}
		return p.publish(header.TsEvent, header.TraceID, approved)
	default:
		p.metrics.IncRejected(decision.Reason)
		p.exporter.IncRejected(decision.Reason)
		if decision.Metric != schema.RiskMetricUnknown {
			if err := p.publishBreach(header, intent.SymbolID, decision, schema.BreachActionRejected); err != nil {
				return err
			}
		}
		return p.publish(header.TsEvent, header.TraceID, schema.OrderRejected{
			OrderID:    intent.OrderID,
			StrategyID: intent.StrategyID,
			SymbolID:   intent.SymbolID,
			Reason:     decision.Reason,
		})
	}
}

func (p *pipeline) publishBreach(header schema.EventHeader, symbolID uint32, decision risk.Decision, action schema.BreachAction) error {
	return p.publish(header.TsEvent, header.TraceID, schema.RiskBreach{
		OrderID:  decision.OrderID,
		SymbolID: symbolID,
		Metric:   decision.Metric,
		Action:   action,
		Observed: decision.Observed,
		Limit:    decision.Limit,
	})
}

func (p *pipeline) handleApproved(header schema.EventHeader, approved schema.OrderApproved) error {
	err := p.coordinator.Submit(p.runCtx, approved)
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrSubmitQueueFull) {
		logs.Warnf("submit queue full, order rejected, order: %d", approved.OrderID)
		return p.publish(header.TsEvent, header.TraceID, schema.OrderRejected{
			OrderID:    approved.OrderID,
			StrategyID: approved.StrategyID,
			SymbolID:   approved.SymbolID,
			Reason:     schema.RejectReasonBrokerReject,
		})
	}
	return err
}

func (p *pipeline) handleRejected(header schema.EventHeader, rejected schema.OrderRejected) error {
	logs.Infof("order rejected, order: %d, reason: %s", rejected.OrderID, rejected.Reason)
	return nil
}

// handleFill applies the fill to the ledger. A fill that cannot be applied
// is a fatal consistency error: the run halts rather than trading on
// corrupted state. Duplicate fill ids are ignored.
func (p *pipeline) handleFill(header schema.EventHeader, fill schema.Fill) error {
	applied, err := p.ledger.Apply(fill)
	if err != nil {
		logs.Errorf("fill cannot be applied, halting run, order: %d, fill: %d, err: %+v", fill.OrderID, fill.FillID, err)
		p.fatal(err)
		return err
	}
	if !applied {
		return nil
	}
	p.metrics.IncFill()
	p.exporter.IncFill()
	for _, s := range p.strategies {
		s.OnFill(header.TsEvent, fill)
	}
	return nil
}

func (p *pipeline) refreshGauges() {
	view := p.ledger.Snapshot()
	snap := p.riskEngine.RiskSnapshot(view)
	p.exporter.SetRisk(snap.Drawdown, snap.VaR)
	p.exporter.SetEquity(view.Equity)
}

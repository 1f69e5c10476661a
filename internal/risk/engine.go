package risk

import (
	"math"

	"main/internal/schema"
	"main/internal/state"
)

// Action is the outcome of a risk evaluation.
type Action uint16

const (
	ActionApprove Action = iota
	ActionReject
	ActionResize
)

// String returns a human readable action name.
func (a Action) String() string {
	switch a {
	case ActionApprove:
		return "approve"
	case ActionReject:
		return "reject"
	case ActionResize:
		return "resize"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating one order intent. Qty carries the
// approved quantity, reduced from the intent on a resize.
type Decision struct {
	OrderID  uint64
	Action   Action
	Reason   schema.RejectReason
	Metric   schema.RiskMetric
	Qty      schema.Quantity
	Observed float64
	Limit    float64
}

// Snapshot is an on-demand aggregate of current portfolio risk, computed
// from a ledger view. It is not cached across evaluations.
type Snapshot struct {
	VaR                 float64
	Drawdown            float64
	CorrelationExposure float64
}

// Engine evaluates order intents against portfolio risk limits. Evaluation
// reads an immutable ledger view and never mutates shared state, so it is
// safe to evaluate concurrent intents against one consistent snapshot.
type Engine struct {
	registry *schema.Registry
	limits   Limits
}

// NewEngine creates a risk engine with static limits.
func NewEngine(registry *schema.Registry, limits Limits) (*Engine, error) {
	limits = limits.withDefaults()
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Engine{registry: registry, limits: limits}, nil
}

// Limits returns the configured limits after defaulting.
func (e *Engine) Limits() Limits {
	return e.limits
}

// Evaluate checks an intent against the limits in priority order. The
// first breach determines the outcome: drawdown and correlation breaches
// reject, VaR and position-size breaches resize when a smaller quantity
// satisfies the limit. Risk-reducing intents bypass every check.
func (e *Engine) Evaluate(intent schema.OrderIntent, view state.View) Decision {
	decision := Decision{
		OrderID: intent.OrderID,
		Action:  ActionApprove,
		Qty:     intent.Qty,
	}

	scale := e.registry.Scale(schema.SymbolID(intent.SymbolID))
	qty := scale.QtyToFloat(intent.Qty)
	if qty <= 0 {
		decision.Action = ActionReject
		decision.Reason = schema.RejectReasonValidation
		decision.Qty = 0
		return decision
	}

	pos := view.Position(intent.SymbolID)
	price := scale.PriceToFloat(intent.Price)
	if price <= 0 {
		price = pos.Mark
	}
	if price <= 0 {
		decision.Action = ActionReject
		decision.Reason = schema.RejectReasonValidation
		decision.Qty = 0
		return decision
	}

	dir := 1.0
	if intent.Side == schema.OrderSideSell {
		dir = -1.0
	}
	current := pos.QtyFloat

	// A reduction that does not cross through flat never adds risk.
	// Blocking a de-risking trade during a drawdown is itself a failure
	// mode, so reductions bypass every limit.
	if dir*current < 0 && qty <= math.Abs(current) {
		return decision
	}

	candidate := qty
	resized := false

	for _, metric := range e.limits.Priority {
		switch metric {
		case schema.RiskMetricDrawdown:
			if e.limits.MaxDrawdownPct <= 0 {
				continue
			}
			observed := e.projectedDrawdown(view, candidate*price)
			if observed >= e.limits.MaxDrawdownPct {
				return rejected(decision, metric, observed, e.limits.MaxDrawdownPct)
			}
		case schema.RiskMetricVaR:
			if e.limits.MaxVaR <= 0 {
				continue
			}
			varAt := func(q float64) float64 {
				notionals := projectedNotionals(view, intent.SymbolID, current+dir*q, price)
				return historicalVaR(view, notionals, view.Equity, e.limits.VaRConfidence)
			}
			observed := varAt(candidate)
			if observed > e.limits.MaxVaR {
				allowed := e.largestQtyUnderVaR(scale, candidate, varAt)
				if allowed <= 0 {
					return rejected(decision, metric, observed, e.limits.MaxVaR)
				}
				candidate = allowed
				if !resized {
					resized = true
					decision.Metric = metric
					decision.Reason = metricReason(metric)
					decision.Observed = observed
					decision.Limit = e.limits.MaxVaR
				}
			}
		case schema.RiskMetricCorrelation:
			if e.limits.MaxCorrelationExposure <= 0 {
				continue
			}
			notionals := projectedNotionals(view, intent.SymbolID, current+dir*candidate, price)
			observed := clusterExposure(view, notionals, intent.SymbolID, e.limits.CorrelationThreshold, view.Equity)
			if observed > e.limits.MaxCorrelationExposure {
				return rejected(decision, metric, observed, e.limits.MaxCorrelationExposure)
			}
		case schema.RiskMetricPositionSize:
			if e.limits.MaxPositionSize <= 0 {
				continue
			}
			observed := math.Abs(current + dir*candidate)
			if observed > e.limits.MaxPositionSize {
				// Projected size grows linearly with quantity, so the
				// largest admissible quantity has a closed form.
				allowed := e.limits.MaxPositionSize - dir*current
				if allowed <= 0 {
					return rejected(decision, metric, observed, e.limits.MaxPositionSize)
				}
				candidate = allowed
				if !resized {
					resized = true
					decision.Metric = metric
					decision.Reason = metricReason(metric)
					decision.Observed = observed
					decision.Limit = e.limits.MaxPositionSize
				}
			}
		}
	}

	if resized {
		resizedQty := floorQty(scale, candidate)
		if resizedQty <= 0 {
			decision.Action = ActionReject
			decision.Qty = 0
			return decision
		}
		decision.Action = ActionResize
		decision.Qty = resizedQty
	}
	return decision
}

// RiskSnapshot computes the current portfolio risk aggregate for a view.
func (e *Engine) RiskSnapshot(view state.View) Snapshot {
	notionals := make(map[uint32]float64, len(view.Positions))
	for id, pos := range view.Positions {
		notionals[id] = pos.Notional
	}
	snap := Snapshot{
		VaR:      historicalVaR(view, notionals, view.Equity, e.limits.VaRConfidence),
		Drawdown: view.Drawdown(),
	}
	for id := range notionals {
		exposure := clusterExposure(view, notionals, id, e.limits.CorrelationThreshold, view.Equity)
		if exposure > snap.CorrelationExposure {
			snap.CorrelationExposure = exposure
		}
	}
	return snap
}

// projectedDrawdown charges the estimated execution cost against equity
// and measures the decline from the high-water mark.
func (e *Engine) projectedDrawdown(view state.View, tradeNotional float64) float64 {
	if view.HighWater <= 0 {
		return 0
	}
	cost := math.Abs(tradeNotional) * e.limits.TradeCostBps / 10000
	dd := 1 - (view.Equity-cost)/view.HighWater
	if dd < 0 {
		return 0
	}
	return dd
}

// largestQtyUnderVaR binary-searches scaled quantity space for the largest
// quantity whose projected VaR satisfies the limit.
func (e *Engine) largestQtyUnderVaR(scale schema.ScaleSpec, maxQty float64, varAt func(float64) float64) float64 {
	lo := int64(0)
	hi := int64(floorQty(scale, maxQty))
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if varAt(scale.QtyToFloat(schema.Quantity(mid))) <= e.limits.MaxVaR {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return scale.QtyToFloat(schema.Quantity(lo))
}

func projectedNotionals(view state.View, symbolID uint32, projectedQty, price float64) map[uint32]float64 {
	notionals := make(map[uint32]float64, len(view.Positions)+1)
	for id, pos := range view.Positions {
		notionals[id] = pos.Notional
	}
	notionals[symbolID] = projectedQty * price
	return notionals
}

func rejected(decision Decision, metric schema.RiskMetric, observed, limit float64) Decision {
	decision.Action = ActionReject
	decision.Metric = metric
	decision.Reason = metricReason(metric)
	decision.Observed = observed
	decision.Limit = limit
	decision.Qty = 0
	return decision
}

func metricReason(metric schema.RiskMetric) schema.RejectReason {
	switch metric {
	case schema.RiskMetricDrawdown:
		return schema.RejectReasonDrawdownBreach
	case schema.RiskMetricVaR:
		return schema.RejectReasonVaRBreach
	case schema.RiskMetricCorrelation:
		return schema.RejectReasonCorrelationBreach
	case schema.RiskMetricPositionSize:
		return schema.RejectReasonPositionSizeBreach
	default:
		return schema.RejectReasonNone
	}
}

func floorQty(scale schema.ScaleSpec, v float64) schema.Quantity {
	q := scale.QtyFromFloat(v)
	if scale.QtyToFloat(q) > v {
		q--
	}
	if q < 0 {
		return 0
	}
	return q
}

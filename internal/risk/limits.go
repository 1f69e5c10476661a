package risk

import (
	"fmt"

	"main/internal/schema"
)

const (
	defaultVaRConfidence        = 0.95
	defaultCorrelationThreshold = 0.7
)

// DefaultPriority is the breach evaluation order used when none is
// configured. Drawdown is checked first because it is a hard halt.
var DefaultPriority = []schema.RiskMetric{
	schema.RiskMetricDrawdown,
	schema.RiskMetricVaR,
	schema.RiskMetricCorrelation,
	schema.RiskMetricPositionSize,
}

// Limits holds portfolio risk limits. A zero value disables the
// corresponding check.
type Limits struct {
	// MaxVaR caps portfolio value at risk as a fraction of equity.
	// Breaches resize the order when a smaller quantity satisfies the cap.
	MaxVaR float64 `json:"maxVaR" yaml:"maxVaR"`

	// VaRConfidence is the confidence level for historical VaR.
	VaRConfidence float64 `json:"varConfidence" yaml:"varConfidence"`

	// MaxDrawdownPct halts new risk-increasing orders once the fractional
	// decline from the equity high-water mark reaches it.
	MaxDrawdownPct float64 `json:"maxDrawdownPct" yaml:"maxDrawdownPct"`

	// MaxCorrelationExposure caps the gross notional held in instruments
	// correlated with the order's instrument, as a fraction of equity.
	MaxCorrelationExposure float64 `json:"maxCorrelationExposure" yaml:"maxCorrelationExposure"`

	// CorrelationThreshold is the absolute return correlation above which
	// two instruments count toward the same exposure cluster.
	CorrelationThreshold float64 `json:"correlationThreshold" yaml:"correlationThreshold"`

	// MaxPositionSize caps the absolute position per instrument in units.
	// Breaches resize the order to the largest quantity under the cap.
	MaxPositionSize float64 `json:"maxPositionSize" yaml:"maxPositionSize"`

	// TradeCostBps estimates execution cost in basis points of trade
	// notional, charged against equity when projecting drawdown.
	TradeCostBps float64 `json:"tradeCostBps" yaml:"tradeCostBps"`

	// Priority is the metric evaluation order. The first breach determines
	// the decision. Empty means DefaultPriority.
	Priority []schema.RiskMetric `json:"priority" yaml:"priority"`
}

func (l Limits) withDefaults() Limits {
	if l.VaRConfidence == 0 {
		l.VaRConfidence = defaultVaRConfidence
	}
	if l.CorrelationThreshold == 0 {
		l.CorrelationThreshold = defaultCorrelationThreshold
	}
	if len(l.Priority) == 0 {
		l.Priority = DefaultPriority
	}
	return l
}

// Validate checks if the limits are usable.
func (l Limits) Validate() error {
	if l.MaxVaR < 0 {
		return fmt.Errorf("invalid risk limits: MaxVaR must be >= 0")
	}
	if l.VaRConfidence < 0 || l.VaRConfidence >= 1 {
		return fmt.Errorf("invalid risk limits: VaRConfidence must be in [0, 1)")
	}
	if l.MaxDrawdownPct < 0 || l.MaxDrawdownPct > 1 {
		return fmt.Errorf("invalid risk limits: MaxDrawdownPct must be in [0, 1]")
	}
	if l.MaxCorrelationExposure < 0 {
		return fmt.Errorf("invalid risk limits: MaxCorrelationExposure must be >= 0")
	}
	if l.CorrelationThreshold < 0 || l.CorrelationThreshold > 1 {
		return fmt.Errorf("invalid risk limits: CorrelationThreshold must be in [0, 1]")
	}
	if l.MaxPositionSize < 0 {
		return fmt.Errorf("invalid risk limits: MaxPositionSize must be >= 0")
	}
	if l.TradeCostBps < 0 {
		return fmt.Errorf("invalid risk limits: TradeCostBps must be >= 0")
	}
	seen := make(map[schema.RiskMetric]bool, len(l.Priority))
	for _, metric := range l.Priority {
		switch metric {
		case schema.RiskMetricDrawdown, schema.RiskMetricVaR,
			schema.RiskMetricCorrelation, schema.RiskMetricPositionSize:
		default:
			return fmt.Errorf("invalid risk limits: unknown priority metric: %d", metric)
		}
		if seen[metric] {
			return fmt.Errorf("invalid risk limits: duplicate priority metric: %d", metric)
		}
		seen[metric] = true
	}
	return nil
}

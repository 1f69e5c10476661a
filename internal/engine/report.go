package engine

import (
	"fmt"
	"math"
	"strings"

	"main/internal/obs"
	"main/internal/state"
)

// periodsPerYear annualizes Sharpe from per-observation returns, assuming
// daily observations.
const periodsPerYear = 252

// Report summarizes one completed run.
type Report struct {
	RunID string

	InitialCash float64
	FinalEquity float64
	Cash        float64
	RealizedPnL float64
	Fees        float64

	TotalReturn float64
	SharpeRatio float64
	MaxDrawdown float64

	EventsProcessed uint64
	Fills           uint64
	OrdersApproved  uint64
	OrdersRejected  uint64
	OrdersResized   uint64
	StaleDrops      uint64
}

func buildReport(runID string, ledger *state.Ledger, metrics obs.Snapshot) Report {
	view := ledger.Snapshot()

	report := Report{
		RunID:       runID,
		InitialCash: view.InitialCash,
		FinalEquity: view.Equity,
		Cash:        view.Cash,
		RealizedPnL: ledger.RealizedPnL(),
		Fees:        ledger.Fees(),
		MaxDrawdown: ledger.MaxDrawdown(),

		Fills:          metrics.Fills,
		OrdersApproved: metrics.OrdersApproved,
		OrdersRejected: metrics.OrdersRejected,
		OrdersResized:  metrics.OrdersResized,
		StaleDrops:     metrics.StaleDrops,
	}
	for _, count := range metrics.EventCounts {
		report.EventsProcessed += count
	}
	if view.InitialCash > 0 {
		report.TotalReturn = view.Equity/view.InitialCash - 1
	}
	report.SharpeRatio = sharpe(view.EquityReturns)
	return report
}

// sharpe annualizes the mean/stddev ratio of the equity return samples.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(periodsPerYear)
}

// String renders the report for the command line.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run:             %s\n", r.RunID)
	fmt.Fprintf(&b, "initial cash:    %.2f\n", r.InitialCash)
	fmt.Fprintf(&b, "final equity:    %.2f\n", r.FinalEquity)
	fmt.Fprintf(&b, "total return:    %.4f%%\n", r.TotalReturn*100)
	fmt.Fprintf(&b, "realized pnl:    %.2f\n", r.RealizedPnL)
	fmt.Fprintf(&b, "fees:            %.2f\n", r.Fees)
	fmt.Fprintf(&b, "sharpe:          %.3f\n", r.SharpeRatio)
	fmt.Fprintf(&b, "max drawdown:    %.4f%%\n", r.MaxDrawdown*100)
	fmt.Fprintf(&b, "events:          %d\n", r.EventsProcessed)
	fmt.Fprintf(&b, "fills:           %d\n", r.Fills)
	fmt.Fprintf(&b, "orders approved: %d\n", r.OrdersApproved)
	fmt.Fprintf(&b, "orders resized:  %d\n", r.OrdersResized)
	fmt.Fprintf(&b, "orders rejected: %d\n", r.OrdersRejected)
	if r.StaleDrops > 0 {
		fmt.Fprintf(&b, "stale drops:     %d\n", r.StaleDrops)
	}
	return b.String()
}

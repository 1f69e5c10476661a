package obs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Exporter exposes engine counters and risk gauges for external scraping.
// Nothing in the engine reads these back.
type Exporter struct {
	registry *prometheus.Registry

	events     *prometheus.CounterVec
	orders     *prometheus.CounterVec
	rejections *prometheus.CounterVec
	fills      prometheus.Counter
	staleDrops prometheus.Counter

	drawdown    prometheus.Gauge
	valueAtRisk prometheus.Gauge
	equity      prometheus.Gauge
}

// NewExporter creates an exporter with its own prometheus registry.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Name:      "events_processed_total",
			Help:      "Events processed by the pipeline, by type.",
		}, []string{"type"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Name:      "orders_total",
			Help:      "Order decisions, by outcome.",
		}, []string{"outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Name:      "order_rejections_total",
			Help:      "Order rejections, by reason.",
		}, []string{"reason"}),
		fills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Name:      "fills_total",
			Help:      "Fills applied to the ledger.",
		}),
		staleDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Name:      "stale_ticks_dropped_total",
			Help:      "Ticks dropped for arriving past the reorder watermark.",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "engine",
			Name:      "drawdown",
			Help:      "Current fractional drawdown from the high-water mark.",
		}),
		valueAtRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "engine",
			Name:      "value_at_risk",
			Help:      "Current portfolio VaR as a fraction of equity.",
		}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "engine",
			Name:      "equity",
			Help:      "Current portfolio equity.",
		}),
	}
	e.registry.MustRegister(e.events, e.orders, e.rejections, e.fills, e.staleDrops, e.drawdown, e.valueAtRisk, e.equity)
	return e
}

// IncEvent counts a processed event.
func (e *Exporter) IncEvent(t schema.EventType) {
	if e == nil {
		return
	}
	e.events.WithLabelValues(t.String()).Inc()
}

// IncApproved counts an approved order.
func (e *Exporter) IncApproved() {
	if e == nil {
		return
	}
	e.orders.WithLabelValues("approved").Inc()
}

// IncResized counts a resized order.
func (e *Exporter) IncResized() {
	if e == nil {
		return
	}
	e.orders.WithLabelValues("resized").Inc()
}

// IncRejected counts a rejected order by reason.
func (e *Exporter) IncRejected(reason schema.RejectReason) {
	if e == nil {
		return
	}
	e.orders.WithLabelValues("rejected").Inc()
	e.rejections.WithLabelValues(reason.String()).Inc()
}

// IncFill counts an applied fill.
func (e *Exporter) IncFill() {
	if e == nil {
		return
	}
	e.fills.Inc()
}

// IncStaleDrop counts a stale tick drop.
func (e *Exporter) IncStaleDrop() {
	if e == nil {
		return
	}
	e.staleDrops.Inc()
}

// SetRisk updates the drawdown and VaR gauges.
func (e *Exporter) SetRisk(drawdown, valueAtRisk float64) {
	if e == nil {
		return
	}
	e.drawdown.Set(drawdown)
	e.valueAtRisk.Set(valueAtRisk)
}

// SetEquity updates the equity gauge.
func (e *Exporter) SetEquity(v float64) {
	if e == nil {
		return
	}
	e.equity.Set(v)
}

// Handler returns the scrape handler.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve runs a scrape endpoint on addr until ctx is canceled.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logs.Warnf("metrics server shutdown failed, err: %+v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

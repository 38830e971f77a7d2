// Package telemetry exposes Prometheus instrumentation for backtest
// runs. All Collector methods are nil-safe so call sites never need to
// guard on whether metrics were wired.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector counts the lifecycle events of a backtest run.
type Collector struct {
	signalsGraded   *prometheus.CounterVec
	signalsRejected prometheus.Counter
	tradesOpened    prometheus.Counter
	tradesClosed    *prometheus.CounterVec
	runDuration     prometheus.Histogram
}

// NewCollector registers the backtest metrics with the given registerer.
// Pass prometheus.DefaultRegisterer for process-wide metrics or a fresh
// registry in tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		signalsGraded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smcrun",
			Name:      "signals_graded_total",
			Help:      "Signals accepted by the quality filter, by grade.",
		}, []string{"grade"}),
		signalsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "smcrun",
			Name:      "signals_rejected_total",
			Help:      "Signal candidates dropped by the quality filter.",
		}),
		tradesOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "smcrun",
			Name:      "trades_opened_total",
			Help:      "Trades opened during replay.",
		}),
		tradesClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smcrun",
			Name:      "trades_closed_total",
			Help:      "Trades closed during replay, by outcome.",
		}, []string{"outcome"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smcrun",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of completed backtest runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

// SignalGraded records an accepted signal with its grade.
func (c *Collector) SignalGraded(grade string) {
	if c == nil {
		return
	}
	c.signalsGraded.WithLabelValues(grade).Inc()
}

// SignalRejected records a candidate dropped by the quality filter.
func (c *Collector) SignalRejected() {
	if c == nil {
		return
	}
	c.signalsRejected.Inc()
}

// TradeOpened records a trade opening.
func (c *Collector) TradeOpened() {
	if c == nil {
		return
	}
	c.tradesOpened.Inc()
}

// TradeClosed records a trade closing with its outcome.
func (c *Collector) TradeClosed(outcome string) {
	if c == nil {
		return
	}
	c.tradesClosed.WithLabelValues(outcome).Inc()
}

// RunCompleted records the wall-clock duration of a finished run.
func (c *Collector) RunCompleted(seconds float64) {
	if c == nil {
		return
	}
	c.runDuration.Observe(seconds)
}

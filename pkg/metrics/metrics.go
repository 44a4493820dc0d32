package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// Sample is the per-tick snapshot emitted by the controller.
type Sample struct {
	MidPrice     float64
	Inventory    float64
	Cash         float64
	MarkToMarket float64
	BidQuote     float64
	AskQuote     float64
}

// Sink receives quoting telemetry. The controller emits one Sample per tick
// plus event counters; implementations decide where they go.
type Sink interface {
	Observe(s Sample)
	FillRecorded(side string)
	DegradedTick()
	FeedError()
	SubmitError()
}

// PrometheusSink exports quoting telemetry as Prometheus gauges and counters.
type PrometheusSink struct {
	midPrice     prometheus.Gauge
	inventory    prometheus.Gauge
	cash         prometheus.Gauge
	markToMarket prometheus.Gauge
	bidQuote     prometheus.Gauge
	askQuote     prometheus.Gauge

	fills         *prometheus.CounterVec
	degradedTicks prometheus.Counter
	feedErrors    prometheus.Counter
	submitErrors  prometheus.Counter
}

// NewPrometheusSink registers the quoter metric set with reg. Symbol becomes
// a constant label so multiple quoters can share a registry.
func NewPrometheusSink(reg prometheus.Registerer, symbol string) *PrometheusSink {
	labels := prometheus.Labels{"symbol": symbol}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "quoter",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(g)
		return g
	}
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "quoter",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(c)
		return c
	}

	fills := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "quoter",
		Name:        "fills_total",
		Help:        "Fills applied to the ledger.",
		ConstLabels: labels,
	}, []string{"side"})
	reg.MustRegister(fills)

	return &PrometheusSink{
		midPrice:     gauge("mid_price", "Current mid-price."),
		inventory:    gauge("inventory", "Current signed inventory."),
		cash:         gauge("cash", "Current cash balance."),
		markToMarket: gauge("mark_to_market", "Portfolio value at current mid."),
		bidQuote:     gauge("bid_quote", "Resting bid price, 0 when suppressed."),
		askQuote:     gauge("ask_quote", "Resting ask price, 0 when suppressed."),

		fills:         fills,
		degradedTicks: counter("degraded_ticks_total", "Ticks skipped for lack of a two-sided market."),
		feedErrors:    counter("feed_errors_total", "Market data ingestion failures."),
		submitErrors:  counter("submit_errors_total", "Quote submissions that failed or were rejected."),
	}
}

func (p *PrometheusSink) Observe(s Sample) {
	p.midPrice.Set(s.MidPrice)
	p.inventory.Set(s.Inventory)
	p.cash.Set(s.Cash)
	p.markToMarket.Set(s.MarkToMarket)
	p.bidQuote.Set(s.BidQuote)
	// The suppressed-ask sentinel is +Inf; export 0 so dashboards stay sane.
	askQuote := s.AskQuote
	if math.IsInf(askQuote, 1) || math.IsNaN(askQuote) {
		askQuote = 0
	}
	p.askQuote.Set(askQuote)
}

func (p *PrometheusSink) FillRecorded(side string) { p.fills.WithLabelValues(side).Inc() }
func (p *PrometheusSink) DegradedTick()            { p.degradedTicks.Inc() }
func (p *PrometheusSink) FeedError()               { p.feedErrors.Inc() }
func (p *PrometheusSink) SubmitError()             { p.submitErrors.Inc() }

// NopSink discards everything; used when metrics are disabled.
type NopSink struct{}

func (NopSink) Observe(Sample)       {}
func (NopSink) FillRecorded(string)  {}
func (NopSink) DegradedTick()        {}
func (NopSink) FeedError()           {}
func (NopSink) SubmitError()         {}

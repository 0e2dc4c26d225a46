// Package metrics exposes feed and book health as Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var feedStates = []string{"disconnected", "connecting", "subscribing", "streaming", "backoff", "terminated",
	"idle", "playing", "paused", "finished", "stopped"}

// Metrics holds every collector. It implements domain.FeedObserver and
// serves as a book snapshot sink.
type Metrics struct {
	registry *prometheus.Registry

	feedState    *prometheus.GaugeVec
	reconnects   *prometheus.CounterVec
	backoffDelay *prometheus.GaugeVec
	messages     *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	entries      *prometheus.CounterVec
	processing   *prometheus.HistogramVec
	bookLevels   *prometheus.GaugeVec
	bestPrice    *prometheus.GaugeVec
	midPrice     prometheus.Gauge
	bookAge      prometheus.Gauge
	bookStale    prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		feedState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesim_feed_state",
			Help: "1 for the current state of each book writer.",
		}, []string{"source", "state"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_feed_reconnects_total",
			Help: "Backoff entries after a failed or dropped connection.",
		}, []string{"source"}),
		backoffDelay: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesim_feed_backoff_seconds",
			Help: "Current reconnect delay.",
		}, []string{"source"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_feed_messages_total",
			Help: "Decoded messages handled.",
		}, []string{"source"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_feed_decode_errors_total",
			Help: "Frames dropped because they could not be decoded.",
		}, []string{"source"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_book_entries_total",
			Help: "Price level entries by outcome.",
		}, []string{"outcome"}),
		processing: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradesim_feed_processing_seconds",
			Help:    "Time from frame received to book mutation applied.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"source"}),
		bookLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesim_book_levels",
			Help: "Number of price levels per side.",
		}, []string{"side"}),
		bestPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesim_book_best_price",
			Help: "Best ask and best bid.",
		}, []string{"side"}),
		midPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesim_book_mid_price",
			Help: "Mid price, 0 when either side is empty.",
		}),
		bookAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesim_book_age_seconds",
			Help: "Seconds since the last book update at the last snapshot.",
		}),
		bookStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesim_book_stale",
			Help: "1 when the book is stale.",
		}),
	}
	m.registry.MustRegister(
		m.feedState, m.reconnects, m.backoffDelay, m.messages, m.decodeErrors,
		m.entries, m.processing, m.bookLevels, m.bestPrice, m.midPrice, m.bookAge, m.bookStale,
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StateChanged implements domain.FeedObserver.
func (m *Metrics) StateChanged(source, state string, _ int, delay time.Duration) {
	for _, s := range feedStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.feedState.WithLabelValues(source, s).Set(v)
	}
	if state == "backoff" {
		m.reconnects.WithLabelValues(source).Inc()
		m.backoffDelay.WithLabelValues(source).Set(delay.Seconds())
	}
}

// MessageHandled implements domain.FeedObserver.
func (m *Metrics) MessageHandled(source string, latency time.Duration, res domain.ApplyResult) {
	m.messages.WithLabelValues(source).Inc()
	m.processing.WithLabelValues(source).Observe(latency.Seconds())
	m.entries.WithLabelValues("upsert").Add(float64(res.Upserts))
	m.entries.WithLabelValues("delete").Add(float64(res.Deletes))
	m.entries.WithLabelValues("noop").Add(float64(res.Noops))
	m.entries.WithLabelValues("rejected").Add(float64(res.Rejected))
}

// DecodeFailed implements domain.FeedObserver.
func (m *Metrics) DecodeFailed(source string) {
	m.decodeErrors.WithLabelValues(source).Inc()
}

// Name identifies the sink.
func (m *Metrics) Name() string { return "metrics" }

// Publish records a book snapshot.
func (m *Metrics) Publish(_ context.Context, snap domain.BookSnapshot) error {
	m.bookLevels.WithLabelValues(string(domain.SideAsk)).Set(float64(snap.AskLevels))
	m.bookLevels.WithLabelValues(string(domain.SideBid)).Set(float64(snap.BidLevels))
	m.bestPrice.WithLabelValues(string(domain.SideAsk)).Set(snap.BestAsk)
	m.bestPrice.WithLabelValues(string(domain.SideBid)).Set(snap.BestBid)
	m.midPrice.Set(snap.MidPrice)
	if !snap.LastUpdateAt.IsZero() {
		m.bookAge.Set(time.Since(snap.LastUpdateAt).Seconds())
	}
	if snap.Stale {
		m.bookStale.Set(1)
	} else {
		m.bookStale.Set(0)
	}
	return nil
}

var _ domain.FeedObserver = (*Metrics)(nil)

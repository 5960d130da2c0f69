// Package metrics exposes Prometheus instrumentation for streams, the
// instrument catalog and the session controller. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for optiondesk.
type Metrics struct {
	registry *prometheus.Registry

	StreamConnects   *prometheus.CounterVec // labels: channel
	StreamReconnects *prometheus.CounterVec // labels: channel
	StreamMessages   *prometheus.CounterVec // labels: channel
	StreamMalformed  *prometheus.CounterVec // labels: channel
	StreamState      *prometheus.GaugeVec   // labels: channel; 0=idle 1=connecting 2=connected 3=closed

	CatalogLoads       *prometheus.CounterVec // labels: source=cache|supplier|error
	CatalogInstruments prometheus.Gauge

	AuthExpired     prometheus.Counter
	RecomputeDur    prometheus.Histogram
	CallbackPanics  prometheus.Counter
	DispatchBacklog prometheus.Gauge
}

// New creates the metrics and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		StreamConnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optiondesk_stream_connects_total",
			Help: "Successful stream connections",
		}, []string{"channel"}),
		StreamReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optiondesk_stream_reconnects_total",
			Help: "Reconnects scheduled after an unexpected close",
		}, []string{"channel"}),
		StreamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optiondesk_stream_messages_total",
			Help: "Decoded inbound stream messages",
		}, []string{"channel"}),
		StreamMalformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optiondesk_stream_malformed_total",
			Help: "Inbound payloads dropped because they could not be decoded",
		}, []string{"channel"}),
		StreamState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optiondesk_stream_state",
			Help: "Stream state (0=idle, 1=connecting, 2=connected, 3=closed)",
		}, []string{"channel"}),

		CatalogLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optiondesk_catalog_loads_total",
			Help: "Catalog loads by source",
		}, []string{"source"}),
		CatalogInstruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "optiondesk_catalog_instruments",
			Help: "Instruments in the loaded catalog",
		}),

		AuthExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optiondesk_auth_expired_total",
			Help: "Session expiry signals raised",
		}),
		RecomputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "optiondesk_recompute_duration_seconds",
			Help:    "Pricing and margin recompute latency per event",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		CallbackPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optiondesk_callback_panics_total",
			Help: "Panics recovered on the dispatch loop",
		}),
		DispatchBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "optiondesk_dispatch_backlog",
			Help: "Events waiting on the dispatch loop",
		}),
	}

	m.registry.MustRegister(
		m.StreamConnects,
		m.StreamReconnects,
		m.StreamMessages,
		m.StreamMalformed,
		m.StreamState,
		m.CatalogLoads,
		m.CatalogInstruments,
		m.AuthExpired,
		m.RecomputeDur,
		m.CallbackPanics,
		m.DispatchBacklog,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StreamConnected records a successful connection.
func (m *Metrics) StreamConnected(channel string) {
	if m == nil {
		return
	}
	m.StreamConnects.WithLabelValues(channel).Inc()
}

// StreamReconnectScheduled records a pending reconnect.
func (m *Metrics) StreamReconnectScheduled(channel string) {
	if m == nil {
		return
	}
	m.StreamReconnects.WithLabelValues(channel).Inc()
}

// StreamMessage records a decoded message.
func (m *Metrics) StreamMessage(channel string) {
	if m == nil {
		return
	}
	m.StreamMessages.WithLabelValues(channel).Inc()
}

// StreamMalformedMessage records a dropped payload.
func (m *Metrics) StreamMalformedMessage(channel string) {
	if m == nil {
		return
	}
	m.StreamMalformed.WithLabelValues(channel).Inc()
}

// SetStreamState records the current state ordinal of a channel.
func (m *Metrics) SetStreamState(channel string, state int) {
	if m == nil {
		return
	}
	m.StreamState.WithLabelValues(channel).Set(float64(state))
}

// CatalogLoaded records where a catalog load was served from.
func (m *Metrics) CatalogLoaded(source string, instruments int) {
	if m == nil {
		return
	}
	m.CatalogLoads.WithLabelValues(source).Inc()
	if source != "error" {
		m.CatalogInstruments.Set(float64(instruments))
	}
}

// AuthExpiredSignal records a session expiry.
func (m *Metrics) AuthExpiredSignal() {
	if m == nil {
		return
	}
	m.AuthExpired.Inc()
}

// ObserveRecompute records how long one recompute took.
func (m *Metrics) ObserveRecompute(d time.Duration) {
	if m == nil {
		return
	}
	m.RecomputeDur.Observe(d.Seconds())
}

// CallbackPanic records a recovered panic.
func (m *Metrics) CallbackPanic() {
	if m == nil {
		return
	}
	m.CallbackPanics.Inc()
}

// SetDispatchBacklog records the queue depth of the dispatch loop.
func (m *Metrics) SetDispatchBacklog(n int) {
	if m == nil {
		return
	}
	m.DispatchBacklog.Set(float64(n))
}

/*
Package metrics owns the process Prometheus registry.

Counters are plain fields so hot paths increment them without lookups. Values that already live in
domain objects (pool size, subscriber count) are exposed through Observe, which samples them at scrape time.
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "danmaku"

type Metrics struct {
	registry *prometheus.Registry

	// [RELAY]
	Submitted         prometheus.Counter
	Delivered         prometheus.Counter
	DecodeFailures    prometheus.Counter
	BroadcastFailures prometheus.Counter
	Misses            prometheus.Counter
	PublishDuration   prometheus.Histogram

	// [SESSIONS]
	Connections      prometheus.Gauge
	ConnectionsTotal prometheus.Counter

	// [MAINTENANCE]
	Collected prometheus.Counter

	// [EXPORT]
	ExportFailures prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry:          reg,
		Submitted:         counter("relay", "submitted_total", "Danmaku accepted from clients."),
		Delivered:         counter("relay", "delivered_total", "Danmaku frames written to clients."),
		DecodeFailures:    counter("relay", "decode_failures_total", "Inbound frames that were not a valid danmaku."),
		BroadcastFailures: counter("relay", "broadcast_failures_total", "Publishes that could not reach every subscriber."),
		Misses:            counter("relay", "pool_misses_total", "Published ids that no longer resolved in the pool."),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "relay", Name: "publish_duration_seconds",
			Help:    "Time a publish held the fan-out, including waits on full mailboxes.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ws", Name: "connections",
			Help: "Open WebSocket connections.",
		}),
		ConnectionsTotal: counter("ws", "connections_total", "WebSocket connections accepted."),
		Collected:        counter("pool", "collected_total", "Entries reclaimed by the pool janitor."),
		ExportFailures:   counter("export", "failures_total", "Danmaku that could not be mirrored to the export publisher."),
	}

	reg.MustRegister(
		m.Submitted, m.Delivered, m.DecodeFailures, m.BroadcastFailures, m.Misses, m.PublishDuration,
		m.Connections, m.ConnectionsTotal, m.Collected, m.ExportFailures,
	)
	return m
}

func counter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// Observe exposes fn as a gauge sampled on every scrape.
func (m *Metrics) Observe(subsystem, name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

// ObserveCounter is Observe for monotonically increasing values.
func (m *Metrics) ObserveCounter(subsystem, name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

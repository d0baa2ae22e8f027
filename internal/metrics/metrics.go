// Package metrics exposes Hermes's broker-wide counters (internal/fanout.Stats
// plus reactor lifecycle counts) as Prometheus collectors, served from a
// background HTTP goroutine that never touches the reactor's hot path.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nirvagold/hermes/internal/fanout"
)

// Metrics wraps a private prometheus.Registry so multiple Hermes instances
// (e.g. under test) can each build their own Metrics without colliding on
// prometheus's global default registry.
type Metrics struct {
	registry *prometheus.Registry

	messagesBroadcast       prometheus.Counter
	messagesDropped         prometheus.Counter
	framingErrors           prometheus.Counter
	crcErrors               prometheus.Counter
	connectionsAccepted     prometheus.Counter
	connectionsRejected     prometheus.Counter
	connectionsClosed       prometheus.Counter
	subscribersDisconnected prometheus.Counter
	connectionsActive       prometheus.Gauge
}

// New constructs and registers every collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		messagesBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_messages_broadcast_total",
			Help: "Total frames successfully pushed into a subscriber ring.",
		}),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_messages_dropped_total",
			Help: "Total frames dropped due to subscriber backpressure.",
		}),
		framingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_framing_errors_total",
			Help: "Total connections closed due to a framing error.",
		}),
		crcErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_crc_errors_total",
			Help: "Total frames rejected for a CRC mismatch.",
		}),
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_connections_accepted_total",
			Help: "Total TCP connections accepted.",
		}),
		connectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_connections_rejected_total",
			Help: "Total TCP connections rejected by the accept rate limiter.",
		}),
		connectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_connections_closed_total",
			Help: "Total connections closed for any reason.",
		}),
		subscribersDisconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_subscribers_disconnected_total",
			Help: "Total subscribers disconnected for exceeding the drop threshold.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hermes_connections_active",
			Help: "Current number of open connections.",
		}),
	}
	reg.MustRegister(
		m.messagesBroadcast, m.messagesDropped, m.framingErrors, m.crcErrors,
		m.connectionsAccepted, m.connectionsRejected, m.connectionsClosed, m.subscribersDisconnected,
		m.connectionsActive,
	)
	return m
}

// Sample applies the delta between the previous and current reading of a
// fanout.Stats snapshot onto the Prometheus counters. Hermes's atomic
// counters only ever grow, so Sample is safe to call from a periodic
// collector goroutine with no locking against the reactor.
func (m *Metrics) Sample(s *fanout.Stats, prev *fanout.StatsSnapshot) {
	cur := s.Snapshot()
	m.messagesBroadcast.Add(float64(cur.MessagesBroadcast - prev.MessagesBroadcast))
	m.messagesDropped.Add(float64(cur.MessagesDropped - prev.MessagesDropped))
	m.framingErrors.Add(float64(cur.FramingErrors - prev.FramingErrors))
	m.crcErrors.Add(float64(cur.CRCErrors - prev.CRCErrors))
	m.connectionsAccepted.Add(float64(cur.ConnectionsAccepted - prev.ConnectionsAccepted))
	m.connectionsRejected.Add(float64(cur.ConnectionsRejected - prev.ConnectionsRejected))
	m.connectionsClosed.Add(float64(cur.ConnectionsClosed - prev.ConnectionsClosed))
	m.subscribersDisconnected.Add(float64(cur.SubscribersDisconnected - prev.SubscribersDisconnected))
	*prev = cur
}

// SetActiveConnections updates the connections-active gauge.
func (m *Metrics) SetActiveConnections(n int) { m.connectionsActive.Set(float64(n)) }

// Handler returns an http.Handler serving this Metrics' collectors in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Collector periodically samples a fanout.Stats onto a Metrics until ctx is
// cancelled.
type Collector struct {
	Metrics  *Metrics
	Stats    *fanout.Stats
	Interval time.Duration
}

// Run blocks, sampling every Interval, until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	var prev fanout.StatsSnapshot
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Metrics.Sample(c.Stats, &prev)
		}
	}
}

// Package metrics exposes session activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fix"

// Metrics holds the counters fed by the session decorators in this package.
type Metrics struct {
	// Messages by session and direction (in, out).
	MessagesTotal *prometheus.CounterVec
	// Bytes by session and direction.
	BytesTotal *prometheus.CounterVec
	// Session lifecycle events (logon, logout, disconnect, ...).
	EventsTotal *prometheus.CounterVec
	// Session error events by category (GARBLED_MESSAGE, IO_ERROR, ...).
	ErrorsTotal *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_total",
			Help:      "Total FIX messages received and sent",
		}, []string{"session_id", "direction"}),
		BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "bytes_total",
			Help:      "Total FIX message bytes received and sent",
		}, []string{"session_id", "direction"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Session lifecycle events",
		}, []string{"session_id", "event"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "errors_total",
			Help:      "Session error events by category",
		}, []string{"session_id", "category"}),
	}
}

// Register adds every metric to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	metrics := []prometheus.Collector{
		m.MessagesTotal,
		m.BytesTotal,
		m.EventsTotal,
		m.ErrorsTotal,
	}
	for _, metric := range metrics {
		if err := reg.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

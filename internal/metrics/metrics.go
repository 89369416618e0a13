// Package metrics provides Prometheus instrumentation for the relay engine.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "routefwd"

// Direction labels for relayed bytes.
const (
	Upstream   = "upstream"
	Downstream = "downstream"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing,
// so callers never need to check.
type Metrics struct {
	ListenersActive   prometheus.Gauge
	ListenFailures    *prometheus.CounterVec
	Accepted          *prometheus.CounterVec
	Rejected          *prometheus.CounterVec
	DestinationErrors *prometheus.CounterVec
	SessionsActive    prometheus.Gauge
	RelayErrors       prometheus.Counter
	BytesRelayed      *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer to
// expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ListenersActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners_active",
			Help:      "Number of bound port-group listeners",
		}),
		ListenFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listen_failures_total",
			Help:      "Port groups that could not be bound",
		}, []string{"port"}),
		Accepted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Accepted client connections",
		}, []string{"port"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Client connections closed because no route matched",
		}, []string{"port"}),
		DestinationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "destination_errors_total",
			Help:      "Destination lookups or connects that failed",
		}, []string{"port"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Relay sessions currently running",
		}),
		RelayErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_errors_total",
			Help:      "Relay sessions that ended with an I/O error",
		}),
		BytesRelayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_relayed_total",
			Help:      "Bytes copied between clients and destinations",
		}, []string{"direction"}),
	}
}

func portLabel(port uint16) string {
	return strconv.Itoa(int(port))
}

func (m *Metrics) ListenerUp() {
	if m != nil {
		m.ListenersActive.Inc()
	}
}

func (m *Metrics) ListenerDown() {
	if m != nil {
		m.ListenersActive.Dec()
	}
}

func (m *Metrics) ListenFailed(port uint16) {
	if m != nil {
		m.ListenFailures.WithLabelValues(portLabel(port)).Inc()
	}
}

func (m *Metrics) ConnAccepted(port uint16) {
	if m != nil {
		m.Accepted.WithLabelValues(portLabel(port)).Inc()
	}
}

func (m *Metrics) ConnRejected(port uint16) {
	if m != nil {
		m.Rejected.WithLabelValues(portLabel(port)).Inc()
	}
}

func (m *Metrics) DestinationFailed(port uint16) {
	if m != nil {
		m.DestinationErrors.WithLabelValues(portLabel(port)).Inc()
	}
}

func (m *Metrics) SessionStarted() {
	if m != nil {
		m.SessionsActive.Inc()
	}
}

// SessionEnded records a finished relay and the bytes it moved.
func (m *Metrics) SessionEnded(up, down int64, failed bool) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.BytesRelayed.WithLabelValues(Upstream).Add(float64(up))
	m.BytesRelayed.WithLabelValues(Downstream).Add(float64(down))
	if failed {
		m.RelayErrors.Inc()
	}
}

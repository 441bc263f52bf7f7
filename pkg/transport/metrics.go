package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the request counters and latency histograms for a set of clients
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates and registers the transport metrics with reg.
// A nil reg leaves them unregistered, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turtlego",
			Name:      "requests_total",
			Help:      "Round trips to TurtleCoind and wallet-api by outcome.",
		}, []string{"client", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "turtlego",
			Name:      "request_duration_seconds",
			Help:      "Round trip latency to TurtleCoind and wallet-api.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"client", "operation"}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

// Collectors exposes the underlying collectors
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.duration}
}

func (m *Metrics) observe(client, operation, outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(client, operation, outcome).Inc()
	m.duration.WithLabelValues(client, operation).Observe(elapsed.Seconds())
}

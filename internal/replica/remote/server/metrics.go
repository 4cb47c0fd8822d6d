package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds request counters for the replica API.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pushes   *prometheus.CounterVec
	bytes    prometheus.Histogram
}

// NewMetrics creates the server metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hivesync",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hivesync",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hivesync",
			Subsystem: "server",
			Name:      "pushes_total",
			Help:      "Accepted snapshot pushes by context kind.",
		}, []string{"kind"}),
		bytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hivesync",
			Subsystem: "server",
			Name:      "push_bytes",
			Help:      "Size of pushed snapshots.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.pushes, m.bytes)
	return m
}

// RecordRequest counts one finished request.
func (m *Metrics) RecordRequest(route string, code int, took time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(route).Observe(took.Seconds())
}

// RecordPush counts one accepted push of size bytes.
func (m *Metrics) RecordPush(kind string, size int) {
	m.pushes.WithLabelValues(kind).Inc()
	m.bytes.Observe(float64(size))
}

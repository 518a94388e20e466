package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the collectors exposed on /metrics.
type Metrics struct {
	Registry       *prometheus.Registry
	chatRequests   *prometheus.CounterVec
	chatDuration   prometheus.Histogram
	upstreamErrors *prometheus.CounterVec
}

// NewMetrics registers the chat collectors on a private registry.
// activeSessions is sampled at scrape time.
func NewMetrics(activeSessions func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvrag_chat_requests_total",
			Help: "Chat requests by outcome.",
		}, []string{"outcome"}),
		chatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cvrag_chat_duration_seconds",
			Help:    "Time spent answering chat requests.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvrag_upstream_errors_total",
			Help: "Upstream failures by operation.",
		}, []string{"op"}),
	}
	reg.MustRegister(
		m.chatRequests,
		m.chatDuration,
		m.upstreamErrors,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "cvrag_active_sessions",
			Help: "Conversation sessions held in memory.",
		}, activeSessions),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

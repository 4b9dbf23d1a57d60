// Package observability exposes Prometheus metrics for dispatch activity.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for provider dispatch.
type Metrics struct {
	registry *prometheus.Registry

	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	batchSize    prometheus.Histogram
	inFlight     prometheus.Gauge
}

// NewMetrics creates and registers the dispatch collectors on a private
// registry, alongside the standard Go and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multichat_provider_calls_total",
			Help: "Provider calls by provider name and outcome.",
		}, []string{"provider", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "multichat_provider_call_duration_seconds",
			Help:    "Provider call latency in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "multichat_dispatch_batch_size",
			Help:    "Number of implementations per dispatch batch.",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 12, 16},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "multichat_provider_calls_in_flight",
			Help: "Provider calls currently in flight.",
		}),
	}
	registry.MustRegister(m.callsTotal, m.callDuration, m.batchSize, m.inFlight)
	return m
}

// ObserveBatch records the size of a dispatch batch.
func (m *Metrics) ObserveBatch(size int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
}

// CallStarted marks a provider call as in flight.
func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// CallFinished records the outcome and latency of one provider call.
// outcome is "success" or "error".
func (m *Metrics) CallFinished(provider string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.callsTotal.WithLabelValues(provider, outcome).Inc()
	m.callDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// Handler returns an http.Handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

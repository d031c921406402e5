// Package observability exposes prometheus metrics for the inference
// service.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service collectors around a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	InferenceDuration prometheus.Histogram
	DecodeErrors      prometheus.Counter
	CacheHits         prometheus.Counter
}

// NewMetrics creates and registers the service collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audioclassifier_requests_total",
			Help: "Evaluation requests by status code.",
		}, []string{"status"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "audioclassifier_request_duration_seconds",
			Help:    "End-to-end evaluation request duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "audioclassifier_inference_duration_seconds",
			Help:    "Forward pass duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audioclassifier_decode_errors_total",
			Help: "Requests rejected because the audio payload could not be decoded.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audioclassifier_cache_hits_total",
			Help: "Evaluation responses served from the response cache.",
		}),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.InferenceDuration,
		m.DecodeErrors,
		m.CacheHits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns an http.Handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics exposes Prometheus counters and histograms for the
// proxy, grounded on the same promauto-based registration pattern used
// elsewhere in the LLM-proxy example pack.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the proxy's Prometheus collectors.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	UpstreamSeconds *prometheus.HistogramVec
	SSEChunksTotal  prometheus.Counter
}

// New registers and returns a fresh set of collectors against a private
// registry, so multiple Metrics instances (e.g. in tests) never collide
// on the global default registry.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmtap_proxy_requests_total",
			Help: "Total proxied requests, labeled by outcome.",
		}, []string{"outcome"}),
		UpstreamSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmtap_proxy_upstream_duration_seconds",
			Help:    "Upstream call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		SSEChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "llmtap_proxy_sse_chunks_total",
			Help: "Total SSE chunks forwarded to clients.",
		}),
	}
	return m, reg
}

// Handler returns the HTTP handler to mount at GET /_metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

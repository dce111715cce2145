package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry      *prometheus.Registry
	requestsTotal *prometheus.CounterVec
	cancelsTotal  *prometheus.CounterVec
}

// newMetricsRegistry registers the HTTP-surface metrics on the shared
// registry; the coordinator's swap metrics live on the same registry so
// one scrape endpoint covers both.
func newMetricsRegistry(r *prometheus.Registry) *metricsRegistry {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fusionswap_http_requests_total",
		Help: "API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	cancels := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fusionswap_operator_cancels_total",
		Help: "Operator cancellation requests by result",
	}, []string{"result"})

	r.MustRegister(requests, cancels)

	return &metricsRegistry{
		registry:      r,
		requestsTotal: requests,
		cancelsTotal:  cancels,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incRequest(endpoint, status string) {
	m.requestsTotal.WithLabelValues(endpoint, status).Inc()
}

func (m *metricsRegistry) incCancel(result string) {
	m.cancelsTotal.WithLabelValues(result).Inc()
}

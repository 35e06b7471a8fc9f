package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes Prometheus metrics.
type MetricsHandler struct {
	inner http.Handler
}

// NewMetricsHandler creates a handler serving the given registry in
// Prometheus exposition format.
func NewMetricsHandler(reg *prometheus.Registry) *MetricsHandler {
	return &MetricsHandler{
		inner: promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),
	}
}

// Metrics handles GET /metrics.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.inner.ServeHTTP(w, r)
}

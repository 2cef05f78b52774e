package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns the Prometheus metrics handler for the default
// registry, where every raw_organizer_* metric is registered.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

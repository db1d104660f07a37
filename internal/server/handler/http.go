// Package handler assembles the HTTP handler stack shared by both binaries.
package handler

import (
	"net/http"

	"github.com/brizzai/oidc-sample/internal/auth/constants"
	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/metrics"
	"github.com/brizzai/oidc-sample/internal/utils"
)

// Handler manages the common routes and the middleware stack.
type Handler struct {
	service    string
	metrics    *metrics.Metrics
	metricsCfg *config.MetricsConfig
}

// NewHandler creates a new HTTP handler for service.
func NewHandler(service string, m *metrics.Metrics, metricsCfg *config.MetricsConfig) *Handler {
	return &Handler{
		service:    service,
		metrics:    m,
		metricsCfg: metricsCfg,
	}
}

// CreateHTTPHandler registers health and metrics routes on mux and wraps it.
// wrap, if set, sits directly around the mux (session loading, CORS);
// metrics, panic recovery and access logging sit outside it.
func (h *Handler) CreateHTTPHandler(mux *http.ServeMux, wrap func(http.Handler) http.Handler) http.Handler {
	mux.HandleFunc("GET "+constants.RouteHealth, h.handleHealth)
	if h.metricsCfg.Enabled {
		path := h.metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, h.metrics.Handler())
	}

	var next http.Handler = mux
	if wrap != nil {
		next = wrap(next)
	}
	next = h.metrics.Middleware(mux)(next)
	next = Recover(next)
	return AccessLog(h.service)(next)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, map[string]string{"status": "ok", "service": h.service})
}

// Package apiservice is the bearer-protected resource server.
package apiservice

import (
	"net/http"

	"github.com/brizzai/oidc-sample/internal/auth/constants"
	"github.com/brizzai/oidc-sample/internal/auth/middleware"
	"github.com/brizzai/oidc-sample/internal/auth/providers"
	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/logger"
	"github.com/brizzai/oidc-sample/internal/server/handler"
	"github.com/brizzai/oidc-sample/internal/utils"
	"go.uber.org/zap"
)

// ServiceName labels logs and metrics
const ServiceName = "apiservice"

// AdminResponse is the body of POST /admin. Name is omitted when the token
// carries no name claim.
type AdminResponse struct {
	Name *string `json:"name,omitempty"`
}

// Server serves the API routes
type Server struct {
	validator providers.TokenValidator
	cors      *config.CORSConfig
}

// NewServer creates the API server
func NewServer(validator providers.TokenValidator, cfg *config.APIServiceConfig) *Server {
	return &Server{
		validator: validator,
		cors:      &cfg.CORS,
	}
}

// RegisterRoutes registers the protected routes
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST "+constants.RouteAdmin, middleware.Authenticate(s.validator)(http.HandlerFunc(s.handleAdmin)))
}

// Handler builds the complete handler stack; CORS preflight is answered
// before any route or authentication runs
func (s *Server) Handler(h *handler.Handler) http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return h.CreateHTTPHandler(mux, middleware.CORSWithOrigins(s.cors))
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	info := middleware.AuthInfoFromContext(r.Context())
	logger.Info("Admin request", zap.String("subject", info.Subject))
	var resp AdminResponse
	if name, ok := info.Identity.Claims["name"].(string); ok {
		resp.Name = &name
	}
	utils.WriteJSON(w, resp)
}

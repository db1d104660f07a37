package auth

import (
	"net/http"

	"github.com/brizzai/oidc-sample/internal/auth/binding"
	"github.com/brizzai/oidc-sample/internal/auth/constants"
	"github.com/brizzai/oidc-sample/internal/auth/handlers"
	"github.com/brizzai/oidc-sample/internal/auth/middleware"
	"github.com/brizzai/oidc-sample/internal/auth/providers"
	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/session"
	"go.uber.org/fx"
)

// Service represents the web client's OIDC login service
type Service struct {
	config       *config.OIDCConfig
	authProvider providers.Provider
	sessions     *session.Manager
	binder       *binding.Binder
	handler      *handlers.Handler
}

// NewService creates a new OIDC login service
func NewService(cfg *config.OIDCConfig, provider providers.Provider, sessions *session.Manager, binder *binding.Binder) *Service {
	return &Service{
		config:       cfg,
		authProvider: provider,
		sessions:     sessions,
		binder:       binder,
		handler:      handlers.NewHandler(cfg, provider, sessions, binder),
	}
}

// RegisterRoutes registers login, callback and logout routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+constants.RouteLogin, s.handler.HandleLogin)
	mux.HandleFunc("POST "+constants.RouteLogin, s.handler.HandleLogin)
	mux.HandleFunc("GET "+constants.RouteCallback, s.handler.HandleCallback)
	mux.HandleFunc("POST "+constants.RouteCallback, s.handler.HandleCallback)
	mux.HandleFunc("GET "+constants.RouteLogout, s.handler.HandleLogout)
}

// WrapWithSession loads the session and its principal for every request
func (s *Service) WrapWithSession(handler http.Handler) http.Handler {
	return s.sessions.Middleware(middleware.LoadUser(s.binder)(handler))
}

// RequireUser guards handler behind an authenticated session
func (s *Service) RequireUser(handler http.Handler) http.Handler {
	return middleware.RequireUser(handler)
}

// GetProvider returns the configured auth provider
func (s *Service) GetProvider() providers.Provider {
	return s.authProvider
}

// Sessions returns the session manager
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

func newOIDCProvider(cfg *config.OIDCConfig) (*providers.OIDCProvider, error) {
	return providers.NewOIDCProvider(cfg, providers.NewHTTPClient())
}

// Module provides the OIDC provider, the identity binder and the login service
var Module = fx.Module("auth",
	fx.Provide(
		func(cfg *config.WebClientConfig) *config.OIDCConfig { return &cfg.OIDC },
		fx.Annotate(newOIDCProvider, fx.As(new(providers.Provider))),
		binding.NewBinderFromConfig,
		NewService,
	),
)

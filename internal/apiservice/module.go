package apiservice

import (
	"github.com/brizzai/oidc-sample/internal/auth/providers"
	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/metrics"
	"github.com/brizzai/oidc-sample/internal/server"
	"github.com/brizzai/oidc-sample/internal/server/handler"
	"go.uber.org/fx"
)

func newBearerVerifier(cfg *config.APIServiceConfig) (*providers.BearerVerifier, error) {
	return providers.NewBearerVerifier(&cfg.Bearer, providers.NewHTTPClient())
}

func newHTTPServer(cfg *config.APIServiceConfig, s *Server) *server.HTTPServer {
	h := handler.NewHandler(ServiceName, metrics.New(ServiceName), &cfg.Metrics)
	return server.NewHTTPServer(ServiceName, &cfg.Server, s.Handler(h))
}

// Module provides the API server and starts it with the app
var Module = fx.Module("apiservice",
	fx.Provide(
		fx.Annotate(newBearerVerifier, fx.As(new(providers.TokenValidator))),
		NewServer,
		newHTTPServer,
	),
	fx.Invoke(server.Register),
)

package webclient

import (
	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/metrics"
	"github.com/brizzai/oidc-sample/internal/server"
	"github.com/brizzai/oidc-sample/internal/server/handler"
	"go.uber.org/fx"
)

func newHTTPServer(cfg *config.WebClientConfig, s *Server) *server.HTTPServer {
	h := handler.NewHandler(ServiceName, metrics.New(ServiceName), &cfg.Metrics)
	return server.NewHTTPServer(ServiceName, &cfg.Server, s.Handler(h))
}

// Module provides the web client server and starts it with the app
var Module = fx.Module("webclient",
	fx.Provide(
		NewServer,
		newHTTPServer,
	),
	fx.Invoke(server.Register),
)

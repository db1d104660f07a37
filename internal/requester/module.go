package requester

import (
	"github.com/brizzai/oidc-sample/internal/config"
	"go.uber.org/fx"
)

// Module provides the relay requester
var Module = fx.Module("requester",
	fx.Provide(
		func(cfg *config.WebClientConfig) *config.RelayConfig { return &cfg.Relay },
		NewHTTPRequestBuilder,
		NewHTTPRequester,
	),
)

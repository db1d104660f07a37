package identity

import (
	"context"
	"fmt"

	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewStore builds the store selected by identity.backend.
func NewStore(lc fx.Lifecycle, cfg *config.IdentityConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		logger.Info("Using in-memory identity store")
		return NewMemoryStore(), nil
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid identity.redis_url: %w", err)
		}
		client := redis.NewClient(opts)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("identity store unreachable: %w", err)
				}
				logger.Info("Connected identity store", zap.String("addr", opts.Addr))
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		return NewRedisStore(client, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported identity backend: %s", cfg.Backend)
	}
}

// Module provides the identity store
var Module = fx.Module("identity",
	fx.Provide(
		func(cfg *config.WebClientConfig) *config.IdentityConfig { return &cfg.Identity },
		NewStore,
	),
)

package session

import (
	"context"
	"fmt"

	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewStore builds the store selected by session.backend. The memory
// backend gets a janitor goroutine tied to the app lifecycle.
func NewStore(lc fx.Lifecycle, cfg *config.SessionConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		store := NewMemoryStore()
		if cfg.SweepInterval > 0 {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						defer close(done)
						store.RunJanitor(ctx, cfg.SweepInterval)
					}()
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					cancel()
					select {
					case <-done:
						return nil
					case <-stopCtx.Done():
						return stopCtx.Err()
					}
				},
			})
		}
		logger.Info("Using in-memory session store", zap.Duration("ttl", cfg.TTL))
		return store, nil
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid session.redis_url: %w", err)
		}
		client := redis.NewClient(opts)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("session store unreachable: %w", err)
				}
				logger.Info("Connected session store", zap.String("addr", opts.Addr))
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		return NewRedisStore(client, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", cfg.Backend)
	}
}

// Module provides the session store and cookie manager
var Module = fx.Module("session",
	fx.Provide(
		func(cfg *config.WebClientConfig) *config.SessionConfig { return &cfg.Session },
		NewStore,
		NewManager,
	),
)

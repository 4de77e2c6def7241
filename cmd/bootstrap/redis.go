package bootstrap

import (
	"context"
	"log/slog"

	"booking-checkout/internal/infra/holdtimer"
	"booking-checkout/internal/pkg/config"
	"booking-checkout/internal/usecase/commands"

	"go.uber.org/fx"
)

var RedisModule = fx.Module("redis",
	fx.Provide(
		NewRedisScheduler,
		NewHoldScheduler,
	),
)

// NewRedisScheduler returns nil when Redis is disabled. Holds then expire
// through the sweeper alone.
func NewRedisScheduler(lc fx.Lifecycle, cfg config.Config) *holdtimer.RedisScheduler {
	if !cfg.Redis.Enabled {
		slog.Info("redis disabled, hold expiry relies on the sweeper")
		return nil
	}

	client := holdtimer.NewRedisClient(cfg.Redis)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				slog.Warn("redis not reachable at startup", slog.String("error", err.Error()))
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})
	return holdtimer.NewRedisScheduler(client)
}

func NewHoldScheduler(s *holdtimer.RedisScheduler) commands.HoldScheduler {
	if s == nil {
		return commands.NopScheduler{}
	}
	return s
}

package bootstrap

import (
	"context"

	"booking-checkout/internal/infra/db"
	"booking-checkout/internal/infra/migrations"
	"booking-checkout/internal/pkg/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
)

var DBModule = fx.Module("db",
	fx.Provide(
		NewDB,
		NewReadDB,
	),
)

func NewDB(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DB.AutoMigrate {
		if err := migrations.Up(cfg.DB.BuildMigrateDSN()); err != nil {
			return nil, err
		}
	}

	pool, cleanup, err := db.Connect(context.Background(), cfg.DB)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			if cleanup != nil {
				cleanup()
			}
			return nil
		},
	})

	return pool, nil
}

// NewReadDB shares the pool, so it must close before the pool does. fx runs
// OnStop hooks in reverse order, which gives us that.
func NewReadDB(lc fx.Lifecycle, pool *pgxpool.Pool) *bun.DB {
	reads, cleanup := db.NewBunDB(pool)
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			cleanup()
			return nil
		},
	})
	return reads
}

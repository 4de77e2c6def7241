package bootstrap

import (
	"booking-checkout/cmd/bootstrap/components"
	"booking-checkout/internal/pkg/config"

	"go.uber.org/fx"
)

var ConfigModule = fx.Module("config",
	fx.Provide(
		config.LoadConfig,
	),
)

// Infra groups the external systems. E2E tests replace parts of it.
var Infra = fx.Options(
	ConfigModule,
	DBModule,
	RedisModule,
	BrokerModule,
	StripeModule,
	JWTModule,
	MetricsModule,
)

var App = fx.Options(
	components.PersistenceModule,
	components.UseCaseModule,
	components.HandlerModule,
)

var Module = fx.Options(
	Infra,
	App,
	WorkersModule,
)

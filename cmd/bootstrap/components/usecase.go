package components

import (
	"booking-checkout/internal/pkg/clock"
	"booking-checkout/internal/pkg/config"
	"booking-checkout/internal/usecase/commands"
	"booking-checkout/internal/usecase/queries"

	"go.uber.org/fx"
)

var UseCaseModule = fx.Module("usecase",
	usecaseBaseOption,
	usecaseQueriesModule,
	usecaseCommandsModule,
)

var usecaseBaseOption = fx.Provide(
	clock.NewRealClock,
	func(cfg config.Config) commands.Settings {
		return commands.SettingsFromConfig(cfg)
	},
)

var usecaseCommandsModule = fx.Module("usecase/commands",
	fx.Provide(
		commands.NewTransitioner,
		commands.NewCheckoutUseCase,
		commands.NewReconcileUseCase,
		commands.NewOutboxUseCase,
	),
)

var usecaseQueriesModule = fx.Module("usecase/queries",
	fx.Provide(
		queries.NewReservationQueries,
	),
)

package components

import (
	"booking-checkout/internal/infra/uow"
	"booking-checkout/internal/usecase/queries"
	"booking-checkout/internal/usecase/shared"

	"go.uber.org/fx"
)

// Repositories are built per transaction inside the unit of work, so only
// the unit of work and the query-side view are provided here.
var PersistenceModule = fx.Module("persistence",
	fx.Provide(
		uow.NewPostgresUoW,
		func(u *uow.PostgresUoW) shared.UnitOfWork { return u },
		func(u *uow.PostgresUoW) queries.ReservationViewRepo { return u.ReservationViews() },
	),
)

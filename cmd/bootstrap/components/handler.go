package components

import (
	"booking-checkout/internal/handler"
	"booking-checkout/internal/handler/api"
	"booking-checkout/internal/handler/middleware"

	"go.uber.org/fx"
)

var HandlerModule = fx.Module("handler",
	fx.Provide(
		api.NewCheckoutHandler,
		api.NewReservationHandler,
		api.NewWebhookHandler,
		middleware.NewAuthMiddleware,
		func(c *api.CheckoutHandler, r *api.ReservationHandler, w *api.WebhookHandler) handler.Handlers {
			return handler.Handlers{Checkout: c, Reservation: r, Webhook: w}
		},
	),
	fx.Invoke(handler.NewRouter),
)

package bootstrap

import (
	"booking-checkout/internal/infra/gateway"
	"booking-checkout/internal/pkg/config"
	"booking-checkout/internal/usecase/commands"

	"go.uber.org/fx"
)

var StripeModule = fx.Module("stripe",
	fx.Provide(
		fx.Annotate(
			NewStripeGateway,
			fx.As(new(commands.PaymentGateway)),
			fx.As(new(commands.WebhookVerifier)),
		),
	),
)

func NewStripeGateway(cfg config.Config) *gateway.StripeGateway {
	return gateway.NewStripeGateway(cfg.Stripe)
}

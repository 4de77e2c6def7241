package bootstrap

import (
	"context"

	"booking-checkout/internal/infra/messaging"
	"booking-checkout/internal/pkg/config"
	"booking-checkout/internal/usecase/commands"

	"go.uber.org/fx"
)

var BrokerModule = fx.Module("broker",
	fx.Provide(
		NewPublisher,
		func(p messaging.Publisher) commands.EventPublisher { return p },
	),
)

func NewPublisher(lc fx.Lifecycle, cfg config.Config) (messaging.Publisher, error) {
	p, err := messaging.NewPublisher(cfg.Broker)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return p.Close()
		},
	})
	return p, nil
}

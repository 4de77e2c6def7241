package bootstrap

import (
	"booking-checkout/internal/infra/metrics"
	"booking-checkout/internal/usecase/commands"

	"go.uber.org/fx"
)

var MetricsModule = fx.Module("metrics",
	fx.Provide(
		metrics.NewRegistry,
		metrics.New,
		func(m *metrics.Metrics) commands.Metrics { return m },
	),
)

package bootstrap

import (
	"context"

	"booking-checkout/internal/infra/holdtimer"
	"booking-checkout/internal/pkg/config"
	"booking-checkout/internal/usecase/commands"
	"booking-checkout/internal/worker"

	"go.uber.org/fx"
)

var WorkersModule = fx.Module("workers",
	fx.Provide(NewRunner),
	fx.Invoke(startWorkers),
)

func NewRunner(
	cfg config.Config,
	reconcile commands.ReconcileCommands,
	outbox commands.OutboxCommands,
	scheduler *holdtimer.RedisScheduler,
) *worker.Runner {
	tasks := []worker.Task{
		{Name: "hold-sweeper", Every: cfg.Checkout.SweepInterval, Run: reconcile.SweepExpired},
		{Name: "payment-reconciler", Every: cfg.Checkout.PollInterval, Run: reconcile.ReconcilePending},
		{Name: "outbox-relay", Every: cfg.Broker.RelayEvery, Run: outbox.RelayOutbox},
	}

	var listeners []worker.Listener
	if scheduler != nil {
		listeners = append(listeners, worker.Listener{
			Name: "hold-expiry",
			Run: func(ctx context.Context) error {
				scheduler.EnableNotifications(ctx)
				return scheduler.Listen(ctx, reconcile)
			},
		})
	}
	return worker.NewRunner(tasks, listeners)
}

func startWorkers(lc fx.Lifecycle, r *worker.Runner) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			r.Start()
			return nil
		},
		OnStop: r.Stop,
	})
}

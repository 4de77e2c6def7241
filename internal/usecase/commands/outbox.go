package commands

import (
	"context"
	"log/slog"
	"time"

	"booking-checkout/internal/pkg/clock"
	"booking-checkout/internal/pkg/errs"
	"booking-checkout/internal/usecase/shared"
)

const (
	relayBaseBackoff = time.Second
	relayMaxBackoff  = 5 * time.Minute
)

type OutboxCommands interface {
	// RelayOutbox publishes due outbox jobs and returns how many were acknowledged.
	RelayOutbox(ctx context.Context) (int, error)
}

type outboxUseCaseImpl struct {
	uow       shared.UnitOfWork
	publisher EventPublisher
	clock     clock.Clock
	settings  Settings
}

func NewOutboxUseCase(uow shared.UnitOfWork, publisher EventPublisher, clk clock.Clock, settings Settings) OutboxCommands {
	return &outboxUseCaseImpl{uow: uow, publisher: publisher, clock: clk, settings: settings}
}

// RelayOutbox delivers at least once. A job is marked sent only after the
// broker acknowledged it; a crash in between publishes it again.
func (uc *outboxUseCaseImpl) RelayOutbox(ctx context.Context) (int, error) {
	var sent int
	err := uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		sent = 0
		now := uc.clock.Now()
		jobs, err := tx.Notifications().FetchPending(ctx, now, uc.settings.BatchSize)
		if err != nil {
			return err
		}

		for _, job := range jobs {
			perr := uc.publisher.Publish(ctx, job.Topic, job.Key, job.Payload)
			if perr == nil {
				if err := tx.Notifications().MarkSent(ctx, job.ID, now); err != nil {
					return err
				}
				sent++
				continue
			}

			attempts := job.Attempts + 1
			terminal := uc.settings.RelayMaxAttempts > 0 && attempts >= uc.settings.RelayMaxAttempts
			slog.Warn("failed to publish outbox job",
				slog.String("job_id", job.ID.String()),
				slog.String("kind", job.Kind),
				slog.Int("attempts", attempts),
				slog.Bool("terminal", terminal),
				slog.String("error", perr.Error()))
			if err := tx.Notifications().MarkFailed(ctx, job.ID, perr.Error(), now.Add(relayBackoff(attempts)), terminal); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, errs.Mark(err, ErrDatabaseOperation)
	}
	return sent, nil
}

func relayBackoff(attempts int) time.Duration {
	d := relayBaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= relayMaxBackoff {
			return relayMaxBackoff
		}
	}
	return d
}

package commands

import (
	"context"
	"encoding/json"
	"log/slog"

	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/infra"
	"booking-checkout/internal/pkg/clock"
	"booking-checkout/internal/pkg/errs"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
)

const maxTransitionAttempts = 3

// Transitioner is the one place that moves a reservation out of
// waiting_payment. Every source (inline charge, webhook, polls, expiry)
// goes through ApplyGatewayOutcome so the capacity release, coupon usage and
// outbox event are written exactly once.
type Transitioner struct {
	uow       shared.UnitOfWork
	scheduler HoldScheduler
	metrics   Metrics
	clock     clock.Clock
	topic     string
}

func NewTransitioner(uow shared.UnitOfWork, scheduler HoldScheduler, metrics Metrics, clk clock.Clock, settings Settings) *Transitioner {
	return &Transitioner{uow: uow, scheduler: scheduler, metrics: metrics, clock: clk, topic: settings.EventTopic}
}

type AppliedOutcome struct {
	Reservation *reservation.Reservation
	Transition  reservation.Transition
}

// ApplyGatewayOutcome applies o to the reservation. A reservation that is
// already terminal is returned unchanged. An outcome naming a different
// gateway payment than the one stored is ignored.
func (t *Transitioner) ApplyGatewayOutcome(ctx context.Context, id uuid.UUID, o reservation.Outcome, source string) (*AppliedOutcome, error) {
	var applied *AppliedOutcome
	var err error
	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		applied, err = t.applyOnce(ctx, id, o)
		if err == nil || !infra.IsKind(err, infra.KindConflict) {
			break
		}
		slog.Debug("reservation moved concurrently, reapplying outcome",
			slog.String("reservation_id", id.String()),
			slog.Int("attempt", attempt))
	}
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, errs.Mark(err, ErrReservationNotFound)
		}
		return nil, err
	}

	if applied.Transition.Changed {
		if cerr := t.scheduler.Cancel(ctx, id); cerr != nil {
			slog.Warn("failed to cancel hold timer",
				slog.String("reservation_id", id.String()),
				slog.String("error", cerr.Error()))
		}
		t.metrics.ObserveTransition(source, applied.Transition.To.String())
		slog.Info("reservation transitioned",
			slog.String("reservation_id", id.String()),
			slog.String("from", applied.Transition.From.String()),
			slog.String("to", applied.Transition.To.String()),
			slog.String("source", source))
	}
	return applied, nil
}

func (t *Transitioner) applyOnce(ctx context.Context, id uuid.UUID, o reservation.Outcome) (*AppliedOutcome, error) {
	var applied *AppliedOutcome
	err := t.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		res, err := tx.Reservations().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if gp := res.GatewayPaymentID(); gp != nil && o.ExternalID != "" && *gp != o.ExternalID {
			slog.Warn("outcome for a superseded gateway payment ignored",
				slog.String("reservation_id", id.String()),
				slog.String("external_id", o.ExternalID))
			applied = &AppliedOutcome{Reservation: res, Transition: reservation.Transition{From: res.Status(), To: res.Status()}}
			return nil
		}

		now := t.clock.Now()
		tr, err := res.Apply(o, now)
		if err != nil {
			return err
		}
		applied = &AppliedOutcome{Reservation: res, Transition: tr}
		if !tr.Changed {
			return nil
		}

		if tr.Released != nil && !tr.Released.IsEmpty() {
			if err := tx.Capacity().Release(ctx, res.ListingID(), res.ServiceDate(), *tr.Released); err != nil {
				return err
			}
		}
		if err := tx.Reservations().Update(ctx, res); err != nil {
			return err
		}
		if tr.To == reservation.StatusApproved && res.CouponID() != nil {
			ok, err := tx.Coupons().IncrementUsage(ctx, *res.CouponID())
			if err != nil {
				return err
			}
			if !ok {
				slog.Warn("coupon usage limit passed by an approved reservation",
					slog.String("reservation_id", id.String()),
					slog.String("coupon_id", res.CouponID().String()))
			}
		}
		return t.enqueueOutcome(ctx, tx, res)
	})
	return applied, err
}

func (t *Transitioner) enqueueOutcome(ctx context.Context, tx shared.Tx, res *reservation.Reservation) error {
	owner := ""
	if snap, err := t.uow.CommandReads().ListingByID(ctx, res.ListingID()); err == nil {
		owner = snap.OwnerContact
	} else if !infra.IsKind(err, infra.KindNotFound) {
		return err
	}

	now := t.clock.Now()
	ev, ok := res.OutcomeEvent(owner, now)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errs.Wrap(err, "marshal outcome event")
	}
	return tx.Notifications().CreateJob(ctx, shared.NewNotificationJob{
		Kind:    reservation.EventTypeOutcome,
		Topic:   t.topic,
		Key:     res.ID().String(),
		Payload: payload,
		RunAt:   now,
	})
}

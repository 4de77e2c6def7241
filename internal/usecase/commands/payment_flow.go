package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/pkg/clock"
	"booking-checkout/internal/pkg/errs"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
)

// paymentFlow charges held reservations and records what the gateway said.
// Checkout and the reconciler share it.
type paymentFlow struct {
	uow          shared.UnitOfWork
	gateway      PaymentGateway
	scheduler    HoldScheduler
	transitioner *Transitioner
	clock        clock.Clock
	settings     Settings
}

func chargeKey(id uuid.UUID) string {
	return "charge-" + id.String()
}

func ownerCredential(merchantAccountID string) payment.OwnerCredential {
	return payment.OwnerCredential{AccountID: merchantAccountID}
}

// chargeAndSettle places the charge and drives the reservation to wherever
// the gateway answer leads. maxAttempts bounds retries on an unavailable
// gateway; the same idempotency key is sent on every attempt.
func (f *paymentFlow) chargeAndSettle(ctx context.Context, res *reservation.Reservation, owner payment.OwnerCredential, listingName string, maxAttempts int, source string) (*reservation.Reservation, error) {
	if res.Pricing().NetCents == 0 {
		applied, err := f.transitioner.ApplyGatewayOutcome(ctx, res.ID(), reservation.Outcome{Kind: reservation.OutcomeApproved}, source)
		if err != nil {
			return nil, err
		}
		return applied.Reservation, nil
	}
	if res.InstrumentRef() == nil {
		return nil, errs.Newf("reservation %s has no payment instrument", res.ID())
	}

	req := payment.ChargeRequest{
		ReservationID:       res.ID(),
		AmountCents:         res.Pricing().NetCents,
		ApplicationFeeCents: res.Pricing().CommissionCents,
		Currency:            f.settings.Currency,
		Method:              res.PaymentMethod(),
		InstrumentRef:       *res.InstrumentRef(),
		PayerEmail:          res.BuyerContact(),
		Description:         fmt.Sprintf("%s on %s", listingName, res.ServiceDate()),
		IdempotencyKey:      chargeKey(res.ID()),
	}

	outcome, attempts, err := f.charge(ctx, req, owner, maxAttempts)
	if err != nil {
		if _, rerr := f.recordUnavailable(ctx, res.ID(), attempts); rerr != nil {
			slog.Error("failed to record gateway failure",
				slog.String("reservation_id", res.ID().String()),
				slog.String("error", rerr.Error()))
		}
		return nil, err
	}
	return f.settle(ctx, res.ID(), outcome, attempts, source)
}

func (f *paymentFlow) charge(ctx context.Context, req payment.ChargeRequest, owner payment.OwnerCredential, maxAttempts int) (payment.Outcome, int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := f.gateway.Charge(ctx, req, owner)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err
		slog.Warn("charge attempt failed",
			slog.String("reservation_id", req.ReservationID.String()),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return payment.Outcome{}, attempt, errs.Mark(ctx.Err(), ErrGatewayUnavailable)
		case <-time.After(f.settings.GatewayBackoff * time.Duration(attempt)):
		}
	}
	return payment.Outcome{}, maxAttempts, errs.Mark(lastErr, ErrGatewayUnavailable)
}

func (f *paymentFlow) settle(ctx context.Context, id uuid.UUID, out payment.Outcome, attempts int, source string) (*reservation.Reservation, error) {
	switch out.Kind {
	case payment.OutcomeApproved, payment.OutcomeDeclined:
		kind := reservation.OutcomeApproved
		if out.Kind == payment.OutcomeDeclined {
			kind = reservation.OutcomeDeclined
		}
		applied, err := f.transitioner.ApplyGatewayOutcome(ctx, id, reservation.Outcome{
			Kind:       kind,
			ExternalID: out.ExternalID,
			Detail:     out.Detail,
		}, source)
		if err != nil {
			return nil, err
		}
		return applied.Reservation, nil

	case payment.OutcomePendingAsync:
		res, err := f.mutate(ctx, id, func(res *reservation.Reservation, now time.Time) error {
			// a webhook may have settled it already
			if res.Status().IsTerminal() {
				return nil
			}
			for i := 0; i < attempts; i++ {
				res.RecordChargeAttempt(now)
			}
			return res.AttachGatewayPayment(out.ExternalID, out.Detail, now)
		})
		if err != nil {
			return nil, err
		}
		if at := res.HoldExpiresAt(); at != nil && !res.Status().IsTerminal() {
			if serr := f.scheduler.Schedule(ctx, id, *at); serr != nil {
				slog.Warn("failed to schedule hold expiry, sweeper will pick it up",
					slog.String("reservation_id", id.String()),
					slog.String("error", serr.Error()))
			}
		}
		return res, nil

	default:
		return nil, errs.Newf("unknown gateway outcome %q", out.Kind)
	}
}

// recordUnavailable leaves the reservation waiting with its hold and deadline.
func (f *paymentFlow) recordUnavailable(ctx context.Context, id uuid.UUID, attempts int) (*reservation.Reservation, error) {
	res, err := f.mutate(ctx, id, func(res *reservation.Reservation, now time.Time) error {
		if res.Status().IsTerminal() {
			return nil
		}
		for i := 0; i < attempts; i++ {
			res.RecordChargeAttempt(now)
		}
		res.RecordGatewayFailure(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if at := res.HoldExpiresAt(); at != nil && !res.Status().IsTerminal() {
		if serr := f.scheduler.Schedule(ctx, id, *at); serr != nil {
			slog.Warn("failed to schedule hold expiry",
				slog.String("reservation_id", id.String()),
				slog.String("error", serr.Error()))
		}
	}
	return res, nil
}

func (f *paymentFlow) mutate(ctx context.Context, id uuid.UUID, fn func(res *reservation.Reservation, now time.Time) error) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := f.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		res, err := tx.Reservations().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(res, f.clock.Now()); err != nil {
			return err
		}
		if err := tx.Reservations().Update(ctx, res); err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

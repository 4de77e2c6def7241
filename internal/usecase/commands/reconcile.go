package commands

import (
	"context"
	"log/slog"
	"time"

	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/infra"
	"booking-checkout/internal/pkg/clock"
	"booking-checkout/internal/pkg/errs"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
)

// ReconcileCommands settles reservations whose charge did not finish inline.
type ReconcileCommands interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	// PollStatus is the client-side fallback for a missed webhook.
	PollStatus(ctx context.Context, buyerID, reservationID uuid.UUID) (*reservation.Reservation, error)
	ReconcilePending(ctx context.Context) (int, error)
	ExpireHold(ctx context.Context, reservationID uuid.UUID) error
	SweepExpired(ctx context.Context) (int, error)
}

type reconcileUseCaseImpl struct {
	uow          shared.UnitOfWork
	gateway      PaymentGateway
	verifier     WebhookVerifier
	flow         *paymentFlow
	transitioner *Transitioner
	clock        clock.Clock
	settings     Settings
}

func NewReconcileUseCase(
	uow shared.UnitOfWork,
	gateway PaymentGateway,
	verifier WebhookVerifier,
	scheduler HoldScheduler,
	transitioner *Transitioner,
	clk clock.Clock,
	settings Settings,
) ReconcileCommands {
	return &reconcileUseCaseImpl{
		uow:      uow,
		gateway:  gateway,
		verifier: verifier,
		flow: &paymentFlow{
			uow:          uow,
			gateway:      gateway,
			scheduler:    scheduler,
			transitioner: transitioner,
			clock:        clk,
			settings:     settings,
		},
		transitioner: transitioner,
		clock:        clk,
		settings:     settings,
	}
}

func (uc *reconcileUseCaseImpl) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	n, ok, err := uc.verifier.ParseWebhook(payload, signature)
	if err != nil {
		return errs.Mark(err, ErrInvalidWebhook)
	}
	if !ok {
		return nil
	}
	kind, final := outcomeForStatus(n.Status)
	if !final {
		return nil
	}

	id, err := uc.resolveNotification(ctx, n)
	if err != nil {
		if errs.Is(err, ErrReservationNotFound) {
			slog.Debug("webhook for unknown payment ignored",
				slog.String("event_id", n.EventID),
				slog.String("external_id", n.ExternalID))
			return nil
		}
		return err
	}

	_, err = uc.transitioner.ApplyGatewayOutcome(ctx, id, reservation.Outcome{
		Kind:       kind,
		ExternalID: n.ExternalID,
		Detail:     n.Detail,
	}, SourceWebhook)
	if errs.Is(err, ErrReservationNotFound) {
		return nil
	}
	return err
}

// resolveNotification finds the reservation by its gateway payment id, then
// by the reservation id echoed in the payment metadata. The second path
// covers a webhook that overtakes the inline charge response.
func (uc *reconcileUseCaseImpl) resolveNotification(ctx context.Context, n payment.Notification) (uuid.UUID, error) {
	var id uuid.UUID
	err := uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		res, err := tx.Reservations().FindByGatewayPaymentID(ctx, n.ExternalID)
		if err != nil {
			return err
		}
		id = res.ID()
		return nil
	})
	if err == nil {
		return id, nil
	}
	if !infra.IsKind(err, infra.KindNotFound) {
		return uuid.Nil, errs.Mark(err, ErrDatabaseOperation)
	}
	if parsed, perr := uuid.Parse(n.ReservationID); perr == nil {
		return parsed, nil
	}
	return uuid.Nil, errs.Mark(err, ErrReservationNotFound)
}

func (uc *reconcileUseCaseImpl) PollStatus(ctx context.Context, buyerID, reservationID uuid.UUID) (*reservation.Reservation, error) {
	res, err := uc.load(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.BuyerID() != buyerID {
		return nil, ErrReservationNotFound
	}
	if res.Status().IsTerminal() {
		return res, nil
	}

	if res.IsHoldExpired(uc.clock.Now()) {
		if err := uc.expire(ctx, res); err != nil {
			slog.Warn("expiry during status poll failed",
				slog.String("reservation_id", res.ID().String()),
				slog.String("error", err.Error()))
			return res, nil
		}
		return uc.load(ctx, reservationID)
	}
	if res.GatewayPaymentID() == nil {
		return res, nil
	}
	return uc.refresh(ctx, res, SourcePoll)
}

// refresh asks the gateway for the current payment status. A gateway error
// leaves the reservation as it is.
func (uc *reconcileUseCaseImpl) refresh(ctx context.Context, res *reservation.Reservation, source string) (*reservation.Reservation, error) {
	owner, _, err := uc.owner(ctx, res)
	if err != nil {
		return nil, err
	}
	status, detail, err := uc.gateway.CheckStatus(ctx, *res.GatewayPaymentID(), owner)
	if err != nil {
		slog.Warn("status check failed",
			slog.String("reservation_id", res.ID().String()),
			slog.String("error", err.Error()))
		return res, nil
	}
	kind, final := outcomeForStatus(status)
	if !final {
		return res, nil
	}
	applied, err := uc.transitioner.ApplyGatewayOutcome(ctx, res.ID(), reservation.Outcome{
		Kind:       kind,
		ExternalID: *res.GatewayPaymentID(),
		Detail:     detail,
	}, source)
	if err != nil {
		return nil, err
	}
	return applied.Reservation, nil
}

func (uc *reconcileUseCaseImpl) ReconcilePending(ctx context.Context) (int, error) {
	now := uc.clock.Now()
	ids, err := uc.uow.CommandReads().PendingAsync(ctx, now.Add(-uc.settings.PollInterval), uc.settings.BatchSize)
	if err != nil {
		return 0, errs.Mark(err, ErrDatabaseOperation)
	}

	settled := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		res, err := uc.reconcileOne(ctx, id, now)
		if err != nil {
			slog.Warn("reconcile failed",
				slog.String("reservation_id", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		if res != nil && res.Status().IsTerminal() {
			settled++
		}
	}
	return settled, nil
}

func (uc *reconcileUseCaseImpl) reconcileOne(ctx context.Context, id uuid.UUID, now time.Time) (*reservation.Reservation, error) {
	res, err := uc.load(ctx, id)
	if err != nil {
		return nil, err
	}
	// expired holds belong to the sweeper
	if res.Status().IsTerminal() || res.IsHoldExpired(now) {
		return res, nil
	}
	if res.GatewayPaymentID() != nil {
		return uc.refresh(ctx, res, SourcePoll)
	}

	owner, name, err := uc.owner(ctx, res)
	if err != nil {
		return nil, err
	}
	return uc.flow.chargeAndSettle(ctx, res, owner, name, 1, SourcePoll)
}

func (uc *reconcileUseCaseImpl) ExpireHold(ctx context.Context, reservationID uuid.UUID) error {
	res, err := uc.load(ctx, reservationID)
	if err != nil {
		return err
	}
	if !res.IsHoldExpired(uc.clock.Now()) {
		return nil
	}
	return uc.expire(ctx, res)
}

// expire checks the gateway before giving the hold back. When the gateway
// cannot be reached the reservation is left for the next sweep, since the
// buyer may already have paid.
func (uc *reconcileUseCaseImpl) expire(ctx context.Context, res *reservation.Reservation) error {
	if gp := res.GatewayPaymentID(); gp != nil {
		owner, _, err := uc.owner(ctx, res)
		if err != nil {
			return err
		}
		status, detail, err := uc.gateway.CheckStatus(ctx, *gp, owner)
		if err != nil {
			return errs.Mark(err, ErrGatewayUnavailable)
		}
		if kind, final := outcomeForStatus(status); final {
			_, err := uc.transitioner.ApplyGatewayOutcome(ctx, res.ID(), reservation.Outcome{
				Kind:       kind,
				ExternalID: *gp,
				Detail:     detail,
			}, SourceExpiry)
			return err
		}
		if err := uc.gateway.Cancel(ctx, *gp, owner); err != nil {
			slog.Warn("failed to cancel pending gateway payment",
				slog.String("reservation_id", res.ID().String()),
				slog.String("error", err.Error()))
		}
	}

	_, err := uc.transitioner.ApplyGatewayOutcome(ctx, res.ID(), reservation.Outcome{Kind: reservation.OutcomeExpired}, SourceExpiry)
	return err
}

func (uc *reconcileUseCaseImpl) SweepExpired(ctx context.Context) (int, error) {
	ids, err := uc.uow.CommandReads().ExpiredHolds(ctx, uc.clock.Now(), uc.settings.BatchSize)
	if err != nil {
		return 0, errs.Mark(err, ErrDatabaseOperation)
	}
	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if err := uc.ExpireHold(ctx, id); err != nil {
			slog.Warn("hold expiry failed",
				slog.String("reservation_id", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		expired++
	}
	return expired, nil
}

func (uc *reconcileUseCaseImpl) load(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	var res *reservation.Reservation
	err := uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		var ferr error
		res, ferr = tx.Reservations().FindByID(ctx, id)
		return ferr
	})
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, errs.Mark(err, ErrReservationNotFound)
		}
		return nil, errs.Mark(err, ErrDatabaseOperation)
	}
	return res, nil
}

func (uc *reconcileUseCaseImpl) owner(ctx context.Context, res *reservation.Reservation) (payment.OwnerCredential, string, error) {
	snap, err := uc.uow.CommandReads().ListingByID(ctx, res.ListingID())
	if err != nil {
		return payment.OwnerCredential{}, "", errs.Mark(err, ErrDatabaseOperation)
	}
	return ownerCredential(snap.MerchantAccountID), snap.Name, nil
}

func outcomeForStatus(s payment.Status) (reservation.OutcomeKind, bool) {
	switch s {
	case payment.StatusApproved:
		return reservation.OutcomeApproved, true
	case payment.StatusDeclined:
		return reservation.OutcomeDeclined, true
	default:
		return "", false
	}
}

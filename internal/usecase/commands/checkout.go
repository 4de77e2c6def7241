package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"booking-checkout/internal/domain/cart"
	"booking-checkout/internal/domain/coupon"
	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/domain/pricing"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/infra"
	"booking-checkout/internal/pkg/clock"
	"booking-checkout/internal/pkg/errs"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
)

const checkoutEndpoint = "POST /api/reservations/checkout"

// Checkout outcomes reported to metrics.
const (
	CheckoutApproved    = "approved"
	CheckoutDeclined    = "declined"
	CheckoutPending     = "pending"
	CheckoutSoldOut     = "sold_out"
	CheckoutInvalid     = "invalid"
	CheckoutInstrument  = "instrument_rejected"
	CheckoutUnavailable = "gateway_unavailable"
	CheckoutReplayed    = "replayed"
)

type CheckoutInput struct {
	ListingID      uuid.UUID
	ServiceDate    string
	Items          []cart.Item
	CouponCode     *string
	Instrument     payment.Instrument
	Buyer          cart.Buyer
	IdempotencyKey uuid.UUID
}

type QuoteInput struct {
	ListingID   uuid.UUID
	ServiceDate string
	Items       []cart.Item
	CouponCode  *string
	Buyer       cart.Buyer
}

// CheckoutResult is returned whenever a reservation exists after the call,
// including alongside ErrCapacityExhausted and ErrGatewayUnavailable.
type CheckoutResult struct {
	Reservation *reservation.Reservation
	Warnings    []cart.Warning
	Replayed    bool
}

type QuoteResult struct {
	Breakdown pricing.Breakdown
	Warnings  []cart.Warning
	// Remaining holds units still sellable per limited ticket type.
	Remaining map[uuid.UUID]int
}

type CheckoutCommands interface {
	Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error)
	Quote(ctx context.Context, in QuoteInput) (*QuoteResult, error)
}

type checkoutUseCaseImpl struct {
	uow       shared.UnitOfWork
	gateway   PaymentGateway
	flow      *paymentFlow
	validator *cart.Validator
	engine    *pricing.Engine
	factory   *reservation.Factory
	metrics   Metrics
	clock     clock.Clock
	settings  Settings
}

func NewCheckoutUseCase(
	uow shared.UnitOfWork,
	gateway PaymentGateway,
	scheduler HoldScheduler,
	transitioner *Transitioner,
	metrics Metrics,
	clk clock.Clock,
	settings Settings,
) CheckoutCommands {
	return &checkoutUseCaseImpl{
		uow:     uow,
		gateway: gateway,
		flow: &paymentFlow{
			uow:          uow,
			gateway:      gateway,
			scheduler:    scheduler,
			transitioner: transitioner,
			clock:        clk,
			settings:     settings,
		},
		validator: cart.NewValidator(settings.MaxQuantityPerLine, clk),
		engine:    pricing.NewEngine(clk),
		factory:   reservation.NewFactory(clk),
		metrics:   metrics,
		clock:     clk,
		settings:  settings,
	}
}

// prepared is a validated and priced cart, nothing persisted yet.
type prepared struct {
	listing   *listing.Listing
	valid     *cart.ValidCart
	breakdown pricing.Breakdown
}

func (uc *checkoutUseCaseImpl) prepare(ctx context.Context, listingID uuid.UUID, serviceDate string, items []cart.Item, couponCode *string, buyer cart.Buyer) (*prepared, error) {
	date, err := listing.ParseServiceDate(serviceDate)
	if err != nil {
		return nil, errs.Mark(err, ErrInvalidRequest)
	}

	reads := uc.uow.CommandReads()
	snap, err := reads.ListingByID(ctx, listingID)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, errs.Mark(err, ErrListingNotFound)
		}
		return nil, errs.Mark(err, ErrDatabaseOperation)
	}
	l, err := listingFromSnapshot(snap)
	if err != nil {
		return nil, errs.Wrap(err, "listing snapshot")
	}

	c, err := cart.Build(l, date, items)
	if err != nil {
		return nil, errs.Mark(err, ErrCartValidation)
	}

	usage, err := reads.CapacityUsage(ctx, l.ID(), date, stockedTicketTypes(l))
	if err != nil {
		return nil, errs.Mark(err, ErrDatabaseOperation)
	}
	linked, err := reads.LinkedReservations(ctx, linkedIDs(items))
	if err != nil {
		return nil, errs.Mark(err, ErrDatabaseOperation)
	}

	vc, err := uc.validator.Validate(c, capacitySnapshot(l, usage, linked), buyer)
	if err != nil {
		return nil, errs.Mark(err, ErrCartValidation)
	}

	cp, err := uc.loadCoupon(ctx, l.ID(), couponCode)
	if err != nil {
		return nil, err
	}
	breakdown, err := uc.engine.Price(vc, l, date, cp)
	if err != nil {
		if errs.Is(err, pricing.ErrCouponNotApplicable) {
			return nil, errs.Mark(err, ErrInvalidCoupon)
		}
		return nil, err
	}

	return &prepared{listing: l, valid: vc, breakdown: breakdown}, nil
}

func (uc *checkoutUseCaseImpl) loadCoupon(ctx context.Context, listingID uuid.UUID, code *string) (*coupon.Coupon, error) {
	if code == nil || coupon.NormalizeCode(*code) == "" {
		return nil, nil
	}
	snap, err := uc.uow.CommandReads().CouponByCode(ctx, listingID, *code)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, errs.Mark(err, ErrInvalidCoupon)
		}
		return nil, errs.Mark(err, ErrDatabaseOperation)
	}
	cp, err := couponFromSnapshot(snap)
	if err != nil {
		return nil, errs.Mark(err, ErrInvalidCoupon)
	}
	return cp, nil
}

func (uc *checkoutUseCaseImpl) Quote(ctx context.Context, in QuoteInput) (*QuoteResult, error) {
	p, err := uc.prepare(ctx, in.ListingID, in.ServiceDate, in.Items, in.CouponCode, in.Buyer)
	if err != nil {
		return nil, err
	}

	remaining := make(map[uuid.UUID]int)
	snap := p.valid.Snapshot()
	for _, line := range p.valid.Lines() {
		if n, limited := snap.RemainingFor(line.TicketType()); limited {
			remaining[line.TicketType().ID()] = n
		}
	}
	return &QuoteResult{Breakdown: p.breakdown, Warnings: p.valid.Warnings(), Remaining: remaining}, nil
}

func (uc *checkoutUseCaseImpl) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	requestHash := uc.calculateRequestHash(in)

	existing, err := uc.handleIdempotency(ctx, in, requestHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		uc.metrics.ObserveCheckout(CheckoutReplayed)
		return uc.replay(ctx, existing)
	}

	result, err := uc.checkout(ctx, in, requestHash)
	uc.metrics.ObserveCheckout(checkoutOutcome(result, err))
	return result, err
}

// handleIdempotency returns the record to replay, nil to proceed, or an error
// for keys in flight or reused with another body.
func (uc *checkoutUseCaseImpl) handleIdempotency(ctx context.Context, in CheckoutInput, requestHash string) (*shared.IdempotencyRecord, error) {
	rec, err := uc.uow.CommandReads().IdempotencyByKey(ctx, in.IdempotencyKey, in.Buyer.ID)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, nil
		}
		return nil, errs.Mark(err, ErrDatabaseOperation)
	}

	if rec.RequestHash != requestHash {
		return nil, ErrIdempotencyMismatch
	}
	switch rec.Status {
	case shared.IdempotencyCompleted:
		if rec.ResultReservationID == nil {
			return nil, errs.New("completed idempotency key has no reservation")
		}
		return rec, nil
	case shared.IdempotencyProcessing:
		// stale claims left by a crashed request are taken over in createReservation
		if !rec.ExpiresAt.After(uc.clock.Now()) {
			return nil, nil
		}
		return nil, ErrIdempotencyInProgress
	default:
		return nil, errs.Newf("invalid idempotency key status %q", rec.Status)
	}
}

func (uc *checkoutUseCaseImpl) replay(ctx context.Context, rec *shared.IdempotencyRecord) (*CheckoutResult, error) {
	var res *reservation.Reservation
	err := uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		var ferr error
		res, ferr = tx.Reservations().FindByID(ctx, *rec.ResultReservationID)
		return ferr
	})
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, errs.Mark(err, ErrReservationNotFound)
		}
		return nil, errs.Mark(err, ErrDatabaseOperation)
	}
	result := &CheckoutResult{Reservation: res, Replayed: true}
	return result, resultError(res)
}

func (uc *checkoutUseCaseImpl) checkout(ctx context.Context, in CheckoutInput, requestHash string) (*CheckoutResult, error) {
	p, err := uc.prepare(ctx, in.ListingID, in.ServiceDate, in.Items, in.CouponCode, in.Buyer)
	if err != nil {
		return nil, err
	}

	res, err := uc.factory.Create(p.valid, p.breakdown, in.Buyer, in.Instrument.Method, uc.settings.HoldTTL)
	if err != nil {
		return nil, errs.Mark(err, ErrCartValidation)
	}
	if err := uc.createReservation(ctx, in, requestHash, res); err != nil {
		return nil, err
	}
	log := slog.With(slog.String("reservation_id", res.ID().String()))
	owner := ownerCredential(p.listing.Owner().MerchantAccountID)

	ref, err := uc.gateway.Tokenize(ctx, in.Instrument, owner)
	if err != nil {
		uc.rollbackReservation(ctx, in, res.ID())
		log.Info("instrument tokenization failed, reservation discarded", slog.String("error", err.Error()))
		if errs.Is(err, payment.ErrGatewayUnavailable) {
			return nil, errs.Mark(err, ErrGatewayUnavailable)
		}
		return nil, errs.Mark(err, ErrInstrument)
	}

	held, err := uc.reserveCapacity(ctx, res.ID(), p.listing, ref)
	if err != nil {
		if !errs.Is(err, reservation.ErrCapacityExhausted) {
			// nothing was claimed or charged, so the request can be retried with the same key
			uc.rollbackReservation(ctx, in, res.ID())
			log.Error("capacity reserve failed, reservation discarded", slog.String("error", err.Error()))
			return nil, errs.Mark(err, ErrDatabaseOperation)
		}
		log.Info("capacity exhausted at reserve time")
		applied, aerr := uc.flow.transitioner.ApplyGatewayOutcome(ctx, res.ID(), reservation.Outcome{Kind: reservation.OutcomeSoldOut}, SourceCheckout)
		if aerr != nil {
			return nil, errs.Mark(aerr, ErrDatabaseOperation)
		}
		uc.completeKey(ctx, in, applied.Reservation)
		return &CheckoutResult{Reservation: applied.Reservation, Warnings: p.valid.Warnings()}, errs.Mark(err, ErrCapacityExhausted)
	}

	settled, err := uc.flow.chargeAndSettle(ctx, held, owner, p.listing.Name(), uc.settings.GatewayMaxAttempts, SourceCheckout)
	if err != nil {
		if !errs.Is(err, ErrGatewayUnavailable) {
			return nil, err
		}
		uc.completeKey(ctx, in, held)
		return &CheckoutResult{Reservation: held, Warnings: p.valid.Warnings()}, err
	}

	uc.completeKey(ctx, in, settled)
	result := &CheckoutResult{Reservation: settled, Warnings: p.valid.Warnings()}
	return result, resultError(settled)
}

// createReservation persists the reservation together with the idempotency claim.
func (uc *checkoutUseCaseImpl) createReservation(ctx context.Context, in CheckoutInput, requestHash string, res *reservation.Reservation) error {
	now := uc.clock.Now()
	expiresAt := now.Add(uc.settings.IdempotencyTTL)
	err := uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		claimed, err := tx.Idempotency().TryInsert(ctx, in.IdempotencyKey, in.Buyer.ID, checkoutEndpoint, requestHash, expiresAt)
		if err != nil {
			return err
		}
		if !claimed {
			claimed, err = tx.Idempotency().ClaimExpired(ctx, in.IdempotencyKey, in.Buyer.ID, requestHash, now, expiresAt)
			if err != nil {
				return err
			}
		}
		if !claimed {
			return ErrIdempotencyInProgress
		}
		return tx.Reservations().Create(ctx, res)
	})
	if err != nil {
		if errs.Is(err, ErrIdempotencyInProgress) {
			return err
		}
		return errs.Mark(err, ErrDatabaseOperation)
	}
	return nil
}

// rollbackReservation removes every trace of a reservation that failed before
// any capacity was held. If it fails too, the hold deadline set at creation
// lets the expiry sweep close the reservation.
func (uc *checkoutUseCaseImpl) rollbackReservation(ctx context.Context, in CheckoutInput, id uuid.UUID) {
	err := uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		if err := tx.Reservations().Delete(ctx, id); err != nil && !infra.IsKind(err, infra.KindNotFound) {
			return err
		}
		return tx.Idempotency().Delete(ctx, in.IdempotencyKey, in.Buyer.ID)
	})
	if err != nil {
		slog.Error("failed to roll back reservation",
			slog.String("reservation_id", id.String()),
			slog.String("error", err.Error()))
	}
}

// reserveCapacity runs the authoritative conditional reserve. On exhaustion
// the transaction rolls back so no bucket keeps a partial claim.
func (uc *checkoutUseCaseImpl) reserveCapacity(ctx context.Context, id uuid.UUID, l *listing.Listing, instrumentRef string) (*reservation.Reservation, error) {
	var held *reservation.Reservation
	err := uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		res, err := tx.Reservations().FindByID(ctx, id)
		if err != nil {
			return err
		}
		now := uc.clock.Now()
		if err := res.AttachInstrument(instrumentRef, now); err != nil {
			return err
		}
		hold := reservation.PlanCapacityHold(l, res.Lines())
		if err := tx.Capacity().Reserve(ctx, res.ListingID(), res.ServiceDate(), hold); err != nil {
			return err
		}
		if err := res.MarkCapacityHeld(hold, now.Add(uc.settings.HoldTTL), now); err != nil {
			return err
		}
		if err := tx.Reservations().Update(ctx, res); err != nil {
			return err
		}
		held = res
		return nil
	})
	return held, err
}

// completeKey lets later requests with the same key replay the reservation.
// A failure only means the key stays claimed until it expires.
func (uc *checkoutUseCaseImpl) completeKey(ctx context.Context, in CheckoutInput, res *reservation.Reservation) {
	status, _ := resultStatus(res)
	err := uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		return tx.Idempotency().Complete(ctx, in.IdempotencyKey, in.Buyer.ID, res.ID(), status)
	})
	if err != nil {
		slog.Error("failed to complete idempotency key",
			slog.String("reservation_id", res.ID().String()),
			slog.String("error", err.Error()))
	}
}

// resultStatus maps a reservation's state to what the checkout caller sees.
func resultStatus(res *reservation.Reservation) (int, error) {
	switch res.Status() {
	case reservation.StatusCancelledSoldOut:
		return http.StatusConflict, ErrCapacityExhausted
	case reservation.StatusWaitingPayment:
		if res.GatewayPaymentID() == nil && res.Pricing().NetCents > 0 {
			return http.StatusInternalServerError, ErrGatewayUnavailable
		}
	}
	return http.StatusOK, nil
}

func resultError(res *reservation.Reservation) error {
	_, err := resultStatus(res)
	return err
}

func checkoutOutcome(result *CheckoutResult, err error) string {
	switch {
	case errs.Is(err, ErrCapacityExhausted):
		return CheckoutSoldOut
	case errs.Is(err, ErrGatewayUnavailable):
		return CheckoutUnavailable
	case errs.Is(err, ErrInstrument):
		return CheckoutInstrument
	case err != nil:
		return CheckoutInvalid
	}
	switch result.Reservation.Status() {
	case reservation.StatusApproved:
		return CheckoutApproved
	case reservation.StatusFailedPayment:
		return CheckoutDeclined
	default:
		return CheckoutPending
	}
}

type hashedRequest struct {
	ListingID   uuid.UUID          `json:"listingId"`
	ServiceDate string             `json:"serviceDate"`
	Items       []cart.Item        `json:"items"`
	CouponCode  *string            `json:"couponCode"`
	Instrument  payment.Instrument `json:"instrument"`
}

func (uc *checkoutUseCaseImpl) calculateRequestHash(in CheckoutInput) string {
	data, _ := json.Marshal(hashedRequest{
		ListingID:   in.ListingID,
		ServiceDate: in.ServiceDate,
		Items:       in.Items,
		CouponCode:  in.CouponCode,
		Instrument:  in.Instrument,
	})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

package reservation

import (
	"errors"
	"time"

	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/domain/payment"

	"github.com/google/uuid"
)

var (
	ErrNotWaitingPayment   = errors.New("reservation is not waiting for payment")
	ErrCapacityAlreadyHeld = errors.New("capacity is already held")
	ErrNoLines             = errors.New("reservation has no lines")
)

type Reservation struct {
	id               uuid.UUID
	listingID        uuid.UUID
	buyerID          uuid.UUID
	buyerContact     string
	serviceDate      listing.ServiceDate
	lines            []Line
	pricing          Pricing
	couponID         *uuid.UUID
	couponCode       *string
	paymentMethod    payment.Method
	status           Status
	gatewayPaymentID *string
	instrumentRef    *string
	paymentDetail    *payment.Detail
	capacityHold     *CapacityHold
	holdExpiresAt    *time.Time
	chargeAttempts   int
	failureReason    *string
	version          int
	createdAt        time.Time
	updatedAt        time.Time
}

// ReconstructParams carries every persisted field.
type ReconstructParams struct {
	ID               uuid.UUID
	ListingID        uuid.UUID
	BuyerID          uuid.UUID
	BuyerContact     string
	ServiceDate      listing.ServiceDate
	Lines            []Line
	Pricing          Pricing
	CouponID         *uuid.UUID
	CouponCode       *string
	PaymentMethod    payment.Method
	Status           Status
	GatewayPaymentID *string
	InstrumentRef    *string
	PaymentDetail    *payment.Detail
	CapacityHold     *CapacityHold
	HoldExpiresAt    *time.Time
	ChargeAttempts   int
	FailureReason    *string
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func ReconstructReservation(p ReconstructParams) *Reservation {
	return &Reservation{
		id:               p.ID,
		listingID:        p.ListingID,
		buyerID:          p.BuyerID,
		buyerContact:     p.BuyerContact,
		serviceDate:      p.ServiceDate,
		lines:            p.Lines,
		pricing:          p.Pricing,
		couponID:         p.CouponID,
		couponCode:       p.CouponCode,
		paymentMethod:    p.PaymentMethod,
		status:           p.Status,
		gatewayPaymentID: p.GatewayPaymentID,
		instrumentRef:    p.InstrumentRef,
		paymentDetail:    p.PaymentDetail,
		capacityHold:     p.CapacityHold,
		holdExpiresAt:    p.HoldExpiresAt,
		chargeAttempts:   p.ChargeAttempts,
		failureReason:    p.FailureReason,
		version:          p.Version,
		createdAt:        p.CreatedAt,
		updatedAt:        p.UpdatedAt,
	}
}

func (r *Reservation) ensureWaiting() error {
	if r.status != StatusWaitingPayment {
		return ErrNotWaitingPayment
	}
	return nil
}

func (r *Reservation) AttachInstrument(ref string, now time.Time) error {
	if err := r.ensureWaiting(); err != nil {
		return err
	}
	r.instrumentRef = &ref
	r.updatedAt = now
	return nil
}

// MarkCapacityHeld records a successful authoritative reserve together with
// the deadline after which an unpaid hold is given back.
func (r *Reservation) MarkCapacityHeld(hold CapacityHold, expiresAt, now time.Time) error {
	if err := r.ensureWaiting(); err != nil {
		return err
	}
	if r.capacityHold != nil {
		return ErrCapacityAlreadyHeld
	}
	r.capacityHold = &hold
	r.holdExpiresAt = &expiresAt
	r.updatedAt = now
	return nil
}

func (r *Reservation) AttachGatewayPayment(externalID string, detail payment.Detail, now time.Time) error {
	if err := r.ensureWaiting(); err != nil {
		return err
	}
	r.gatewayPaymentID = &externalID
	if !detail.IsZero() {
		r.paymentDetail = &detail
	}
	r.updatedAt = now
	return nil
}

func (r *Reservation) RecordChargeAttempt(now time.Time) {
	r.chargeAttempts++
	r.updatedAt = now
}

// RecordGatewayFailure keeps the reservation waiting and notes why the last
// charge could not be placed.
func (r *Reservation) RecordGatewayFailure(now time.Time) {
	reason := FailureGatewayDown
	r.failureReason = &reason
	r.updatedAt = now
}

func (r *Reservation) IncrementVersion() {
	r.version++
}

func (r *Reservation) IsCapacityHeld() bool {
	return r.capacityHold != nil
}

func (r *Reservation) IsHoldExpired(now time.Time) bool {
	return r.status == StatusWaitingPayment && r.holdExpiresAt != nil && !now.Before(*r.holdExpiresAt)
}

func (r *Reservation) TotalUnits() int {
	n := 0
	for _, l := range r.lines {
		n += l.Quantity
	}
	return n
}

func (r *Reservation) ID() uuid.UUID                    { return r.id }
func (r *Reservation) ListingID() uuid.UUID             { return r.listingID }
func (r *Reservation) BuyerID() uuid.UUID               { return r.buyerID }
func (r *Reservation) BuyerContact() string             { return r.buyerContact }
func (r *Reservation) ServiceDate() listing.ServiceDate { return r.serviceDate }
func (r *Reservation) Pricing() Pricing                 { return r.pricing }
func (r *Reservation) CouponID() *uuid.UUID             { return r.couponID }
func (r *Reservation) CouponCode() *string              { return r.couponCode }
func (r *Reservation) PaymentMethod() payment.Method    { return r.paymentMethod }
func (r *Reservation) Status() Status                   { return r.status }
func (r *Reservation) GatewayPaymentID() *string        { return r.gatewayPaymentID }
func (r *Reservation) InstrumentRef() *string           { return r.instrumentRef }
func (r *Reservation) PaymentDetail() *payment.Detail   { return r.paymentDetail }
func (r *Reservation) CapacityHold() *CapacityHold      { return r.capacityHold }
func (r *Reservation) HoldExpiresAt() *time.Time        { return r.holdExpiresAt }
func (r *Reservation) ChargeAttempts() int              { return r.chargeAttempts }
func (r *Reservation) FailureReason() *string           { return r.failureReason }
func (r *Reservation) Version() int                     { return r.version }
func (r *Reservation) CreatedAt() time.Time             { return r.createdAt }
func (r *Reservation) UpdatedAt() time.Time             { return r.updatedAt }

func (r *Reservation) Lines() []Line {
	out := make([]Line, len(r.lines))
	copy(out, r.lines)
	return out
}

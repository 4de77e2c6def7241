//go:build unit || e2e

package builder

import (
	"time"

	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/usecase/queries"

	"github.com/google/uuid"
)

type ReservationBuilder struct {
	ID               uuid.UUID
	ListingID        uuid.UUID
	BuyerID          uuid.UUID
	Status           reservation.Status
	Method           payment.Method
	Pricing          reservation.Pricing
	CouponCode       *string
	GatewayPaymentID *string
	Detail           *payment.Detail
	HoldExpiresAt    *time.Time
	CreatedAt        time.Time
}

// NewReservationBuilder defaults to an approved card reservation priced like
// the SAVE10 Tuesday cart.
func NewReservationBuilder(buyerID uuid.UUID) *ReservationBuilder {
	code := "SAVE10"
	extID := "pi_test"
	return &ReservationBuilder{
		ID:               uuid.New(),
		ListingID:        uuid.New(),
		BuyerID:          buyerID,
		Status:           reservation.StatusApproved,
		Method:           payment.MethodCard,
		Pricing:          reservation.Pricing{GrossCents: 12000, DiscountCents: 1200, NetCents: 10800, CommissionCents: 1080},
		CouponCode:       &code,
		GatewayPaymentID: &extID,
		CreatedAt:        time.Date(2029, 12, 20, 10, 0, 0, 0, time.UTC),
	}
}

func (b *ReservationBuilder) With(mutate func(*ReservationBuilder)) *ReservationBuilder {
	mutate(b)
	return b
}

func (b *ReservationBuilder) BuildDomain() *reservation.Reservation {
	return reservation.ReconstructReservation(reservation.ReconstructParams{
		ID:               b.ID,
		ListingID:        b.ListingID,
		BuyerID:          b.BuyerID,
		BuyerContact:     "buyer@example.com",
		ServiceDate:      Tuesday(),
		Pricing:          b.Pricing,
		CouponCode:       b.CouponCode,
		PaymentMethod:    b.Method,
		Status:           b.Status,
		GatewayPaymentID: b.GatewayPaymentID,
		PaymentDetail:    b.Detail,
		HoldExpiresAt:    b.HoldExpiresAt,
		Version:          1,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.CreatedAt,
	})
}

func (b *ReservationBuilder) BuildView() *queries.ReservationView {
	return &queries.ReservationView{
		ID:            b.ID,
		ListingID:     b.ListingID,
		ListingName:   "Treetop Adventure Park",
		BuyerID:       b.BuyerID,
		ServiceDate:   Tuesday().String(),
		Status:        b.Status.String(),
		PaymentMethod: string(b.Method),
		Lines: []queries.LineView{{
			TicketTypeID:   uuid.New(),
			Name:           "Adult",
			Category:       "guardian",
			Quantity:       2,
			UnitPriceCents: 4000,
			TotalCents:     8000,
		}},
		GrossCents:       b.Pricing.GrossCents,
		DiscountCents:    b.Pricing.DiscountCents,
		NetCents:         b.Pricing.NetCents,
		CommissionCents:  b.Pricing.CommissionCents,
		CouponCode:       b.CouponCode,
		GatewayPaymentID: b.GatewayPaymentID,
		HoldExpiresAt:    b.HoldExpiresAt,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.CreatedAt,
	}
}

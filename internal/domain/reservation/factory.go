package reservation

import (
	"time"

	"booking-checkout/internal/domain/cart"
	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/domain/pricing"
	"booking-checkout/internal/pkg/clock"

	"github.com/google/uuid"
)

type Factory struct {
	Clock clock.Clock
}

func NewFactory(clock clock.Clock) *Factory {
	return &Factory{Clock: clock}
}

// Create builds a waiting_payment reservation from a validated, priced cart.
// The hold deadline is set from the start so a reservation that never gets
// its capacity reserved is still picked up by the expiry sweep.
func (f *Factory) Create(
	vc *cart.ValidCart,
	breakdown pricing.Breakdown,
	buyer cart.Buyer,
	method payment.Method,
	holdTTL time.Duration,
) (*Reservation, error) {
	snap := vc.Snapshot()
	priced := make(map[uuid.UUID]pricing.LineBreakdown, len(breakdown.Lines))
	for _, lb := range breakdown.Lines {
		priced[lb.TicketTypeID] = lb
	}

	var lines []Line
	for _, cl := range vc.Lines() {
		tt := cl.TicketType()
		lb := priced[tt.ID()]
		line := Line{
			TicketTypeID:   tt.ID(),
			Name:           tt.Name(),
			Category:       cl.Category(),
			Quantity:       cl.Quantity(),
			UnitPriceCents: lb.UnitPrice.Cents(),
			TotalCents:     lb.Total.Cents(),
		}
		if remaining, limited := snap.RemainingFor(tt); limited {
			line.CapacityRemaining = &remaining
		}
		if dl, ok := cl.(cart.DependentLine); ok {
			line.LinkedReservationID = dl.LinkedReservationID()
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	var couponCode *string
	if breakdown.CouponCode != "" {
		code := breakdown.CouponCode
		couponCode = &code
	}

	now := f.Clock.Now()
	deadline := now.Add(holdTTL)
	return &Reservation{
		id:           uuid.New(),
		listingID:    vc.ListingID(),
		buyerID:      buyer.ID,
		buyerContact: buyer.Contact,
		serviceDate:  vc.Date(),
		lines:        lines,
		pricing: Pricing{
			GrossCents:      breakdown.Gross.Cents(),
			DiscountCents:   breakdown.Discount.Cents(),
			NetCents:        breakdown.Net.Cents(),
			CommissionCents: breakdown.Commission.Cents(),
		},
		couponID:      breakdown.CouponID,
		couponCode:    couponCode,
		paymentMethod: method,
		status:        StatusWaitingPayment,
		holdExpiresAt: &deadline,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

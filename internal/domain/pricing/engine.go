package pricing

import (
	"errors"
	"fmt"

	"booking-checkout/internal/domain/cart"
	"booking-checkout/internal/domain/coupon"
	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/pkg/clock"

	"github.com/google/uuid"
)

var (
	ErrCouponNotApplicable = errors.New("coupon cannot be applied")
	ErrListingMismatch     = errors.New("cart was built for another listing")
)

type PriceSource string

const (
	SourceBase    PriceSource = "base"
	SourceWeekday PriceSource = "weekday"
	SourceDate    PriceSource = "date"
)

type LineBreakdown struct {
	TicketTypeID uuid.UUID
	Name         string
	Category     listing.Category
	Quantity     int
	UnitPrice    Money
	Source       PriceSource
	Total        Money
}

type Breakdown struct {
	Lines      []LineBreakdown
	Gross      Money
	Discount   Money
	Net        Money
	Commission Money
	CouponID   *uuid.UUID
	CouponCode string
}

type Engine struct {
	clock clock.Clock
}

func NewEngine(clk clock.Clock) *Engine {
	return &Engine{clock: clk}
}

// UnitPrice resolves the per-unit price: date override, then weekday override, then base.
func UnitPrice(tt *listing.TicketType, date listing.ServiceDate) (Money, PriceSource) {
	if p, ok := tt.DatePrice(date); ok {
		return Money(p), SourceDate
	}
	if p, ok := tt.WeekdayPrice(date.Weekday()); ok {
		return Money(p), SourceWeekday
	}
	return Money(tt.BasePriceCents()), SourceBase
}

// Price computes the breakdown for a validated cart. It reads nothing but its
// arguments and the engine clock, which is only consulted for coupon expiry.
func (e *Engine) Price(c *cart.ValidCart, l *listing.Listing, date listing.ServiceDate, cp *coupon.Coupon) (Breakdown, error) {
	if c.ListingID() != l.ID() {
		return Breakdown{}, ErrListingMismatch
	}

	var b Breakdown
	for _, line := range c.Lines() {
		unit, src := UnitPrice(line.TicketType(), date)
		total := unit * Money(line.Quantity())
		b.Lines = append(b.Lines, LineBreakdown{
			TicketTypeID: line.TicketType().ID(),
			Name:         line.TicketType().Name(),
			Category:     line.Category(),
			Quantity:     line.Quantity(),
			UnitPrice:    unit,
			Source:       src,
			Total:        total,
		})
		b.Gross += total
	}

	if cp != nil {
		if cp.ListingID() != l.ID() {
			return Breakdown{}, fmt.Errorf("%w: coupon belongs to another listing", ErrCouponNotApplicable)
		}
		if err := cp.ValidateUsage(e.clock.Now()); err != nil {
			return Breakdown{}, fmt.Errorf("%w: %w", ErrCouponNotApplicable, err)
		}
		b.Discount = Money(cp.DiscountFor(int64(b.Gross)))
		id := cp.ID()
		b.CouponID = &id
		b.CouponCode = cp.Code().String()
	}

	b.Net = b.Gross - b.Discount
	if b.Net < 0 {
		b.Net = 0
	}
	b.Commission = applyBps(b.Net, l.CommissionBps())
	return b, nil
}

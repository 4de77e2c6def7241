package coupon

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCouponExpired      = errors.New("coupon has expired")
	ErrCouponInactive     = errors.New("coupon is not active")
	ErrCouponLimitReached = errors.New("coupon usage limit reached")
	ErrInvalidUsageLimit  = errors.New("usage limit cannot be negative")
)

type Coupon struct {
	id         uuid.UUID
	listingID  uuid.UUID
	code       Code
	discount   Discount
	expiresAt  *time.Time
	usageLimit *int
	usageCount int
	active     bool
}

type Params struct {
	ID          uuid.UUID
	ListingID   uuid.UUID
	Code        string
	Kind        Kind
	PercentBps  int64
	AmountCents int64
	ExpiresAt   *time.Time
	UsageLimit  *int
	UsageCount  int
	Active      bool
}

func NewCoupon(p Params) (*Coupon, error) {
	code, err := NewCouponCode(p.Code)
	if err != nil {
		return nil, err
	}
	discount, err := NewDiscount(p.Kind, p.PercentBps, p.AmountCents)
	if err != nil {
		return nil, err
	}
	if p.UsageLimit != nil && *p.UsageLimit < 0 {
		return nil, ErrInvalidUsageLimit
	}

	return &Coupon{
		id:         p.ID,
		listingID:  p.ListingID,
		code:       code,
		discount:   discount,
		expiresAt:  p.ExpiresAt,
		usageLimit: p.UsageLimit,
		usageCount: p.UsageCount,
		active:     p.Active,
	}, nil
}

// ValidateUsage reports why the coupon cannot be applied at t, or nil.
func (c *Coupon) ValidateUsage(t time.Time) error {
	if !c.active {
		return ErrCouponInactive
	}
	if c.expiresAt != nil && !t.Before(*c.expiresAt) {
		return ErrCouponExpired
	}
	if c.usageLimit != nil && c.usageCount >= *c.usageLimit {
		return ErrCouponLimitReached
	}
	return nil
}

func (c *Coupon) IsApplicableAt(t time.Time) bool {
	return c.ValidateUsage(t) == nil
}

func (c *Coupon) DiscountFor(grossCents int64) int64 {
	return c.discount.AmountFor(grossCents)
}

func (c *Coupon) ID() uuid.UUID         { return c.id }
func (c *Coupon) ListingID() uuid.UUID  { return c.listingID }
func (c *Coupon) Code() Code            { return c.code }
func (c *Coupon) Discount() Discount    { return c.discount }
func (c *Coupon) ExpiresAt() *time.Time { return c.expiresAt }
func (c *Coupon) UsageLimit() *int      { return c.usageLimit }
func (c *Coupon) UsageCount() int       { return c.usageCount }
func (c *Coupon) IsActive() bool        { return c.active }

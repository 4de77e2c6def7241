//go:build unit || e2e

package builder

import (
	"time"

	"booking-checkout/internal/domain/coupon"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
)

type CouponBuilder struct {
	ID          uuid.UUID
	ListingID   uuid.UUID
	Code        string
	Kind        coupon.Kind
	PercentBps  int64
	AmountCents int64
	ExpiresAt   *time.Time
	UsageLimit  *int
	UsageCount  int
	Active      bool
}

// NewCouponBuilder defaults to SAVE10, a 10% coupon.
func NewCouponBuilder(listingID uuid.UUID) *CouponBuilder {
	return &CouponBuilder{
		ID:         uuid.New(),
		ListingID:  listingID,
		Code:       "SAVE10",
		Kind:       coupon.KindPercentage,
		PercentBps: 1000,
		Active:     true,
	}
}

func (b *CouponBuilder) With(mutate func(*CouponBuilder)) *CouponBuilder {
	mutate(b)
	return b
}

func (b *CouponBuilder) BuildDomain() (*coupon.Coupon, error) {
	return coupon.NewCoupon(coupon.Params{
		ID:          b.ID,
		ListingID:   b.ListingID,
		Code:        b.Code,
		Kind:        b.Kind,
		PercentBps:  b.PercentBps,
		AmountCents: b.AmountCents,
		ExpiresAt:   b.ExpiresAt,
		UsageLimit:  b.UsageLimit,
		UsageCount:  b.UsageCount,
		Active:      b.Active,
	})
}

func (b *CouponBuilder) Snapshot() *shared.CouponSnapshot {
	return &shared.CouponSnapshot{
		ID:          b.ID,
		ListingID:   b.ListingID,
		Code:        b.Code,
		Kind:        string(b.Kind),
		PercentBps:  b.PercentBps,
		AmountCents: b.AmountCents,
		ExpiresAt:   b.ExpiresAt,
		UsageLimit:  b.UsageLimit,
		UsageCount:  b.UsageCount,
		Active:      b.Active,
	}
}

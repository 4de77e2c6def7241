package readstore

import (
	"context"
	"strings"

	"booking-checkout/internal/infra"
	"booking-checkout/internal/pkg/pgconv"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CouponReadStore struct {
	db bun.IDB
}

func NewCouponReadStore(db bun.IDB) *CouponReadStore {
	return &CouponReadStore{db: db}
}

// FindByCode matches codes case-insensitively within one listing.
func (s *CouponReadStore) FindByCode(ctx context.Context, listingID uuid.UUID, code string) (*shared.CouponSnapshot, error) {
	var c couponModel
	err := s.db.NewSelect().Model(&c).
		Where("listing_id = ?", listingID).
		Where("upper(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if pgconv.IsNoRows(err) {
			return nil, infra.WrapRepoErr("coupon not found", err, infra.KindNotFound)
		}
		return nil, infra.WrapRepoErr("failed to find coupon by code", err)
	}

	return &shared.CouponSnapshot{
		ID:          c.ID,
		ListingID:   c.ListingID,
		Code:        c.Code,
		Kind:        c.Kind,
		PercentBps:  c.PercentBps,
		AmountCents: c.AmountCents,
		ExpiresAt:   c.ExpiresAt,
		UsageLimit:  c.UsageLimit,
		UsageCount:  c.UsageCount,
		Active:      c.Active,
	}, nil
}

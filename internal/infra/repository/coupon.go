package repository

import (
	"context"

	"booking-checkout/internal/infra"
	"booking-checkout/internal/infra/db"

	"github.com/google/uuid"
)

type CouponRepository struct {
	db db.DBTX
}

func NewCouponRepository(db db.DBTX) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE coupons SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`, couponID)
	if err != nil {
		return false, infra.WrapRepoErr("failed to increment coupon usage", err)
	}
	return tag.RowsAffected() == 1, nil
}

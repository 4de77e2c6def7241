package repository

import (
	"context"

	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/infra"
	"booking-checkout/internal/infra/db"
	"booking-checkout/internal/pkg/errs"

	"github.com/google/uuid"
)

// CapacityRepository keeps one counter row per (listing, date, bucket) and one
// per stocked ticket type. Reserve uses a conditional increment so two
// concurrent callers can never push a counter past its quota.
type CapacityRepository struct {
	db db.DBTX
}

func NewCapacityRepository(db db.DBTX) *CapacityRepository {
	return &CapacityRepository{db: db}
}

func (r *CapacityRepository) Reserve(ctx context.Context, listingID uuid.UUID, date listing.ServiceDate, hold reservation.CapacityHold) error {
	for _, b := range hold.Buckets {
		if err := r.ensureBucket(ctx, listingID, date, b); err != nil {
			return err
		}
		tag, err := r.db.Exec(ctx, `UPDATE capacity_ledger
			SET consumed = consumed + $4, quota = $5, version = version + 1
			WHERE listing_id = $1 AND service_date = $2 AND bucket = $3 AND consumed + $4 <= $5`,
			listingID, date.String(), b.Bucket, b.Units, b.Quota,
		)
		if err != nil {
			return infra.WrapRepoErr("failed to reserve capacity", err)
		}
		if tag.RowsAffected() == 0 {
			return errs.Mark(errs.Newf("bucket %s cannot take %d units", b.Bucket, b.Units), reservation.ErrCapacityExhausted)
		}
	}

	for _, s := range hold.Stock {
		if _, err := r.db.Exec(ctx, `INSERT INTO inventory_ledger (ticket_type_id, reserved, stock)
			VALUES ($1, 0, $2) ON CONFLICT (ticket_type_id) DO NOTHING`, s.TicketTypeID, s.Stock); err != nil {
			return infra.WrapRepoErr("failed to initialise inventory row", err)
		}
		tag, err := r.db.Exec(ctx, `UPDATE inventory_ledger
			SET reserved = reserved + $2, stock = $3, version = version + 1
			WHERE ticket_type_id = $1 AND reserved + $2 <= $3`,
			s.TicketTypeID, s.Units, s.Stock,
		)
		if err != nil {
			return infra.WrapRepoErr("failed to reserve stock", err)
		}
		if tag.RowsAffected() == 0 {
			return errs.Mark(errs.Newf("ticket type %s cannot take %d units", s.TicketTypeID, s.Units), reservation.ErrCapacityExhausted)
		}
	}
	return nil
}

// Release is bounded at zero; the hold recorded on the reservation is the
// source of truth for what was taken.
func (r *CapacityRepository) Release(ctx context.Context, listingID uuid.UUID, date listing.ServiceDate, hold reservation.CapacityHold) error {
	for _, b := range hold.Buckets {
		if _, err := r.db.Exec(ctx, `UPDATE capacity_ledger
			SET consumed = GREATEST(consumed - $4, 0), version = version + 1
			WHERE listing_id = $1 AND service_date = $2 AND bucket = $3`,
			listingID, date.String(), b.Bucket, b.Units,
		); err != nil {
			return infra.WrapRepoErr("failed to release capacity", err)
		}
	}
	for _, s := range hold.Stock {
		if _, err := r.db.Exec(ctx, `UPDATE inventory_ledger
			SET reserved = GREATEST(reserved - $2, 0), version = version + 1
			WHERE ticket_type_id = $1`,
			s.TicketTypeID, s.Units,
		); err != nil {
			return infra.WrapRepoErr("failed to release stock", err)
		}
	}
	return nil
}

func (r *CapacityRepository) ensureBucket(ctx context.Context, listingID uuid.UUID, date listing.ServiceDate, b reservation.BucketClaim) error {
	_, err := r.db.Exec(ctx, `INSERT INTO capacity_ledger (listing_id, service_date, bucket, consumed, quota)
		VALUES ($1, $2, $3, 0, $4) ON CONFLICT (listing_id, service_date, bucket) DO NOTHING`,
		listingID, date.String(), b.Bucket, b.Quota,
	)
	if err != nil {
		return infra.WrapRepoErr("failed to initialise capacity row", err)
	}
	return nil
}

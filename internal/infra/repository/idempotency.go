package repository

import (
	"context"
	"time"

	"booking-checkout/internal/infra"
	"booking-checkout/internal/infra/db"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
)

type IdempotencyRepository struct {
	db db.DBTX
}

func NewIdempotencyRepository(db db.DBTX) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// TryInsert returns false when the key already exists for the buyer.
func (r *IdempotencyRepository) TryInsert(ctx context.Context, key, buyerID uuid.UUID, endpoint, requestHash string, expiresAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `INSERT INTO idempotency_keys (key, buyer_id, endpoint, request_hash, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key, buyer_id) DO NOTHING`,
		key, buyerID, endpoint, requestHash, shared.IdempotencyProcessing, expiresAt,
	)
	if err != nil {
		return false, infra.WrapRepoErr("failed to try insert idempotency key", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimExpired takes over a key whose previous owner left it past expiry.
func (r *IdempotencyRepository) ClaimExpired(ctx context.Context, key, buyerID uuid.UUID, requestHash string, now, expiresAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE idempotency_keys
		SET request_hash = $3, status = $4, result_reservation_id = NULL, response_status = NULL, expires_at = $6
		WHERE key = $1 AND buyer_id = $2 AND expires_at <= $5`,
		key, buyerID, requestHash, shared.IdempotencyProcessing, now, expiresAt,
	)
	if err != nil {
		return false, infra.WrapRepoErr("failed to claim expired idempotency key", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, key, buyerID, reservationID uuid.UUID, responseStatus int) error {
	_, err := r.db.Exec(ctx, `UPDATE idempotency_keys
		SET status = $3, result_reservation_id = $4, response_status = $5
		WHERE key = $1 AND buyer_id = $2`,
		key, buyerID, shared.IdempotencyCompleted, reservationID, responseStatus,
	)
	if err != nil {
		return infra.WrapRepoErr("failed to complete idempotency key", err)
	}
	return nil
}

func (r *IdempotencyRepository) Delete(ctx context.Context, key, buyerID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND buyer_id = $2`, key, buyerID); err != nil {
		return infra.WrapRepoErr("failed to delete idempotency key", err)
	}
	return nil
}

package readstore

import (
	"context"

	"booking-checkout/internal/infra"
	"booking-checkout/internal/pkg/pgconv"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type IdempotencyReadStore struct {
	db bun.IDB
}

func NewIdempotencyReadStore(db bun.IDB) *IdempotencyReadStore {
	return &IdempotencyReadStore{db: db}
}

func (s *IdempotencyReadStore) Get(ctx context.Context, key, buyerID uuid.UUID) (*shared.IdempotencyRecord, error) {
	var m idempotencyKeyModel
	err := s.db.NewSelect().Model(&m).
		Where(`"key" = ?`, key).
		Where("buyer_id = ?", buyerID).
		Scan(ctx)
	if err != nil {
		if pgconv.IsNoRows(err) {
			return nil, infra.WrapRepoErr("idempotency key not found", err, infra.KindNotFound)
		}
		return nil, infra.WrapRepoErr("failed to get idempotency key", err)
	}

	return &shared.IdempotencyRecord{
		Key:                 m.Key,
		BuyerID:             m.BuyerID,
		Status:              m.Status,
		RequestHash:         m.RequestHash,
		ResultReservationID: m.ResultReservationID,
		ResponseStatus:      m.ResponseStatus,
		ExpiresAt:           m.ExpiresAt,
	}, nil
}

package queries

import (
	"context"

	"booking-checkout/internal/pkg/errs"

	"github.com/google/uuid"
)

var ErrReservationNotVisible = errs.New("reservation is not visible to this buyer")

const defaultListLimit = 50

type ReservationQueries interface {
	GetByID(ctx context.Context, buyerID uuid.UUID, id uuid.UUID) (*ReservationView, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]*ReservationListItem, error)
}

type ReservationViewRepo interface {
	FindView(ctx context.Context, id uuid.UUID) (*ReservationView, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]*ReservationListItem, error)
}

type reservationQueriesImpl struct {
	repo ReservationViewRepo
}

func NewReservationQueries(repo ReservationViewRepo) ReservationQueries {
	return &reservationQueriesImpl{repo: repo}
}

// GetByID hides reservations owned by someone else behind the same error as a miss.
func (q *reservationQueriesImpl) GetByID(ctx context.Context, buyerID uuid.UUID, id uuid.UUID) (*ReservationView, error) {
	view, err := q.repo.FindView(ctx, id)
	if err != nil {
		return nil, err
	}
	if view.BuyerID != buyerID {
		return nil, errs.Mark(errs.Newf("reservation %s", id), ErrReservationNotVisible)
	}
	return view, nil
}

func (q *reservationQueriesImpl) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]*ReservationListItem, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return q.repo.ListByBuyer(ctx, buyerID, limit, offset)
}

//go:build unit

package queries_test

import (
	"context"
	"errors"
	"testing"

	"booking-checkout/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubViewRepo struct {
	view        *queries.ReservationView
	gotLimit    int
	gotOffset   int
	listResults []*queries.ReservationListItem
}

func (s *stubViewRepo) FindView(_ context.Context, _ uuid.UUID) (*queries.ReservationView, error) {
	return s.view, nil
}

func (s *stubViewRepo) ListByBuyer(_ context.Context, _ uuid.UUID, limit, offset int) ([]*queries.ReservationListItem, error) {
	s.gotLimit, s.gotOffset = limit, offset
	return s.listResults, nil
}

func TestReservationQueries_GetByID(t *testing.T) {
	owner := uuid.New()
	repo := &stubViewRepo{view: &queries.ReservationView{ID: uuid.New(), BuyerID: owner}}
	q := queries.NewReservationQueries(repo)

	t.Run("購入者本人は参照できる", func(t *testing.T) {
		view, err := q.GetByID(context.Background(), owner, repo.view.ID)
		require.NoError(t, err)
		assert.Equal(t, repo.view.ID, view.ID)
	})

	t.Run("他人の予約は見えない", func(t *testing.T) {
		_, err := q.GetByID(context.Background(), uuid.New(), repo.view.ID)
		assert.True(t, errors.Is(err, queries.ErrReservationNotVisible))
	})
}

func TestReservationQueries_ListByBuyer_ClampsPaging(t *testing.T) {
	repo := &stubViewRepo{}
	q := queries.NewReservationQueries(repo)

	_, err := q.ListByBuyer(context.Background(), uuid.New(), 500, -3)
	require.NoError(t, err)
	assert.Equal(t, 50, repo.gotLimit)
	assert.Equal(t, 0, repo.gotOffset)
}

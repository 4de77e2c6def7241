//go:build unit

package reservation_test

import (
	"testing"
	"time"

	"booking-checkout/internal/domain/cart"
	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/domain/pricing"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/pkg/clock"
	"booking-checkout/tests/common/builder"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2029, 12, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	b       *builder.ListingBuilder
	listing *listing.Listing
	res     *reservation.Reservation
}

func newReservation(t *testing.T, mutate func(*builder.ListingBuilder), items func(*builder.ListingBuilder) []cart.Item) fixture {
	t.Helper()
	b := builder.NewListingBuilder()
	if mutate != nil {
		b.With(mutate)
	}
	l, err := b.BuildDomain()
	require.NoError(t, err)
	clk := clock.NewMockClock(now)

	c, err := cart.Build(l, builder.Tuesday(), items(b))
	require.NoError(t, err)
	vc, err := cart.NewValidator(20, clk).Validate(c, cart.Snapshot{RemainingTotal: 5}, cart.Buyer{ID: uuid.New()})
	require.NoError(t, err)
	bd, err := pricing.NewEngine(clk).Price(vc, l, builder.Tuesday(), nil)
	require.NoError(t, err)

	res, err := reservation.NewFactory(clk).Create(vc, bd, cart.Buyer{ID: uuid.New(), Contact: "buyer@example.com"}, payment.MethodCard, 15*time.Minute)
	require.NoError(t, err)
	return fixture{b: b, listing: l, res: res}
}

func guardians(n int) func(*builder.ListingBuilder) []cart.Item {
	return func(b *builder.ListingBuilder) []cart.Item {
		return []cart.Item{{TicketTypeID: b.GuardianID, Quantity: n}}
	}
}

func TestFactory_Create(t *testing.T) {
	f := newReservation(t, nil, func(b *builder.ListingBuilder) []cart.Item {
		return []cart.Item{
			{TicketTypeID: b.GuardianID, Quantity: 2},
			{TicketTypeID: b.GoodID, Quantity: 1},
		}
	})

	assert.Equal(t, reservation.StatusWaitingPayment, f.res.Status())
	assert.Equal(t, int64(9500), f.res.Pricing().GrossCents)
	assert.Equal(t, int64(950), f.res.Pricing().CommissionCents)
	assert.False(t, f.res.IsCapacityHeld())
	assert.Nil(t, f.res.CouponCode())
	// the deadline exists before any capacity is held
	require.NotNil(t, f.res.HoldExpiresAt())
	assert.Equal(t, now.Add(15*time.Minute), *f.res.HoldExpiresAt())
	assert.True(t, f.res.IsHoldExpired(now.Add(15*time.Minute)))

	lines := f.res.Lines()
	require.Len(t, lines, 2)
	require.NotNil(t, lines[0].CapacityRemaining)
	assert.Equal(t, 5, *lines[0].CapacityRemaining)
	require.NotNil(t, lines[1].CapacityRemaining)
	assert.Equal(t, 10, *lines[1].CapacityRemaining)
}

func TestPlanCapacityHold(t *testing.T) {
	f := newReservation(t, func(b *builder.ListingBuilder) {
		b.CategoryQuotas = map[listing.Category]int{listing.CategoryDependent: 2}
	}, func(b *builder.ListingBuilder) []cart.Item {
		return []cart.Item{
			{TicketTypeID: b.GuardianID, Quantity: 2},
			{TicketTypeID: b.DependentID, Quantity: 1},
			{TicketTypeID: b.GoodID, Quantity: 3},
		}
	})

	hold := reservation.PlanCapacityHold(f.listing, f.res.Lines())
	assert.Equal(t, []reservation.BucketClaim{
		{Bucket: reservation.BucketTotal, Units: 3, Quota: 5},
		{Bucket: reservation.CategoryBucket(listing.CategoryDependent), Units: 1, Quota: 2},
	}, hold.Buckets)
	assert.Equal(t, []reservation.StockClaim{
		{TicketTypeID: f.b.GoodID, Units: 3, Stock: 10},
	}, hold.Stock)
	assert.Equal(t, 3, hold.TotalUnits())
}

func TestReservation_Apply(t *testing.T) {
	held := func(t *testing.T) fixture {
		f := newReservation(t, nil, guardians(3))
		hold := reservation.PlanCapacityHold(f.listing, f.res.Lines())
		require.NoError(t, f.res.MarkCapacityHeld(hold, now.Add(15*time.Minute), now))
		return f
	}

	t.Run("承認は枠を保持したまま", func(t *testing.T) {
		f := held(t)
		tr, err := f.res.Apply(reservation.Outcome{Kind: reservation.OutcomeApproved, ExternalID: "pi_1"}, now)
		require.NoError(t, err)
		assert.True(t, tr.Changed)
		assert.Nil(t, tr.Released)
		assert.Equal(t, reservation.StatusApproved, f.res.Status())
		assert.True(t, f.res.IsCapacityHeld())
		assert.Equal(t, "pi_1", *f.res.GatewayPaymentID())
		assert.Nil(t, f.res.HoldExpiresAt())
	})

	cases := []struct {
		name   string
		kind   reservation.OutcomeKind
		status reservation.Status
		reason string
	}{
		{name: "拒否で枠解放", kind: reservation.OutcomeDeclined, status: reservation.StatusFailedPayment, reason: reservation.FailureDeclined},
		{name: "期限切れで枠解放", kind: reservation.OutcomeExpired, status: reservation.StatusFailedPayment, reason: reservation.FailureExpired},
		{name: "売り切れ", kind: reservation.OutcomeSoldOut, status: reservation.StatusCancelledSoldOut, reason: reservation.FailureSoldOut},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := held(t)
			tr, err := f.res.Apply(reservation.Outcome{
				Kind:   tc.kind,
				Detail: payment.DeclinedDetail(payment.DeclineGeneric),
			}, now)
			require.NoError(t, err)
			assert.True(t, tr.Changed)
			require.NotNil(t, tr.Released)
			assert.Equal(t, 3, tr.Released.TotalUnits())
			assert.Equal(t, tc.status, f.res.Status())
			assert.False(t, f.res.IsCapacityHeld())
			assert.Equal(t, tc.reason, *f.res.FailureReason())
		})
	}

	t.Run("終端状態への再適用は何もしない", func(t *testing.T) {
		f := held(t)
		_, err := f.res.Apply(reservation.Outcome{Kind: reservation.OutcomeDeclined}, now)
		require.NoError(t, err)

		for _, kind := range []reservation.OutcomeKind{reservation.OutcomeDeclined, reservation.OutcomeApproved, reservation.OutcomeExpired} {
			tr, err := f.res.Apply(reservation.Outcome{Kind: kind}, now.Add(time.Minute))
			require.NoError(t, err)
			assert.False(t, tr.Changed)
			assert.Nil(t, tr.Released)
			assert.Equal(t, reservation.StatusFailedPayment, f.res.Status())
		}
	})

	t.Run("未知の結果NG", func(t *testing.T) {
		f := held(t)
		_, err := f.res.Apply(reservation.Outcome{Kind: "bogus"}, now)
		assert.ErrorIs(t, err, reservation.ErrUnknownOutcome)
		assert.Equal(t, reservation.StatusWaitingPayment, f.res.Status())
	})
}

func TestReservation_Guards(t *testing.T) {
	f := newReservation(t, nil, guardians(1))
	hold := reservation.PlanCapacityHold(f.listing, f.res.Lines())

	require.NoError(t, f.res.MarkCapacityHeld(hold, now.Add(time.Minute), now))
	assert.ErrorIs(t, f.res.MarkCapacityHeld(hold, now.Add(time.Minute), now), reservation.ErrCapacityAlreadyHeld)
	assert.False(t, f.res.IsHoldExpired(now))
	assert.True(t, f.res.IsHoldExpired(now.Add(time.Minute)))

	_, err := f.res.Apply(reservation.Outcome{Kind: reservation.OutcomeApproved}, now)
	require.NoError(t, err)
	assert.ErrorIs(t, f.res.AttachInstrument("pm_1", now), reservation.ErrNotWaitingPayment)
	assert.False(t, f.res.IsHoldExpired(now.Add(time.Hour)))

	ev, ok := f.res.OutcomeEvent("owner@example.com", now)
	require.True(t, ok)
	assert.Equal(t, reservation.StatusApproved, ev.Outcome)
	assert.Equal(t, 1, ev.Units)
	assert.Equal(t, "owner@example.com", ev.OwnerContact)
}

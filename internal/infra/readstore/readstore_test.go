//go:build unit

package readstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/infra"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// one connection so every query sees the same in-memory database
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []any{
		(*listingModel)(nil),
		(*ticketTypeModel)(nil),
		(*couponModel)(nil),
		(*capacityLedgerModel)(nil),
		(*inventoryLedgerModel)(nil),
		(*reservationModel)(nil),
		(*idempotencyKeyModel)(nil),
	} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func insert(t *testing.T, db *bun.DB, model any) {
	t.Helper()
	_, err := db.NewInsert().Model(model).Exec(context.Background())
	require.NoError(t, err)
}

func seedListing(t *testing.T, db *bun.DB) (listingModel, ticketTypeModel, ticketTypeModel) {
	t.Helper()
	l := listingModel{
		ID:                uuid.New(),
		Name:              "Aquarium",
		OwnerID:           uuid.New(),
		OwnerContact:      "owner@example.com",
		MerchantAccountID: "acct_owner123",
		CommissionBps:     1000,
		DailyQuota:        5,
		CategoryQuotas:    map[string]int{"dependent": 2},
		CreatedAt:         time.Now().UTC(),
	}
	stock := 10
	guardian := ticketTypeModel{
		ID:               uuid.New(),
		ListingID:        l.ID,
		Name:             "Adult",
		Category:         "guardian",
		PriceCents:       5000,
		WeekdayPrices:    map[int]int64{int(time.Tuesday): 4000},
		DatePrices:       map[string]int64{"2030-01-08": 6000},
		DateAvailability: map[string]bool{},
	}
	good := ticketTypeModel{
		ID:               uuid.New(),
		ListingID:        l.ID,
		Name:             "Poster",
		Category:         "physical-good",
		PriceCents:       1500,
		WeekdayPrices:    map[int]int64{},
		DatePrices:       map[string]int64{},
		DateAvailability: map[string]bool{"2030-01-01": false},
		Stock:            &stock,
	}
	insert(t, db, &l)
	insert(t, db, &guardian)
	insert(t, db, &good)
	return l, guardian, good
}

func TestListingReadStore_FindByID(t *testing.T) {
	db := setupDB(t)
	l, guardian, good := seedListing(t, db)
	store := NewListingReadStore(db)

	t.Run("チケット種別と価格上書きを含めて取得できる", func(t *testing.T) {
		snap, err := store.FindByID(context.Background(), l.ID)
		require.NoError(t, err)
		assert.Equal(t, "acct_owner123", snap.MerchantAccountID)
		assert.Equal(t, 2, snap.CategoryQuotas["dependent"])
		require.Len(t, snap.TicketTypes, 2)

		byID := map[uuid.UUID]int{}
		for i, tt := range snap.TicketTypes {
			byID[tt.ID] = i
		}
		g := snap.TicketTypes[byID[guardian.ID]]
		assert.Equal(t, int64(4000), g.WeekdayPrices[int(time.Tuesday)])
		assert.Equal(t, int64(6000), g.DatePrices["2030-01-08"])
		assert.Nil(t, g.Stock)

		p := snap.TicketTypes[byID[good.ID]]
		require.NotNil(t, p.Stock)
		assert.Equal(t, 10, *p.Stock)
		assert.False(t, p.DateAvailability["2030-01-01"])
	})

	t.Run("存在しない場合はNOT_FOUND", func(t *testing.T) {
		_, err := store.FindByID(context.Background(), uuid.New())
		assert.True(t, infra.IsKind(err, infra.KindNotFound))
	})
}

func TestCouponReadStore_FindByCode(t *testing.T) {
	db := setupDB(t)
	l, _, _ := seedListing(t, db)
	limit := 3
	c := couponModel{
		ID: uuid.New(), ListingID: l.ID, Code: "SAVE10", Kind: "percentage",
		PercentBps: 1000, UsageLimit: &limit, UsageCount: 1, Active: true, CreatedAt: time.Now().UTC(),
	}
	insert(t, db, &c)
	store := NewCouponReadStore(db)

	t.Run("大文字小文字を区別しない", func(t *testing.T) {
		snap, err := store.FindByCode(context.Background(), l.ID, " save10 ")
		require.NoError(t, err)
		assert.Equal(t, c.ID, snap.ID)
		assert.Equal(t, int64(1000), snap.PercentBps)
		require.NotNil(t, snap.UsageLimit)
		assert.Equal(t, 3, *snap.UsageLimit)
	})

	t.Run("別リスティングのクーポンは見つからない", func(t *testing.T) {
		_, err := store.FindByCode(context.Background(), uuid.New(), "SAVE10")
		assert.True(t, infra.IsKind(err, infra.KindNotFound))
	})
}

func TestCapacityReadStore_Usage(t *testing.T) {
	db := setupDB(t)
	l, _, good := seedListing(t, db)
	date := listing.NewServiceDate(2030, time.January, 1)

	insert(t, db, &capacityLedgerModel{ListingID: l.ID, ServiceDate: date.String(), Bucket: "all", Consumed: 3, Quota: 5})
	insert(t, db, &capacityLedgerModel{ListingID: l.ID, ServiceDate: "2030-01-02", Bucket: "all", Consumed: 1, Quota: 5})
	insert(t, db, &inventoryLedgerModel{TicketTypeID: good.ID, Reserved: 4, Stock: 10})

	usage, err := NewCapacityReadStore(db).Usage(context.Background(), l.ID, date, []uuid.UUID{good.ID})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"all": 3}, usage.ConsumedByBucket)
	assert.Equal(t, 4, usage.ReservedByStock[good.ID])
}

func newReservationModel(listingID, buyerID uuid.UUID, status string, at time.Time) reservationModel {
	return reservationModel{
		ID:            uuid.New(),
		ListingID:     listingID,
		BuyerID:       buyerID,
		BuyerContact:  "buyer@example.com",
		ServiceDate:   "2030-01-01",
		Lines:         `[{"ticketTypeId":"` + uuid.NewString() + `","name":"Adult","category":"guardian","quantity":3,"unitPriceCents":4000,"totalCents":12000}]`,
		GrossCents:    12000,
		DiscountCents: 1200,
		NetCents:      10800,
		PaymentMethod: "qr",
		Status:        status,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func TestReservationReadStore(t *testing.T) {
	db := setupDB(t)
	l, _, _ := seedListing(t, db)
	buyer := uuid.New()
	base := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	store := NewReservationReadStore(db)

	hold := `{"buckets":[{"bucket":"all","units":3,"quota":5}],"stock":[]}`
	detail := `{"qrPayload":"00020126pix","qrHostedUrl":"https://pay.example/qr"}`
	past := base.Add(-time.Hour)
	future := base.Add(time.Hour)

	expired := newReservationModel(l.ID, buyer, "waiting_payment", base.Add(-2*time.Hour))
	expired.CapacityHold = &hold
	expired.HoldExpiresAt = &past
	expired.PaymentDetail = &detail
	insert(t, db, &expired)

	live := newReservationModel(l.ID, buyer, "waiting_payment", base)
	live.CapacityHold = &hold
	live.HoldExpiresAt = &future
	insert(t, db, &live)

	approved := newReservationModel(l.ID, buyer, "approved", base.Add(-3*time.Hour))
	approved.CapacityHold = &hold
	insert(t, db, &approved)

	t.Run("期限切れの保留だけを返す", func(t *testing.T) {
		ids, err := store.ExpiredHolds(context.Background(), base, 10)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{expired.ID}, ids)
	})

	t.Run("更新の古い保留中の予約を返す", func(t *testing.T) {
		ids, err := store.PendingAsync(context.Background(), base.Add(-time.Minute), 10)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{expired.ID}, ids)
	})

	t.Run("ビューにQRとリスティング名が入る", func(t *testing.T) {
		view, err := store.FindView(context.Background(), expired.ID)
		require.NoError(t, err)
		assert.Equal(t, "Aquarium", view.ListingName)
		require.Len(t, view.Lines, 1)
		assert.Equal(t, 3, view.Lines[0].Quantity)
		require.NotNil(t, view.QRCode)
		assert.Equal(t, "00020126pix", view.QRCode.Payload)
	})

	t.Run("連携予約を取得できる", func(t *testing.T) {
		got, err := store.LinkedReservations(context.Background(), []uuid.UUID{approved.ID, uuid.New()})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "approved", got[0].Status)
		assert.Equal(t, buyer, got[0].BuyerID)
	})

	t.Run("購入者ごとに新しい順で一覧できる", func(t *testing.T) {
		items, err := store.ListByBuyer(context.Background(), buyer, 2, 0)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, live.ID, items[0].ID)
		assert.Equal(t, expired.ID, items[1].ID)
		assert.Equal(t, "Aquarium", items[0].ListingName)
	})
}

func TestIdempotencyReadStore_Get(t *testing.T) {
	db := setupDB(t)
	key, buyer := uuid.New(), uuid.New()
	insert(t, db, &idempotencyKeyModel{
		Key: key, BuyerID: buyer, Endpoint: "POST /api/reservations/checkout",
		RequestHash: "abc", Status: "processing", ExpiresAt: time.Now().UTC().Add(time.Hour), CreatedAt: time.Now().UTC(),
	})
	store := NewIdempotencyReadStore(db)

	rec, err := store.Get(context.Background(), key, buyer)
	require.NoError(t, err)
	assert.Equal(t, "abc", rec.RequestHash)
	assert.Nil(t, rec.ResultReservationID)

	_, err = store.Get(context.Background(), key, uuid.New())
	assert.True(t, infra.IsKind(err, infra.KindNotFound))
}

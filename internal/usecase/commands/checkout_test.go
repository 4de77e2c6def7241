//go:build unit

package commands_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"booking-checkout/internal/domain/cart"
	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/pkg/patch"
	"booking-checkout/internal/usecase/commands"
	"booking-checkout/internal/usecase/shared"
	"booking-checkout/tests/common/builder"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("正常系: 火曜日にSAVE10を適用すると108.00で承認される", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(
			f.guardians(2),
			cart.Item{TicketTypeID: f.listing.DependentID, Quantity: 1},
			cart.Item{TicketTypeID: f.listing.GoodID, Quantity: 1},
		)
		in.CouponCode = patch.Of("save10")

		var charged payment.ChargeRequest
		f.gateway.EXPECT().Tokenize(gomock.Any(), in.Instrument, f.owner()).Return("pm_tok_1", nil)
		f.gateway.EXPECT().Charge(gomock.Any(), gomock.Any(), f.owner()).
			DoAndReturn(func(_ context.Context, req payment.ChargeRequest, _ payment.OwnerCredential) (payment.Outcome, error) {
				charged = req
				return approved("pi_1"), nil
			})

		result, err := f.checkout.Checkout(ctx, in)

		require.NoError(t, err)
		res := result.Reservation
		assert.Equal(t, reservation.StatusApproved, res.Status())
		assert.Equal(t, reservation.Pricing{
			GrossCents:      12000,
			DiscountCents:   1200,
			NetCents:        10800,
			CommissionCents: 1080,
		}, res.Pricing())
		require.NotNil(t, res.GatewayPaymentID())
		assert.Equal(t, "pi_1", *res.GatewayPaymentID())
		assert.False(t, result.Replayed)

		assert.Equal(t, int64(10800), charged.AmountCents)
		assert.Equal(t, int64(1080), charged.ApplicationFeeCents)
		assert.Equal(t, "pm_tok_1", charged.InstrumentRef)
		assert.Equal(t, "charge-"+res.ID().String(), charged.IdempotencyKey)
		assert.Equal(t, res.ID(), charged.ReservationID)

		assert.Equal(t, 3, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
		assert.Equal(t, 1, f.uow.ReservedStock(f.listing.GoodID))
		assert.Equal(t, 1, f.uow.CouponUsage(f.coupon.ID))

		jobs := f.uow.Jobs()
		require.Len(t, jobs, 1)
		assert.Equal(t, reservation.EventTypeOutcome, jobs[0].Job.Kind)
		assert.Equal(t, res.ID().String(), jobs[0].Job.Key)
		assert.Equal(t, f.settings.EventTopic, jobs[0].Job.Topic)

		rec, ok := f.uow.Idempotency(in.IdempotencyKey, in.Buyer.ID)
		require.True(t, ok)
		assert.Equal(t, shared.IdempotencyCompleted, rec.Status)
		require.NotNil(t, rec.ResponseStatus)
		assert.Equal(t, http.StatusOK, *rec.ResponseStatus)
	})

	t.Run("正常系: 残り5枠に3枚ずつ同時に申し込むと一方だけが成功する", func(t *testing.T) {
		f := newFixture(t)
		first := f.input(f.guardians(3))
		second := f.input(f.guardians(3))

		// both requests pass the advisory check before either reserves
		var arrived sync.WaitGroup
		arrived.Add(2)
		f.gateway.EXPECT().Tokenize(gomock.Any(), gomock.Any(), f.owner()).
			DoAndReturn(func(context.Context, payment.Instrument, payment.OwnerCredential) (string, error) {
				arrived.Done()
				arrived.Wait()
				return "pm_tok", nil
			}).Times(2)
		f.gateway.EXPECT().Charge(gomock.Any(), gomock.Any(), f.owner()).Return(approved("pi_winner"), nil).Times(1)

		type outcome struct {
			result *commands.CheckoutResult
			err    error
		}
		outcomes := make([]outcome, 2)
		var wg sync.WaitGroup
		for i, in := range []commands.CheckoutInput{first, second} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := f.checkout.Checkout(ctx, in)
				outcomes[i] = outcome{result: r, err: err}
			}()
		}
		wg.Wait()

		var approvedCount, soldOut int
		for _, o := range outcomes {
			require.NotNil(t, o.result)
			switch o.result.Reservation.Status() {
			case reservation.StatusApproved:
				assert.NoError(t, o.err)
				approvedCount++
			case reservation.StatusCancelledSoldOut:
				assert.ErrorIs(t, o.err, commands.ErrCapacityExhausted)
				soldOut++
			}
		}
		assert.Equal(t, 1, approvedCount)
		assert.Equal(t, 1, soldOut)
		assert.Equal(t, 3, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
		assert.Len(t, f.uow.Jobs(), 2)
	})

	t.Run("異常系: 保護者なしの子供チケットは何も保存されずに拒否される", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(cart.Item{TicketTypeID: f.listing.DependentID, Quantity: 1})

		result, err := f.checkout.Checkout(ctx, in)

		assert.Nil(t, result)
		assert.ErrorIs(t, err, commands.ErrCartValidation)
		var verr *cart.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.True(t, verr.Has(cart.CodeDependentNoGuardian))
		assert.Zero(t, f.uow.ReservationCount())
		assert.Zero(t, f.uow.Commits)
		_, ok := f.uow.Idempotency(in.IdempotencyKey, in.Buyer.ID)
		assert.False(t, ok)
	})

	t.Run("異常系: トークン化に失敗すると予約とキーが削除される", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(f.guardians(1))
		f.gateway.EXPECT().Tokenize(gomock.Any(), gomock.Any(), gomock.Any()).Return("", payment.ErrInstrumentRejected)

		result, err := f.checkout.Checkout(ctx, in)

		assert.Nil(t, result)
		assert.ErrorIs(t, err, commands.ErrInstrument)
		assert.Zero(t, f.uow.ReservationCount())
		assert.Zero(t, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
		_, ok := f.uow.Idempotency(in.IdempotencyKey, in.Buyer.ID)
		assert.False(t, ok)
	})

	t.Run("異常系: トークン化でゲートウェイが落ちていれば予約を消してunavailableを返す", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(f.guardians(1))
		f.gateway.EXPECT().Tokenize(gomock.Any(), gomock.Any(), gomock.Any()).Return("", payment.ErrGatewayUnavailable)

		_, err := f.checkout.Checkout(ctx, in)

		assert.ErrorIs(t, err, commands.ErrGatewayUnavailable)
		assert.NotErrorIs(t, err, commands.ErrInstrument)
		assert.Zero(t, f.uow.ReservationCount())
	})

	t.Run("異常系: 枠の確保でDBが失敗すると予約とキーを破棄し同じキーで再試行できる", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(f.guardians(2))
		f.uow.ReserveErr = errors.New("connection reset by peer")
		f.gateway.EXPECT().Tokenize(gomock.Any(), gomock.Any(), f.owner()).Return("pm_tok", nil).Times(2)

		result, err := f.checkout.Checkout(ctx, in)

		assert.Nil(t, result)
		assert.ErrorIs(t, err, commands.ErrDatabaseOperation)
		assert.NotErrorIs(t, err, commands.ErrCapacityExhausted)
		assert.Zero(t, f.uow.ReservationCount())
		assert.Zero(t, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
		_, ok := f.uow.Idempotency(in.IdempotencyKey, in.Buyer.ID)
		assert.False(t, ok)

		f.uow.ReserveErr = nil
		f.gateway.EXPECT().Charge(gomock.Any(), gomock.Any(), f.owner()).Return(approved("pi_retry"), nil)

		result, err = f.checkout.Checkout(ctx, in)

		require.NoError(t, err)
		assert.Equal(t, reservation.StatusApproved, result.Reservation.Status())
		assert.Equal(t, 2, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
		assert.Equal(t, 1, f.uow.ReservationCount())
	})

	t.Run("正常系: 決済が拒否されると枠が解放されfailed_paymentになる", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(f.guardians(2))
		f.gateway.EXPECT().Tokenize(gomock.Any(), gomock.Any(), gomock.Any()).Return("pm_tok", nil)
		f.gateway.EXPECT().Charge(gomock.Any(), gomock.Any(), gomock.Any()).Return(payment.Outcome{
			Kind:       payment.OutcomeDeclined,
			ExternalID: "pi_declined",
			Detail:     payment.DeclinedDetail(payment.DeclineInsufficientFunds),
		}, nil)

		result, err := f.checkout.Checkout(ctx, in)

		require.NoError(t, err)
		res := result.Reservation
		assert.Equal(t, reservation.StatusFailedPayment, res.Status())
		require.NotNil(t, res.FailureReason())
		assert.Equal(t, reservation.FailureDeclined, *res.FailureReason())
		require.NotNil(t, res.PaymentDetail())
		assert.Equal(t, payment.DeclineInsufficientFunds, res.PaymentDetail().DeclineReason)
		assert.Nil(t, res.CapacityHold())
		assert.Zero(t, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
		assert.Len(t, f.uow.Jobs(), 1)
	})

	t.Run("正常系: QR決済は枠を確保したまま待機し期限タイマーが登録される", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(f.guardians(2))
		in.Instrument = payment.Instrument{Method: payment.MethodQR, PayerTaxID: "12345678909"}
		f.gateway.EXPECT().Tokenize(gomock.Any(), gomock.Any(), gomock.Any()).Return("qr", nil)
		f.gateway.EXPECT().Charge(gomock.Any(), gomock.Any(), gomock.Any()).Return(payment.Outcome{
			Kind:       payment.OutcomePendingAsync,
			ExternalID: "pi_qr",
			Detail:     payment.Detail{QRCode: &payment.QRCode{Payload: "000201", HostedURL: "https://pay.example.com/qr"}},
		}, nil)
		f.scheduler.EXPECT().Schedule(gomock.Any(), gomock.Any(), now.Add(f.settings.HoldTTL)).Return(nil)

		result, err := f.checkout.Checkout(ctx, in)

		require.NoError(t, err)
		res := result.Reservation
		assert.Equal(t, reservation.StatusWaitingPayment, res.Status())
		require.NotNil(t, res.PaymentDetail())
		assert.Equal(t, "000201", res.PaymentDetail().QRCode.Payload)
		assert.Equal(t, 2, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
		assert.Empty(t, f.uow.Jobs())
	})

	t.Run("異常系: ゲートウェイ障害時は再試行後も枠を確保したまま待機する", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(f.guardians(2))
		f.gateway.EXPECT().Tokenize(gomock.Any(), gomock.Any(), gomock.Any()).Return("pm_tok", nil)
		f.gateway.EXPECT().Charge(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(payment.Outcome{}, payment.ErrGatewayUnavailable).Times(f.settings.GatewayMaxAttempts)
		f.scheduler.EXPECT().Schedule(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

		result, err := f.checkout.Checkout(ctx, in)

		assert.ErrorIs(t, err, commands.ErrGatewayUnavailable)
		require.NotNil(t, result)
		res := f.uow.Reservation(result.Reservation.ID())
		assert.Equal(t, reservation.StatusWaitingPayment, res.Status())
		assert.Equal(t, f.settings.GatewayMaxAttempts, res.ChargeAttempts())
		assert.True(t, res.IsCapacityHeld())
		assert.Equal(t, 2, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))

		rec, ok := f.uow.Idempotency(in.IdempotencyKey, in.Buyer.ID)
		require.True(t, ok)
		assert.Equal(t, http.StatusInternalServerError, *rec.ResponseStatus)
	})

	t.Run("正常系: 同じ冪等キーの再送は最初の予約を返しゲートウェイを呼ばない", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(f.guardians(1))
		f.gateway.EXPECT().Tokenize(gomock.Any(), gomock.Any(), gomock.Any()).Return("pm_tok", nil).Times(1)
		f.gateway.EXPECT().Charge(gomock.Any(), gomock.Any(), gomock.Any()).Return(approved("pi_1"), nil).Times(1)

		first, err := f.checkout.Checkout(ctx, in)
		require.NoError(t, err)
		second, err := f.checkout.Checkout(ctx, in)

		require.NoError(t, err)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.Reservation.ID(), second.Reservation.ID())
		assert.Equal(t, reservation.StatusApproved, second.Reservation.Status())
		assert.Equal(t, 1, f.uow.ReservationCount())
	})

	t.Run("異常系: 同じ冪等キーで内容が異なればmismatchを返す", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(f.guardians(1))
		f.gateway.EXPECT().Tokenize(gomock.Any(), gomock.Any(), gomock.Any()).Return("pm_tok", nil)
		f.gateway.EXPECT().Charge(gomock.Any(), gomock.Any(), gomock.Any()).Return(approved("pi_1"), nil)

		_, err := f.checkout.Checkout(ctx, in)
		require.NoError(t, err)
		in.Items = []cart.Item{f.guardians(2)}
		_, err = f.checkout.Checkout(ctx, in)

		assert.ErrorIs(t, err, commands.ErrIdempotencyMismatch)
		assert.Equal(t, 1, f.uow.ReservationCount())
	})

	t.Run("異常系: 存在しないクーポンは何も保存されずに拒否される", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(f.guardians(1))
		in.CouponCode = patch.Of("NOPE")

		_, err := f.checkout.Checkout(ctx, in)

		assert.ErrorIs(t, err, commands.ErrInvalidCoupon)
		assert.Zero(t, f.uow.ReservationCount())
	})

	t.Run("異常系: 存在しない施設はlisting not foundになる", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(f.guardians(1))
		in.ListingID = uuid.New()

		_, err := f.checkout.Checkout(ctx, in)

		assert.ErrorIs(t, err, commands.ErrListingNotFound)
	})

	t.Run("異常系: 日付の形式が不正ならinvalid requestになる", func(t *testing.T) {
		f := newFixture(t)
		in := f.input(f.guardians(1))
		in.ServiceDate = "01/01/2030"

		_, err := f.checkout.Checkout(ctx, in)

		assert.ErrorIs(t, err, commands.ErrInvalidRequest)
	})

	t.Run("正常系: 全額割引の予約はゲートウェイを呼ばずに承認される", func(t *testing.T) {
		f := newFixture(t)
		free := builder.NewCouponBuilder(f.listing.ID).With(func(b *builder.CouponBuilder) {
			b.Code = "FREE"
			b.PercentBps = 10000
		})
		f.uow.AddCoupon(free.Snapshot())
		in := f.input(f.guardians(1))
		in.CouponCode = patch.Of("FREE")
		f.gateway.EXPECT().Tokenize(gomock.Any(), gomock.Any(), gomock.Any()).Return("pm_tok", nil)

		result, err := f.checkout.Checkout(ctx, in)

		require.NoError(t, err)
		assert.Equal(t, reservation.StatusApproved, result.Reservation.Status())
		assert.Zero(t, result.Reservation.Pricing().NetCents)
		assert.Equal(t, 1, f.uow.CouponUsage(free.ID))
	})
}

func TestQuote(t *testing.T) {
	ctx := context.Background()

	t.Run("正常系: 見積もりは何も保存せずに料金と残数を返す", func(t *testing.T) {
		f := newFixture(t)
		f.uow.SetConsumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal, 1)

		result, err := f.checkout.Quote(ctx, commands.QuoteInput{
			ListingID:   f.listing.ID,
			ServiceDate: builder.Tuesday().String(),
			Items: []cart.Item{
				f.guardians(3),
				{TicketTypeID: f.listing.GoodID, Quantity: 2},
			},
			CouponCode: patch.Of("SAVE10"),
			Buyer:      cart.Buyer{ID: uuid.New(), Contact: "buyer@example.com"},
		})

		require.NoError(t, err)
		assert.Equal(t, int64(15000), result.Breakdown.Gross.Cents())
		assert.Equal(t, int64(1500), result.Breakdown.Discount.Cents())
		assert.Equal(t, int64(13500), result.Breakdown.Net.Cents())
		assert.Equal(t, 10, result.Remaining[f.listing.GoodID])
		assert.Equal(t, 4, result.Remaining[f.listing.GuardianID])
		assert.Zero(t, f.uow.ReservationCount())
		assert.Zero(t, f.uow.Commits)
	})

	t.Run("異常系: 残数を超える見積もりはcapacity_exceededになる", func(t *testing.T) {
		f := newFixture(t)
		f.uow.SetConsumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal, 4)

		_, err := f.checkout.Quote(ctx, commands.QuoteInput{
			ListingID:   f.listing.ID,
			ServiceDate: builder.Tuesday().String(),
			Items:       []cart.Item{f.guardians(2)},
			Buyer:       cart.Buyer{ID: uuid.New()},
		})

		assert.ErrorIs(t, err, commands.ErrCartValidation)
		var verr *cart.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.True(t, verr.Has(cart.CodeCapacityExceeded))
	})
}

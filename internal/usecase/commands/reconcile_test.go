//go:build unit

package commands_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/usecase/commands"
	"booking-checkout/tests/common/builder"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// pendingQR checks out a QR reservation that stays waiting on "pi_qr".
func (f *fixture) pendingQR(t *testing.T, units int) *reservation.Reservation {
	t.Helper()
	in := f.input(f.guardians(units))
	in.Instrument = payment.Instrument{Method: payment.MethodQR, PayerTaxID: "12345678909"}
	f.gateway.EXPECT().Tokenize(gomock.Any(), gomock.Any(), gomock.Any()).Return("qr", nil)
	f.gateway.EXPECT().Charge(gomock.Any(), gomock.Any(), gomock.Any()).Return(payment.Outcome{
		Kind:       payment.OutcomePendingAsync,
		ExternalID: "pi_qr",
		Detail:     payment.Detail{QRCode: &payment.QRCode{Payload: "000201"}},
	}, nil)
	f.scheduler.EXPECT().Schedule(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.checkout.Checkout(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, reservation.StatusWaitingPayment, result.Reservation.Status())
	return result.Reservation
}

// unavailable checks out a card reservation whose charge never reached the
// gateway.
func (f *fixture) unavailable(t *testing.T, units int) *reservation.Reservation {
	t.Helper()
	in := f.input(f.guardians(units))
	f.gateway.EXPECT().Tokenize(gomock.Any(), gomock.Any(), gomock.Any()).Return("pm_tok", nil)
	f.gateway.EXPECT().Charge(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(payment.Outcome{}, payment.ErrGatewayUnavailable).Times(f.settings.GatewayMaxAttempts)
	f.scheduler.EXPECT().Schedule(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.checkout.Checkout(context.Background(), in)
	require.ErrorIs(t, err, commands.ErrGatewayUnavailable)
	return result.Reservation
}

func TestHandleWebhook(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"id":"evt_1"}`)

	t.Run("正常系: 承認通知で待機中の予約が承認される", func(t *testing.T) {
		f := newFixture(t)
		res := f.pendingQR(t, 2)
		f.verifier.EXPECT().ParseWebhook(payload, "sig").Return(payment.Notification{
			EventID:    "evt_1",
			ExternalID: "pi_qr",
			Status:     payment.StatusApproved,
		}, true, nil).Times(2)

		require.NoError(t, f.reconcile.HandleWebhook(ctx, payload, "sig"))
		require.NoError(t, f.reconcile.HandleWebhook(ctx, payload, "sig"))

		got := f.uow.Reservation(res.ID())
		assert.Equal(t, reservation.StatusApproved, got.Status())
		assert.Nil(t, got.HoldExpiresAt())
		assert.Equal(t, 2, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
		assert.Len(t, f.uow.Jobs(), 1)
	})

	t.Run("正常系: 拒否通知で枠が解放される", func(t *testing.T) {
		f := newFixture(t)
		res := f.pendingQR(t, 2)
		f.verifier.EXPECT().ParseWebhook(payload, "sig").Return(payment.Notification{
			ExternalID: "pi_qr",
			Status:     payment.StatusDeclined,
			Detail:     payment.DeclinedDetail(payment.DeclineGeneric),
		}, true, nil)

		require.NoError(t, f.reconcile.HandleWebhook(ctx, payload, "sig"))

		got := f.uow.Reservation(res.ID())
		assert.Equal(t, reservation.StatusFailedPayment, got.Status())
		assert.Zero(t, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
	})

	t.Run("正常系: 決済IDが未保存でもメタデータの予約IDで照合できる", func(t *testing.T) {
		f := newFixture(t)
		res := f.unavailable(t, 1)
		f.verifier.EXPECT().ParseWebhook(payload, "sig").Return(payment.Notification{
			ExternalID:    "pi_late",
			ReservationID: res.ID().String(),
			Status:        payment.StatusApproved,
		}, true, nil)

		require.NoError(t, f.reconcile.HandleWebhook(ctx, payload, "sig"))

		got := f.uow.Reservation(res.ID())
		assert.Equal(t, reservation.StatusApproved, got.Status())
		require.NotNil(t, got.GatewayPaymentID())
		assert.Equal(t, "pi_late", *got.GatewayPaymentID())
	})

	t.Run("正常系: 保留中の通知は何も変えない", func(t *testing.T) {
		f := newFixture(t)
		res := f.pendingQR(t, 1)
		f.verifier.EXPECT().ParseWebhook(payload, "sig").Return(payment.Notification{
			ExternalID: "pi_qr",
			Status:     payment.StatusPending,
		}, true, nil)

		require.NoError(t, f.reconcile.HandleWebhook(ctx, payload, "sig"))

		assert.Equal(t, reservation.StatusWaitingPayment, f.uow.Reservation(res.ID()).Status())
	})

	t.Run("正常系: 未知の決済への通知は無視される", func(t *testing.T) {
		f := newFixture(t)
		f.verifier.EXPECT().ParseWebhook(payload, "sig").Return(payment.Notification{
			ExternalID: "pi_unknown",
			Status:     payment.StatusApproved,
		}, true, nil)

		assert.NoError(t, f.reconcile.HandleWebhook(ctx, payload, "sig"))
		assert.Empty(t, f.uow.Jobs())
	})

	t.Run("異常系: 署名が不正ならinvalid webhookを返す", func(t *testing.T) {
		f := newFixture(t)
		f.verifier.EXPECT().ParseWebhook(payload, "bad").Return(payment.Notification{}, false, payment.ErrInvalidSignature)

		err := f.reconcile.HandleWebhook(ctx, payload, "bad")

		assert.ErrorIs(t, err, commands.ErrInvalidWebhook)
		assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	})
}

func TestPollStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("正常系: ゲートウェイが承認済みなら予約を承認する", func(t *testing.T) {
		f := newFixture(t)
		res := f.pendingQR(t, 1)
		f.gateway.EXPECT().CheckStatus(gomock.Any(), "pi_qr", f.owner()).Return(payment.StatusApproved, payment.Detail{}, nil)

		got, err := f.reconcile.PollStatus(ctx, res.BuyerID(), res.ID())

		require.NoError(t, err)
		assert.Equal(t, reservation.StatusApproved, got.Status())
	})

	t.Run("正常系: 確認に失敗しても現在の状態を返す", func(t *testing.T) {
		f := newFixture(t)
		res := f.pendingQR(t, 1)
		f.gateway.EXPECT().CheckStatus(gomock.Any(), "pi_qr", gomock.Any()).Return(payment.Status(""), payment.Detail{}, errors.New("timeout"))

		got, err := f.reconcile.PollStatus(ctx, res.BuyerID(), res.ID())

		require.NoError(t, err)
		assert.Equal(t, reservation.StatusWaitingPayment, got.Status())
	})

	t.Run("正常系: 期限切れの予約は確認時に失効させる", func(t *testing.T) {
		f := newFixture(t)
		res := f.pendingQR(t, 1)
		f.clock.Add(f.settings.HoldTTL + time.Minute)
		f.gateway.EXPECT().CheckStatus(gomock.Any(), "pi_qr", gomock.Any()).Return(payment.StatusPending, payment.Detail{}, nil)
		f.gateway.EXPECT().Cancel(gomock.Any(), "pi_qr", gomock.Any()).Return(nil)

		got, err := f.reconcile.PollStatus(ctx, res.BuyerID(), res.ID())

		require.NoError(t, err)
		assert.Equal(t, reservation.StatusFailedPayment, got.Status())
		assert.Equal(t, reservation.FailureExpired, *got.FailureReason())
	})

	t.Run("異常系: 他の購入者の予約は見つからない扱いになる", func(t *testing.T) {
		f := newFixture(t)
		res := f.pendingQR(t, 1)

		_, err := f.reconcile.PollStatus(ctx, uuid.New(), res.ID())

		assert.ErrorIs(t, err, commands.ErrReservationNotFound)
	})

	t.Run("異常系: 存在しない予約はnot foundになる", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.reconcile.PollStatus(ctx, uuid.New(), uuid.New())

		assert.ErrorIs(t, err, commands.ErrReservationNotFound)
	})
}

func TestReconcilePending(t *testing.T) {
	ctx := context.Background()

	t.Run("正常系: ゲートウェイ障害で残った予約を再課金して承認する", func(t *testing.T) {
		f := newFixture(t)
		res := f.unavailable(t, 2)
		f.clock.Add(2 * f.settings.PollInterval)
		f.gateway.EXPECT().Charge(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req payment.ChargeRequest, _ payment.OwnerCredential) (payment.Outcome, error) {
				assert.Equal(t, "charge-"+res.ID().String(), req.IdempotencyKey)
				return approved("pi_retry"), nil
			})

		settled, err := f.reconcile.ReconcilePending(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, settled)
		got := f.uow.Reservation(res.ID())
		assert.Equal(t, reservation.StatusApproved, got.Status())
		assert.Equal(t, 2, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
	})

	t.Run("正常系: 保留中のQR決済は状態確認で決着する", func(t *testing.T) {
		f := newFixture(t)
		res := f.pendingQR(t, 1)
		f.clock.Add(2 * f.settings.PollInterval)
		f.gateway.EXPECT().CheckStatus(gomock.Any(), "pi_qr", gomock.Any()).
			Return(payment.StatusDeclined, payment.DeclinedDetail(payment.DeclineGeneric), nil)

		settled, err := f.reconcile.ReconcilePending(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, settled)
		assert.Equal(t, reservation.StatusFailedPayment, f.uow.Reservation(res.ID()).Status())
	})

	t.Run("正常系: 更新直後の予約は対象にしない", func(t *testing.T) {
		f := newFixture(t)
		f.pendingQR(t, 1)

		settled, err := f.reconcile.ReconcilePending(ctx)

		require.NoError(t, err)
		assert.Zero(t, settled)
	})
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("正常系: 期限切れの保留は取り消して枠を戻す", func(t *testing.T) {
		f := newFixture(t)
		res := f.pendingQR(t, 2)
		f.clock.Add(f.settings.HoldTTL + time.Second)
		f.gateway.EXPECT().CheckStatus(gomock.Any(), "pi_qr", gomock.Any()).Return(payment.StatusPending, payment.Detail{}, nil)
		f.gateway.EXPECT().Cancel(gomock.Any(), "pi_qr", gomock.Any()).Return(nil)

		expired, err := f.reconcile.SweepExpired(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, expired)
		got := f.uow.Reservation(res.ID())
		assert.Equal(t, reservation.StatusFailedPayment, got.Status())
		assert.Equal(t, reservation.FailureExpired, *got.FailureReason())
		assert.Zero(t, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
		assert.Len(t, f.uow.Jobs(), 1)
	})

	t.Run("正常系: 期限直前に支払われていれば承認する", func(t *testing.T) {
		f := newFixture(t)
		res := f.pendingQR(t, 2)
		f.clock.Add(f.settings.HoldTTL + time.Second)
		f.gateway.EXPECT().CheckStatus(gomock.Any(), "pi_qr", gomock.Any()).Return(payment.StatusApproved, payment.Detail{}, nil)

		_, err := f.reconcile.SweepExpired(ctx)

		require.NoError(t, err)
		assert.Equal(t, reservation.StatusApproved, f.uow.Reservation(res.ID()).Status())
		assert.Equal(t, 2, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
	})

	t.Run("異常系: ゲートウェイに確認できなければ次回まで保留する", func(t *testing.T) {
		f := newFixture(t)
		res := f.pendingQR(t, 2)
		f.clock.Add(f.settings.HoldTTL + time.Second)
		f.gateway.EXPECT().CheckStatus(gomock.Any(), "pi_qr", gomock.Any()).Return(payment.Status(""), payment.Detail{}, errors.New("timeout"))

		expired, err := f.reconcile.SweepExpired(ctx)

		require.NoError(t, err)
		assert.Zero(t, expired)
		assert.Equal(t, reservation.StatusWaitingPayment, f.uow.Reservation(res.ID()).Status())
		assert.Equal(t, 2, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
	})

	t.Run("正常系: 決済IDのない期限切れ予約はゲートウェイを呼ばずに失効する", func(t *testing.T) {
		f := newFixture(t)
		res := f.unavailable(t, 1)
		f.clock.Add(f.settings.HoldTTL + time.Second)

		expired, err := f.reconcile.SweepExpired(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, expired)
		assert.Equal(t, reservation.StatusFailedPayment, f.uow.Reservation(res.ID()).Status())
	})

	t.Run("正常系: 枠を確保する前に中断された予約も期限で失効する", func(t *testing.T) {
		f := newFixture(t)
		deadline := now.Add(f.settings.HoldTTL)
		res := builder.NewReservationBuilder(uuid.New()).With(func(b *builder.ReservationBuilder) {
			b.ListingID = f.listing.ID
			b.Status = reservation.StatusWaitingPayment
			b.GatewayPaymentID = nil
			b.HoldExpiresAt = &deadline
		}).BuildDomain()
		f.uow.AddReservation(res)
		f.clock.Add(f.settings.HoldTTL + time.Second)

		expired, err := f.reconcile.SweepExpired(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, expired)
		got := f.uow.Reservation(res.ID())
		assert.Equal(t, reservation.StatusFailedPayment, got.Status())
		assert.Equal(t, reservation.FailureExpired, *got.FailureReason())
		assert.Zero(t, f.uow.Consumed(f.listing.ID, builder.Tuesday(), reservation.BucketTotal))
	})

	t.Run("正常系: 期限前のExpireHoldは何もしない", func(t *testing.T) {
		f := newFixture(t)
		res := f.pendingQR(t, 1)

		require.NoError(t, f.reconcile.ExpireHold(ctx, res.ID()))

		assert.Equal(t, reservation.StatusWaitingPayment, f.uow.Reservation(res.ID()).Status())
	})
}

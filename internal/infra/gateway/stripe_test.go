//go:build unit

package gateway_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/infra/gateway"
	"booking-checkout/internal/pkg/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

var owner = payment.OwnerCredential{AccountID: "acct_owner123"}

type recorded struct {
	path           string
	account        string
	idempotencyKey string
	form           map[string]string
}

// fakeStripe answers every request with the given status and body and keeps
// what it received.
func fakeStripe(t *testing.T, status int, body string) (*gateway.StripeGateway, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form := map[string]string{}
		for k := range r.Form {
			form[k] = r.Form.Get(k)
		}
		calls = append(calls, recorded{
			path:           r.URL.Path,
			account:        r.Header.Get("Stripe-Account"),
			idempotencyKey: r.Header.Get("Idempotency-Key"),
			form:           form,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	gw := gateway.NewStripeGateway(config.StripeConfig{
		SecretKey:     "sk_test_dummy",
		WebhookSecret: webhookSecret,
		APIBaseURL:    srv.URL,
	})
	return gw, &calls
}

func chargeRequest(method payment.Method) payment.ChargeRequest {
	id := uuid.New()
	return payment.ChargeRequest{
		ReservationID:       id,
		AmountCents:         10800,
		ApplicationFeeCents: 1080,
		Currency:            "brl",
		Method:              method,
		InstrumentRef:       "pm_clone_1",
		PayerEmail:          "buyer@example.com",
		Description:         "Aquarium 2030-01-01",
		IdempotencyKey:      "charge-" + id.String(),
	}
}

func TestStripeGateway_Tokenize(t *testing.T) {
	t.Run("カードは接続アカウントに複製される", func(t *testing.T) {
		gw, calls := fakeStripe(t, http.StatusOK, `{"id":"pm_clone_1","object":"payment_method","type":"card"}`)

		ref, err := gw.Tokenize(context.Background(), payment.Instrument{Method: payment.MethodCard, Token: "pm_platform"}, owner)
		require.NoError(t, err)
		assert.Equal(t, "pm_clone_1", ref)
		require.Len(t, *calls, 1)
		c := (*calls)[0]
		assert.Equal(t, "/v1/payment_methods", c.path)
		assert.Equal(t, "acct_owner123", c.account)
		assert.Equal(t, "pm_platform", c.form["payment_method"])
	})

	t.Run("QRはpixの支払い方法を作る", func(t *testing.T) {
		gw, calls := fakeStripe(t, http.StatusOK, `{"id":"pm_pix_1","object":"payment_method","type":"pix"}`)

		ref, err := gw.Tokenize(context.Background(), payment.Instrument{
			Method: payment.MethodQR, PayerName: "Ana", PayerEmail: "ana@example.com", PayerTaxID: "12345678909",
		}, owner)
		require.NoError(t, err)
		assert.Equal(t, "pm_pix_1", ref)
		c := (*calls)[0]
		assert.Equal(t, "pix", c.form["type"])
		assert.Equal(t, "Ana", c.form["billing_details[name]"])
	})

	t.Run("カードエラーはInstrumentRejected", func(t *testing.T) {
		gw, _ := fakeStripe(t, http.StatusPaymentRequired, `{"error":{"type":"card_error","code":"card_declined","message":"declined"}}`)

		_, err := gw.Tokenize(context.Background(), payment.Instrument{Method: payment.MethodCard, Token: "pm_bad"}, owner)
		assert.True(t, errors.Is(err, payment.ErrInstrumentRejected))
	})

	t.Run("トークンなしのカードは送信前に拒否", func(t *testing.T) {
		gw, calls := fakeStripe(t, http.StatusOK, `{}`)

		_, err := gw.Tokenize(context.Background(), payment.Instrument{Method: payment.MethodCard}, owner)
		assert.True(t, errors.Is(err, payment.ErrInstrumentRejected))
		assert.Empty(t, *calls)
	})
}

func TestStripeGateway_Charge(t *testing.T) {
	t.Run("成功時は手数料付きで接続アカウントに請求", func(t *testing.T) {
		gw, calls := fakeStripe(t, http.StatusOK, `{"id":"pi_1","object":"payment_intent","status":"succeeded","amount":10800}`)
		req := chargeRequest(payment.MethodCard)

		out, err := gw.Charge(context.Background(), req, owner)
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomeApproved, out.Kind)
		assert.Equal(t, "pi_1", out.ExternalID)

		c := (*calls)[0]
		assert.Equal(t, "/v1/payment_intents", c.path)
		assert.Equal(t, "acct_owner123", c.account)
		assert.Equal(t, req.IdempotencyKey, c.idempotencyKey)
		assert.Equal(t, "10800", c.form["amount"])
		assert.Equal(t, "1080", c.form["application_fee_amount"])
		assert.Equal(t, "true", c.form["confirm"])
		assert.Equal(t, req.ReservationID.String(), c.form["metadata[reservation_id]"])
	})

	t.Run("カード拒否は理由付きの結果になる", func(t *testing.T) {
		gw, _ := fakeStripe(t, http.StatusPaymentRequired, `{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds",
			"message":"Your card has insufficient funds.","payment_intent":{"id":"pi_declined","object":"payment_intent","status":"requires_payment_method"}}}`)

		out, err := gw.Charge(context.Background(), chargeRequest(payment.MethodCard), owner)
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomeDeclined, out.Kind)
		assert.Equal(t, "pi_declined", out.ExternalID)
		assert.Equal(t, payment.DeclineInsufficientFunds, out.Detail.DeclineReason)
		assert.Equal(t, payment.DeclineInsufficientFunds.SafeMessage(), out.Detail.Message)
	})

	t.Run("QRは保留とQRペイロードを返す", func(t *testing.T) {
		expires := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
		body := fmt.Sprintf(`{"id":"pi_qr","object":"payment_intent","status":"requires_action",
			"next_action":{"type":"pix_display_qr_code","pix_display_qr_code":{"data":"00020126pix","expires_at":%d,
			"hosted_instructions_url":"https://pay.example/qr"}}}`, expires.Unix())
		gw, calls := fakeStripe(t, http.StatusOK, body)

		out, err := gw.Charge(context.Background(), chargeRequest(payment.MethodQR), owner)
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomePendingAsync, out.Kind)
		require.NotNil(t, out.Detail.QRCode)
		assert.Equal(t, "00020126pix", out.Detail.QRCode.Payload)
		require.NotNil(t, out.Detail.QRCode.ExpiresAt)
		assert.True(t, expires.Equal(*out.Detail.QRCode.ExpiresAt))
		assert.Equal(t, "pix", (*calls)[0].form["payment_method_types[0]"])
	})

	t.Run("ゲートウェイ障害はUnavailable", func(t *testing.T) {
		gw, _ := fakeStripe(t, http.StatusInternalServerError, `{"error":{"type":"api_error","message":"boom"}}`)

		_, err := gw.Charge(context.Background(), chargeRequest(payment.MethodCard), owner)
		assert.True(t, errors.Is(err, payment.ErrGatewayUnavailable))
	})
}

func TestStripeGateway_CheckStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want payment.Status
	}{
		{"成功", `{"id":"pi_1","object":"payment_intent","status":"succeeded"}`, payment.StatusApproved},
		{"QR未払い", `{"id":"pi_1","object":"payment_intent","status":"requires_action"}`, payment.StatusPending},
		{"キャンセル", `{"id":"pi_1","object":"payment_intent","status":"canceled"}`, payment.StatusDeclined},
		{"失敗", `{"id":"pi_1","object":"payment_intent","status":"requires_payment_method",
			"last_payment_error":{"type":"card_error","code":"expired_card"}}`, payment.StatusDeclined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, calls := fakeStripe(t, http.StatusOK, tt.body)

			status, _, err := gw.CheckStatus(context.Background(), "pi_1", owner)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, "/v1/payment_intents/pi_1", (*calls)[0].path)
			assert.Equal(t, "acct_owner123", (*calls)[0].account)
		})
	}
}

func TestStripeGateway_Cancel(t *testing.T) {
	gw, calls := fakeStripe(t, http.StatusOK, `{"id":"pi_1","object":"payment_intent","status":"canceled"}`)

	require.NoError(t, gw.Cancel(context.Background(), "pi_1", owner))
	assert.Equal(t, "/v1/payment_intents/pi_1/cancel", (*calls)[0].path)
}

func sign(payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10) + "." + string(payload)))
	return "t=" + strconv.FormatInt(ts.Unix(), 10) + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestStripeGateway_ParseWebhook(t *testing.T) {
	gw, _ := fakeStripe(t, http.StatusOK, `{}`)

	event := func(typ, pi string) []byte {
		return []byte(`{"id":"evt_1","object":"event","type":"` + typ + `","account":"acct_owner123","data":{"object":` + pi + `}}`)
	}

	t.Run("成功イベント", func(t *testing.T) {
		payload := event("payment_intent.succeeded", `{"id":"pi_qr","object":"payment_intent","status":"succeeded"}`)

		n, ok, err := gw.ParseWebhook(payload, sign(payload, time.Now()))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "pi_qr", n.ExternalID)
		assert.Equal(t, payment.StatusApproved, n.Status)
		assert.Equal(t, "acct_owner123", n.AccountID)
	})

	t.Run("失敗イベントは拒否理由を持つ", func(t *testing.T) {
		payload := event("payment_intent.payment_failed",
			`{"id":"pi_qr","object":"payment_intent","status":"requires_payment_method","last_payment_error":{"type":"card_error","decline_code":"fraudulent"}}`)

		n, ok, err := gw.ParseWebhook(payload, sign(payload, time.Now()))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, payment.StatusDeclined, n.Status)
		assert.Equal(t, payment.DeclineFraudSuspected, n.Detail.DeclineReason)
	})

	t.Run("関係ないイベントは無視", func(t *testing.T) {
		payload := event("charge.refunded", `{"id":"ch_1","object":"charge"}`)

		_, ok, err := gw.ParseWebhook(payload, sign(payload, time.Now()))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("署名不正", func(t *testing.T) {
		payload := event("payment_intent.succeeded", `{"id":"pi_qr","object":"payment_intent"}`)

		_, _, err := gw.ParseWebhook(payload, "t=1,v1=deadbeef")
		assert.True(t, errors.Is(err, payment.ErrInvalidSignature))
	})
}

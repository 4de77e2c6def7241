//go:build e2e

package checkout_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	nethttptest "net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/handler/dto/request"
	"booking-checkout/internal/handler/dto/response"
	"booking-checkout/internal/pkg/patch"
	"booking-checkout/tests/common/authtest"
	"booking-checkout/tests/common/dbtest"
	"booking-checkout/tests/common/httptest"
	"booking-checkout/tests/e2e"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	checkoutURL     = "/api/reservations/checkout"
	reservationsURL = "/api/reservations"
	webhookURL      = "/webhooks/stripe"
	serviceDate     = "2030-01-01"
)

type CheckoutSuite struct {
	e2e.SharedSuite
}

func (s *CheckoutSuite) SetupSubTest() {
	s.SharedSuite.SetupSubTest()
}

func TestCheckoutSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(CheckoutSuite))
}

type catalog struct {
	listingID uuid.UUID
	adultID   uuid.UUID
}

func (s *CheckoutSuite) seed(t *testing.T, dailyQuota int) catalog {
	t.Helper()
	listingID := dbtest.CreateTestListing(t, s.DB, dbtest.ListingParams{CommissionBps: 1000, DailyQuota: dailyQuota})
	adultID := dbtest.CreateTestTicketType(t, s.DB, listingID, "Adult", "guardian", 4000, nil)
	return catalog{listingID: listingID, adultID: adultID}
}

func checkoutBody(c catalog, qty int, method, token string) request.CheckoutRequest {
	return request.CheckoutRequest{
		QuoteRequest: request.QuoteRequest{
			ListingID:   c.listingID,
			ServiceDate: serviceDate,
			Items:       []request.CartItemRequest{{TicketTypeID: c.adultID, Quantity: qty}},
		},
		Payment: request.PaymentRequest{Method: method, Token: token},
	}
}

func (s *CheckoutSuite) checkout(t *testing.T, token string, key uuid.UUID, body request.CheckoutRequest) (int, response.CheckoutResponse) {
	t.Helper()
	w := httptest.PerformRequestWithHeaders(t, s.Router, http.MethodPost, checkoutURL, body, token,
		map[string]string{"Idempotency-Key": key.String()})

	var resp response.CheckoutResponse
	if w.Code == http.StatusOK {
		require.NoError(t, httptest.DecodeResponseBody(t, w.Body, &resp))
	}
	return w.Code, resp
}

// =============================================================================
// TestCheckout
// =============================================================================

func (s *CheckoutSuite) TestCheckout() {
	s.Run("正常系: カード決済が承認され容量とイベントが記録される", func() {
		t := s.T()
		c := s.seed(t, 10)
		token := authtest.NewJWTHelper(s.Config.JWT).GenerateToken(t, uuid.New(), "buyer@example.com")

		code, resp := s.checkout(t, token, uuid.New(), checkoutBody(c, 2, "card", "tok_visa"))

		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "approved", resp.Status)
		want := response.PricingResponse{GrossCents: 8000, DiscountCents: 0, NetCents: 8000}
		if diff := cmp.Diff(want, resp.Pricing); diff != "" {
			t.Errorf("pricing mismatch (-want +got):\n%s", diff)
		}
		require.Equal(t, 2, dbtest.ConsumedCapacity(t, s.DB, c.listingID, serviceDate, reservation.BucketTotal))
		require.Equal(t, 1, dbtest.CountOutboxJobs(t, s.DB, reservation.EventTypeOutcome))
	})

	s.Run("正常系: 同じIdempotency-Keyの再送は課金せず同じ予約を返す", func() {
		t := s.T()
		c := s.seed(t, 10)
		token := authtest.NewJWTHelper(s.Config.JWT).GenerateToken(t, uuid.New(), "buyer@example.com")
		key := uuid.New()
		body := checkoutBody(c, 1, "card", "tok_visa")

		_, first := s.checkout(t, token, key, body)
		code, second := s.checkout(t, token, key, body)

		require.Equal(t, http.StatusOK, code)
		require.True(t, second.Replayed)
		require.Equal(t, first.ReservationID, second.ReservationID)
		require.Equal(t, 1, s.Gateway.ChargeCount())
		require.Equal(t, 1, dbtest.ConsumedCapacity(t, s.DB, c.listingID, serviceDate, reservation.BucketTotal))
	})

	s.Run("異常系: 同じキーで内容の違うリクエストは409", func() {
		t := s.T()
		c := s.seed(t, 10)
		token := authtest.NewJWTHelper(s.Config.JWT).GenerateToken(t, uuid.New(), "buyer@example.com")
		key := uuid.New()

		s.checkout(t, token, key, checkoutBody(c, 1, "card", "tok_visa"))
		code, _ := s.checkout(t, token, key, checkoutBody(c, 3, "card", "tok_visa"))

		require.Equal(t, http.StatusConflict, code)
	})

	s.Run("正常系: カード拒否は容量を戻す", func() {
		t := s.T()
		c := s.seed(t, 10)
		token := authtest.NewJWTHelper(s.Config.JWT).GenerateToken(t, uuid.New(), "buyer@example.com")
		s.Gateway.Declines["pm_tok_declined"] = payment.DeclineInsufficientFunds

		code, resp := s.checkout(t, token, uuid.New(), checkoutBody(c, 2, "card", "tok_declined"))

		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "failed_payment", resp.Status)
		require.NotNil(t, resp.GatewayOutcomeDetail)
		require.Equal(t, "insufficient_funds", resp.GatewayOutcomeDetail.DeclineReason)
		require.Equal(t, 0, dbtest.ConsumedCapacity(t, s.DB, c.listingID, serviceDate, reservation.BucketTotal))
	})

	s.Run("正常系: QR決済はwebhookで承認される", func() {
		t := s.T()
		c := s.seed(t, 10)
		buyerID := uuid.New()
		token := authtest.NewJWTHelper(s.Config.JWT).GenerateToken(t, buyerID, "buyer@example.com")

		code, resp := s.checkout(t, token, uuid.New(), checkoutBody(c, 1, "qr", ""))
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "waiting_payment", resp.Status)
		require.NotNil(t, resp.HoldExpiresAt)
		require.NotNil(t, resp.GatewayOutcomeDetail)
		require.NotNil(t, resp.GatewayOutcomeDetail.QRCode)
		require.NotEmpty(t, resp.GatewayOutcomeDetail.QRCode.ImageDataURI)

		paymentID, ok := s.Gateway.Settle(resp.ReservationID, payment.StatusApproved)
		require.True(t, ok)
		w := httptest.PerformRawRequest(t, s.Router, http.MethodPost, webhookURL, []byte(paymentID),
			map[string]string{"Stripe-Signature": string(payment.StatusApproved)})
		require.Equal(t, http.StatusOK, w.Code)

		// redelivery is a no-op
		w = httptest.PerformRawRequest(t, s.Router, http.MethodPost, webhookURL, []byte(paymentID),
			map[string]string{"Stripe-Signature": string(payment.StatusApproved)})
		require.Equal(t, http.StatusOK, w.Code)

		w = httptest.PerformRequest(t, s.Router, http.MethodGet, reservationsURL+"/"+resp.ReservationID.String(), nil, token)
		var view response.ReservationResponse
		httptest.AssertSuccessResponse(t, w, http.StatusOK, &view)
		require.Equal(t, "approved", view.Status)
		require.Nil(t, view.HoldExpiresAt)
		require.Equal(t, 1, dbtest.ConsumedCapacity(t, s.DB, c.listingID, serviceDate, reservation.BucketTotal))
		require.Equal(t, 1, dbtest.CountOutboxJobs(t, s.DB, reservation.EventTypeOutcome))
	})

	s.Run("正常系: クーポンの割引が適用され承認時に使用回数が増える", func() {
		t := s.T()
		c := s.seed(t, 10)
		couponID := dbtest.CreateTestCoupon(t, s.DB, c.listingID, "SAVE10", 1000, patch.Of(5))
		token := authtest.NewJWTHelper(s.Config.JWT).GenerateToken(t, uuid.New(), "buyer@example.com")
		body := checkoutBody(c, 2, "card", "tok_visa")
		body.CouponCode = patch.Of(" save10 ")

		code, resp := s.checkout(t, token, uuid.New(), body)

		require.Equal(t, http.StatusOK, code)
		want := response.PricingResponse{GrossCents: 8000, DiscountCents: 800, NetCents: 7200, CouponCode: patch.Of("SAVE10")}
		if diff := cmp.Diff(want, resp.Pricing); diff != "" {
			t.Errorf("pricing mismatch (-want +got):\n%s", diff)
		}
		var used int
		require.NoError(t, s.DB.QueryRow(context.Background(), "SELECT usage_count FROM coupons WHERE id = $1", couponID).Scan(&used))
		require.Equal(t, 1, used)
	})

	s.Run("異常系: 他の購入者の予約は見えない", func() {
		t := s.T()
		c := s.seed(t, 10)
		helper := authtest.NewJWTHelper(s.Config.JWT)
		owner := helper.GenerateToken(t, uuid.New(), "owner@example.com")
		other := helper.GenerateToken(t, uuid.New(), "other@example.com")

		_, resp := s.checkout(t, owner, uuid.New(), checkoutBody(c, 1, "card", "tok_visa"))

		w := httptest.PerformRequest(t, s.Router, http.MethodGet, reservationsURL+"/"+resp.ReservationID.String(), nil, other)
		httptest.AssertErrorResponse(t, w, http.StatusNotFound, "")
	})
}

// =============================================================================
// TestHoldExpiry - unpaid QR holds are released by the expiry listener
// =============================================================================

func (s *CheckoutSuite) TestHoldExpiry() {
	s.Run("正常系: 支払われないQRの仮押さえは期限で解放される", func() {
		t := s.T()
		c := s.seed(t, 1)
		buyerID := uuid.New()
		token := authtest.NewJWTHelper(s.Config.JWT).GenerateToken(t, buyerID, "buyer@example.com")

		code, resp := s.checkout(t, token, uuid.New(), checkoutBody(c, 1, "qr", ""))
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "waiting_payment", resp.Status)

		// 仮押さえ中は他の購入者が買えない
		other := authtest.NewJWTHelper(s.Config.JWT).GenerateToken(t, uuid.New(), "other@example.com")
		code, _ = s.checkout(t, other, uuid.New(), checkoutBody(c, 1, "card", "tok_visa"))
		require.Equal(t, http.StatusConflict, code)

		s.WaitFor(func() bool {
			return dbtest.CountReservations(t, s.DB, c.listingID, "failed_payment") == 1
		}, e2e.HoldTTL+10*time.Second, "hold was not expired")
		require.Equal(t, 0, dbtest.ConsumedCapacity(t, s.DB, c.listingID, serviceDate, reservation.BucketTotal))

		w := httptest.PerformRequest(t, s.Router, http.MethodGet, reservationsURL+"/"+resp.ReservationID.String()+"/status", nil, token)
		var status response.ReservationStatusResponse
		httptest.AssertSuccessResponse(t, w, http.StatusOK, &status)
		require.Equal(t, "failed_payment", status.Status)

		code, _ = s.checkout(t, other, uuid.New(), checkoutBody(c, 1, "card", "tok_visa"))
		require.Equal(t, http.StatusOK, code)
	})
}

// =============================================================================
// TestOutboxRelay
// =============================================================================

func (s *CheckoutSuite) TestOutboxRelay() {
	s.Run("正常系: 確定した予約のイベントが配信される", func() {
		t := s.T()
		c := s.seed(t, 10)
		token := authtest.NewJWTHelper(s.Config.JWT).GenerateToken(t, uuid.New(), "buyer@example.com")

		_, resp := s.checkout(t, token, uuid.New(), checkoutBody(c, 1, "card", "tok_visa"))

		s.WaitFor(func() bool {
			return slices.Contains(s.Publisher.Keys(), resp.ReservationID.String())
		}, 10*time.Second, "outcome event was not relayed")
	})
}

// =============================================================================
// TestConcurrentCheckout - capacity must hold under parallel buyers
// =============================================================================

func (s *CheckoutSuite) TestConcurrentCheckout() {
	s.Run("異常系: 同時購入でも1日の定員を超えない", func() {
		t := s.T()
		const quota, buyers = 5, 12
		c := s.seed(t, quota)
		helper := authtest.NewJWTHelper(s.Config.JWT)

		bodies := make([][]byte, buyers)
		tokens := make([]string, buyers)
		for i := range buyers {
			b, err := json.Marshal(checkoutBody(c, 1, "card", "tok_visa"))
			require.NoError(t, err)
			bodies[i] = b
			tokens[i] = helper.GenerateToken(t, uuid.New(), "buyer@example.com")
		}

		codes := make([]int, buyers)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := range buyers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				req := nethttptest.NewRequest(http.MethodPost, checkoutURL, bytes.NewReader(bodies[i]))
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("Authorization", "Bearer "+tokens[i])
				req.Header.Set("Idempotency-Key", uuid.NewString())
				w := nethttptest.NewRecorder()
				s.Router.ServeHTTP(w, req)
				codes[i] = w.Code
			}()
		}
		close(start)
		waitOrFail(t, &wg, 30*time.Second)

		byCode := map[int]int{}
		for _, code := range codes {
			byCode[code]++
		}
		require.Equal(t, map[int]int{http.StatusOK: quota, http.StatusConflict: buyers - quota}, byCode)
		require.Equal(t, quota, dbtest.ConsumedCapacity(t, s.DB, c.listingID, serviceDate, reservation.BucketTotal))
		require.Equal(t, quota, dbtest.CountReservations(t, s.DB, c.listingID, "approved"))
		require.Equal(t, quota, s.Gateway.ChargeCount())
	})
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("concurrent checkouts did not finish")
	}
}

package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/pkg/config"
	"booking-checkout/internal/pkg/errs"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

const metadataReservationID = "reservation_id"

// StripeGateway charges buyers through the listing owner's connected account.
// The platform keeps its commission as the application fee.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(cfg config.StripeConfig) *StripeGateway {
	var backends *stripe.Backends
	if cfg.APIBaseURL != "" {
		b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.APIBaseURL),
			MaxNetworkRetries: stripe.Int64(0),
		})
		backends = &stripe.Backends{API: b, Connect: b, Uploads: b}
	}
	return &StripeGateway{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
	}
}

// Tokenize places the instrument on the owner's account. Cards are cloned
// from the platform payment method; QR payments get a fresh pix method.
func (g *StripeGateway) Tokenize(ctx context.Context, in payment.Instrument, owner payment.OwnerCredential) (string, error) {
	params := &stripe.PaymentMethodParams{}
	switch in.Method {
	case payment.MethodCard:
		if in.Token == "" {
			return "", errs.Mark(errs.New("card token is required"), payment.ErrInstrumentRejected)
		}
		params.PaymentMethod = stripe.String(in.Token)
	case payment.MethodQR:
		params.Type = stripe.String("pix")
		params.BillingDetails = &stripe.PaymentMethodBillingDetailsParams{
			Name:  stripe.String(in.PayerName),
			Email: stripe.String(in.PayerEmail),
		}
		if in.PayerTaxID != "" {
			params.AddMetadata("payer_tax_id", in.PayerTaxID)
		}
	default:
		return "", errs.Mark(errs.Newf("method %q", in.Method), payment.ErrInstrumentRejected)
	}
	params.Context = ctx
	params.SetStripeAccount(owner.AccountID)

	pm, err := g.api.PaymentMethods.New(params)
	if err != nil {
		if isTransient(err) {
			return "", errs.Mark(errs.Wrap(err, "tokenize"), payment.ErrGatewayUnavailable)
		}
		slog.Info("instrument rejected by gateway",
			slog.String("method", in.Method.String()),
			slog.String("code", stripeCode(err)))
		return "", errs.Mark(errs.Wrap(err, "tokenize"), payment.ErrInstrumentRejected)
	}
	return pm.ID, nil
}

// Charge creates and confirms a PaymentIntent. A decline is an outcome, not
// an error; only transport-level trouble returns ErrGatewayUnavailable.
func (g *StripeGateway) Charge(ctx context.Context, req payment.ChargeRequest, owner payment.OwnerCredential) (payment.Outcome, error) {
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(req.AmountCents),
		Currency:             stripe.String(req.Currency),
		PaymentMethod:        stripe.String(req.InstrumentRef),
		PaymentMethodTypes:   []*string{stripe.String(methodType(req.Method))},
		ApplicationFeeAmount: stripe.Int64(req.ApplicationFeeCents),
		Confirm:              stripe.Bool(true),
		Description:          stripe.String(req.Description),
	}
	if req.PayerEmail != "" {
		params.ReceiptEmail = stripe.String(req.PayerEmail)
	}
	params.Context = ctx
	params.SetStripeAccount(owner.AccountID)
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata(metadataReservationID, req.ReservationID.String())

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		var se *stripe.Error
		if !isTransient(err) && errs.As(err, &se) {
			out := payment.Outcome{
				Kind:   payment.OutcomeDeclined,
				Detail: payment.DeclinedDetail(declineReason(se)),
			}
			if se.PaymentIntent != nil {
				out.ExternalID = se.PaymentIntent.ID
			}
			slog.Info("charge declined",
				slog.String("reservation_id", req.ReservationID.String()),
				slog.String("reason", string(out.Detail.DeclineReason)))
			return out, nil
		}
		return payment.Outcome{}, errs.Mark(errs.Wrap(err, "create payment intent"), payment.ErrGatewayUnavailable)
	}
	return outcomeFromIntent(pi), nil
}

func (g *StripeGateway) CheckStatus(ctx context.Context, externalID string, owner payment.OwnerCredential) (payment.Status, payment.Detail, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.SetStripeAccount(owner.AccountID)

	pi, err := g.api.PaymentIntents.Get(externalID, params)
	if err != nil {
		return "", payment.Detail{}, errs.Mark(errs.Wrap(err, "get payment intent"), payment.ErrGatewayUnavailable)
	}
	status, detail := statusFromIntent(pi)
	return status, detail, nil
}

// Cancel is best-effort; callers log the error and move on.
func (g *StripeGateway) Cancel(ctx context.Context, externalID string, owner payment.OwnerCredential) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	params.SetStripeAccount(owner.AccountID)

	if _, err := g.api.PaymentIntents.Cancel(externalID, params); err != nil {
		return errs.Wrap(err, "cancel payment intent")
	}
	return nil
}

func methodType(m payment.Method) string {
	if m == payment.MethodQR {
		return "pix"
	}
	return "card"
}

func outcomeFromIntent(pi *stripe.PaymentIntent) payment.Outcome {
	out := payment.Outcome{ExternalID: pi.ID}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		out.Kind = payment.OutcomeApproved
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		out.Kind = payment.OutcomePendingAsync
	case stripe.PaymentIntentStatusRequiresAction:
		if qr := qrFromIntent(pi); qr != nil {
			out.Kind = payment.OutcomePendingAsync
			out.Detail = payment.Detail{QRCode: qr}
		} else {
			// server-side confirmation cannot complete a challenge flow
			out.Kind = payment.OutcomeDeclined
			out.Detail = payment.DeclinedDetail(payment.DeclineAuthenticationRequired)
		}
	default:
		out.Kind = payment.OutcomeDeclined
		out.Detail = payment.DeclinedDetail(declineReason(pi.LastPaymentError))
	}
	return out
}

func statusFromIntent(pi *stripe.PaymentIntent) (payment.Status, payment.Detail) {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return payment.StatusApproved, payment.Detail{}
	case stripe.PaymentIntentStatusCanceled:
		return payment.StatusDeclined, payment.DeclinedDetail(declineReason(pi.LastPaymentError))
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return payment.StatusDeclined, payment.DeclinedDetail(declineReason(pi.LastPaymentError))
		}
		return payment.StatusPending, payment.Detail{}
	default:
		return payment.StatusPending, payment.Detail{}
	}
}

func qrFromIntent(pi *stripe.PaymentIntent) *payment.QRCode {
	if pi.NextAction == nil || pi.NextAction.PixDisplayQRCode == nil {
		return nil
	}
	a := pi.NextAction.PixDisplayQRCode
	qr := &payment.QRCode{Payload: a.Data, HostedURL: a.HostedInstructionsURL}
	if a.ExpiresAt > 0 {
		t := time.Unix(a.ExpiresAt, 0).UTC()
		qr.ExpiresAt = &t
	}
	return qr
}

// isTransient reports whether a retry with the same idempotency key could
// succeed: network failures, rate limits and Stripe-side errors.
func isTransient(err error) bool {
	var se *stripe.Error
	if !errs.As(err, &se) {
		return true
	}
	if se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError {
		return true
	}
	return se.Type == stripe.ErrorTypeAPI || se.Type == stripe.ErrorTypeIdempotency
}

func stripeCode(err error) string {
	var se *stripe.Error
	if errs.As(err, &se) {
		return string(se.Code)
	}
	return ""
}

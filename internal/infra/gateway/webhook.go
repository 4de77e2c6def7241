package gateway

import (
	"encoding/json"

	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/pkg/errs"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ParseWebhook verifies the Stripe-Signature header and turns payment intent
// events into notifications. ok is false for event types nothing listens to.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (payment.Notification, bool, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return payment.Notification{}, false, errs.Mark(errs.Wrap(err, "verify webhook"), payment.ErrInvalidSignature)
	}

	var status payment.Status
	switch string(event.Type) {
	case "payment_intent.succeeded":
		status = payment.StatusApproved
	case "payment_intent.payment_failed", "payment_intent.canceled":
		status = payment.StatusDeclined
	default:
		return payment.Notification{}, false, nil
	}

	if event.Data == nil {
		return payment.Notification{}, false, errs.New("webhook event has no data")
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return payment.Notification{}, false, errs.Wrap(err, "decode payment intent")
	}

	n := payment.Notification{
		EventID:       event.ID,
		ExternalID:    pi.ID,
		AccountID:     event.Account,
		ReservationID: pi.Metadata[metadataReservationID],
		Status:        status,
	}
	if status == payment.StatusDeclined {
		n.Detail = payment.DeclinedDetail(declineReason(pi.LastPaymentError))
	}
	return n, true, nil
}

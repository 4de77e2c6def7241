package gateway

import (
	"booking-checkout/internal/domain/payment"

	"github.com/stripe/stripe-go/v82"
)

var declineCodes = map[string]payment.DeclineReason{
	"insufficient_funds":      payment.DeclineInsufficientFunds,
	"expired_card":            payment.DeclineExpiredCard,
	"incorrect_cvc":           payment.DeclineIncorrectCVC,
	"invalid_cvc":             payment.DeclineIncorrectCVC,
	"fraudulent":              payment.DeclineFraudSuspected,
	"stolen_card":             payment.DeclineFraudSuspected,
	"lost_card":               payment.DeclineFraudSuspected,
	"pickup_card":             payment.DeclineFraudSuspected,
	"merchant_blacklist":      payment.DeclineFraudSuspected,
	"authentication_required": payment.DeclineAuthenticationRequired,
}

// declineReason prefers the issuer's decline code over Stripe's error code.
func declineReason(e *stripe.Error) payment.DeclineReason {
	if e == nil {
		return payment.DeclineGeneric
	}
	if r, ok := declineCodes[string(e.DeclineCode)]; ok {
		return r
	}
	if r, ok := declineCodes[string(e.Code)]; ok {
		return r
	}
	return payment.DeclineGeneric
}

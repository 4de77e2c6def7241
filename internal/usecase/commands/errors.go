package commands

import "booking-checkout/internal/pkg/errs"

var (
	ErrInvalidRequest        = errs.New("invalid request")
	ErrListingNotFound       = errs.New("listing not found")
	ErrInvalidCoupon         = errs.New("invalid coupon")
	ErrCartValidation        = errs.New("cart validation failed")
	ErrCapacityExhausted     = errs.New("capacity exhausted")
	ErrInstrument            = errs.New("payment instrument rejected")
	ErrGatewayUnavailable    = errs.New("payment gateway unavailable")
	ErrIdempotencyInProgress = errs.New("idempotency in progress")
	ErrIdempotencyMismatch   = errs.New("idempotency key reused with a different request")
	ErrReservationNotFound   = errs.New("reservation not found")
	ErrInvalidWebhook        = errs.New("invalid webhook")
	ErrDatabaseOperation     = errs.New("database operation failed")
)

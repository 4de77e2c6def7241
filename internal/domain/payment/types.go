package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInstrumentRejected = errors.New("payment instrument rejected")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrUnknownMethod      = errors.New("unknown payment method")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
)

type Method string

const (
	MethodCard Method = "card"
	// MethodQR is an asynchronous instrument settled by scanning a code.
	MethodQR Method = "qr"
)

func ParseMethod(s string) (Method, error) {
	m := Method(s)
	switch m {
	case MethodCard, MethodQR:
		return m, nil
	default:
		return "", ErrUnknownMethod
	}
}

func (m Method) IsAsync() bool {
	return m == MethodQR
}

func (m Method) String() string {
	return string(m)
}

// Instrument is what the client submits. For cards Token is a platform
// payment method id; QR instruments carry only the payer's tax id.
type Instrument struct {
	Method     Method
	Token      string
	PayerName  string
	PayerEmail string
	PayerTaxID string
}

// OwnerCredential identifies the listing owner's connected merchant account.
type OwnerCredential struct {
	AccountID string
}

type ChargeRequest struct {
	ReservationID       uuid.UUID
	AmountCents         int64
	ApplicationFeeCents int64
	Currency            string
	Method              Method
	InstrumentRef       string
	PayerEmail          string
	Description         string
	IdempotencyKey      string
}

type OutcomeKind string

const (
	OutcomeApproved     OutcomeKind = "approved"
	OutcomeDeclined     OutcomeKind = "declined"
	OutcomePendingAsync OutcomeKind = "pending_async"
)

type Outcome struct {
	Kind       OutcomeKind
	ExternalID string
	Detail     Detail
}

type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusDeclined Status = "declined"
)

type DeclineReason string

const (
	DeclineInsufficientFunds      DeclineReason = "insufficient_funds"
	DeclineExpiredCard            DeclineReason = "expired_card"
	DeclineIncorrectCVC           DeclineReason = "incorrect_cvc"
	DeclineFraudSuspected         DeclineReason = "fraud_suspected"
	DeclineAuthenticationRequired DeclineReason = "authentication_required"
	DeclineGeneric                DeclineReason = "generic"
)

var declineMessages = map[DeclineReason]string{
	DeclineInsufficientFunds:      "The card has insufficient funds.",
	DeclineExpiredCard:            "The card has expired.",
	DeclineIncorrectCVC:           "The card security code is incorrect.",
	DeclineFraudSuspected:         "The payment was declined by the issuer.",
	DeclineAuthenticationRequired: "The card requires authentication. Please try another card.",
	DeclineGeneric:                "The payment was declined.",
}

// SafeMessage is the only text about a decline that reaches the buyer.
func (r DeclineReason) SafeMessage() string {
	if msg, ok := declineMessages[r]; ok {
		return msg
	}
	return declineMessages[DeclineGeneric]
}

type QRCode struct {
	Payload   string
	ExpiresAt *time.Time
	HostedURL string
}

// Detail is the buyer-safe part of a gateway response.
type Detail struct {
	DeclineReason DeclineReason
	Message       string
	QRCode        *QRCode
}

func DeclinedDetail(reason DeclineReason) Detail {
	return Detail{DeclineReason: reason, Message: reason.SafeMessage()}
}

func (d Detail) IsZero() bool {
	return d.DeclineReason == "" && d.Message == "" && d.QRCode == nil
}

// Notification is a verified gateway push about one payment. ReservationID
// echoes the metadata set at charge time and may be empty.
type Notification struct {
	EventID       string
	ExternalID    string
	AccountID     string
	ReservationID string
	Status        Status
	Detail        Detail
}

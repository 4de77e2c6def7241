package reservation

import "errors"

var ErrInvalidStatus = errors.New("invalid reservation status")

type Status string

const (
	StatusWaitingPayment   Status = "waiting_payment"
	StatusApproved         Status = "approved"
	StatusFailedPayment    Status = "failed_payment"
	StatusCancelledSoldOut Status = "cancelled_sold_out"
)

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	switch s {
	case StatusWaitingPayment, StatusApproved, StatusFailedPayment, StatusCancelledSoldOut:
		return true
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusFailedPayment || s == StatusCancelledSoldOut
}

const (
	FailureDeclined    = "declined"
	FailureExpired     = "expired"
	FailureSoldOut     = "sold_out"
	FailureGatewayDown = "gateway_unavailable"
)

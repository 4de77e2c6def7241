package reservation

import (
	"errors"
	"time"

	"booking-checkout/internal/domain/payment"
)

var ErrUnknownOutcome = errors.New("unknown outcome")

type OutcomeKind string

const (
	OutcomeApproved OutcomeKind = "approved"
	OutcomeDeclined OutcomeKind = "declined"
	OutcomeSoldOut  OutcomeKind = "sold_out"
	OutcomeExpired  OutcomeKind = "expired"
)

// Outcome is a terminal verdict from any source: the inline charge, a
// webhook, a status poll or the hold timeout.
type Outcome struct {
	Kind       OutcomeKind
	ExternalID string
	Detail     payment.Detail
}

// Transition describes what Apply changed. Released is the hold that must be
// given back to the ledger in the same transaction as the status update.
type Transition struct {
	From     Status
	To       Status
	Changed  bool
	Released *CapacityHold
}

// Apply moves a waiting_payment reservation to the terminal state implied by
// the outcome. Applying anything to a terminal reservation changes nothing.
func (r *Reservation) Apply(o Outcome, now time.Time) (Transition, error) {
	t := Transition{From: r.status, To: r.status}
	if r.status.IsTerminal() {
		return t, nil
	}

	var reason string
	release := false
	switch o.Kind {
	case OutcomeApproved:
		t.To = StatusApproved
	case OutcomeDeclined:
		t.To = StatusFailedPayment
		reason = FailureDeclined
		release = true
	case OutcomeExpired:
		t.To = StatusFailedPayment
		reason = FailureExpired
		release = true
	case OutcomeSoldOut:
		t.To = StatusCancelledSoldOut
		reason = FailureSoldOut
		release = true
	default:
		return Transition{}, ErrUnknownOutcome
	}

	if o.ExternalID != "" && r.gatewayPaymentID == nil {
		id := o.ExternalID
		r.gatewayPaymentID = &id
	}
	if !o.Detail.IsZero() {
		d := o.Detail
		r.paymentDetail = &d
	}
	if reason != "" {
		r.failureReason = &reason
	} else {
		r.failureReason = nil
	}
	if release && r.capacityHold != nil {
		t.Released = r.capacityHold
		r.capacityHold = nil
	}

	r.status = t.To
	r.holdExpiresAt = nil
	r.updatedAt = now
	t.Changed = true
	return t, nil
}

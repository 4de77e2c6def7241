package reservation

import (
	"time"

	"github.com/google/uuid"
)

const EventTypeOutcome = "reservation.outcome"

// Event is published once per reservation when it reaches a terminal state.
type Event struct {
	ReservationID uuid.UUID `json:"reservationId"`
	Outcome       Status    `json:"outcome"`
	ListingID     uuid.UUID `json:"listingId"`
	ServiceDate   string    `json:"serviceDate"`
	BuyerID       uuid.UUID `json:"buyerId"`
	BuyerContact  string    `json:"buyerContact"`
	OwnerContact  string    `json:"ownerContact"`
	NetCents      int64     `json:"netCents"`
	Units         int       `json:"units"`
	FailureReason string    `json:"failureReason,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// OutcomeEvent returns false while the reservation is still waiting for payment.
func (r *Reservation) OutcomeEvent(ownerContact string, at time.Time) (Event, bool) {
	if !r.status.IsTerminal() {
		return Event{}, false
	}
	e := Event{
		ReservationID: r.id,
		Outcome:       r.status,
		ListingID:     r.listingID,
		ServiceDate:   r.serviceDate.String(),
		BuyerID:       r.buyerID,
		BuyerContact:  r.buyerContact,
		OwnerContact:  ownerContact,
		NetCents:      r.pricing.NetCents,
		Units:         r.TotalUnits(),
		OccurredAt:    at,
	}
	if r.failureReason != nil {
		e.FailureReason = *r.failureReason
	}
	return e, true
}

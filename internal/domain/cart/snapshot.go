package cart

import (
	"booking-checkout/internal/domain/listing"

	"github.com/google/uuid"
)

// LinkedReservation is the part of a prior reservation a dependent link is checked against.
type LinkedReservation struct {
	ID        uuid.UUID
	ListingID uuid.UUID
	BuyerID   uuid.UUID
	Date      listing.ServiceDate
	Approved  bool
}

// Snapshot is a point-in-time read of remaining capacity for one listing and
// date. It may be stale by the time a reservation is charged.
type Snapshot struct {
	RemainingTotal      int
	RemainingByCategory map[listing.Category]int
	RemainingStock      map[uuid.UUID]int
	LinkedReservations  map[uuid.UUID]LinkedReservation
}

// RemainingFor returns the units still sellable for a ticket type, or false
// when the ticket type is not limited.
func (s Snapshot) RemainingFor(tt *listing.TicketType) (int, bool) {
	if tt.Category() == listing.CategoryPhysicalGood {
		if !tt.HasFixedStock() {
			return 0, false
		}
		if n, ok := s.RemainingStock[tt.ID()]; ok {
			return n, true
		}
		return tt.Stock(), true
	}

	remaining := s.RemainingTotal
	if n, ok := s.RemainingByCategory[tt.Category()]; ok && n < remaining {
		remaining = n
	}
	return remaining, true
}

type Buyer struct {
	ID      uuid.UUID
	Contact string
}

package cart

import (
	"booking-checkout/internal/domain/listing"

	"github.com/google/uuid"
)

// Line is a cart line. The concrete types are GuardianLine, DependentLine and
// PhysicalGoodLine; the unexported method keeps the set closed to this package.
type Line interface {
	TicketType() *listing.TicketType
	Quantity() int
	Category() listing.Category
	withQuantity(q int) Line
}

type GuardianLine struct {
	ticketType *listing.TicketType
	quantity   int
}

type DependentLine struct {
	ticketType          *listing.TicketType
	quantity            int
	linkedReservationID *uuid.UUID
}

type PhysicalGoodLine struct {
	ticketType *listing.TicketType
	quantity   int
}

func (l GuardianLine) TicketType() *listing.TicketType { return l.ticketType }
func (l GuardianLine) Quantity() int                   { return l.quantity }
func (l GuardianLine) Category() listing.Category      { return listing.CategoryGuardian }
func (l GuardianLine) withQuantity(q int) Line {
	l.quantity = q
	return l
}

func (l DependentLine) TicketType() *listing.TicketType { return l.ticketType }
func (l DependentLine) Quantity() int                   { return l.quantity }
func (l DependentLine) Category() listing.Category      { return listing.CategoryDependent }
func (l DependentLine) withQuantity(q int) Line {
	l.quantity = q
	return l
}

// LinkedReservationID references a prior approved reservation that authorizes
// this line in place of a guardian line.
func (l DependentLine) LinkedReservationID() *uuid.UUID { return l.linkedReservationID }
func (l DependentLine) IsLinked() bool                  { return l.linkedReservationID != nil }

func (l PhysicalGoodLine) TicketType() *listing.TicketType { return l.ticketType }
func (l PhysicalGoodLine) Quantity() int                   { return l.quantity }
func (l PhysicalGoodLine) Category() listing.Category      { return listing.CategoryPhysicalGood }
func (l PhysicalGoodLine) withQuantity(q int) Line {
	l.quantity = q
	return l
}

// NewLine builds the variant matching the ticket type's category. A link on a
// non-dependent ticket type is rejected.
func NewLine(tt *listing.TicketType, quantity int, linkedReservationID *uuid.UUID) (Line, error) {
	switch tt.Category() {
	case listing.CategoryGuardian:
		if linkedReservationID != nil {
			return nil, ErrLinkOnNonDependent
		}
		return GuardianLine{ticketType: tt, quantity: quantity}, nil
	case listing.CategoryDependent:
		return DependentLine{ticketType: tt, quantity: quantity, linkedReservationID: linkedReservationID}, nil
	case listing.CategoryPhysicalGood:
		if linkedReservationID != nil {
			return nil, ErrLinkOnNonDependent
		}
		return PhysicalGoodLine{ticketType: tt, quantity: quantity}, nil
	default:
		return nil, listing.ErrInvalidCategory
	}
}

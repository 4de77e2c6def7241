package cart

import (
	"errors"

	"booking-checkout/internal/domain/listing"

	"github.com/google/uuid"
)

var (
	ErrLinkOnNonDependent = errors.New("only dependent lines can reference a prior reservation")
	ErrLineNotFound       = errors.New("cart line not found")
	ErrNonPositiveUnits   = errors.New("units to remove must be positive")
)

// Item is the unvalidated client input for one line.
type Item struct {
	TicketTypeID        uuid.UUID
	Quantity            int
	LinkedReservationID *uuid.UUID
}

type Cart struct {
	listingID uuid.UUID
	date      listing.ServiceDate
	lines     []Line
}

// Build resolves items against the listing. Structural problems (unknown or
// duplicate ticket types, misplaced links) are returned as a ValidationError.
func Build(l *listing.Listing, date listing.ServiceDate, items []Item) (*Cart, error) {
	c := &Cart{listingID: l.ID(), date: date}
	var violations []Violation
	seen := make(map[uuid.UUID]struct{}, len(items))

	for _, it := range items {
		id := it.TicketTypeID
		if _, dup := seen[id]; dup {
			violations = append(violations, violation(CodeDuplicateTicketType, &id, "ticket type appears more than once"))
			continue
		}
		seen[id] = struct{}{}

		tt, ok := l.TicketType(id)
		if !ok {
			violations = append(violations, violation(CodeUnknownTicketType, &id, "ticket type does not belong to this listing"))
			continue
		}
		line, err := NewLine(tt, it.Quantity, it.LinkedReservationID)
		if err != nil {
			violations = append(violations, violation(CodeInvalidLink, &id, err.Error()))
			continue
		}
		c.lines = append(c.lines, line)
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return c, nil
}

func (c *Cart) ListingID() uuid.UUID      { return c.listingID }
func (c *Cart) Date() listing.ServiceDate { return c.date }

func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) GuardianUnits() int {
	n := 0
	for _, l := range c.lines {
		if _, ok := l.(GuardianLine); ok && l.Quantity() > 0 {
			n += l.Quantity()
		}
	}
	return n
}

// QuotaUnits counts the non-physical units that consume the daily quota.
func (c *Cart) QuotaUnits() int {
	n := 0
	for _, l := range c.lines {
		if l.Category().ConsumesQuota() && l.Quantity() > 0 {
			n += l.Quantity()
		}
	}
	return n
}

func (c *Cart) UnitsByCategory() map[listing.Category]int {
	out := make(map[listing.Category]int)
	for _, l := range c.lines {
		if l.Quantity() > 0 {
			out[l.Category()] += l.Quantity()
		}
	}
	return out
}

// RemoveUnits decrements a line, dropping it at zero. When the last guardian
// unit leaves the cart every unlinked dependent line is dropped too and a
// warning is returned for each.
func (c *Cart) RemoveUnits(ticketTypeID uuid.UUID, units int) ([]Warning, error) {
	if units <= 0 {
		return nil, ErrNonPositiveUnits
	}
	idx := c.indexOf(ticketTypeID)
	if idx < 0 {
		return nil, ErrLineNotFound
	}
	line := c.lines[idx]
	remaining := line.Quantity() - units
	if remaining > 0 {
		c.lines[idx] = line.withQuantity(remaining)
		return nil, nil
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)

	if line.Category() != listing.CategoryGuardian || c.GuardianUnits() > 0 {
		return nil, nil
	}
	return c.dropOrphanedDependents(), nil
}

func (c *Cart) RemoveLine(ticketTypeID uuid.UUID) ([]Warning, error) {
	idx := c.indexOf(ticketTypeID)
	if idx < 0 {
		return nil, ErrLineNotFound
	}
	return c.RemoveUnits(ticketTypeID, c.lines[idx].Quantity())
}

func (c *Cart) dropOrphanedDependents() []Warning {
	var warnings []Warning
	kept := c.lines[:0]
	for _, l := range c.lines {
		if d, ok := l.(DependentLine); ok && !d.IsLinked() {
			id := d.TicketType().ID()
			warnings = append(warnings, Warning{
				Code:         WarnDependentRemoved,
				TicketTypeID: &id,
				Message:      "dependent tickets were removed because no guardian ticket remains",
			})
			continue
		}
		kept = append(kept, l)
	}
	c.lines = kept
	return warnings
}

func (c *Cart) indexOf(ticketTypeID uuid.UUID) int {
	for i, l := range c.lines {
		if l.TicketType().ID() == ticketTypeID {
			return i
		}
	}
	return -1
}

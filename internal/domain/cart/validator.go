package cart

import (
	"fmt"

	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/pkg/clock"

	"github.com/google/uuid"
)

const (
	DefaultMaxQuantityPerLine   = 20
	DefaultLowCapacityThreshold = 5
)

type Validator struct {
	MaxQuantityPerLine   int
	LowCapacityThreshold int
	Clock                clock.Clock
}

func NewValidator(maxQuantityPerLine int, clk clock.Clock) *Validator {
	if maxQuantityPerLine <= 0 {
		maxQuantityPerLine = DefaultMaxQuantityPerLine
	}
	return &Validator{
		MaxQuantityPerLine:   maxQuantityPerLine,
		LowCapacityThreshold: DefaultLowCapacityThreshold,
		Clock:                clk,
	}
}

// ValidCart is a cart that passed every composition and capacity rule
// against the snapshot it was checked with.
type ValidCart struct {
	cart     *Cart
	snapshot Snapshot
	warnings []Warning
}

func (v *ValidCart) Cart() *Cart               { return v.cart }
func (v *ValidCart) Lines() []Line             { return v.cart.Lines() }
func (v *ValidCart) ListingID() uuid.UUID      { return v.cart.ListingID() }
func (v *ValidCart) Date() listing.ServiceDate { return v.cart.Date() }
func (v *ValidCart) Warnings() []Warning       { return v.warnings }
func (v *ValidCart) Snapshot() Snapshot        { return v.snapshot }

// Validate checks the cart without side effects.
func (v *Validator) Validate(c *Cart, snap Snapshot, buyer Buyer) (*ValidCart, error) {
	var violations []Violation

	if c.IsEmpty() {
		return nil, &ValidationError{Violations: []Violation{
			violation(CodeEmptyCart, nil, "cart has no lines"),
		}}
	}
	if v.Clock != nil && c.Date().Before(v.Clock.Now()) {
		violations = append(violations, violation(CodePastDate, nil, "service date is in the past"))
	}

	guardians := c.GuardianUnits()
	for _, line := range c.Lines() {
		tt := line.TicketType()
		id := tt.ID()

		if line.Quantity() <= 0 {
			violations = append(violations, violation(CodeInvalidQuantity, &id, "quantity must be positive"))
			continue
		}
		if line.Quantity() > v.MaxQuantityPerLine {
			violations = append(violations, violation(CodeQuantityLimit, &id,
				fmt.Sprintf("at most %d units per line", v.MaxQuantityPerLine)))
		}
		if !tt.IsAvailableOn(c.Date()) {
			violations = append(violations, violation(CodeUnavailableOnDate, &id, "ticket type is not sold on this date"))
		}

		switch l := line.(type) {
		case GuardianLine:
		case DependentLine:
			if vi, ok := v.checkDependent(c, l, guardians, snap, buyer); !ok {
				violations = append(violations, vi)
			}
		case PhysicalGoodLine:
			if remaining, limited := snap.RemainingFor(tt); limited && l.Quantity() > remaining {
				violations = append(violations, violation(CodeStockExceeded, &id,
					fmt.Sprintf("only %d left in stock", max(remaining, 0))))
			}
		default:
			violations = append(violations, violation(CodeUnknownTicketType, &id, "unsupported line type"))
		}
	}

	violations = append(violations, checkQuota(c, snap)...)

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	return &ValidCart{cart: c, snapshot: snap, warnings: v.warnings(c, snap)}, nil
}

func (v *Validator) checkDependent(c *Cart, l DependentLine, guardians int, snap Snapshot, buyer Buyer) (Violation, bool) {
	id := l.TicketType().ID()
	if !l.IsLinked() {
		if guardians > 0 {
			return Violation{}, true
		}
		return violation(CodeDependentNoGuardian, &id, "dependent tickets need a guardian ticket or a linked reservation"), false
	}

	linked, ok := snap.LinkedReservations[*l.LinkedReservationID()]
	switch {
	case !ok:
		return violation(CodeInvalidLink, &id, "linked reservation not found"), false
	case linked.BuyerID != buyer.ID:
		return violation(CodeInvalidLink, &id, "linked reservation belongs to another buyer"), false
	case !linked.Approved:
		return violation(CodeInvalidLink, &id, "linked reservation is not paid"), false
	case linked.ListingID != c.ListingID() || !linked.Date.Equal(c.Date()):
		return violation(CodeInvalidLink, &id, "linked reservation is for another listing or date"), false
	}
	return Violation{}, true
}

func checkQuota(c *Cart, snap Snapshot) []Violation {
	var out []Violation
	if units := c.QuotaUnits(); units > snap.RemainingTotal {
		out = append(out, violation(CodeCapacityExceeded, nil,
			fmt.Sprintf("only %d places left for this date", max(snap.RemainingTotal, 0))))
	}
	byCat := c.UnitsByCategory()
	for _, cat := range []listing.Category{listing.CategoryGuardian, listing.CategoryDependent} {
		remaining, split := snap.RemainingByCategory[cat]
		if split && byCat[cat] > remaining {
			out = append(out, violation(CodeCapacityExceeded, nil,
				fmt.Sprintf("only %d %s places left for this date", max(remaining, 0), cat)))
		}
	}
	return out
}

func (v *Validator) warnings(c *Cart, snap Snapshot) []Warning {
	units := c.QuotaUnits()
	if units == 0 || snap.RemainingTotal-units > v.LowCapacityThreshold {
		return nil
	}
	return []Warning{{
		Code:    WarnLowCapacity,
		Message: fmt.Sprintf("%d places left after this booking", snap.RemainingTotal-units),
	}}
}

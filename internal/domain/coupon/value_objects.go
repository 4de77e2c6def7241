package coupon

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidCouponCode      = errors.New("invalid coupon code format")
	ErrInvalidDiscountAmount  = errors.New("discount amount cannot be negative")
	ErrInvalidDiscountPercent = errors.New("percentage discount must be between 0 and 10000 basis points")
	ErrInvalidDiscountKind    = errors.New("invalid discount kind")
)

var couponCodeRegex = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

// Code is always stored upper-cased so lookups are case-insensitive.
type Code string

func NewCouponCode(code string) (Code, error) {
	code = NormalizeCode(code)
	if !couponCodeRegex.MatchString(code) {
		return Code(""), ErrInvalidCouponCode
	}
	return Code(code), nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c Code) String() string {
	return string(c)
}

type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

func (k Kind) IsValid() bool {
	return k == KindPercentage || k == KindFixed
}

// Discount is either a percentage in basis points or a fixed amount in minor units.
type Discount struct {
	kind        Kind
	percentBps  int64
	amountCents int64
}

func NewFixedDiscount(amountCents int64) (Discount, error) {
	if amountCents < 0 {
		return Discount{}, ErrInvalidDiscountAmount
	}
	return Discount{kind: KindFixed, amountCents: amountCents}, nil
}

func NewPercentageDiscount(percentBps int64) (Discount, error) {
	if percentBps < 0 || percentBps > 10000 {
		return Discount{}, ErrInvalidDiscountPercent
	}
	return Discount{kind: KindPercentage, percentBps: percentBps}, nil
}

func NewDiscount(kind Kind, percentBps, amountCents int64) (Discount, error) {
	switch kind {
	case KindPercentage:
		return NewPercentageDiscount(percentBps)
	case KindFixed:
		return NewFixedDiscount(amountCents)
	default:
		return Discount{}, ErrInvalidDiscountKind
	}
}

func (d Discount) Kind() Kind         { return d.kind }
func (d Discount) IsPercentage() bool { return d.kind == KindPercentage }
func (d Discount) IsFixed() bool      { return d.kind == KindFixed }
func (d Discount) PercentBps() int64  { return d.percentBps }
func (d Discount) AmountCents() int64 { return d.amountCents }

// AmountFor returns the discount for a gross amount, never exceeding it.
// Percentages round half-up to the nearest minor unit.
func (d Discount) AmountFor(grossCents int64) int64 {
	if grossCents <= 0 {
		return 0
	}
	var off int64
	if d.IsPercentage() {
		off = (grossCents*d.percentBps + 5000) / 10000
	} else {
		off = d.amountCents
	}
	if off > grossCents {
		return grossCents
	}
	return off
}

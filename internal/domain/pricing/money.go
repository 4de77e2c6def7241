package pricing

import "fmt"

// Money is an amount in minor currency units.
type Money int64

func (m Money) Cents() int64 {
	return int64(m)
}

// String formats as major.minor with two decimals, e.g. "120.00".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// applyBps multiplies by a basis-point rate and rounds half-up.
func applyBps(amount Money, bps int64) Money {
	return Money((int64(amount)*bps + 5000) / 10000)
}

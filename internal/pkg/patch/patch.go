// Package patch holds small pointer helpers for optional fields.
package patch

// Of returns a pointer to a copy of v.
func Of[T any](v T) *T {
	return &v
}

// NilIfZero returns nil for the zero value of T, so optional fields stay unset.
func NilIfZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

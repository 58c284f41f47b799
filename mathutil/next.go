package mathutil

import (
	"golang.org/x/exp/constraints"
)

// NextMultiple returns the smallest multiple of step strictly greater than v, for non-negative v.
func NextMultiple[T constraints.Integer](v, step T) T {
	return (v/step + 1) * step
}

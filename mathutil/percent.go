package mathutil

import (
	"golang.org/x/exp/constraints"
)

// Percent returns part as a percentage of total, or 0 when total is not positive.
func Percent[T constraints.Integer](part, total T) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}

// Steps returns how many whole steps of stepPercent part has covered out of total.
func Steps[T constraints.Integer](part, total, stepPercent T) T {
	if total <= 0 || stepPercent <= 0 {
		return 0
	}
	return part * (100 / stepPercent) / total
}

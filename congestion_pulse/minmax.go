package congestion_pulse

import (
	"golang.org/x/exp/constraints"
)

// Clamp returns v limited to [lo, hi]. A zero hi means no upper bound.
func Clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if hi != 0 && v > hi {
		return hi
	}
	return v
}

// MaxOf returns the largest element of values, or zero when empty.
func MaxOf[T constraints.Ordered](values []T) T {
	var best T
	for i, v := range values {
		if i == 0 || v > best {
			best = v
		}
	}
	return best
}

// MinOf returns the smallest element of values, or zero when empty.
func MinOf[T constraints.Ordered](values []T) T {
	var best T
	for i, v := range values {
		if i == 0 || v < best {
			best = v
		}
	}
	return best
}

// SumOf adds up values.
func SumOf[T constraints.Integer | constraints.Float](values []T) T {
	var sum T
	for _, v := range values {
		sum += v
	}
	return sum
}

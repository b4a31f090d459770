// Package fixedpoint provides checked unsigned 64-bit arithmetic used by the
// reward and governance engines. Every operation reports overflow instead of
// wrapping.
package fixedpoint

import (
	"errors"
	"math/bits"
)

// ErrOverflow is returned when a result does not fit in 64 bits.
var ErrOverflow = errors.New("arithmetic overflow")

// ErrDivideByZero is returned when a divisor is zero.
var ErrDivideByZero = errors.New("division by zero")

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrOverflow when b > a.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

// SubFloor returns a-b, clamped to zero when b > a.
func SubFloor(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// MulDiv computes a*b/d with a 128-bit intermediate product.
// The quotient must fit in 64 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivideByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrOverflow
	}
	quo, _ := bits.Div64(hi, lo, d)
	return quo, nil
}

// AddInt64 adds a non-negative duration to a timestamp, failing on overflow.
func AddInt64(a, b int64) (int64, error) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, ErrOverflow
	}
	return c, nil
}

// Package umath holds the integer helpers of the codec buffers and the gas meter.
package umath

import (
	"math"
	"math/bits"
)

// NextPow2 returns the smallest power of two not below x, 1 for x <= 1.
func NextPow2(x int) int {
	if x <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(x-1))
}

// SaturatingAdd returns a+b, MaxUint64 when the sum overflows.
func SaturatingAdd(a, b uint64) uint64 {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return s
}

// SaturatingMul returns a*b, MaxUint64 when the product overflows.
func SaturatingMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

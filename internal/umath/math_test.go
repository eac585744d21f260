package umath

import (
	"math"
	"testing"
)

func TestNextPow2(t *testing.T) {
	for _, test := range []struct{ in, want int }{
		{-3, 1}, {0, 1}, {1, 1}, {2, 2}, {3, 4}, {64, 64}, {65, 128}, {10946, 16384}, {1 << 30, 1 << 30},
	} {
		if got := NextPow2(test.in); got != test.want {
			t.Errorf("NextPow2(%d) = %d, want %d", test.in, got, test.want)
		}
	}
}

func TestSaturating(t *testing.T) {
	if got := SaturatingAdd(1, 2); got != 3 {
		t.Errorf("SaturatingAdd(1, 2) = %d", got)
	}
	if got := SaturatingAdd(math.MaxUint64-1, 2); got != math.MaxUint64 {
		t.Errorf("SaturatingAdd overflow = %d", got)
	}
	if got := SaturatingMul(1000, 7); got != 7000 {
		t.Errorf("SaturatingMul(1000, 7) = %d", got)
	}
	if got := SaturatingMul(math.MaxUint64/2, 3); got != math.MaxUint64 {
		t.Errorf("SaturatingMul overflow = %d", got)
	}
}

package common

import "math"

// MulInt64 multiplies two unsigned sizes, returning (0, false) if the product
// does not fit an int64 seek offset.
func MulInt64(a, b uint64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return int64(a * b), true
}

// AddInt64 adds two non-negative offsets, returning (0, false) on overflow.
func AddInt64(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

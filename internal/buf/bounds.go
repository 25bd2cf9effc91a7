package buf

import (
	"fmt"
	"math/bits"
)

// AddOverflowSafe adds a and b, returning ok = false when the sum wraps.
func AddOverflowSafe(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// MulOverflowSafe multiplies a and b, returning ok = false when the product
// does not fit in 64 bits. kcalloc relies on it for n*size.
func MulOverflowSafe(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// CheckArrayBounds validates that count elements of elemSize bytes fit in a
// buffer of bufLen bytes starting at off, and returns the end offset.
//
//	end, err := buf.CheckArrayBounds(uint64(len(data)), 8, count, 24)
//	if err != nil {
//	    return fmt.Errorf("e820: %w", err)
//	}
func CheckArrayBounds(bufLen, off, count, elemSize uint64) (uint64, error) {
	total, ok := MulOverflowSafe(count, elemSize)
	if !ok {
		return 0, fmt.Errorf("overflow: count=%d * elemSize=%d", count, elemSize)
	}
	end, ok := AddOverflowSafe(off, total)
	if !ok {
		return 0, fmt.Errorf("overflow: offset=%d + size=%d", off, total)
	}
	if end > bufLen {
		return 0, fmt.Errorf("bounds: end=%d > len=%d", end, bufLen)
	}
	return end, nil
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n uint64) ([]byte, bool) {
	end, ok := AddOverflowSafe(off, n)
	if !ok || end > uint64(len(b)) {
		return nil, false
	}
	return b[off:end], true
}

package wire

import (
	"fmt"
	"math"
)

// CheckMultiplyOverflow reports whether a*b would overflow uint64.
func CheckMultiplyOverflow(a, b uint64) error {
	if a == 0 || b == 0 {
		return nil
	}
	if a > math.MaxUint64/b {
		return fmt.Errorf("multiplication overflow: %d * %d exceeds uint64 max", a, b)
	}
	return nil
}

// SafeMultiply multiplies a and b, failing rather than wrapping on overflow.
func SafeMultiply(a, b uint64) (uint64, error) {
	if err := CheckMultiplyOverflow(a, b); err != nil {
		return 0, err
	}
	return a * b, nil
}

// SafeAdd adds a and b, failing rather than wrapping on overflow.
func SafeAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fmt.Errorf("addition overflow: %d + %d exceeds uint64 max", a, b)
	}
	return a + b, nil
}

// RoundUp8 rounds n up to the next multiple of 8, the alignment every
// node in the file must satisfy.
func RoundUp8(n uint64) uint64 {
	return (n + 7) &^ 7
}

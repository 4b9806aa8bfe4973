// Package utils provides amount arithmetic helpers shared across the
// settlement engine. Amounts are 256-bit unsigned integers carried as
// *big.Int in memory and as base-10 strings in storage and on the wire.
package utils

import (
	"fmt"
	"math/big"
)

const maxResultBytes = 32

// ParseAmount parses a base-10 unsigned integer amount string.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}

// FormatAmount renders an amount for storage. A nil amount formats as "0".
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// SlippageBounds computes the acceptable [low, high] window around an
// expected output, expressed as basis-point multipliers (10000 = 100%).
func SlippageBounds(expected *big.Int, minBP, maxBP uint32) (*big.Int, *big.Int) {
	low := new(big.Int).Mul(expected, big.NewInt(int64(minBP)))
	low.Div(low, big.NewInt(10000))
	high := new(big.Int).Mul(expected, big.NewInt(int64(maxBP)))
	high.Div(high, big.NewInt(10000))
	return low, high
}

// WithinBounds reports whether low <= v <= high.
func WithinBounds(v, low, high *big.Int) bool {
	return v.Cmp(low) >= 0 && v.Cmp(high) <= 0
}

// DecodeResultAmount decodes the oracle result payload: a big-endian
// unsigned integer of at most 32 bytes. An empty payload decodes to zero.
func DecodeResultAmount(b []byte) (*big.Int, error) {
	if len(b) > maxResultBytes {
		return nil, fmt.Errorf("result payload too long: %d bytes", len(b))
	}
	return new(big.Int).SetBytes(b), nil
}

// Package stroops provides shared amount parsing, formatting, and checked
// arithmetic for the settlement core.
//
// The custody stablecoin uses 7 decimal places. All internal amounts are
// big.Int values in the smallest unit (1 unit = 10,000,000 stroops) and must
// stay within the signed 128-bit range used by the wire encoding.
package stroops

import (
	"math/big"
	"strings"

	"github.com/swiftremit/swiftremit/internal/errs"
)

const Decimals = 7

// PerUnit is the number of stroops in one whole stablecoin unit.
var PerUnit = big.NewInt(10_000_000)

var (
	maxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// InRange reports whether v fits in a signed 128-bit integer.
func InRange(v *big.Int) bool {
	return v.Cmp(minI128) >= 0 && v.Cmp(maxI128) <= 0
}

// Parse converts a decimal string (e.g. "1.50") to its stroop
// representation (15000000). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 7 decimal places
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || !InRange(result) {
		return nil, false
	}
	return result, ok
}

// Format converts a stroop amount to a decimal string with exactly
// 7 decimal places (e.g. "1.5000000").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.0000000"
	}
	neg := amount.Sign() < 0
	s := new(big.Int).Abs(amount).String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// EncodeBE returns the 16-byte big-endian two's-complement encoding of v.
// v must be in the signed 128-bit range.
func EncodeBE(v *big.Int) ([16]byte, error) {
	var out [16]byte
	if !InRange(v) {
		return out, errs.Overflow
	}
	enc := v
	if v.Sign() < 0 {
		// two's complement: 2^128 + v
		enc = new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 128), v)
	}
	enc.FillBytes(out[:])
	return out, nil
}

// CheckedAdd returns a+b or Overflow if the sum leaves the 128-bit range.
func CheckedAdd(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if !InRange(sum) {
		return nil, errs.Overflow
	}
	return sum, nil
}

// CheckedSub returns a-b or Underflow if the result leaves the 128-bit range.
func CheckedSub(a, b *big.Int) (*big.Int, error) {
	diff := new(big.Int).Sub(a, b)
	if !InRange(diff) {
		return nil, errs.Underflow
	}
	return diff, nil
}

// CheckedMul returns a*b or Overflow if the product leaves the 128-bit range.
func CheckedMul(a, b *big.Int) (*big.Int, error) {
	prod := new(big.Int).Mul(a, b)
	if !InRange(prod) {
		return nil, errs.Overflow
	}
	return prod, nil
}

// MulDiv computes a*num/den with the intermediate product unbounded, the
// final quotient range-checked. den must be positive.
func MulDiv(a *big.Int, num, den int64) (*big.Int, error) {
	if den <= 0 {
		return nil, errs.Underflow
	}
	prod := new(big.Int).Mul(a, big.NewInt(num))
	q := new(big.Int).Quo(prod, big.NewInt(den))
	if !InRange(q) {
		return nil, errs.Overflow
	}
	return q, nil
}

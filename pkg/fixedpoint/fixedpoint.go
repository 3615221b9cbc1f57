package fixedpoint

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by a Price.
const Decimals = 18

var (
	ErrNotNumeric = errors.New("not a decimal number")
	ErrNegative   = errors.New("negative price")
	ErrOverflow   = errors.New("price exceeds fixed-point range")
)

var (
	scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	// maxRaw is the largest scaled value, 2^256-1, which also fits numeric(78,0).
	maxRaw = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// maxExponent bounds the decimal exponent accepted before scaling so that
// inputs like "1e999999999" are rejected without allocating a huge integer.
const maxExponent = 80

// NormalizationError reports an input that could not be turned into a Price.
type NormalizationError struct {
	Input string
	Err   error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %q: %v", e.Input, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// Price is a non-negative decimal scaled by 10^18 and held as an exact integer.
// The zero value is a zero price.
type Price struct {
	raw *big.Int
}

// Normalize parses a decimal string, optionally in scientific notation, into a
// Price. Digits past the 18th fractional place are truncated, never rounded.
func Normalize(s string) (Price, error) {
	in := s
	if strings.HasPrefix(in, "+") {
		in = in[1:]
		// a leading '+' must be followed by the number itself
		if in == "" || !(in[0] == '.' || (in[0] >= '0' && in[0] <= '9')) {
			return Price{}, &NormalizationError{Input: s, Err: ErrNotNumeric}
		}
	}
	if in == "" || in != strings.TrimSpace(in) {
		return Price{}, &NormalizationError{Input: s, Err: ErrNotNumeric}
	}

	d, err := decimal.NewFromString(in)
	if err != nil {
		return Price{}, &NormalizationError{Input: s, Err: ErrNotNumeric}
	}

	switch d.Sign() {
	case 0:
		return Price{raw: new(big.Int)}, nil
	case -1:
		return Price{}, &NormalizationError{Input: s, Err: ErrNegative}
	}

	exp := int64(d.Exponent()) + Decimals
	if exp > maxExponent {
		return Price{}, &NormalizationError{Input: s, Err: ErrOverflow}
	}

	raw := d.Coefficient()
	switch {
	case exp >= 0:
		raw.Mul(raw, pow10(exp))
	case -exp > int64(len(raw.String())):
		// Every significant digit lies past the 18th fractional place.
		raw.SetInt64(0)
	default:
		// Quo truncates toward zero; raw is positive here.
		raw.Quo(raw, pow10(-exp))
	}

	if raw.Cmp(maxRaw) > 0 {
		return Price{}, &NormalizationError{Input: s, Err: ErrOverflow}
	}
	return Price{raw: raw}, nil
}

// NormalizeFloat normalizes a float using its shortest round-trip decimal form,
// so 1.1 becomes exactly 1.1 rather than its binary expansion.
func NormalizeFloat(f float64) (Price, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Price{}, &NormalizationError{Input: strconv.FormatFloat(f, 'g', -1, 64), Err: ErrNotNumeric}
	}
	return Normalize(strconv.FormatFloat(f, 'g', -1, 64))
}

// FromRaw builds a Price from its scaled integer digits, as stored in the
// database.
func FromRaw(s string) (Price, error) {
	raw, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Price{}, &NormalizationError{Input: s, Err: ErrNotNumeric}
	}
	if raw.Sign() < 0 {
		return Price{}, &NormalizationError{Input: s, Err: ErrNegative}
	}
	if raw.Cmp(maxRaw) > 0 {
		return Price{}, &NormalizationError{Input: s, Err: ErrOverflow}
	}
	return Price{raw: raw}, nil
}

// Raw returns a copy of the scaled integer.
func (p Price) Raw() *big.Int {
	return new(big.Int).Set(p.int())
}

// String returns the scaled integer digits, e.g. "1100000000000000000" for 1.1.
func (p Price) String() string {
	return p.int().String()
}

// Denormalize returns the canonical decimal form without trailing zeros.
func (p Price) Denormalize() string {
	return decimal.NewFromBigInt(p.int(), -Decimals).String()
}

func (p Price) IsZero() bool { return p.int().Sign() == 0 }

func (p Price) Cmp(o Price) int { return p.int().Cmp(o.int()) }

func (p Price) Equal(o Price) bool { return p.Cmp(o) == 0 }

func (p Price) int() *big.Int {
	if p.raw == nil {
		return new(big.Int)
	}
	return p.raw
}

func pow10(n int64) *big.Int {
	if n == Decimals {
		return new(big.Int).Set(scale)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// Package money represents monetary values as integer minor units.
//
// All ledger arithmetic happens on int64 cent amounts so that balance
// checks are exact equality, never float comparison. Decimal strings
// cross the API boundary and are converted here.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value in minor units (cents).
type Amount int64

var (
	// ErrInvalidAmount indicates an unparseable decimal string.
	ErrInvalidAmount = errors.New("money: invalid amount")
	// ErrTooPrecise indicates more than two fractional digits.
	ErrTooPrecise = errors.New("money: more than two decimal places")
	// ErrNegativeAmount indicates a negative value where only
	// non-negative amounts are allowed.
	ErrNegativeAmount = errors.New("money: negative amount")
)

// Parse converts a decimal string such as "100.50" into minor units.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return 0, fmt.Errorf("%w: %q", ErrTooPrecise, s)
	}
	shifted := d.Shift(2)
	// IntPart silently wraps past int64; a 19-digit input must be an
	// error, not a garbage amount.
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount(shifted.IntPart()), nil
}

// ParseNonNegative parses s and rejects negative values.
func ParseNonNegative(s string) (Amount, error) {
	a, err := Parse(s)
	if err != nil {
		return 0, err
	}
	if a < 0 {
		return 0, fmt.Errorf("%w: %q", ErrNegativeAmount, s)
	}
	return a, nil
}

// FromCents wraps a raw minor-unit value.
func FromCents(v int64) Amount {
	return Amount(v)
}

// Cents returns the raw minor-unit value.
func (a Amount) Cents() int64 {
	return int64(a)
}

// Decimal returns the value as a two-place decimal.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// String formats the amount as a plain decimal, e.g. "100.50".
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string or bare number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

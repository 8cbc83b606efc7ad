package ledger

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// amountPattern is the on-wire shape of a money value: optional sign,
// integer part, at most two fractional digits.
var amountPattern = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)

// BalanceTolerance is the maximum net imbalance a transaction may carry.
// Legacy data was produced with floating-point arithmetic; the tolerance
// is kept for compatibility with it, not as a correctness window.
var BalanceTolerance = decimal.New(1, -2) // 0.01

// Money is a fixed-point decimal amount with two fractional digits.
// The zero value is 0.00. It serializes as a quoted string such as "5000.00".
type Money struct {
	d decimal.Decimal
}

// ParseMoney parses a decimal string such as "5000.00" or "-12.5".
// More than two fractional digits is rejected.
func ParseMoney(s string) (Money, error) {
	if !amountPattern.MatchString(s) {
		return Money{}, fmt.Errorf("invalid amount %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Money{d: d}, nil
}

// MustMoney is ParseMoney for literals; it panics on bad input.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromDecimal truncates d to two fractional digits.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{d: d.Truncate(2)}
}

// Decimal returns the underlying arbitrary-precision value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// Add returns m + o.
func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

// Neg returns -m.
func (m Money) Neg() Money { return Money{d: m.d.Neg()} }

// Abs returns the magnitude of m.
func (m Money) Abs() Money { return Money{d: m.d.Abs()} }

// Cmp compares m and o: -1 if m < o, 0 if equal, +1 if m > o.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

// Equal reports whether m and o are numerically equal.
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

// IsZero reports whether m is 0.00.
func (m Money) IsZero() bool { return m.d.IsZero() }

// IsPositive reports whether m > 0.
func (m Money) IsPositive() bool { return m.d.IsPositive() }

// IsNegative reports whether m < 0.
func (m Money) IsNegative() bool { return m.d.IsNegative() }

// WithinTolerance reports whether |m| <= BalanceTolerance.
func (m Money) WithinTolerance() bool {
	return m.d.Abs().Cmp(BalanceTolerance) <= 0
}

// String renders m with exactly two fractional digits.
func (m Money) String() string { return m.d.StringFixed(2) }

// MarshalJSON renders m as a quoted fixed-point string, e.g. "5000.00".
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.d.StringFixed(2) + `"`), nil
}

// UnmarshalJSON accepts both quoted strings and bare JSON numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

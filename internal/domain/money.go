package domain

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
)

// Money is an exact decimal amount in a currency-agnostic unit. Sums over
// Money values never accumulate floating-point drift, which matters for the
// report totals. The representation follows the NUMERIC convention used for
// the BigQuery rows (big.Rat).
//
// The zero value behaves as 0.00.
type Money struct {
	rat *big.Rat
}

// moneyPattern accepts plain decimal amounts only: optional sign, digits,
// and at most two fraction digits. Rational ("10/3") and exponent ("1e6")
// forms that big.Rat would otherwise parse are not valid amounts.
var moneyPattern = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]{1,2})?$`)

// ParseMoney parses a decimal string such as "100.50".
func ParseMoney(s string) (Money, error) {
	if !moneyPattern.MatchString(s) {
		return Money{}, fmt.Errorf("ParseMoney: invalid amount %q", s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Money{}, fmt.Errorf("ParseMoney: invalid amount %q", s)
	}
	return Money{rat: r}, nil
}

// MoneyFromRat wraps a big.Rat. A nil rat yields zero. The rat is not copied;
// callers must not mutate it afterwards.
func MoneyFromRat(r *big.Rat) Money {
	return Money{rat: r}
}

// MoneyFromFloat converts a float64 amount. Intended for test fixtures and
// CLI input, not for summation.
func MoneyFromFloat(f float64) Money {
	return Money{rat: new(big.Rat).SetFloat64(f)}
}

// Rat returns the underlying big.Rat, never nil. The result must not be mutated.
func (m Money) Rat() *big.Rat {
	if m.rat == nil {
		return new(big.Rat)
	}
	return m.rat
}

// Positive reports whether m > 0.
func (m Money) Positive() bool {
	return m.rat != nil && m.rat.Sign() > 0
}

// IsZero reports whether m == 0.
func (m Money) IsZero() bool {
	return m.rat == nil || m.rat.Sign() == 0
}

// Plus returns m + o without mutating either operand.
func (m Money) Plus(o Money) Money {
	return Money{rat: new(big.Rat).Add(m.Rat(), o.Rat())}
}

// Div returns m / n. n must be non-zero.
func (m Money) Div(n int64) Money {
	return Money{rat: new(big.Rat).Quo(m.Rat(), big.NewRat(n, 1))}
}

// Cmp compares m and o, returning -1, 0 or +1.
func (m Money) Cmp(o Money) int {
	return m.Rat().Cmp(o.Rat())
}

// Equal reports whether m and o represent the same amount.
func (m Money) Equal(o Money) bool {
	return m.Cmp(o) == 0
}

// String renders the amount with two decimal places.
func (m Money) String() string {
	return m.Rat().FloatString(2)
}

// MarshalJSON renders the amount as a JSON string with two decimal places.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON accepts either a JSON string or a bare number.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return fmt.Errorf("Money.UnmarshalJSON: %w", err)
	}
	*m = parsed
	return nil
}

// Package amount provides the fixed-precision decimal type used for every
// balance and reward computation in the pool core. Binary floating point
// is never used for money: all arithmetic goes through shopspring/decimal
// at 18 fractional digits, matching the chain's base-unit precision (§6).
package amount

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every Amount.
const Scale = 18

// Amount wraps decimal.Decimal and normalizes every value to Scale
// fractional digits, rounding toward negative infinity (floor) at
// materialization points such as the reward engine's final write (§4.3).
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{d: decimal.Zero}

// New builds an Amount from a decimal string such as "123.456".
func New(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("amount: invalid decimal %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// NewFromInt builds an Amount representing a whole-token integer quantity.
func NewFromInt(v int64) Amount {
	return Amount{d: decimal.NewFromInt(v)}
}

// MustNew is New but panics on error; reserved for constants in tests.
func MustNew(s string) Amount {
	a, err := New(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) Mul(b Amount) Amount { return Amount{d: a.d.Mul(b.d)} }

// Div divides a by b, retaining extra internal precision; callers round
// with Floor only when the value is about to be persisted.
func (a Amount) Div(b Amount) Amount {
	if b.IsZero() {
		return Zero
	}
	return Amount{d: a.d.DivRound(b.d, Scale+6)}
}

// Floor rounds toward negative infinity at Scale fractional digits, the
// rule mandated for the reward engine's final reward_credited write.
func (a Amount) Floor() Amount {
	t := a.d.Truncate(Scale)
	if a.d.IsNegative() && !t.Equal(a.d) {
		t = t.Sub(decimal.New(1, -Scale))
	}
	return Amount{d: t}
}

func (a Amount) IsZero() bool       { return a.d.IsZero() }
func (a Amount) IsNegative() bool   { return a.d.IsNegative() }
func (a Amount) IsPositive() bool   { return a.d.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.d.GreaterThan(b.d) }
func (a Amount) GreaterOrEqual(b Amount) bool { return a.d.GreaterThanOrEqual(b.d) }
func (a Amount) LessThan(b Amount) bool       { return a.d.LessThan(b.d) }
func (a Amount) Equal(b Amount) bool          { return a.d.Equal(b.d) }

func (a Amount) String() string { return a.d.Truncate(Scale).StringFixed(Scale) }

// Value implements driver.Valuer so Amount can be written directly by
// database/sql as a NUMERIC(x,18) column.
func (a Amount) Value() (driver.Value, error) {
	return a.d.Truncate(Scale).StringFixed(Scale), nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		a.d = decimal.Zero
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		a.d = d
		return nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		a.d = d
		return nil
	case float64:
		a.d = decimal.NewFromFloat(v)
		return nil
	default:
		return fmt.Errorf("amount: unsupported scan type %T", src)
	}
}

package internal

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

var decimalContext = func() *apd.Context {
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = apd.RoundHalfUp
	return ctx
}()

type Decimal struct {
	value apd.Decimal
}

func NewDecimal(s string) (Decimal, error) {
	var d apd.Decimal
	_, _, err := d.SetString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal: %w", err)
	}
	if d.Form != apd.Finite {
		return Decimal{}, fmt.Errorf("invalid decimal: %q is not finite", s)
	}
	return Decimal{value: d}, nil
}

func NewDecimalFromInt64(i int64) Decimal {
	var d apd.Decimal
	d.SetInt64(i)
	return Decimal{value: d}
}

func ZeroDecimal() Decimal {
	return NewDecimalFromInt64(0)
}

func (d Decimal) String() string {
	return d.value.Text('f')
}

func (d Decimal) IsZero() bool {
	return d.value.IsZero()
}

func (d Decimal) IsNegative() bool {
	return d.value.Sign() < 0
}

// digits returns the integer digits and significant decimal places of d.
// Trailing zeros do not count.
func (d Decimal) digits() (integer, places int64) {
	var reduced apd.Decimal
	reduced.Reduce(&d.value)
	n := reduced.NumDigits()
	exp := int64(reduced.Exponent)
	if exp >= 0 {
		return n + exp, 0
	}
	places = -exp
	if n > places {
		integer = n - places
	}
	return integer, places
}

func (d Decimal) Cmp(other Decimal) int {
	return d.value.Cmp(&other.value)
}

// Add returns the sum of d and other.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	decimalContext.Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Sub returns d minus other.
func (d Decimal) Sub(other Decimal) Decimal {
	var result apd.Decimal
	decimalContext.Sub(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Mul returns the product of d and other.
func (d Decimal) Mul(other Decimal) Decimal {
	var result apd.Decimal
	decimalContext.Mul(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Div returns the quotient of d divided by other.
// Callers guard against a zero divisor.
func (d Decimal) Div(other Decimal) Decimal {
	var result apd.Decimal
	decimalContext.Quo(&result, &d.value, &other.value)
	return Decimal{value: result}
}

func (d Decimal) Abs() Decimal {
	var result apd.Decimal
	result.Abs(&d.value)
	return Decimal{value: result}
}

// Round returns d rounded half-up to the given number of decimal places.
func (d Decimal) Round(places int32) Decimal {
	var result apd.Decimal
	decimalContext.Quantize(&result, &d.value, -places)
	return Decimal{value: result}
}

// Percent returns part/whole*100 rounded to two places, or false when whole is zero.
func Percent(part, whole Decimal) (Decimal, bool) {
	if whole.IsZero() {
		return Decimal{}, false
	}
	return part.Div(whole).Mul(NewDecimalFromInt64(100)).Round(2), true
}

package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// MaxIntegerDigits is the integer part of NUMERIC(20,2).
const MaxIntegerDigits = 18

var (
	ErrMoneyPrecision = errors.New("must have at most 2 decimal places")
	ErrMoneyRange     = errors.New("must be less than 1e18")
)

// CheckMoney reports whether d fits a stored amount: at most MinorUnits
// decimal places and at most MaxIntegerDigits integer digits. It looks at the
// exponent and digit count before anything rescales d, so inputs like
// 1e400000000 are rejected without allocating.
func CheckMoney(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	if exp < -int64(MinorUnits) {
		// 10.500 is fine, 10.505 is not. Past this bound no trailing-zero
		// form can be in range.
		if exp < -int64(MinorUnits+MaxIntegerDigits) || !d.Equal(d.Round(MinorUnits)) {
			return ErrMoneyPrecision
		}
	}
	if int64(d.NumDigits())+exp > MaxIntegerDigits {
		return ErrMoneyRange
	}
	return nil
}

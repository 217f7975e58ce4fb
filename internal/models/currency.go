package models

import "strings"

// Currency is an ISO 4217 code from the closed set the ledger supports.
type Currency string

const (
	KES Currency = "KES"
	USD Currency = "USD"
	NGN Currency = "NGN"
)

// Currencies lists the supported currencies in display order.
var Currencies = []Currency{KES, NGN, USD}

// MinorUnits is the number of decimal places balances are held to.
const MinorUnits int32 = 2

// ParseCurrency normalises a code and checks it against the enumeration.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.Valid() {
		return "", ErrInvalidCurrency
	}
	return c, nil
}

func (c Currency) Valid() bool {
	switch c {
	case KES, USD, NGN:
		return true
	}
	return false
}

func (c Currency) String() string { return string(c) }

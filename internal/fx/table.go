// Package fx holds the exchange-rate table used to price cross-currency
// transfers. A Table is immutable once built.
package fx

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

// Pair is an ordered currency pair.
type Pair struct {
	From models.Currency
	To   models.Currency
}

func (p Pair) String() string { return string(p.From) + "_TO_" + string(p.To) }

type Table struct {
	rates map[Pair]decimal.Decimal
}

// DefaultRates returns the published static rates. The inverse legs are
// rounded to 8 places and are not exact reciprocals of the forward legs.
func DefaultRates() map[Pair]decimal.Decimal {
	return map[Pair]decimal.Decimal{
		{models.USD, models.KES}: decimal.NewFromInt(150),
		{models.USD, models.NGN}: decimal.NewFromInt(800),
		{models.KES, models.USD}: decimal.RequireFromString("0.00666667"),
		{models.KES, models.NGN}: decimal.RequireFromString("5.33"),
		{models.NGN, models.USD}: decimal.RequireFromString("0.00125"),
		{models.NGN, models.KES}: decimal.RequireFromString("0.18761726"),
	}
}

// NewTable copies rates and checks that every ordered pair of supported
// currencies is covered with a positive rate.
func NewTable(rates map[Pair]decimal.Decimal) (*Table, error) {
	t := &Table{rates: make(map[Pair]decimal.Decimal, len(rates))}
	for p, r := range rates {
		if !p.From.Valid() || !p.To.Valid() {
			return nil, fmt.Errorf("rate %s: %w", p, models.ErrInvalidCurrency)
		}
		if !r.IsPositive() {
			return nil, fmt.Errorf("rate %s must be positive, got %s", p, r)
		}
		t.rates[p] = r
	}
	for _, from := range models.Currencies {
		for _, to := range models.Currencies {
			if from == to {
				continue
			}
			if _, ok := t.rates[Pair{from, to}]; !ok {
				return nil, &models.UnsupportedPairError{From: from, To: to}
			}
		}
	}
	return t, nil
}

// MustDefault builds the table from DefaultRates.
func MustDefault() *Table {
	t, err := NewTable(DefaultRates())
	if err != nil {
		panic(err)
	}
	return t
}

// Rate returns the multiplier that expresses an amount in from as an amount
// in to. Same-currency lookups are exactly one.
func (t *Table) Rate(from, to models.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	r, ok := t.rates[Pair{from, to}]
	if !ok {
		return decimal.Zero, &models.UnsupportedPairError{From: from, To: to}
	}
	return r, nil
}

// Convert prices amount in the destination currency, rounded to its minor
// units. The identity case returns amount unchanged.
func (t *Table) Convert(amount decimal.Decimal, from, to models.Currency) (decimal.Decimal, decimal.Decimal, error) {
	rate, err := t.Rate(from, to)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if from == to {
		return amount, rate, nil
	}
	return amount.Mul(rate).Round(models.MinorUnits), rate, nil
}

// Rates returns a copy of the table keyed by "FROM_TO_TO".
func (t *Table) Rates() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(t.rates))
	for p, r := range t.rates {
		out[p.String()] = r
	}
	return out
}

// LoadFile reads a JSON object of the form {"USD":{"KES":"150"}, ...}.
func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rates file: %w", err)
	}
	var doc map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode rates file: %w", err)
	}
	rates := make(map[Pair]decimal.Decimal)
	for from, legs := range doc {
		for to, r := range legs {
			rates[Pair{models.Currency(from), models.Currency(to)}] = r
		}
	}
	return NewTable(rates)
}

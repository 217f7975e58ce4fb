package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a named balance holder denominated in exactly one currency.
type Account struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Currency  Currency        `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AccountFilter narrows ListAccounts. The zero value matches every account.
type AccountFilter struct {
	Currency Currency
}

// CurrencyTotal is one row of the per-currency balance aggregate.
type CurrencyTotal struct {
	Currency     Currency        `json:"currency"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	AccountCount int             `json:"account_count"`
}

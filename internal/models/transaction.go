package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Transaction is the immutable record of a committed transfer.
// FromAccount and ToAccount are point-in-time names and may outlive the
// accounts they referred to.
type Transaction struct {
	ID              int64             `json:"id"`
	TransactionID   string            `json:"transaction_id"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
	FromAccount     string            `json:"from_account"`
	ToAccount       string            `json:"to_account"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        Currency          `json:"currency"`
	ExchangeRate    decimal.Decimal   `json:"exchange_rate"`
	ConvertedAmount decimal.Decimal   `json:"converted_amount"`
	Note            string            `json:"note"`
	Status          TransactionStatus `json:"status"`
	TransferDate    string            `json:"transfer_date,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// TransactionFilter narrows ListTransactions. Limit <= 0 means no limit.
type TransactionFilter struct {
	Account  string
	Currency Currency
	Status   TransactionStatus
	Limit    int
}

// Match reports whether t satisfies every set field of f.
func (f TransactionFilter) Match(t Transaction) bool {
	if f.Account != "" && t.FromAccount != f.Account && t.ToAccount != f.Account {
		return false
	}
	if f.Currency != "" && t.Currency != f.Currency {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

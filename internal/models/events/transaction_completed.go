package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

const TopicTransactionCompleted = "transaction_completed"

type TransactionCompleted struct {
	TransactionID   string          `json:"transaction_id"`
	FromAccount     string          `json:"from_account"`
	ToAccount       string          `json:"to_account"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

func NewTransactionCompleted(tx models.Transaction) TransactionCompleted {
	return TransactionCompleted{
		TransactionID:   tx.TransactionID,
		FromAccount:     tx.FromAccount,
		ToAccount:       tx.ToAccount,
		Amount:          tx.Amount,
		Currency:        string(tx.Currency),
		ExchangeRate:    tx.ExchangeRate,
		ConvertedAmount: tx.ConvertedAmount,
		OccurredAt:      tx.CreatedAt,
	}
}

// Key partitions events for the same transaction together.
func (e TransactionCompleted) Key() string { return e.TransactionID }

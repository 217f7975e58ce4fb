package ledger

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

// TransferRequest is a request to move Amount, denominated in the source
// account's currency, from FromAccount to ToAccount.
type TransferRequest struct {
	FromAccount    string
	ToAccount      string
	Amount         decimal.Decimal
	Note           string
	IdempotencyKey string
	// TransferDate is kept as an annotation on the record. Transfers always
	// execute immediately.
	TransferDate string
}

// Sanitize trims s and strips angle brackets.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.NewReplacer("<", "", ">", "").Replace(s)
}

// normalize validates the request without touching the store and returns a
// cleaned copy.
func (r TransferRequest) normalize() (TransferRequest, error) {
	r.FromAccount = Sanitize(r.FromAccount)
	r.ToAccount = Sanitize(r.ToAccount)
	r.Note = Sanitize(r.Note)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	r.TransferDate = Sanitize(r.TransferDate)

	verr := &models.ValidationError{}
	if r.FromAccount == "" {
		verr.Add("from_account", "source account is required")
	}
	if r.ToAccount == "" {
		verr.Add("to_account", "destination account is required")
	}
	if r.FromAccount != "" && r.FromAccount == r.ToAccount {
		verr.Add("to_account", "source and destination accounts cannot be the same")
	}
	// Sign and scale checks only; nothing here may rescale the amount.
	if !r.Amount.IsPositive() {
		verr.Add("amount", "must be a positive number")
	} else if err := models.CheckMoney(r.Amount); err != nil {
		verr.Add("amount", err.Error())
	}
	if len(r.IdempotencyKey) > 255 {
		verr.Add("idempotency_key", "must be at most 255 characters")
	}
	if err := verr.Err(); err != nil {
		return r, err
	}
	return r, nil
}

// matches reports whether a previously committed transaction was produced by
// an equivalent request.
func (r TransferRequest) matches(tx models.Transaction) bool {
	return tx.FromAccount == r.FromAccount &&
		tx.ToAccount == r.ToAccount &&
		tx.Amount.Equal(r.Amount)
}

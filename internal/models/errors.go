package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrAccountNotFound         = errors.New("account not found")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrDuplicateName           = errors.New("account name already exists")
	ErrTransferFailed          = errors.New("transfer failed")
	ErrNotFound                = errors.New("not found")
	ErrInvalidCurrency         = errors.New("currency must be one of KES, USD, NGN")
	ErrNegativeBalance         = errors.New("balance cannot be negative")
	ErrUnsupportedCurrencyPair = errors.New("unsupported currency pair")
	ErrIdempotencyMismatch     = errors.New("idempotency key reused with a different request")

	// ErrConflict is returned by a store when a unit of work lost a lock or
	// serialization race and can be retried from the start.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrDuplicateTransaction is returned when a transaction_id or
	// idempotency key is already present in the log.
	ErrDuplicateTransaction = errors.New("transaction already recorded")
)

// Code is the stable category the gateway maps to a status code.
type Code string

const (
	CodeValidation              Code = "VALIDATION_ERROR"
	CodeAccountNotFound         Code = "ACCOUNT_NOT_FOUND"
	CodeInsufficientFunds       Code = "INSUFFICIENT_FUNDS"
	CodeDuplicateName           Code = "DUPLICATE_NAME"
	CodeTransferFailed          Code = "TRANSFER_FAILED"
	CodeNotFound                Code = "NOT_FOUND"
	CodeInvalidCurrency         Code = "INVALID_CURRENCY"
	CodeNegativeBalance         Code = "NEGATIVE_BALANCE"
	CodeUnsupportedCurrencyPair Code = "UNSUPPORTED_CURRENCY_PAIR"
	CodeIdempotencyMismatch     Code = "IDEMPOTENCY_MISMATCH"
	CodeInternal                Code = "INTERNAL"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrValidation, CodeValidation},
	{ErrAccountNotFound, CodeAccountNotFound},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrDuplicateName, CodeDuplicateName},
	{ErrTransferFailed, CodeTransferFailed},
	{ErrInvalidCurrency, CodeInvalidCurrency},
	{ErrNegativeBalance, CodeNegativeBalance},
	{ErrUnsupportedCurrencyPair, CodeUnsupportedCurrencyPair},
	{ErrIdempotencyMismatch, CodeIdempotencyMismatch},
	{ErrNotFound, CodeNotFound},
}

// CodeOf classifies err. Unknown errors are CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// FieldError names one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// Err returns e as an error, or nil when no field was rejected.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Side identifies which leg of a transfer an error refers to.
type Side string

const (
	SideSource      Side = "source"
	SideDestination Side = "destination"
)

type AccountNotFoundError struct {
	Side Side
	Name string
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("%s account %s not found", e.Side, e.Name)
}

func (e *AccountNotFoundError) Is(target error) bool { return target == ErrAccountNotFound }

type InsufficientFundsError struct {
	Account   string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance in %s: available %s, requested %s",
		e.Account, e.Available.StringFixed(MinorUnits), e.Requested.String())
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// TransferFailedError wraps the storage fault that aborted a commit.
type TransferFailedError struct {
	Attempts int
	Err      error
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("transfer failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransferFailedError) Is(target error) bool { return target == ErrTransferFailed }

func (e *TransferFailedError) Unwrap() error { return e.Err }

type UnsupportedPairError struct {
	From, To Currency
}

func (e *UnsupportedPairError) Error() string {
	return fmt.Sprintf("no exchange rate for %s to %s", e.From, e.To)
}

func (e *UnsupportedPairError) Is(target error) bool { return target == ErrUnsupportedCurrencyPair }

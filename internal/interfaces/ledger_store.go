package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

// LedgerStore owns the durable state of accounts and transactions.
//
// SetBalance outside RunAtomic is the administrative override path and does
// not check any transfer invariant beyond non-negativity.
type LedgerStore interface {
	GetAccount(ctx context.Context, name string) (models.Account, error)
	ListAccounts(ctx context.Context, filter models.AccountFilter) ([]models.Account, error)
	CreateAccount(ctx context.Context, name string, currency models.Currency, balance decimal.Decimal) (models.Account, error)
	SetBalance(ctx context.Context, name string, balance decimal.Decimal) (models.Account, error)
	DeleteAccount(ctx context.Context, name string) error
	AggregateBalances(ctx context.Context) ([]models.CurrencyTotal, error)

	AppendTransaction(ctx context.Context, tx models.Transaction) (models.Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (models.Transaction, error)
	GetTransactionByID(ctx context.Context, id int64) (models.Transaction, error)
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (models.Transaction, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error

	// RunAtomic runs fn as one unit of work. If fn returns an error, or the
	// commit fails, none of the writes made through tx become visible.
	RunAtomic(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

// LedgerTx is the view of the store inside a unit of work.
type LedgerTx interface {
	// LockAccounts locks the named account rows in lexicographic order and
	// returns their current committed state. Names that do not exist are
	// absent from the result. Locks are held until the unit of work ends.
	LockAccounts(ctx context.Context, names ...string) (map[string]models.Account, error)
	SetBalance(ctx context.Context, name string, balance decimal.Decimal) error
	AppendTransaction(ctx context.Context, tx models.Transaction) error
}

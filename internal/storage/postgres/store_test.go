package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/funds-transfer-ledger/internal/interfaces"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

var (
	accountCols = []string{"id", "name", "currency", "balance", "created_at", "updated_at"}
	txCols      = []string{"id", "transaction_id", "idempotency_key", "from_account", "to_account", "amount",
		"currency", "exchange_rate", "converted_amount", "note", "status", "transfer_date", "created_at"}
	now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newMockStore(t *testing.T) (*PostgresLedgerStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresLedgerStore(db), mock
}

func TestGetAccount(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM accounts WHERE name = \$1`).
		WithArgs("Bank_USD_1").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(int64(4), "Bank_USD_1", "USD", "5000.00", now, now))

	acc, err := store.GetAccount(context.Background(), "Bank_USD_1")
	require.NoError(t, err)
	assert.Equal(t, models.USD, acc.Currency)
	assert.True(t, acc.Balance.Equal(dec("5000")))
	assert.Equal(t, int64(4), acc.ID)
}

func TestGetAccountNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM accounts WHERE name = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(accountCols))

	_, err := store.GetAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateAccountDuplicateName(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs("Bank_USD_1", "USD", dec("10")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_name_key"})

	_, err := store.CreateAccount(context.Background(), "Bank_USD_1", models.USD, dec("10"))
	assert.ErrorIs(t, err, models.ErrDuplicateName)
}

func TestCreateAccountRejectsBeforeQuery(t *testing.T) {
	store, _ := newMockStore(t)
	ctx := context.Background()

	_, err := store.CreateAccount(ctx, "x", models.Currency("EUR"), decimal.Zero)
	assert.ErrorIs(t, err, models.ErrInvalidCurrency)
	_, err = store.CreateAccount(ctx, "x", models.USD, dec("-5"))
	assert.ErrorIs(t, err, models.ErrNegativeBalance)
	_, err = store.CreateAccount(ctx, "x", models.USD, dec("10.005"))
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = store.CreateAccount(ctx, "x", models.USD, dec("1e400000000"))
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = store.SetBalance(ctx, "x", dec("1e20"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSetBalanceNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`UPDATE accounts SET balance = \$1`).
		WithArgs(dec("12.5"), "ghost").
		WillReturnRows(sqlmock.NewRows(accountCols))

	_, err := store.SetBalance(context.Background(), "ghost", dec("12.5"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteAccount(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM accounts WHERE name = \$1`).
		WithArgs("Bank_USD_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM accounts WHERE name = \$1`).
		WithArgs("Bank_USD_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteAccount(context.Background(), "Bank_USD_1"))
	assert.ErrorIs(t, store.DeleteAccount(context.Background(), "Bank_USD_1"), models.ErrNotFound)
}

func TestAggregateBalances(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`GROUP BY currency ORDER BY currency`).
		WillReturnRows(sqlmock.NewRows([]string{"currency", "sum", "count"}).
			AddRow("KES", "225000.00", int64(3)).
			AddRow("USD", "25000.00", int64(4)))

	totals, err := store.AggregateBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, models.KES, totals[0].Currency)
	assert.Equal(t, 3, totals[0].AccountCount)
	assert.True(t, totals[1].TotalBalance.Equal(dec("25000")))
}

func TestListTransactionsBuildsFilter(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`WHERE \(from_account = \$1 OR to_account = \$1\) AND currency = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3`).
		WithArgs("Bank_USD_1", "USD", 5).
		WillReturnRows(sqlmock.NewRows(txCols).
			AddRow(int64(2), "tx-2", nil, "Bank_USD_1", "Mpesa_KES_1", "100.00", "USD", "150.00000000", "15000.00", "", "completed", nil, now))

	txs, err := store.ListTransactions(context.Background(), models.TransactionFilter{
		Account:  "Bank_USD_1",
		Currency: models.USD,
		Limit:    5,
	})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "tx-2", txs[0].TransactionID)
	assert.Equal(t, "", txs[0].IdempotencyKey)
	assert.Equal(t, models.StatusCompleted, txs[0].Status)
	assert.True(t, txs[0].ConvertedAmount.Equal(dec("15000")))
}

func TestRunAtomicCommits(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM accounts\s+WHERE name = ANY\(\$1\) ORDER BY name FOR UPDATE`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(int64(1), "A", "USD", "1000.00", now, now).
			AddRow(int64(2), "B", "KES", "0.00", now, now))
	mock.ExpectExec(`UPDATE accounts SET balance = \$1`).WithArgs(dec("900"), "A").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE accounts SET balance = \$1`).WithArgs(dec("15000"), "B").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO transactions`).
		WillReturnRows(sqlmock.NewRows(txCols).
			AddRow(int64(1), "tx-1", nil, "A", "B", "100.00", "USD", "150", "15000.00", "", "completed", nil, now))
	mock.ExpectCommit()

	err := store.RunAtomic(context.Background(), func(ctx context.Context, tx interfaces.LedgerTx) error {
		accs, err := tx.LockAccounts(ctx, "B", "A")
		if err != nil {
			return err
		}
		if len(accs) != 2 {
			return errors.New("expected both accounts")
		}
		if err := tx.SetBalance(ctx, "A", dec("900")); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, "B", dec("15000")); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, models.Transaction{
			TransactionID:   "tx-1",
			FromAccount:     "A",
			ToAccount:       "B",
			Amount:          dec("100"),
			Currency:        models.USD,
			ExchangeRate:    dec("150"),
			ConvertedAmount: dec("15000"),
			Status:          models.StatusCompleted,
		})
	})
	require.NoError(t, err)
}

func TestRunAtomicRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE accounts SET balance = \$1`).WithArgs(dec("0"), "A").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO transactions`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.RunAtomic(context.Background(), func(ctx context.Context, tx interfaces.LedgerTx) error {
		if err := tx.SetBalance(ctx, "A", decimal.Zero); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, models.Transaction{TransactionID: "tx-9"})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunAtomicMapsSerializationFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})

	err := store.RunAtomic(context.Background(), func(ctx context.Context, tx interfaces.LedgerTx) error {
		return nil
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(&pq.Error{Code: "40P01"}), models.ErrConflict)
	assert.ErrorIs(t, mapError(&pq.Error{Code: "23505", Constraint: "transactions_idempotency_key_key"}), models.ErrDuplicateTransaction)
	assert.ErrorIs(t, mapError(&pq.Error{Code: "23514", Constraint: "accounts_balance_check"}), models.ErrNegativeBalance)
	assert.ErrorIs(t, mapError(&pq.Error{Code: "22003", Message: "numeric field overflow"}), models.ErrValidation)
	assert.Equal(t, models.CodeValidation, models.CodeOf(mapError(&pq.Error{Code: "22003"})))

	plain := errors.New("plain")
	assert.Equal(t, plain, mapError(plain))
}

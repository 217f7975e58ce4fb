package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/funds-transfer-ledger/internal/interfaces"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newStoreWithAccounts(t *testing.T) *MemoryLedgerStore {
	t.Helper()
	store := NewMemoryLedgerStore()
	ctx := context.Background()
	_, err := store.CreateAccount(ctx, "Bank_USD_1", models.USD, dec("1000"))
	require.NoError(t, err)
	_, err = store.CreateAccount(ctx, "Mpesa_KES_1", models.KES, dec("0"))
	require.NoError(t, err)
	return store
}

func TestCreateAccountValidation(t *testing.T) {
	store := newStoreWithAccounts(t)
	ctx := context.Background()

	_, err := store.CreateAccount(ctx, "Bank_USD_1", models.USD, decimal.Zero)
	assert.ErrorIs(t, err, models.ErrDuplicateName)

	_, err = store.CreateAccount(ctx, "Euro", models.Currency("EUR"), decimal.Zero)
	assert.ErrorIs(t, err, models.ErrInvalidCurrency)

	_, err = store.CreateAccount(ctx, "Negative", models.USD, dec("-0.01"))
	assert.ErrorIs(t, err, models.ErrNegativeBalance)

	_, err = store.CreateAccount(ctx, "  ", models.USD, decimal.Zero)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestListAccountsOrderedByCurrencyThenName(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()
	for _, a := range []struct {
		name string
		cur  models.Currency
	}{
		{"b_usd", models.USD}, {"a_usd", models.USD}, {"z_kes", models.KES}, {"m_ngn", models.NGN},
	} {
		_, err := store.CreateAccount(ctx, a.name, a.cur, decimal.Zero)
		require.NoError(t, err)
	}

	all, err := store.ListAccounts(ctx, models.AccountFilter{})
	require.NoError(t, err)
	var names []string
	for _, a := range all {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"z_kes", "m_ngn", "a_usd", "b_usd"}, names)

	usd, err := store.ListAccounts(ctx, models.AccountFilter{Currency: models.USD})
	require.NoError(t, err)
	assert.Len(t, usd, 2)
}

func TestSetBalanceAndDelete(t *testing.T) {
	store := newStoreWithAccounts(t)
	ctx := context.Background()

	before, _ := store.GetAccount(ctx, "Bank_USD_1")
	acc, err := store.SetBalance(ctx, "Bank_USD_1", dec("42.50"))
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("42.5")))
	assert.False(t, acc.UpdatedAt.Before(before.UpdatedAt))

	_, err = store.SetBalance(ctx, "missing", dec("1"))
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = store.SetBalance(ctx, "Bank_USD_1", dec("-1"))
	assert.ErrorIs(t, err, models.ErrNegativeBalance)

	require.NoError(t, store.DeleteAccount(ctx, "Bank_USD_1"))
	assert.ErrorIs(t, store.DeleteAccount(ctx, "Bank_USD_1"), models.ErrNotFound)
	_, err = store.GetAccount(ctx, "Bank_USD_1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAggregateBalances(t *testing.T) {
	store := newStoreWithAccounts(t)
	ctx := context.Background()
	_, err := store.CreateAccount(ctx, "Bank_USD_2", models.USD, dec("250.25"))
	require.NoError(t, err)

	totals, err := store.AggregateBalances(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, models.KES, totals[0].Currency)
	assert.Equal(t, 1, totals[0].AccountCount)
	assert.Equal(t, models.USD, totals[1].Currency)
	assert.True(t, totals[1].TotalBalance.Equal(dec("1250.25")))
	assert.Equal(t, 2, totals[1].AccountCount)
}

func TestRunAtomicCommitsAllWrites(t *testing.T) {
	store := newStoreWithAccounts(t)
	ctx := context.Background()

	err := store.RunAtomic(ctx, func(ctx context.Context, tx interfaces.LedgerTx) error {
		accs, err := tx.LockAccounts(ctx, "Mpesa_KES_1", "Bank_USD_1")
		require.NoError(t, err)
		require.Len(t, accs, 2)
		require.NoError(t, tx.SetBalance(ctx, "Bank_USD_1", dec("900")))
		require.NoError(t, tx.SetBalance(ctx, "Mpesa_KES_1", dec("15000")))
		return tx.AppendTransaction(ctx, models.Transaction{
			TransactionID: "t-1",
			FromAccount:   "Bank_USD_1",
			ToAccount:     "Mpesa_KES_1",
			Amount:        dec("100"),
			Status:        models.StatusCompleted,
		})
	})
	require.NoError(t, err)

	usd, _ := store.GetAccount(ctx, "Bank_USD_1")
	kes, _ := store.GetAccount(ctx, "Mpesa_KES_1")
	assert.True(t, usd.Balance.Equal(dec("900")))
	assert.True(t, kes.Balance.Equal(dec("15000")))

	tx, err := store.GetTransaction(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tx.ID)
	assert.False(t, tx.CreatedAt.IsZero())
}

func TestRunAtomicRollsBackOnError(t *testing.T) {
	store := newStoreWithAccounts(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.RunAtomic(ctx, func(ctx context.Context, tx interfaces.LedgerTx) error {
		_, _ = tx.LockAccounts(ctx, "Bank_USD_1", "Mpesa_KES_1")
		require.NoError(t, tx.SetBalance(ctx, "Bank_USD_1", dec("0")))
		require.NoError(t, tx.AppendTransaction(ctx, models.Transaction{TransactionID: "t-x"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	usd, _ := store.GetAccount(ctx, "Bank_USD_1")
	assert.True(t, usd.Balance.Equal(dec("1000")))
	_, err = store.GetTransaction(ctx, "t-x")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRunAtomicSeesOwnWrites(t *testing.T) {
	store := newStoreWithAccounts(t)
	ctx := context.Background()

	err := store.RunAtomic(ctx, func(ctx context.Context, tx interfaces.LedgerTx) error {
		_, err := tx.LockAccounts(ctx, "Bank_USD_1")
		require.NoError(t, err)
		require.NoError(t, tx.SetBalance(ctx, "Bank_USD_1", dec("10")))
		accs, err := tx.LockAccounts(ctx, "Bank_USD_1")
		require.NoError(t, err)
		assert.True(t, accs["Bank_USD_1"].Balance.Equal(dec("10")))
		return nil
	})
	require.NoError(t, err)
}

func TestSetBalanceRequiresLock(t *testing.T) {
	store := newStoreWithAccounts(t)
	err := store.RunAtomic(context.Background(), func(ctx context.Context, tx interfaces.LedgerTx) error {
		return tx.SetBalance(ctx, "Bank_USD_1", dec("1"))
	})
	require.Error(t, err)
}

func TestDuplicateTransactionIDRejectedAtCommit(t *testing.T) {
	store := newStoreWithAccounts(t)
	ctx := context.Background()
	_, err := store.AppendTransaction(ctx, models.Transaction{TransactionID: "dup", IdempotencyKey: "k1"})
	require.NoError(t, err)

	err = store.RunAtomic(ctx, func(ctx context.Context, tx interfaces.LedgerTx) error {
		_, _ = tx.LockAccounts(ctx, "Bank_USD_1")
		_ = tx.SetBalance(ctx, "Bank_USD_1", dec("1"))
		return tx.AppendTransaction(ctx, models.Transaction{TransactionID: "dup"})
	})
	require.ErrorIs(t, err, models.ErrDuplicateTransaction)
	usd, _ := store.GetAccount(ctx, "Bank_USD_1")
	assert.True(t, usd.Balance.Equal(dec("1000")), "rejected commit must not apply balances")

	_, err = store.AppendTransaction(ctx, models.Transaction{TransactionID: "other", IdempotencyKey: "k1"})
	assert.ErrorIs(t, err, models.ErrDuplicateTransaction)

	byKey, err := store.GetTransactionByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "dup", byKey.TransactionID)
}

func TestListTransactionsNewestFirstWithFilters(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryLedgerStore(WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	for i, tx := range []models.Transaction{
		{TransactionID: "a", FromAccount: "A", ToAccount: "B", Currency: models.USD, Status: models.StatusCompleted},
		{TransactionID: "b", FromAccount: "B", ToAccount: "C", Currency: models.KES, Status: models.StatusCompleted},
		{TransactionID: "c", FromAccount: "C", ToAccount: "A", Currency: models.USD, Status: models.StatusFailed},
	} {
		got, err := store.AppendTransaction(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), got.ID)
	}

	all, err := store.ListTransactions(ctx, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].TransactionID, all[1].TransactionID, all[2].TransactionID})

	forA, _ := store.ListTransactions(ctx, models.TransactionFilter{Account: "A"})
	assert.Len(t, forA, 2)
	usd, _ := store.ListTransactions(ctx, models.TransactionFilter{Currency: models.USD, Status: models.StatusCompleted})
	require.Len(t, usd, 1)
	assert.Equal(t, "a", usd[0].TransactionID)
	limited, _ := store.ListTransactions(ctx, models.TransactionFilter{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].TransactionID)
}

func TestDeleteTransactionKeepsBalances(t *testing.T) {
	store := newStoreWithAccounts(t)
	ctx := context.Background()
	tx, err := store.AppendTransaction(ctx, models.Transaction{TransactionID: "t", FromAccount: "Bank_USD_1", ToAccount: "Mpesa_KES_1"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteTransaction(ctx, tx.ID))
	assert.ErrorIs(t, store.DeleteTransaction(ctx, tx.ID), models.ErrNotFound)
	_, err = store.GetTransactionByID(ctx, tx.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	usd, _ := store.GetAccount(ctx, "Bank_USD_1")
	assert.True(t, usd.Balance.Equal(dec("1000")))
}

func TestOppositeDirectionUnitsDoNotDeadlock(t *testing.T) {
	store := newStoreWithAccounts(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.RunAtomic(ctx, func(ctx context.Context, tx interfaces.LedgerTx) error {
				_, err := tx.LockAccounts(ctx, "Bank_USD_1", "Mpesa_KES_1")
				return err
			})
		}()
		go func() {
			defer wg.Done()
			_ = store.RunAtomic(ctx, func(ctx context.Context, tx interfaces.LedgerTx) error {
				_, err := tx.LockAccounts(ctx, "Mpesa_KES_1", "Bank_USD_1")
				return err
			})
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("units of work deadlocked")
	}
}

func rowLockCount(store *MemoryLedgerStore) int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.rowLocks)
}

func TestRowLocksOnlyForExistingAccounts(t *testing.T) {
	store := newStoreWithAccounts(t)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		err := store.RunAtomic(ctx, func(ctx context.Context, tx interfaces.LedgerTx) error {
			accs, err := tx.LockAccounts(ctx, fmt.Sprintf("ghost-%d", i), "Bank_USD_1")
			if err != nil {
				return err
			}
			if len(accs) != 1 {
				return fmt.Errorf("expected only the existing account, got %d", len(accs))
			}
			return nil
		})
		require.NoError(t, err)
		_, err = store.SetBalance(ctx, fmt.Sprintf("ghost-%d", i), dec("1"))
		require.ErrorIs(t, err, models.ErrNotFound)
	}
	assert.Equal(t, 2, rowLockCount(store))

	require.NoError(t, store.DeleteAccount(ctx, "Bank_USD_1"))
	assert.Equal(t, 1, rowLockCount(store))
}

func TestDeleteWhileRowHeldWaitsThenRelocksFreshRow(t *testing.T) {
	store := newStoreWithAccounts(t)
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.RunAtomic(ctx, func(ctx context.Context, tx interfaces.LedgerTx) error {
			if _, err := tx.LockAccounts(ctx, "Bank_USD_1"); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	deleted := make(chan error, 1)
	go func() { deleted <- store.DeleteAccount(ctx, "Bank_USD_1") }()

	select {
	case <-deleted:
		t.Fatal("delete did not wait for the unit of work holding the row")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-deleted)

	_, err := store.CreateAccount(ctx, "Bank_USD_1", models.USD, dec("5"))
	require.NoError(t, err)
	err = store.RunAtomic(ctx, func(ctx context.Context, tx interfaces.LedgerTx) error {
		accs, err := tx.LockAccounts(ctx, "Bank_USD_1")
		if err != nil {
			return err
		}
		return tx.SetBalance(ctx, "Bank_USD_1", accs["Bank_USD_1"].Balance.Add(dec("1")))
	})
	require.NoError(t, err)
	assert.True(t, store.accounts["Bank_USD_1"].Balance.Equal(dec("6")))
	assert.Equal(t, 2, rowLockCount(store))
}

func TestBalanceLimits(t *testing.T) {
	store := newStoreWithAccounts(t)
	ctx := context.Background()

	_, err := store.CreateAccount(ctx, "Precise", models.USD, dec("10.005"))
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = store.CreateAccount(ctx, "Huge", models.USD, dec("1e400000000"))
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = store.SetBalance(ctx, "Bank_USD_1", dec("1e20"))
	assert.ErrorIs(t, err, models.ErrValidation)

	err = store.RunAtomic(ctx, func(ctx context.Context, tx interfaces.LedgerTx) error {
		if _, err := tx.LockAccounts(ctx, "Bank_USD_1"); err != nil {
			return err
		}
		return tx.SetBalance(ctx, "Bank_USD_1", dec("1e18"))
	})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.True(t, store.accounts["Bank_USD_1"].Balance.Equal(dec("1000")))
}

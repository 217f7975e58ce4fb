package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/funds-transfer-ledger/internal/interfaces"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// Units of work lock account rows through a per-name mutex map and buffer
// their writes until commit.
type MemoryLedgerStore struct {
	mu           sync.RWMutex // protects everything below, including the rowLocks map
	accounts     map[string]models.Account
	transactions map[int64]models.Transaction
	byTxID       map[string]int64
	byIdemKey    map[string]int64
	nextAcctID   int64
	nextTxID     int64

	// One mutex per existing account, added by CreateAccount and removed by
	// DeleteAccount. Row mutexes are always taken before mu.
	rowLocks map[string]*sync.Mutex

	now func() time.Time
}

type Option func(*MemoryLedgerStore)

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryLedgerStore) { m.now = now }
}

func NewMemoryLedgerStore(opts ...Option) *MemoryLedgerStore {
	m := &MemoryLedgerStore{
		accounts:     make(map[string]models.Account),
		transactions: make(map[int64]models.Transaction),
		byTxID:       make(map[string]int64),
		byIdemKey:    make(map[string]int64),
		rowLocks:     make(map[string]*sync.Mutex),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lockRow locks the row of an existing account and returns its mutex. If the
// account is deleted (or deleted and re-created) while waiting, the stale
// mutex is dropped and the lookup starts over.
func (m *MemoryLedgerStore) lockRow(name string) (*sync.Mutex, error) {
	for {
		m.mu.RLock()
		row, ok := m.rowLocks[name]
		m.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("account %s: %w", name, models.ErrNotFound)
		}

		row.Lock()

		// Still the live mutex for this name?
		m.mu.RLock()
		current := m.rowLocks[name]
		m.mu.RUnlock()
		if current == row {
			return row, nil
		}
		row.Unlock()
	}
}

func (m *MemoryLedgerStore) GetAccount(ctx context.Context, name string) (models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[name]
	if !ok {
		return models.Account{}, fmt.Errorf("account %s: %w", name, models.ErrNotFound)
	}
	return acc, nil
}

func (m *MemoryLedgerStore) ListAccounts(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		if filter.Currency != "" && acc.Currency != filter.Currency {
			continue
		}
		result = append(result, acc)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Currency != result[j].Currency {
			return result[i].Currency < result[j].Currency
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (m *MemoryLedgerStore) CreateAccount(ctx context.Context, name string, currency models.Currency, balance decimal.Decimal) (models.Account, error) {
	if strings.TrimSpace(name) == "" {
		verr := &models.ValidationError{}
		verr.Add("name", "must be a non-empty string")
		return models.Account{}, verr
	}
	if !currency.Valid() {
		return models.Account{}, models.ErrInvalidCurrency
	}
	if balance.IsNegative() {
		return models.Account{}, models.ErrNegativeBalance
	}
	if err := models.CheckMoney(balance); err != nil {
		return models.Account{}, fmt.Errorf("%w: balance %v", models.ErrValidation, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[name]; exists {
		return models.Account{}, fmt.Errorf("account %s: %w", name, models.ErrDuplicateName)
	}
	m.nextAcctID++
	now := m.now()
	acc := models.Account{
		ID:        m.nextAcctID,
		Name:      name,
		Currency:  currency,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.accounts[name] = acc
	m.rowLocks[name] = &sync.Mutex{}
	return acc, nil
}

// SetBalance overwrites a balance outside any transfer. It waits for any
// unit of work holding the row.
func (m *MemoryLedgerStore) SetBalance(ctx context.Context, name string, balance decimal.Decimal) (models.Account, error) {
	if balance.IsNegative() {
		return models.Account{}, models.ErrNegativeBalance
	}
	if err := models.CheckMoney(balance); err != nil {
		return models.Account{}, fmt.Errorf("%w: balance %v", models.ErrValidation, err)
	}
	// Wait for any unit of work holding the row
	row, err := m.lockRow(name)
	if err != nil {
		return models.Account{}, err
	}
	defer row.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.accounts[name]
	acc.Balance = balance
	acc.UpdatedAt = m.now()
	m.accounts[name] = acc
	return acc, nil
}

// DeleteAccount removes the account. Transactions that name it are kept.
func (m *MemoryLedgerStore) DeleteAccount(ctx context.Context, name string) error {
	row, err := m.lockRow(name)
	if err != nil {
		return err
	}
	// Unlocked after the map entry is gone, so waiters see the stale mutex
	// and look the name up again.
	defer row.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.accounts, name)
	delete(m.rowLocks, name)
	return nil
}

func (m *MemoryLedgerStore) AggregateBalances(ctx context.Context) ([]models.CurrencyTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := make(map[models.Currency]*models.CurrencyTotal)
	for _, acc := range m.accounts {
		t, ok := totals[acc.Currency]
		if !ok {
			t = &models.CurrencyTotal{Currency: acc.Currency, TotalBalance: decimal.Zero}
			totals[acc.Currency] = t
		}
		t.TotalBalance = t.TotalBalance.Add(acc.Balance)
		t.AccountCount++
	}
	result := make([]models.CurrencyTotal, 0, len(totals))
	for _, t := range totals {
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Currency < result[j].Currency })
	return result, nil
}

// AppendTransaction records tx in its own unit of work.
func (m *MemoryLedgerStore) AppendTransaction(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	if tx.TransactionID == "" {
		return models.Transaction{}, fmt.Errorf("append transaction: empty transaction_id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkUniqueLocked([]models.Transaction{tx}); err != nil {
		return models.Transaction{}, err
	}
	return m.insertLocked(tx), nil
}

func (m *MemoryLedgerStore) GetTransaction(ctx context.Context, transactionID string) (models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byTxID[transactionID]
	if !ok {
		return models.Transaction{}, fmt.Errorf("transaction %s: %w", transactionID, models.ErrNotFound)
	}
	return m.transactions[id], nil
}

func (m *MemoryLedgerStore) GetTransactionByID(ctx context.Context, id int64) (models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[id]
	if !ok {
		return models.Transaction{}, fmt.Errorf("transaction %d: %w", id, models.ErrNotFound)
	}
	return tx, nil
}

func (m *MemoryLedgerStore) GetTransactionByIdempotencyKey(ctx context.Context, key string) (models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byIdemKey[key]
	if key == "" || !ok {
		return models.Transaction{}, fmt.Errorf("idempotency key %q: %w", key, models.ErrNotFound)
	}
	return m.transactions[id], nil
}

// ListTransactions returns matching transactions newest first; ties on
// created_at fall back to insertion order.
func (m *MemoryLedgerStore) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Transaction, 0)
	for _, tx := range m.transactions {
		if filter.Match(tx) {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// DeleteTransaction purges a record. Balances are not touched.
func (m *MemoryLedgerStore) DeleteTransaction(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %d: %w", id, models.ErrNotFound)
	}
	delete(m.transactions, id)
	delete(m.byTxID, tx.TransactionID)
	if tx.IdempotencyKey != "" {
		delete(m.byIdemKey, tx.IdempotencyKey)
	}
	return nil
}

func (m *MemoryLedgerStore) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx interfaces.LedgerTx) error) error {
	utx := &memoryTx{
		store:    m,
		held:     make(map[string]*sync.Mutex),
		balances: make(map[string]decimal.Decimal),
	}
	defer utx.release()

	if err := fn(ctx, utx); err != nil {
		return err
	}
	return utx.commit()
}

// checkUniqueLocked rejects a batch that would reuse a transaction_id or
// idempotency key, either against the log or within the batch.
func (m *MemoryLedgerStore) checkUniqueLocked(batch []models.Transaction) error {
	seenID := make(map[string]bool, len(batch))
	seenKey := make(map[string]bool, len(batch))
	for _, tx := range batch {
		if _, dup := m.byTxID[tx.TransactionID]; dup || seenID[tx.TransactionID] {
			return fmt.Errorf("transaction %s: %w", tx.TransactionID, models.ErrDuplicateTransaction)
		}
		seenID[tx.TransactionID] = true
		if tx.IdempotencyKey == "" {
			continue
		}
		if _, dup := m.byIdemKey[tx.IdempotencyKey]; dup || seenKey[tx.IdempotencyKey] {
			return fmt.Errorf("idempotency key %q: %w", tx.IdempotencyKey, models.ErrDuplicateTransaction)
		}
		seenKey[tx.IdempotencyKey] = true
	}
	return nil
}

func (m *MemoryLedgerStore) insertLocked(tx models.Transaction) models.Transaction {
	m.nextTxID++
	tx.ID = m.nextTxID
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = m.now()
	}
	if tx.Status == "" {
		tx.Status = models.StatusCompleted
	}
	m.transactions[tx.ID] = tx
	m.byTxID[tx.TransactionID] = tx.ID
	if tx.IdempotencyKey != "" {
		m.byIdemKey[tx.IdempotencyKey] = tx.ID
	}
	return tx
}

type memoryTx struct {
	store    *MemoryLedgerStore
	held     map[string]*sync.Mutex
	balances map[string]decimal.Decimal
	appended []models.Transaction
	done     bool
}

func (t *memoryTx) LockAccounts(ctx context.Context, names ...string) (map[string]models.Account, error) {
	if t.done {
		return nil, fmt.Errorf("unit of work already finished")
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	// Lock in sorted order to avoid deadlocks. Unknown names get no lock
	// and are simply absent from the result.
	for _, name := range sorted {
		if _, ok := t.held[name]; ok {
			continue
		}
		row, err := t.store.lockRow(name)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		t.held[name] = row
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	result := make(map[string]models.Account, len(names))
	for _, name := range names {
		if _, ok := t.held[name]; !ok {
			continue
		}
		acc := t.store.accounts[name]
		// Pending writes from this unit of work win over committed state
		if pending, ok := t.balances[name]; ok {
			acc.Balance = pending
		}
		result[name] = acc
	}
	return result, nil
}

func (t *memoryTx) SetBalance(ctx context.Context, name string, balance decimal.Decimal) error {
	if _, ok := t.held[name]; !ok {
		return fmt.Errorf("set balance %s: row not locked in this unit of work", name)
	}
	if balance.IsNegative() {
		return fmt.Errorf("set balance %s: %w", name, models.ErrNegativeBalance)
	}
	// Same limits as NUMERIC(20,2) in postgres
	if err := models.CheckMoney(balance); err != nil {
		return fmt.Errorf("set balance %s: %w: %v", name, models.ErrValidation, err)
	}
	t.balances[name] = balance
	return nil
}

func (t *memoryTx) AppendTransaction(ctx context.Context, tx models.Transaction) error {
	if tx.TransactionID == "" {
		return fmt.Errorf("append transaction: empty transaction_id")
	}
	t.appended = append(t.appended, tx)
	return nil
}

func (t *memoryTx) commit() error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	for name := range t.balances {
		if _, ok := m.accounts[name]; !ok {
			return fmt.Errorf("account %s: %w", name, models.ErrNotFound)
		}
	}
	if err := m.checkUniqueLocked(t.appended); err != nil {
		return err
	}

	now := m.now()
	for name, balance := range t.balances {
		acc := m.accounts[name]
		acc.Balance = balance
		acc.UpdatedAt = now
		m.accounts[name] = acc
	}
	for _, tx := range t.appended {
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = now
		}
		m.insertLocked(tx)
	}
	return nil
}

func (t *memoryTx) release() {
	t.done = true
	for name, row := range t.held {
		row.Unlock()
		delete(t.held, name)
	}
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)

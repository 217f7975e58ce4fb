package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/funds-transfer-ledger/internal/interfaces"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

const (
	accountColumns     = `id, name, currency, balance, created_at, updated_at`
	transactionColumns = `id, transaction_id, idempotency_key, from_account, to_account, amount, currency,
	exchange_rate, converted_amount, note, status, transfer_date, created_at`
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

func scanAccount(row scanner) (models.Account, error) {
	var acc models.Account
	var currency string
	if err := row.Scan(&acc.ID, &acc.Name, &currency, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return models.Account{}, err
	}
	acc.Currency = models.Currency(currency)
	return acc, nil
}

func scanTransaction(row scanner) (models.Transaction, error) {
	var tx models.Transaction
	var idemKey, transferDate sql.NullString
	var currency, status string
	err := row.Scan(
		&tx.ID,
		&tx.TransactionID,
		&idemKey,
		&tx.FromAccount,
		&tx.ToAccount,
		&tx.Amount,
		&currency,
		&tx.ExchangeRate,
		&tx.ConvertedAmount,
		&tx.Note,
		&status,
		&transferDate,
		&tx.CreatedAt,
	)
	if err != nil {
		return models.Transaction{}, err
	}
	tx.IdempotencyKey = idemKey.String
	tx.TransferDate = transferDate.String
	tx.Currency = models.Currency(currency)
	tx.Status = models.TransactionStatus(status)
	return tx, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (p *PostgresLedgerStore) GetAccount(ctx context.Context, name string) (models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE name = $1`

	acc, err := scanAccount(p.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, fmt.Errorf("account %s: %w", name, models.ErrNotFound)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("get account %s: %w", name, err)
	}
	return acc, nil
}

func (p *PostgresLedgerStore) ListAccounts(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []any
	if filter.Currency != "" {
		query += ` WHERE currency = $1`
		args = append(args, string(filter.Currency))
	}
	query += ` ORDER BY currency, name`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]models.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *PostgresLedgerStore) CreateAccount(ctx context.Context, name string, currency models.Currency, balance decimal.Decimal) (models.Account, error) {
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

	const query = `INSERT INTO accounts (name, currency, balance) VALUES ($1, $2, $3)
	RETURNING ` + accountColumns

	acc, err := scanAccount(p.db.QueryRowContext(ctx, query, name, string(currency), balance))
	if err != nil {
		return models.Account{}, fmt.Errorf("create account %s: %w", name, mapError(err))
	}
	return acc, nil
}

func (p *PostgresLedgerStore) SetBalance(ctx context.Context, name string, balance decimal.Decimal) (models.Account, error) {
	if balance.IsNegative() {
		return models.Account{}, models.ErrNegativeBalance
	}
	if err := models.CheckMoney(balance); err != nil {
		return models.Account{}, fmt.Errorf("%w: balance %v", models.ErrValidation, err)
	}
	const query = `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE name = $2
	RETURNING ` + accountColumns

	acc, err := scanAccount(p.db.QueryRowContext(ctx, query, balance, name))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, fmt.Errorf("account %s: %w", name, models.ErrNotFound)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("set balance %s: %w", name, mapError(err))
	}
	return acc, nil
}

func (p *PostgresLedgerStore) DeleteAccount(ctx context.Context, name string) error {
	const query = `DELETE FROM accounts WHERE name = $1`

	res, err := p.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("delete account %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", name, models.ErrNotFound)
	}
	return nil
}

func (p *PostgresLedgerStore) AggregateBalances(ctx context.Context) ([]models.CurrencyTotal, error) {
	const query = `SELECT currency, COALESCE(SUM(balance), 0), COUNT(*)
	FROM accounts GROUP BY currency ORDER BY currency`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("aggregate balances: %w", err)
	}
	defer rows.Close()

	totals := make([]models.CurrencyTotal, 0)
	for rows.Next() {
		var t models.CurrencyTotal
		var currency string
		if err := rows.Scan(&currency, &t.TotalBalance, &t.AccountCount); err != nil {
			return nil, err
		}
		t.Currency = models.Currency(currency)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func insertTransaction(ctx context.Context, q queryer, tx models.Transaction) (models.Transaction, error) {
	const query = `INSERT INTO transactions (transaction_id, idempotency_key, from_account, to_account,
	amount, currency, exchange_rate, converted_amount, note, status, transfer_date)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING ` + transactionColumns

	if tx.TransactionID == "" {
		return models.Transaction{}, errors.New("append transaction: empty transaction_id")
	}
	status := tx.Status
	if status == "" {
		status = models.StatusCompleted
	}
	saved, err := scanTransaction(q.QueryRowContext(ctx, query,
		tx.TransactionID,
		nullable(tx.IdempotencyKey),
		tx.FromAccount,
		tx.ToAccount,
		tx.Amount,
		string(tx.Currency),
		tx.ExchangeRate,
		tx.ConvertedAmount,
		tx.Note,
		string(status),
		nullable(tx.TransferDate),
	))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("append transaction %s: %w", tx.TransactionID, mapError(err))
	}
	return saved, nil
}

func (p *PostgresLedgerStore) AppendTransaction(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	return insertTransaction(ctx, p.db, tx)
}

func (p *PostgresLedgerStore) getTransactionBy(ctx context.Context, column string, value any) (models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + column + ` = $1`

	tx, err := scanTransaction(p.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, fmt.Errorf("transaction %s=%v: %w", column, value, models.ErrNotFound)
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (p *PostgresLedgerStore) GetTransaction(ctx context.Context, transactionID string) (models.Transaction, error) {
	return p.getTransactionBy(ctx, "transaction_id", transactionID)
}

func (p *PostgresLedgerStore) GetTransactionByID(ctx context.Context, id int64) (models.Transaction, error) {
	return p.getTransactionBy(ctx, "id", id)
}

func (p *PostgresLedgerStore) GetTransactionByIdempotencyKey(ctx context.Context, key string) (models.Transaction, error) {
	if key == "" {
		return models.Transaction{}, fmt.Errorf("empty idempotency key: %w", models.ErrNotFound)
	}
	return p.getTransactionBy(ctx, "idempotency_key", key)
}

func (p *PostgresLedgerStore) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Account != "" {
		n := arg(filter.Account)
		conditions = append(conditions, "(from_account = "+n+" OR to_account = "+n+")")
	}
	if filter.Currency != "" {
		conditions = append(conditions, "currency = "+arg(string(filter.Currency)))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]models.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (p *PostgresLedgerStore) DeleteTransaction(ctx context.Context, id int64) error {
	const query = `DELETE FROM transactions WHERE id = $1`

	res, err := p.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// RunAtomic wraps fn in a READ COMMITTED transaction. Row locks are taken by
// LockAccounts with SELECT ... FOR UPDATE.
func (p *PostgresLedgerStore) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx interfaces.LedgerTx) error) (err error) {
	dbTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", mapError(err))
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if err = fn(ctx, &postgresTx{tx: dbTx}); err != nil {
		return err
	}
	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapError(err))
	}
	return nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) LockAccounts(ctx context.Context, names ...string) (map[string]models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts
	WHERE name = ANY($1) ORDER BY name FOR UPDATE`

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	rows, err := t.tx.QueryContext(ctx, query, pq.Array(sorted))
	if err != nil {
		return nil, fmt.Errorf("lock accounts: %w", mapError(err))
	}
	defer rows.Close()

	result := make(map[string]models.Account, len(names))
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result[acc.Name] = acc
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func (t *postgresTx) SetBalance(ctx context.Context, name string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("set balance %s: %w", name, models.ErrNegativeBalance)
	}
	const query = `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE name = $2`

	res, err := t.tx.ExecContext(ctx, query, balance, name)
	if err != nil {
		return fmt.Errorf("set balance %s: %w", name, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", name, models.ErrNotFound)
	}
	return nil
}

func (t *postgresTx) AppendTransaction(ctx context.Context, tx models.Transaction) error {
	_, err := insertTransaction(ctx, t.tx, tx)
	return err
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)

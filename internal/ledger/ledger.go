package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/fx"
	interfaces "github.com/sheikh-saqib/funds-transfer-ledger/internal/interfaces"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/metrics"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models/events"
)

const (
	DefaultMaxAttempts = 3
	publishTimeout     = 5 * time.Second
)

// Ledger executes transfers against a LedgerStore. It keeps no state of its
// own between calls; every sufficiency check reads committed balances.
type Ledger struct {
	store       interfaces.LedgerStore
	rates       *fx.Table
	publisher   interfaces.EventPublisher
	logger      *zap.Logger
	maxAttempts int
	newID       func() string
	backoff     func(attempt int) time.Duration
}

type Option func(*Ledger)

func WithPublisher(p interfaces.EventPublisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMaxAttempts bounds how many times a unit of work is retried after an
// ErrConflict from the store.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// NewLedger builds a Ledger over store, pricing transfers with rates.
func NewLedger(store interfaces.LedgerStore, rates *fx.Table, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		rates:       rates,
		logger:      zap.NewNop(),
		maxAttempts: DefaultMaxAttempts,
		newID:       uuid.NewString,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * 10 * time.Millisecond
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type TransferResult struct {
	Transaction models.Transaction
	// Replayed is set when the idempotency key matched an earlier transfer
	// and no new money movement happened.
	Replayed bool
}

// ExecuteTransfer validates req, then debits the source, credits the
// destination and appends the transaction record as one unit of work.
func (l *Ledger) ExecuteTransfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	start := time.Now()
	res, err := l.executeTransfer(ctx, req)
	metrics.TransferDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil && res.Replayed:
		metrics.TransfersTotal.WithLabelValues("replayed").Inc()
	case err == nil:
		metrics.TransfersTotal.WithLabelValues(string(res.Transaction.Status)).Inc()
	default:
		metrics.TransfersTotal.WithLabelValues(string(models.CodeOf(err))).Inc()
	}
	return res, err
}

func (l *Ledger) executeTransfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	req, err := req.normalize()
	if err != nil {
		return TransferResult{}, err
	}

	// Check the idempotency key before taking any lock
	if req.IdempotencyKey != "" {
		res, found, err := l.replay(ctx, req)
		if found || err != nil {
			return res, err
		}
	}

	// Once the unit of work starts it runs to commit or rollback even if
	// the caller goes away.
	ctx = context.WithoutCancel(ctx)
	// One id for every attempt, so a retried commit cannot record twice
	txID := l.newID()

	for attempt := 1; ; attempt++ {
		err = l.store.RunAtomic(ctx, func(ctx context.Context, tx interfaces.LedgerTx) error {
			return l.commitTransfer(ctx, tx, req, txID)
		})
		if err == nil {
			break
		}
		if errors.Is(err, models.ErrConflict) && attempt < l.maxAttempts {
			metrics.TransferRetriesTotal.Inc()
			l.logger.Warn("transfer conflict, retrying",
				zap.String("transaction_id", txID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			time.Sleep(l.backoff(attempt))
			continue
		}
		if errors.Is(err, models.ErrDuplicateTransaction) && req.IdempotencyKey != "" {
			// A concurrent request with the same key won the race.
			if res, found, rerr := l.replay(ctx, req); found || rerr != nil {
				return res, rerr
			}
		}
		if isRejection(err) {
			l.logger.Info("transfer rejected",
				zap.String("from_account", req.FromAccount),
				zap.String("to_account", req.ToAccount),
				zap.String("code", string(models.CodeOf(err))),
				zap.Error(err))
			return TransferResult{}, err
		}
		l.logger.Error("transfer failed",
			zap.String("transaction_id", txID),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return TransferResult{}, &models.TransferFailedError{Attempts: attempt, Err: err}
	}

	// The money has moved at this point. A failed read-back is reported but
	// must leave enough in the log to reconcile by transaction_id.
	saved, err := l.store.GetTransaction(ctx, txID)
	if err != nil {
		l.logger.Error("transfer committed but could not be read back",
			zap.String("transaction_id", txID),
			zap.String("from_account", req.FromAccount),
			zap.String("to_account", req.ToAccount),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		return TransferResult{}, fmt.Errorf("transaction %s committed but could not be read back: %w", txID, err)
	}

	l.logger.Info("transfer completed",
		zap.String("transaction_id", saved.TransactionID),
		zap.String("from_account", saved.FromAccount),
		zap.String("to_account", saved.ToAccount),
		zap.String("amount", saved.Amount.String()),
		zap.String("currency", string(saved.Currency)),
		zap.String("exchange_rate", saved.ExchangeRate.String()),
		zap.String("converted_amount", saved.ConvertedAmount.String()))

	l.publish(ctx, saved)
	return TransferResult{Transaction: saved}, nil
}

// commitTransfer is the body of the unit of work. Both rows are locked and
// read before anything is written.
func (l *Ledger) commitTransfer(ctx context.Context, tx interfaces.LedgerTx, req TransferRequest, txID string) error {
	// Lock both rows (sorted by the store) and read them in the same step
	accounts, err := tx.LockAccounts(ctx, req.FromAccount, req.ToAccount)
	if err != nil {
		return err
	}
	from, ok := accounts[req.FromAccount]
	if !ok {
		return &models.AccountNotFoundError{Side: models.SideSource, Name: req.FromAccount}
	}
	to, ok := accounts[req.ToAccount]
	if !ok {
		return &models.AccountNotFoundError{Side: models.SideDestination, Name: req.ToAccount}
	}

	// Check balance against the locked snapshot
	if from.Balance.LessThan(req.Amount) {
		return &models.InsufficientFundsError{
			Account:   from.Name,
			Available: from.Balance,
			Requested: req.Amount,
		}
	}

	converted, rate, err := l.rates.Convert(req.Amount, from.Currency, to.Currency)
	if err != nil {
		return err
	}

	// Debit
	if err := tx.SetBalance(ctx, from.Name, from.Balance.Sub(req.Amount)); err != nil {
		return err
	}
	// Credit
	if err := tx.SetBalance(ctx, to.Name, to.Balance.Add(converted)); err != nil {
		return err
	}

	// Record the transaction in the same unit of work
	return tx.AppendTransaction(ctx, models.Transaction{
		TransactionID:   txID,
		IdempotencyKey:  req.IdempotencyKey,
		FromAccount:     from.Name,
		ToAccount:       to.Name,
		Amount:          req.Amount,
		Currency:        from.Currency,
		ExchangeRate:    rate,
		ConvertedAmount: converted,
		Note:            req.Note,
		Status:          models.StatusCompleted,
		TransferDate:    req.TransferDate,
	})
}

// replay looks up an earlier transfer with the same idempotency key.
func (l *Ledger) replay(ctx context.Context, req TransferRequest) (TransferResult, bool, error) {
	existing, err := l.store.GetTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
	if errors.Is(err, models.ErrNotFound) {
		return TransferResult{}, false, nil
	}
	if err != nil {
		return TransferResult{}, false, &models.TransferFailedError{Attempts: 0, Err: err}
	}
	if !req.matches(existing) {
		return TransferResult{}, true, fmt.Errorf("key %q: %w", req.IdempotencyKey, models.ErrIdempotencyMismatch)
	}
	l.logger.Info("idempotent transfer replayed",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("transaction_id", existing.TransactionID))
	return TransferResult{Transaction: existing, Replayed: true}, true, nil
}

func (l *Ledger) publish(ctx context.Context, tx models.Transaction) {
	if l.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := l.publisher.Publish(ctx, events.TopicTransactionCompleted, events.NewTransactionCompleted(tx)); err != nil {
		metrics.EventPublishFailuresTotal.Inc()
		l.logger.Error("failed to publish transaction event",
			zap.String("transaction_id", tx.TransactionID),
			zap.Error(err))
	}
}

func isRejection(err error) bool {
	for _, target := range []error{
		models.ErrValidation,
		models.ErrAccountNotFound,
		models.ErrInsufficientFunds,
		models.ErrUnsupportedCurrencyPair,
		models.ErrIdempotencyMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

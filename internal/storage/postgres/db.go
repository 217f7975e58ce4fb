package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

//go:embed schema.sql
var schema string

// Connect opens a pool and pings it, retrying with exponential backoff.
func Connect(ctx context.Context, dsn string, attempts int, logger *zap.Logger) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	if attempts < 1 {
		attempts = 1
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	delay := 500 * time.Millisecond
	for i := 1; i <= attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			logger.Info("connected to postgres", zap.Int("attempt", i))
			return db, nil
		}
		logger.Warn("postgres ping failed", zap.Int("attempt", i), zap.Int("max_attempts", attempts), zap.Error(err))
		if i < attempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				db.Close()
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}
	db.Close()
	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", attempts, err)
}

// Migrate creates the ledger tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// mapError translates driver errors into ledger sentinels.
func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505": // unique_violation
		if pqErr.Constraint == "accounts_name_key" {
			return fmt.Errorf("%w: %s", models.ErrDuplicateName, pqErr.Detail)
		}
		return fmt.Errorf("%w: %s", models.ErrDuplicateTransaction, pqErr.Detail)
	case "22003": // numeric_value_out_of_range
		return fmt.Errorf("%w: %s", models.ErrValidation, pqErr.Message)
	case "23514": // check_violation
		if pqErr.Constraint == "accounts_balance_check" {
			return models.ErrNegativeBalance
		}
		return fmt.Errorf("%w: %s", models.ErrValidation, pqErr.Message)
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return fmt.Errorf("%w: %s", models.ErrConflict, pqErr.Message)
	}
	return err
}

// Package seed populates a fresh ledger with the starter accounts.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/funds-transfer-ledger/internal/interfaces"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

type StarterAccount struct {
	Name     string
	Currency models.Currency
	Balance  decimal.Decimal
}

func StarterAccounts() []StarterAccount {
	return []StarterAccount{
		{"Mpesa_KES_1", models.KES, decimal.NewFromInt(50000)},
		{"Mpesa_KES_2", models.KES, decimal.NewFromInt(75000)},
		{"Bank_KES_1", models.KES, decimal.NewFromInt(100000)},
		{"Bank_USD_1", models.USD, decimal.NewFromInt(5000)},
		{"Bank_USD_2", models.USD, decimal.NewFromInt(7500)},
		{"Bank_USD_3", models.USD, decimal.NewFromInt(10000)},
		{"Bank_NGN_1", models.NGN, decimal.NewFromInt(500000)},
		{"Bank_NGN_2", models.NGN, decimal.NewFromInt(750000)},
		{"Wallet_USD_1", models.USD, decimal.NewFromInt(2500)},
		{"Wallet_NGN_1", models.NGN, decimal.NewFromInt(250000)},
	}
}

// Run creates every starter account that does not exist yet and returns how
// many were created. Existing accounts are left untouched, so re-running is
// safe.
func Run(ctx context.Context, store interfaces.LedgerStore, logger *zap.Logger) (int, error) {
	created := 0
	for _, a := range StarterAccounts() {
		_, err := store.CreateAccount(ctx, a.Name, a.Currency, a.Balance)
		if errors.Is(err, models.ErrDuplicateName) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed account %s: %w", a.Name, err)
		}
		created++
	}
	logger.Info("starter accounts seeded", zap.Int("created", created))
	return created, nil
}

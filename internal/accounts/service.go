// Package accounts is the read side of the ledger plus the administrative
// account operations that bypass the transfer engine.
package accounts

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/fx"
	interfaces "github.com/sheikh-saqib/funds-transfer-ledger/internal/interfaces"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/ledger"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

type Service struct {
	store  interfaces.LedgerStore
	rates  *fx.Table
	logger *zap.Logger
}

func NewService(store interfaces.LedgerStore, rates *fx.Table, logger *zap.Logger) *Service {
	return &Service{store: store, rates: rates, logger: logger}
}

type CreateAccountRequest struct {
	Name     string
	Currency string
	Balance  decimal.Decimal
}

func (s *Service) CreateAccount(ctx context.Context, req CreateAccountRequest) (models.Account, error) {
	name := ledger.Sanitize(req.Name)
	if name == "" {
		verr := &models.ValidationError{}
		verr.Add("name", "account name is required and must be a non-empty string")
		return models.Account{}, verr
	}
	currency, err := models.ParseCurrency(req.Currency)
	if err != nil {
		return models.Account{}, err
	}
	if req.Balance.IsNegative() {
		return models.Account{}, models.ErrNegativeBalance
	}
	if err := checkBalance(req.Balance); err != nil {
		return models.Account{}, err
	}

	acc, err := s.store.CreateAccount(ctx, name, currency, req.Balance)
	if err != nil {
		return models.Account{}, err
	}
	s.logger.Info("account created",
		zap.String("name", acc.Name),
		zap.String("currency", string(acc.Currency)),
		zap.String("balance", acc.Balance.String()))
	return acc, nil
}

func (s *Service) GetAccount(ctx context.Context, name string) (models.Account, error) {
	return s.store.GetAccount(ctx, name)
}

// ListAccounts returns accounts ordered by currency then name. An empty
// currency lists everything.
func (s *Service) ListAccounts(ctx context.Context, currency string) ([]models.Account, error) {
	filter := models.AccountFilter{}
	if currency != "" {
		c, err := models.ParseCurrency(currency)
		if err != nil {
			return nil, err
		}
		filter.Currency = c
	}
	return s.store.ListAccounts(ctx, filter)
}

// OverrideBalance sets a balance directly. It records no transaction and
// skips every transfer invariant except non-negativity, so the ledger no
// longer reconciles against its history afterwards.
func (s *Service) OverrideBalance(ctx context.Context, name string, balance decimal.Decimal) (models.Account, error) {
	if balance.IsNegative() {
		return models.Account{}, models.ErrNegativeBalance
	}
	if err := checkBalance(balance); err != nil {
		return models.Account{}, err
	}
	before, err := s.store.GetAccount(ctx, name)
	if err != nil {
		return models.Account{}, err
	}
	acc, err := s.store.SetBalance(ctx, name, balance)
	if err != nil {
		return models.Account{}, err
	}
	s.logger.Warn("balance overridden outside the transfer engine",
		zap.String("name", name),
		zap.String("previous_balance", before.Balance.String()),
		zap.String("balance", acc.Balance.String()))
	return acc, nil
}

// DeleteAccount removes the account. Transactions that reference it keep the
// name and are not reversed.
func (s *Service) DeleteAccount(ctx context.Context, name string) error {
	if err := s.store.DeleteAccount(ctx, name); err != nil {
		return err
	}
	s.logger.Warn("account deleted", zap.String("name", name))
	return nil
}

func (s *Service) BalanceSummaryByCurrency(ctx context.Context) ([]models.CurrencyTotal, error) {
	return s.store.AggregateBalances(ctx)
}

// TotalInReferenceCurrency converts every balance into ref and sums them.
// It is recomputed on every call and is not a ledger figure.
func (s *Service) TotalInReferenceCurrency(ctx context.Context, ref string) (decimal.Decimal, error) {
	currency, err := models.ParseCurrency(ref)
	if err != nil {
		return decimal.Zero, err
	}
	accounts, err := s.store.ListAccounts(ctx, models.AccountFilter{})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, acc := range accounts {
		converted, _, err := s.rates.Convert(acc.Balance, acc.Currency, currency)
		if err != nil {
			return decimal.Zero, fmt.Errorf("convert %s: %w", acc.Name, err)
		}
		total = total.Add(converted)
	}
	return total, nil
}

func (s *Service) ExchangeRates() map[string]decimal.Decimal {
	return s.rates.Rates()
}

// checkBalance applies the same scale and range limits as transfer amounts.
func checkBalance(balance decimal.Decimal) error {
	if err := models.CheckMoney(balance); err != nil {
		verr := &models.ValidationError{}
		verr.Add("balance", err.Error())
		return verr
	}
	return nil
}

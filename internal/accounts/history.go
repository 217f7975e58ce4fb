package accounts

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

func (s *Service) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	return s.store.ListTransactions(ctx, filter)
}

func (s *Service) GetTransaction(ctx context.Context, id int64) (models.Transaction, error) {
	return s.store.GetTransactionByID(ctx, id)
}

// DeleteTransaction purges a record from the log. Balances keep the effect
// of the deleted transfer.
func (s *Service) DeleteTransaction(ctx context.Context, id int64) error {
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	s.logger.Warn("transaction purged without balance reversal", zap.Int64("id", id))
	return nil
}

type TransactionStats struct {
	TotalTransactions int             `json:"total_transactions"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	AverageAmount     decimal.Decimal `json:"average_amount"`
	UniqueSenders     int             `json:"unique_senders"`
	UniqueReceivers   int             `json:"unique_receivers"`
}

// TransactionStats summarises completed transactions. Amounts are summed in
// their own currencies without conversion.
func (s *Service) TransactionStats(ctx context.Context) (TransactionStats, error) {
	txs, err := s.store.ListTransactions(ctx, models.TransactionFilter{Status: models.StatusCompleted})
	if err != nil {
		return TransactionStats{}, err
	}
	stats := TransactionStats{TotalAmount: decimal.Zero, AverageAmount: decimal.Zero}
	senders := map[string]struct{}{}
	receivers := map[string]struct{}{}
	for _, tx := range txs {
		stats.TotalTransactions++
		stats.TotalAmount = stats.TotalAmount.Add(tx.Amount)
		senders[tx.FromAccount] = struct{}{}
		receivers[tx.ToAccount] = struct{}{}
	}
	stats.UniqueSenders = len(senders)
	stats.UniqueReceivers = len(receivers)
	if stats.TotalTransactions > 0 {
		stats.AverageAmount = stats.TotalAmount.DivRound(decimal.NewFromInt(int64(stats.TotalTransactions)), models.MinorUnits)
	}
	return stats, nil
}

type CurrencyStats struct {
	Currency         models.Currency `json:"currency"`
	TransactionCount int             `json:"transaction_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	AverageAmount    decimal.Decimal `json:"average_amount"`
	MinAmount        decimal.Decimal `json:"min_amount"`
	MaxAmount        decimal.Decimal `json:"max_amount"`
}

// CurrencyStats groups completed transactions by source currency, largest
// total first.
func (s *Service) CurrencyStats(ctx context.Context) ([]CurrencyStats, error) {
	txs, err := s.store.ListTransactions(ctx, models.TransactionFilter{Status: models.StatusCompleted})
	if err != nil {
		return nil, err
	}
	byCurrency := map[models.Currency]*CurrencyStats{}
	for _, tx := range txs {
		st, ok := byCurrency[tx.Currency]
		if !ok {
			st = &CurrencyStats{Currency: tx.Currency, TotalAmount: decimal.Zero, MinAmount: tx.Amount, MaxAmount: tx.Amount}
			byCurrency[tx.Currency] = st
		}
		st.TransactionCount++
		st.TotalAmount = st.TotalAmount.Add(tx.Amount)
		st.MinAmount = decimal.Min(st.MinAmount, tx.Amount)
		st.MaxAmount = decimal.Max(st.MaxAmount, tx.Amount)
	}

	result := make([]CurrencyStats, 0, len(byCurrency))
	for _, st := range byCurrency {
		st.AverageAmount = st.TotalAmount.DivRound(decimal.NewFromInt(int64(st.TransactionCount)), models.MinorUnits)
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].TotalAmount.Cmp(result[j].TotalAmount); c != 0 {
			return c > 0
		}
		return result[i].Currency < result[j].Currency
	})
	return result, nil
}

// LookupTransaction finds a transaction by its external transaction_id.
func (s *Service) LookupTransaction(ctx context.Context, transactionID string) (models.Transaction, error) {
	return s.store.GetTransaction(ctx, transactionID)
}

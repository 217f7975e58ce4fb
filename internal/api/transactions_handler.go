package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/ledger"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

type transferRequest struct {
	FromAccount    string          `json:"from_account"`
	ToAccount      string          `json:"to_account"`
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"note"`
	TransferDate   string          `json:"transfer_date"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, err)
		return
	}
	key := r.Header.Get(headerIdempotencyKey)
	if key == "" {
		key = req.IdempotencyKey
	}

	res, err := h.ledger.ExecuteTransfer(r.Context(), ledger.TransferRequest{
		FromAccount:    req.FromAccount,
		ToAccount:      req.ToAccount,
		Amount:         req.Amount,
		Note:           req.Note,
		IdempotencyKey: key,
		TransferDate:   req.TransferDate,
	})
	if err != nil {
		sendError(w, err)
		return
	}

	if res.Replayed {
		w.Header().Set(headerReplayed, "true")
		sendSuccess(w, http.StatusOK, "Transaction already processed", res.Transaction)
		return
	}
	sendSuccess(w, http.StatusCreated, "Transaction completed successfully", res.Transaction)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTransactionFilter(r)
	if err != nil {
		sendError(w, err)
		return
	}
	txs, err := h.accounts.ListTransactions(r.Context(), filter)
	if err != nil {
		sendError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "Transactions retrieved successfully", txs)
}

// GetTransaction accepts either the numeric row id or the transaction_id.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "id")

	var (
		tx  models.Transaction
		err error
	)
	if id, perr := strconv.ParseInt(param, 10, 64); perr == nil {
		tx, err = h.accounts.GetTransaction(r.Context(), id)
	} else {
		tx, err = h.accounts.LookupTransaction(r.Context(), param)
	}
	if err != nil {
		sendError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "Transaction retrieved successfully", tx)
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		verr := &models.ValidationError{}
		verr.Add("id", "invalid transaction ID")
		sendError(w, verr)
		return
	}
	if err := h.accounts.DeleteTransaction(r.Context(), id); err != nil {
		sendError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "Transaction deleted successfully", nil)
}

func (h *Handler) TransactionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.accounts.TransactionStats(r.Context())
	if err != nil {
		sendError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "Transaction statistics retrieved successfully", stats)
}

func (h *Handler) CurrencyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.accounts.CurrencyStats(r.Context())
	if err != nil {
		sendError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "Currency statistics retrieved successfully", stats)
}

func parseTransactionFilter(r *http.Request) (models.TransactionFilter, error) {
	q := r.URL.Query()
	filter := models.TransactionFilter{Account: strings.TrimSpace(q.Get("account"))}
	verr := &models.ValidationError{}

	if c := q.Get("currency"); c != "" {
		currency, err := models.ParseCurrency(c)
		if err != nil {
			return filter, err
		}
		filter.Currency = currency
	}
	if s := q.Get("status"); s != "" {
		filter.Status = models.TransactionStatus(strings.ToLower(s))
		if !filter.Status.Valid() {
			verr.Add("status", "must be one of pending, completed, failed")
		}
	}
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 1 || limit > 1000 {
			verr.Add("limit", "must be an integer between 1 and 1000")
		}
		filter.Limit = limit
	}
	return filter, verr.Err()
}

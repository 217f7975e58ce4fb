package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/accounts"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

type createAccountRequest struct {
	Name     string           `json:"name"`
	Currency string           `json:"currency"`
	Balance  *decimal.Decimal `json:"balance"`
}

type setBalanceRequest struct {
	Balance *decimal.Decimal `json:"balance"`
}

type totalResponse struct {
	Currency models.Currency `json:"currency"`
	Total    decimal.Decimal `json:"total"`
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accs, err := h.accounts.ListAccounts(r.Context(), r.URL.Query().Get("currency"))
	if err != nil {
		sendError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "Accounts retrieved successfully", accs)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.GetAccount(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		sendError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "Account retrieved successfully", acc)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, err)
		return
	}
	balance := decimal.Zero
	if req.Balance != nil {
		balance = *req.Balance
	}

	acc, err := h.accounts.CreateAccount(r.Context(), accounts.CreateAccountRequest{
		Name:     req.Name,
		Currency: req.Currency,
		Balance:  balance,
	})
	if err != nil {
		sendError(w, err)
		return
	}
	sendSuccess(w, http.StatusCreated, "Account created successfully", acc)
}

func (h *Handler) SetBalance(w http.ResponseWriter, r *http.Request) {
	var req setBalanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, err)
		return
	}
	if req.Balance == nil {
		verr := &models.ValidationError{}
		verr.Add("balance", "balance is required")
		sendError(w, verr)
		return
	}

	acc, err := h.accounts.OverrideBalance(r.Context(), chi.URLParam(r, "name"), *req.Balance)
	if err != nil {
		sendError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "Account balance updated successfully", acc)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteAccount(r.Context(), chi.URLParam(r, "name")); err != nil {
		sendError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "Account deleted successfully", nil)
}

func (h *Handler) BalanceSummary(w http.ResponseWriter, r *http.Request) {
	totals, err := h.accounts.BalanceSummaryByCurrency(r.Context())
	if err != nil {
		sendError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "Balance summary retrieved successfully", totals)
}

func (h *Handler) TotalBalance(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("currency")
	if ref == "" {
		ref = string(models.USD)
	}
	total, err := h.accounts.TotalInReferenceCurrency(r.Context(), ref)
	if err != nil {
		sendError(w, err)
		return
	}
	currency, _ := models.ParseCurrency(ref)
	sendSuccess(w, http.StatusOK, "Total balance calculated successfully", totalResponse{
		Currency: currency,
		Total:    total,
	})
}

func (h *Handler) ExchangeRates(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, http.StatusOK, "Exchange rates retrieved successfully", h.accounts.ExchangeRates())
}

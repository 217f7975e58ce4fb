package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

type envelope struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Data      any        `json:"data,omitempty"`
	Error     *errorBody `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

type errorBody struct {
	Code    models.Code `json:"code"`
	Message string      `json:"message"`
	Details any         `json:"details,omitempty"`
}

var statusByCode = map[models.Code]int{
	models.CodeValidation:              http.StatusBadRequest,
	models.CodeInvalidCurrency:         http.StatusBadRequest,
	models.CodeNegativeBalance:         http.StatusBadRequest,
	models.CodeInsufficientFunds:       http.StatusBadRequest,
	models.CodeUnsupportedCurrencyPair: http.StatusBadRequest,
	models.CodeAccountNotFound:         http.StatusNotFound,
	models.CodeNotFound:                http.StatusNotFound,
	models.CodeDuplicateName:           http.StatusConflict,
	models.CodeIdempotencyMismatch:     http.StatusConflict,
	models.CodeTransferFailed:          http.StatusInternalServerError,
	models.CodeInternal:                http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	body.Timestamp = time.Now().UTC()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func sendSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// sendError derives the status from the error's code alone.
func sendError(w http.ResponseWriter, err error) {
	code := models.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := err.Error()
	if code == models.CodeInternal {
		msg = "internal server error"
	}
	writeJSON(w, status, envelope{
		Error: &errorBody{Code: code, Message: msg, Details: details(err)},
	})
}

func details(err error) any {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	var nf *models.AccountNotFoundError
	if errors.As(err, &nf) {
		return map[string]string{"side": string(nf.Side), "account": nf.Name}
	}
	var insufficient *models.InsufficientFundsError
	if errors.As(err, &insufficient) {
		return map[string]string{
			"account":   insufficient.Account,
			"available": insufficient.Available.StringFixed(models.MinorUnits),
			"requested": insufficient.Requested.StringFixed(models.MinorUnits),
		}
	}
	var pair *models.UnsupportedPairError
	if errors.As(err, &pair) {
		return map[string]string{"from": string(pair.From), "to": string(pair.To)}
	}
	return nil
}

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// decodeJSON reports a malformed or oversized body as a validation failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		verr := &models.ValidationError{}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			verr.Add("body", "request body too large")
		} else {
			verr.Add("body", "invalid JSON: "+err.Error())
		}
		return verr
	}
	return nil
}

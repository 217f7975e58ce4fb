package api

import (
	"go.uber.org/zap"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/accounts"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/ledger"
)

type Handler struct {
	ledger   *ledger.Ledger
	accounts *accounts.Service
	logger   *zap.Logger
}

func NewHandler(l *ledger.Ledger, svc *accounts.Service, logger *zap.Logger) *Handler {
	return &Handler{ledger: l, accounts: svc, logger: logger}
}

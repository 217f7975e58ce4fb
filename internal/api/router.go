package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/models"
)

func NewRouter(h *Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", headerIdempotencyKey},
		ExposedHeaders: []string{headerReplayed},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		sendSuccess(w, http.StatusOK, "Funds transfer ledger is running", map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/exchange-rates", h.ExchangeRates)

	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.ListAccounts)
		r.Post("/", h.CreateAccount)
		r.Get("/summary", h.BalanceSummary)
		r.Get("/total", h.TotalBalance)
		r.Get("/{name}", h.GetAccount)
		r.Delete("/{name}", h.DeleteAccount)
		r.Put("/{name}/balance", h.SetBalance)
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.ListTransactions)
		r.Post("/", h.CreateTransaction)
		r.Get("/stats", h.TransactionStats)
		r.Get("/currency-stats", h.CurrencyStats)
		r.Get("/{id}", h.GetTransaction)
		r.Delete("/{id}", h.DeleteTransaction)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, models.ErrNotFound)
	})

	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/aliaskarov/proxypanel/internal/api/handlers"
	"github.com/aliaskarov/proxypanel/internal/auth"
	"github.com/aliaskarov/proxypanel/internal/metrics"
	"github.com/aliaskarov/proxypanel/internal/middleware"
	"github.com/aliaskarov/proxypanel/internal/services"
)

type Deps struct {
	Users     *services.UserService
	Ledger    *services.LedgerService
	Deposits  *services.DepositService
	Purchases *services.PurchaseService
	Reporting *services.ReportingService
	Tokens    *auth.TokenManager
	RateRPS   int
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover)
	r.Use(middleware.RateLimit(d.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.HTTPMetrics)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler)

	ah := handlers.NewAuthHandler(d.Users)
	wh := handlers.NewWalletHandler(d.Users, d.Ledger, d.Deposits, d.Purchases)
	adm := handlers.NewAdminHandler(d.Users, d.Ledger, d.Deposits, d.Reporting)
	authmw := middleware.NewAuthMiddleware(d.Tokens)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", ah.Register)
			r.Post("/login", ah.Login)
			r.Post("/refresh", ah.Refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.Auth)

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/balance", wh.GetBalance)
				r.Get("/transactions", wh.ListTransactions)
				r.Post("/deposits", wh.CreateDeposit)
				r.Get("/deposits", wh.ListDeposits)
				r.Post("/purchase", wh.Purchase)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole("admin"))

				r.Get("/users", adm.ListUsers)
				r.Post("/deposits/{id}/transition", adm.TransitionDeposit)
				r.Post("/adjustments", adm.CreateAdjustment)
				r.Get("/reports/summary", adm.ReportSummary)
				r.Get("/reports/verify/{accountID}", adm.VerifyAccount)
			})
		})
	})

	return r
}

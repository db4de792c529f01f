package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aliaskarov/proxypanel/internal/api"
	"github.com/aliaskarov/proxypanel/internal/auth"
	"github.com/aliaskarov/proxypanel/internal/config"
	"github.com/aliaskarov/proxypanel/internal/db"
	"github.com/aliaskarov/proxypanel/internal/inventory"
	"github.com/aliaskarov/proxypanel/internal/logger"
	"github.com/aliaskarov/proxypanel/internal/metrics"
	"github.com/aliaskarov/proxypanel/internal/payment"
	"github.com/aliaskarov/proxypanel/internal/repository/postgres"
	"github.com/aliaskarov/proxypanel/internal/services"
	"github.com/aliaskarov/proxypanel/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if os.Getenv("APP_MIGRATE") == "true" {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	repos := postgres.NewRepositories(pool)
	wp := worker.NewPool(4)
	defer wp.Stop()

	tm := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	inv := inventory.NewClient(cfg.InventoryAddr, cfg.InventoryTimeout)

	userSvc := services.NewUserService(repos.Users, repos.Accounts, tm)
	ledgerSvc := services.NewLedgerService(repos.Ledger, repos.AuditLogs, wp, cfg.AllowNegativeAdjustments)
	depositSvc := services.NewDepositService(repos.DepositRequests, repos.Accounts, ledgerSvc, payment.BankTransferGenerator{}, cfg.MinDeposit)
	purchaseSvc := services.NewPurchaseService(ledgerSvc, inv)
	reportSvc := services.NewReportingService(repos.Ledger, repos.Accounts)

	metrics.Init()
	r := api.NewRouter(api.Deps{
		Users:     userSvc,
		Ledger:    ledgerSvc,
		Deposits:  depositSvc,
		Purchases: purchaseSvc,
		Reporting: reportSvc,
		Tokens:    tm,
		RateRPS:   cfg.RateRPS,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http listen", "port", cfg.HTTPPort, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http serve", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}

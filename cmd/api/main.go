package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/josh-kwaku/brokerage-ledger/internal/config"
	"github.com/josh-kwaku/brokerage-ledger/internal/handler"
	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
	"github.com/josh-kwaku/brokerage-ledger/internal/quote"
	"github.com/josh-kwaku/brokerage-ledger/internal/repository"
	"github.com/josh-kwaku/brokerage-ledger/internal/service"
	"github.com/josh-kwaku/brokerage-ledger/internal/service/ledger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("ledger-api", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfigFrom(cfg.DB))
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	db := repository.NewDB(pool)
	accounts := repository.NewAccountRepository(pool)
	users := repository.NewUserRepository(pool)
	positions := repository.NewPositionRepository(pool)
	journal := repository.NewJournalRepository(pool)
	transfers := repository.NewTransferRepository(pool)
	idempotency := repository.NewIdempotencyRepository(pool)

	engine := ledger.NewEngine(db, accounts, positions, journal, transfers, cfg.Ledger)
	accountService := service.NewAccountService(db, accounts, users)
	quotes := quote.NewClient(cfg.QuoteProviderURL, cfg.QuoteTimeout, cfg.QuoteRange)

	mux := routes(routeDeps{
		health:      handler.NewHealthHandler(pool, version),
		auth:        handler.NewAuthHandler(accountService, cfg.JWTSecret, cfg.JWTExpiry),
		accounts:    handler.NewAccountHandler(accountService, engine, cfg.Currency),
		ledger:      handler.NewLedgerHandler(engine, cfg.Currency),
		positions:   handler.NewPositionHandler(engine, quotes, cfg.Currency),
		idempotency: idempotency,
		jwtSecret:   cfg.JWTSecret,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "version", version, "tx_limit", cfg.TxLimit.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

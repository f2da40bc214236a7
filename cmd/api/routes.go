package main

import (
	"net/http"

	"github.com/josh-kwaku/brokerage-ledger/internal/handler"
	"github.com/josh-kwaku/brokerage-ledger/internal/middleware"
	"github.com/josh-kwaku/brokerage-ledger/internal/repository"
)

type routeDeps struct {
	health      *handler.HealthHandler
	auth        *handler.AuthHandler
	accounts    *handler.AccountHandler
	ledger      *handler.LedgerHandler
	positions   *handler.PositionHandler
	idempotency *repository.IdempotencyRepository
	jwtSecret   string
}

func routes(d routeDeps) http.Handler {
	protected := func(h http.HandlerFunc) http.Handler {
		return middleware.Auth(d.jwtSecret)(middleware.Idempotency(d.idempotency)(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", d.health.Liveness)
	mux.HandleFunc("GET /ready", d.health.Readiness)

	mux.HandleFunc("POST /api/v1/auth/register", d.auth.Register)
	mux.HandleFunc("POST /api/v1/auth/login", d.auth.Login)

	mux.Handle("GET /api/v1/users/{id}", protected(d.accounts.Get))
	mux.Handle("GET /api/v1/users/{id}/balance", protected(d.accounts.Balance))

	mux.Handle("POST /api/v1/users/{id}/deposits", protected(d.ledger.Deposit))
	mux.Handle("POST /api/v1/users/{id}/withdrawals", protected(d.ledger.Withdraw))
	mux.Handle("POST /api/v1/users/{id}/transfers", protected(d.ledger.Transfer))
	mux.Handle("GET /api/v1/users/{id}/transfers", protected(d.ledger.ListTransfers))
	mux.Handle("GET /api/v1/users/{id}/journal", protected(d.ledger.Journal))

	mux.Handle("POST /api/v1/users/{id}/positions/buy", protected(d.positions.Buy))
	mux.Handle("POST /api/v1/users/{id}/positions/sell", protected(d.positions.Sell))
	mux.Handle("GET /api/v1/users/{id}/positions", protected(d.positions.Holdings))
	mux.Handle("GET /api/v1/users/{id}/positions/{symbol}/lots", protected(d.positions.Lots))

	mux.Handle("GET /api/v1/quotes/{symbol}", protected(d.positions.Quote))

	return middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
)

type balanceReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (domain.Money, error)
}

type AccountHandler struct {
	accounts accountService
	ledger   balanceReader
	currency string
}

func NewAccountHandler(accounts accountService, ledger balanceReader, currency string) *AccountHandler {
	return &AccountHandler{accounts: accounts, ledger: ledger, currency: currency}
}

type accountDTO struct {
	UserID    uuid.UUID    `json:"user_id"`
	IBAN      string       `json:"iban"`
	Name      string       `json:"name"`
	Balance   domain.Money `json:"balance"`
	CreatedAt time.Time    `json:"created_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		UserID:    a.UserID,
		IBAN:      a.IBAN,
		Name:      a.Name,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt,
	}
}

type balanceDTO struct {
	UserID    uuid.UUID    `json:"user_id"`
	Balance   domain.Money `json:"balance"`
	Currency  string       `json:"currency"`
	Formatted string       `json:"formatted"`
}

func (h *AccountHandler) balanceDTO(userID uuid.UUID, balance domain.Money) balanceDTO {
	return balanceDTO{
		UserID:    userID,
		Balance:   balance,
		Currency:  h.currency,
		Formatted: balance.Format(h.currency),
	}
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load account", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to read balance", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, h.balanceDTO(userID, balance))
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
	"github.com/josh-kwaku/brokerage-ledger/internal/service/ledger"
)

type ledgerEngine interface {
	Deposit(ctx context.Context, userID uuid.UUID, amount domain.Money) (domain.Money, error)
	Withdraw(ctx context.Context, userID uuid.UUID, amount domain.Money) (domain.Money, error)
	Transfer(ctx context.Context, req ledger.TransferRequest) (*domain.TransferRecord, error)
	Transfers(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransferRecord, int, error)
	Journal(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.JournalEntry, int, error)
}

type LedgerHandler struct {
	engine   ledgerEngine
	currency string
}

func NewLedgerHandler(engine ledgerEngine, currency string) *LedgerHandler {
	return &LedgerHandler{engine: engine, currency: currency}
}

type cashRequest struct {
	Amount string `json:"amount"`
}

type transferRequest struct {
	ReceiverIBAN string `json:"receiver_iban"`
	ReceiverName string `json:"receiver_name"`
	Amount       string `json:"amount"`
}

type transferDTO struct {
	ID         uuid.UUID    `json:"id"`
	FromUserID uuid.UUID    `json:"from_user_id"`
	ToUserID   uuid.UUID    `json:"to_user_id"`
	Amount     domain.Money `json:"amount"`
	Direction  string       `json:"direction"`
	CreatedAt  time.Time    `json:"created_at"`
}

func toTransferDTO(t *domain.TransferRecord, viewer uuid.UUID) transferDTO {
	direction := "out"
	if t.ToUserID == viewer {
		direction = "in"
	}
	return transferDTO{
		ID:         t.ID,
		FromUserID: t.FromUserID,
		ToUserID:   t.ToUserID,
		Amount:     t.Amount,
		Direction:  direction,
		CreatedAt:  t.CreatedAt,
	}
}

type journalEntryDTO struct {
	ID           string       `json:"id"`
	Kind         string       `json:"kind"`
	Amount       domain.Money `json:"amount"`
	BalanceAfter domain.Money `json:"balance_after"`
	TransferID   *uuid.UUID   `json:"transfer_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (h *LedgerHandler) respondBalance(w http.ResponseWriter, status int, userID uuid.UUID, balance domain.Money) {
	RespondSuccess(w, status, balanceDTO{
		UserID:    userID,
		Balance:   balance,
		Currency:  h.currency,
		Formatted: balance.Format(h.currency),
	})
}

func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.cash(w, r, "deposit", h.engine.Deposit)
}

func (h *LedgerHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.cash(w, r, "withdrawal", h.engine.Withdraw)
}

func (h *LedgerHandler) cash(w http.ResponseWriter, r *http.Request, op string, apply func(context.Context, uuid.UUID, domain.Money) (domain.Money, error)) {
	userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req cashRequest
	if !decodeBody(w, r, &req) {
		return
	}

	amount, fields := parseAmount("amount", req.Amount, nil)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	balance, err := apply(r.Context(), userID, amount)
	if err != nil {
		logging.FromContext(r.Context()).Warn(op+" rejected", "error", err, "amount", amount)
		RespondDomainError(w, err)
		return
	}

	h.respondBalance(w, http.StatusOK, userID, balance)
}

func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var fields []FieldError
	if req.ReceiverIBAN == "" {
		fields = append(fields, FieldError{Field: "receiver_iban", Message: "required"})
	}
	if req.ReceiverName == "" {
		fields = append(fields, FieldError{Field: "receiver_name", Message: "required"})
	}
	amount, fields := parseAmount("amount", req.Amount, fields)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	rec, err := h.engine.Transfer(r.Context(), ledger.TransferRequest{
		FromUserID: userID,
		ToIBAN:     req.ReceiverIBAN,
		ToName:     req.ReceiverName,
		Amount:     amount,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer rejected", "error", err, "amount", amount)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransferDTO(rec, userID))
}

func (h *LedgerHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit, offset, fields := parsePage(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	records, total, err := h.engine.Transfers(r.Context(), userID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list transfers", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transferDTO, len(records))
	for i := range records {
		dtos[i] = toTransferDTO(&records[i], userID)
	}

	RespondSuccess(w, http.StatusOK, Page{Items: dtos, Total: total, Limit: limit, Offset: offset})
}

func (h *LedgerHandler) Journal(w http.ResponseWriter, r *http.Request) {
	userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit, offset, fields := parsePage(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entries, total, err := h.engine.Journal(r.Context(), userID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to read journal", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]journalEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = journalEntryDTO{
			ID:           e.ID,
			Kind:         string(e.Kind),
			Amount:       e.Amount,
			BalanceAfter: e.BalanceAfter,
			TransferID:   e.TransferID,
			CreatedAt:    e.CreatedAt,
		}
	}

	RespondSuccess(w, http.StatusOK, Page{Items: dtos, Total: total, Limit: limit, Offset: offset})
}

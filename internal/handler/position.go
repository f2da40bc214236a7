package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
	"github.com/josh-kwaku/brokerage-ledger/internal/quote"
	"github.com/josh-kwaku/brokerage-ledger/internal/service/ledger"
)

type positionEngine interface {
	BuyPosition(ctx context.Context, req ledger.PositionRequest) (domain.Money, error)
	SellPosition(ctx context.Context, req ledger.PositionRequest) (domain.Money, error)
	Holdings(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error)
	Lots(ctx context.Context, userID uuid.UUID, symbol string) ([]domain.PositionLot, error)
}

type quoteSource interface {
	History(ctx context.Context, symbol string) ([]quote.Point, error)
	Latest(ctx context.Context, symbol string) (domain.Money, error)
}

type PositionHandler struct {
	engine   positionEngine
	quotes   quoteSource
	currency string
}

func NewPositionHandler(engine positionEngine, quotes quoteSource, currency string) *PositionHandler {
	return &PositionHandler{engine: engine, quotes: quotes, currency: currency}
}

// tradeRequest prices the trade at PricePerUnit, or at the latest close when
// it is omitted.
type tradeRequest struct {
	Symbol       string `json:"symbol"`
	Quantity     int64  `json:"quantity"`
	PricePerUnit string `json:"price_per_unit"`
}

type tradeDTO struct {
	Symbol       string       `json:"symbol"`
	Side         domain.Side  `json:"side"`
	Quantity     int64        `json:"quantity"`
	PricePerUnit domain.Money `json:"price_per_unit"`
	Total        domain.Money `json:"total"`
	Balance      domain.Money `json:"balance"`
	Currency     string       `json:"currency"`
}

type holdingDTO struct {
	Symbol      string       `json:"symbol"`
	Quantity    int64        `json:"quantity"`
	NetInvested domain.Money `json:"net_invested"`
	Lots        int          `json:"lots"`
}

type lotDTO struct {
	ID           string       `json:"id"`
	Side         domain.Side  `json:"side"`
	Quantity     int64        `json:"quantity"`
	PricePerUnit domain.Money `json:"price_per_unit"`
	CreatedAt    time.Time    `json:"created_at"`
}

type quoteDTO struct {
	Symbol string        `json:"symbol"`
	Points []quote.Point `json:"points"`
}

func (h *PositionHandler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, domain.SideBuy, h.engine.BuyPosition)
}

func (h *PositionHandler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, domain.SideSell, h.engine.SellPosition)
}

func (h *PositionHandler) trade(w http.ResponseWriter, r *http.Request, side domain.Side, apply func(context.Context, ledger.PositionRequest) (domain.Money, error)) {
	userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req tradeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var fields []FieldError
	symbol, err := domain.NormalizeSymbol(req.Symbol)
	if err != nil {
		fields = append(fields, FieldError{Field: "symbol", Message: "must be a ticker symbol"})
	}
	if req.Quantity <= 0 {
		fields = append(fields, FieldError{Field: "quantity", Message: "must be greater than 0"})
	}
	var price domain.Money
	if req.PricePerUnit != "" {
		price, fields = parsePrice("price_per_unit", req.PricePerUnit, fields)
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	log := logging.FromContext(r.Context())

	// Market data is read before the ledger transaction starts.
	if req.PricePerUnit == "" {
		price, err = h.quotes.Latest(r.Context(), symbol)
		if err != nil {
			log.Warn("quote lookup failed", "error", err, "symbol", symbol)
			RespondDomainError(w, err)
			return
		}
	}

	balance, err := apply(r.Context(), ledger.PositionRequest{
		UserID:       userID,
		Symbol:       symbol,
		Quantity:     req.Quantity,
		PricePerUnit: price,
	})
	if err != nil {
		log.Warn(string(side)+" rejected", "error", err, "symbol", symbol, "quantity", req.Quantity)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, tradeDTO{
		Symbol:       symbol,
		Side:         side,
		Quantity:     req.Quantity,
		PricePerUnit: price,
		Total:        price.MulQuantity(req.Quantity),
		Balance:      balance,
		Currency:     h.currency,
	})
}

func (h *PositionHandler) Holdings(w http.ResponseWriter, r *http.Request) {
	userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	holdings, err := h.engine.Holdings(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list holdings", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]holdingDTO, len(holdings))
	for i, hd := range holdings {
		dtos[i] = holdingDTO{
			Symbol:      hd.Symbol,
			Quantity:    hd.Quantity,
			NetInvested: hd.NetInvested,
			Lots:        hd.Lots,
		}
	}

	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *PositionHandler) Lots(w http.ResponseWriter, r *http.Request) {
	userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	lots, err := h.engine.Lots(r.Context(), userID, r.PathValue("symbol"))
	if err != nil {
		logging.FromContext(r.Context()).Warn("failed to list lots", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]lotDTO, len(lots))
	for i, l := range lots {
		dtos[i] = lotDTO{
			ID:           l.ID,
			Side:         l.Side(),
			Quantity:     l.Quantity,
			PricePerUnit: l.Price,
			CreatedAt:    l.CreatedAt,
		}
	}

	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *PositionHandler) Quote(w http.ResponseWriter, r *http.Request) {
	symbol, err := domain.NormalizeSymbol(r.PathValue("symbol"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	points, err := h.quotes.History(r.Context(), symbol)
	if err != nil {
		logging.FromContext(r.Context()).Warn("quote lookup failed", "error", err, "symbol", symbol)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, quoteDTO{Symbol: symbol, Points: points})
}

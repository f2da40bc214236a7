package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientFunds    = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrInsufficientHoldings = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_HOLDINGS", "Not enough units held to sell"}
	ErrReceiverNotFound     = &AppError{http.StatusUnprocessableEntity, "RECEIVER_NOT_FOUND", "No account matches the receiver IBAN and name"}
	ErrSelfTransfer         = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to the same account"}
	ErrLimitExceeded        = &AppError{http.StatusUnprocessableEntity, "TRANSACTION_LIMIT_EXCEEDED", "Transaction limit exceeded"}
	ErrInvalidAmount        = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be positive with at most two decimal places"}
	ErrInvalidQuantity      = &AppError{http.StatusBadRequest, "INVALID_QUANTITY", "Quantity must be greater than zero"}
	ErrInvalidSymbol        = &AppError{http.StatusBadRequest, "INVALID_SYMBOL", "Invalid symbol"}
	ErrEmailTaken           = &AppError{http.StatusConflict, "EMAIL_TAKEN", "Email is already registered"}
	ErrStoreConflict        = &AppError{http.StatusConflict, "CONCURRENT_UPDATE", "Account was modified concurrently, please retry"}
	ErrQuoteUnavailable     = &AppError{http.StatusBadGateway, "QUOTE_UNAVAILABLE", "Market data is unavailable"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrIdempotencyInProgress = &AppError{http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "A request with this Idempotency-Key is still being processed"}
)

package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrReceiverNotFound     = errors.New("receiver not found")
	ErrInvalidAmount        = errors.New("amount must be positive with at most two decimal places")
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrInvalidSymbol        = errors.New("invalid symbol")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrStoreConflict        = errors.New("concurrent write conflict")
	ErrSelfTransfer         = errors.New("cannot transfer to own account")
	ErrLimitExceeded        = errors.New("transaction limit exceeded")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrEmailTaken           = errors.New("email already registered")
	ErrQuoteUnavailable     = errors.New("quote unavailable")
)

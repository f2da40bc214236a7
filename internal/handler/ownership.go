package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/auth"
)

// ownerFromPath resolves {id} and hides accounts the caller may not touch
// behind a 404.
func ownerFromPath(r *http.Request) (uuid.UUID, *AppError) {
	if _, ok := auth.UserIDFromContext(r.Context()); !ok {
		return uuid.Nil, ErrMissingToken
	}

	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}

	if !auth.CanAccess(r.Context(), userID) {
		return uuid.Nil, ErrResourceNotFound
	}

	return userID, nil
}

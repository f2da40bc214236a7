package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
)

type claimsKey struct{}

func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return c.UserID, true
}

// CanAccess reports whether the caller in ctx may act on userID's resources.
// Admins may read and act on any account.
func CanAccess(ctx context.Context, userID uuid.UUID) bool {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return false
	}
	return c.UserID == userID || c.Role == domain.UserRoleAdmin
}

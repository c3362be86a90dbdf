package authn

import (
	"context"

	"github.com/odyssey-erp/authgate/internal/users"
)

type userContextKey struct{}

// ContextWithUser attaches the authenticated user to ctx.
func ContextWithUser(ctx context.Context, u users.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext returns the user attached by the middleware.
func UserFromContext(ctx context.Context) (users.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(users.User)
	return u, ok
}

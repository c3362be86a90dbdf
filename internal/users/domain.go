package users

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
)

// User represents a known account. An ID of zero marks a user that has not
// been persisted yet.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserAPI resolves users for the login flow.
type UserAPI interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
}

// NormalizeEmail trims surrounding whitespace and case-folds the address so
// lookups are case insensitive. A Caser is stateful, so one is built per call.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

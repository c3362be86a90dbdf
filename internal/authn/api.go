package authn

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/authgate/internal/credentials"
	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

// AuthToken is anything that can vouch for a user: a session, a bearer
// token, an external identity provider assertion.
type AuthToken interface {
	AuthenticatedUser() (users.User, error)
}

// AuthenticationAPI verifies passwords and tokens without mutating state.
type AuthenticationAPI interface {
	IsPasswordCorrect(ctx context.Context, u users.User, password string) bool
	IsAuthenticated(token AuthToken) bool
	AuthenticatedUser(token AuthToken) (users.User, error)
}

// SessionAuthToken vouches for the user stored in a session record.
type SessionAuthToken struct {
	session *UserSession
}

// NewSessionAuthToken wraps sess.
func NewSessionAuthToken(sess *shared.Session, now func() time.Time) SessionAuthToken {
	return SessionAuthToken{session: NewUserSession(sess, now)}
}

// AuthenticatedUser implements AuthToken.
func (t SessionAuthToken) AuthenticatedUser() (users.User, error) {
	record, err := t.session.Record()
	if err != nil {
		return users.User{}, err
	}
	return record.User, nil
}

// BearerAuthToken vouches for the user carried by a signed bearer token.
type BearerAuthToken struct {
	issuer *TokenIssuer
	raw    string
}

// NewBearerAuthToken wraps a raw token string.
func NewBearerAuthToken(issuer *TokenIssuer, raw string) BearerAuthToken {
	return BearerAuthToken{issuer: issuer, raw: raw}
}

// AuthenticatedUser implements AuthToken.
func (t BearerAuthToken) AuthenticatedUser() (users.User, error) {
	if t.issuer == nil || t.raw == "" {
		return users.User{}, shared.ErrUnauthenticated
	}
	return t.issuer.Parse(t.raw)
}

// CredentialAuthenticator checks passwords against bcrypt hashes kept in a
// credentials.Store.
type CredentialAuthenticator struct {
	store  credentials.Store
	logger *slog.Logger
}

// NewCredentialAuthenticator builds a CredentialAuthenticator.
func NewCredentialAuthenticator(store credentials.Store, logger *slog.Logger) *CredentialAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialAuthenticator{store: store, logger: logger}
}

// IsPasswordCorrect compares password with the stored hash of u.
func (a *CredentialAuthenticator) IsPasswordCorrect(ctx context.Context, u users.User, password string) bool {
	creds, err := a.store.FindByUserID(ctx, u.ID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			a.logger.Error("load credentials", slog.Int64("user_id", u.ID), slog.Any("error", err))
		}
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(creds.Password), []byte(password)) == nil
}

// IsAuthenticated reports whether token resolves to a user.
func (a *CredentialAuthenticator) IsAuthenticated(token AuthToken) bool {
	_, err := a.AuthenticatedUser(token)
	return err == nil
}

// AuthenticatedUser resolves token to its user.
func (a *CredentialAuthenticator) AuthenticatedUser(token AuthToken) (users.User, error) {
	if token == nil {
		return users.User{}, shared.ErrUnauthenticated
	}
	u, err := token.AuthenticatedUser()
	if err != nil {
		return users.User{}, shared.ErrUnauthenticated
	}
	return u, nil
}

var _ AuthenticationAPI = (*CredentialAuthenticator)(nil)

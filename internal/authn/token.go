package authn

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

type tokenClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TokenIssuer signs and verifies HS256 bearer tokens carrying a user.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds a TokenIssuer. A non-positive ttl falls back to
// SessionLifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = SessionLifetime
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	cp := *t
	cp.now = now
	return &cp
}

// Issue signs a token for u and returns it with its expiry.
func (t *TokenIssuer) Issue(u users.User) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Name:  u.Name,
		Email: u.Email,
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("authn: sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies raw and returns the user it carries. Every failure is
// reported as shared.ErrUnauthenticated.
func (t *TokenIssuer) Parse(raw string) (users.User, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return users.User{}, shared.ErrUnauthenticated
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return users.User{}, shared.ErrUnauthenticated
	}
	return users.User{ID: id, Name: claims.Name, Email: claims.Email}, nil
}

// AuthenticatedUser implements Extractor over the Authorization header.
func (t *TokenIssuer) AuthenticatedUser(r *http.Request) (users.User, error) {
	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return users.User{}, shared.ErrUnauthenticated
	}
	return t.Parse(raw)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

package authn

import (
	"errors"
	"net/http"
	"time"

	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

// Extractor resolves the authenticated user of a request.
type Extractor interface {
	AuthenticatedUser(r *http.Request) (users.User, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(r *http.Request) (users.User, error)

// AuthenticatedUser implements Extractor.
func (f ExtractorFunc) AuthenticatedUser(r *http.Request) (users.User, error) {
	return f(r)
}

// SessionExtractor reads the session record loaded by the session middleware.
type SessionExtractor struct {
	Now func() time.Time
}

// AuthenticatedUser implements Extractor.
func (e SessionExtractor) AuthenticatedUser(r *http.Request) (users.User, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return users.User{}, shared.ErrUnauthenticated
	}
	record, err := NewUserSession(sess, e.Now).Record()
	if err != nil {
		return users.User{}, err
	}
	return record.User, nil
}

// ChainExtractor tries each extractor in order and returns the first user
// found.
type ChainExtractor []Extractor

// AuthenticatedUser implements Extractor.
func (c ChainExtractor) AuthenticatedUser(r *http.Request) (users.User, error) {
	for _, e := range c {
		u, err := e.AuthenticatedUser(r)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, shared.ErrUnauthenticated) {
			return users.User{}, err
		}
	}
	return users.User{}, shared.ErrUnauthenticated
}

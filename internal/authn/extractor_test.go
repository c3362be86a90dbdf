package authn

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

func TestSessionExtractor(t *testing.T) {
	extractor := SessionExtractor{Now: fixedClock(testNow)}

	_, err := extractor.AuthenticatedUser(httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.ErrorIs(t, err, shared.ErrUnauthenticated, "no session in context")

	_, sess := newSession(t)
	_, err = extractor.AuthenticatedUser(withSession(httptest.NewRequest(http.MethodGet, "/api/me", nil), sess))
	assert.ErrorIs(t, err, shared.ErrUnauthenticated, "anonymous session")

	u := users.User{ID: 4, Name: "Test User", Email: "test@example.org"}
	_, err = NewUserSession(sess, fixedClock(testNow)).SetUser(u)
	require.NoError(t, err)
	got, err := extractor.AuthenticatedUser(withSession(httptest.NewRequest(http.MethodGet, "/api/me", nil), sess))
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestChainExtractor(t *testing.T) {
	alice := users.User{ID: 1, Name: "Alice"}
	bob := users.User{ID: 2, Name: "Bob"}
	deny := ExtractorFunc(func(*http.Request) (users.User, error) { return users.User{}, shared.ErrUnauthenticated })
	allow := func(u users.User) Extractor {
		return ExtractorFunc(func(*http.Request) (users.User, error) { return u, nil })
	}
	boom := errors.New("store down")
	broken := ExtractorFunc(func(*http.Request) (users.User, error) { return users.User{}, boom })

	req := httptest.NewRequest(http.MethodGet, "/", nil)

	got, err := ChainExtractor{deny, allow(alice), allow(bob)}.AuthenticatedUser(req)
	require.NoError(t, err)
	assert.Equal(t, alice, got, "first success wins")

	_, err = ChainExtractor{deny, deny}.AuthenticatedUser(req)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = ChainExtractor{}.AuthenticatedUser(req)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = ChainExtractor{broken, allow(bob)}.AuthenticatedUser(req)
	assert.ErrorIs(t, err, boom, "non-auth failures stop the chain")
}

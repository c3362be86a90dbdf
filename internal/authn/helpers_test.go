package authn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/authgate/internal/credentials"
	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
	_ "github.com/odyssey-erp/authgate/testing"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newSessionManager(t *testing.T) (*shared.SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "test_session", "secret", time.Hour, false), mr
}

func newSession(t *testing.T) (*shared.SessionManager, *shared.Session) {
	t.Helper()
	sm, _ := newSessionManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	return sm, sess
}

func withSession(r *http.Request, sess *shared.Session) *http.Request {
	return r.WithContext(shared.ContextWithSession(r.Context(), sess))
}

// newDirectory returns memory stores holding one user with password "test123".
func newDirectory(t *testing.T) (*users.MemoryStore, *credentials.MemoryStore, users.User) {
	t.Helper()
	directory := users.NewMemoryStore()
	store := credentials.NewMemoryStore(directory)
	hash, err := bcrypt.GenerateFromPassword([]byte("test123"), bcrypt.MinCost)
	require.NoError(t, err)
	u, _, err := store.CreateUserWithCredentials(context.Background(),
		users.User{Name: "Test User", Email: "test@example.org"},
		credentials.Credentials{Password: string(hash)})
	require.NoError(t, err)
	return directory, store, u
}

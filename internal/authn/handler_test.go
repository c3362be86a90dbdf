package authn

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

type loginCall struct {
	sessionID string
	userID    int64
	expiresAt time.Time
}

type stubRecorder struct {
	calls []loginCall
	err   error
}

func (s *stubRecorder) RecordLogin(ctx context.Context, sessionID string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.calls = append(s.calls, loginCall{sessionID: sessionID, userID: userID, expiresAt: expiresAt})
	return s.err
}

type loginFixture struct {
	router   http.Handler
	sessions *shared.SessionManager
	user     users.User
	recorder *stubRecorder
	tokens   *TokenIssuer
}

func newLoginFixture(t *testing.T) (*loginFixture, func()) {
	t.Helper()
	sm, mr := newSessionManager(t)
	directory, store, u := newDirectory(t)
	recorder := &stubRecorder{}
	tokens := NewTokenIssuer("token-secret", time.Minute).WithClock(fixedClock(testNow))
	handler := NewHandler(nil, NewService(directory, NewCredentialAuthenticator(store, nil)), sm, HandlerConfig{
		Tokens:   tokens,
		Recorder: recorder,
		Now:      fixedClock(testNow),
	})
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return &loginFixture{router: r, sessions: sm, user: u, recorder: recorder, tokens: tokens}, mr.Close
}

func loginRequest(email, password string) *http.Request {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// serve runs req through the router with a freshly loaded session, the way
// the session middleware does, and returns the session afterwards.
func (f *loginFixture) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, withSession(req, sess))
	return rr, sess
}

func TestLoginStoresSessionRecord(t *testing.T) {
	f, _ := newLoginFixture(t)

	rr, sess := f.serve(t, loginRequest("test@example.org", "test123"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		User      users.User `json:"user"`
		ExpiresAt time.Time  `json:"expires_at"`
		Token     string     `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, f.user, body.User)
	assert.True(t, body.ExpiresAt.Equal(testNow.Add(SessionLifetime)))
	tokenUser, err := f.tokens.Parse(body.Token)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, tokenUser.ID)

	// The record reached Redis before the response: a new request carrying
	// the cookie sees it.
	next := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	next.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: f.sessions.CookieValue(sess)})
	reloaded, err := f.sessions.Load(context.Background(), next)
	require.NoError(t, err)
	record, err := NewUserSession(reloaded, fixedClock(testNow.Add(time.Minute))).Record()
	require.NoError(t, err)
	assert.Equal(t, f.user, record.User)
	assert.True(t, record.TTL.Equal(testNow.Add(30*time.Minute)))

	require.Len(t, f.recorder.calls, 1)
	assert.Equal(t, loginCall{sessionID: sess.ID, userID: f.user.ID, expiresAt: record.TTL}, f.recorder.calls[0])
}

func TestLoginRotatesSessionID(t *testing.T) {
	f, _ := newLoginFixture(t)
	ctx := context.Background()

	// A session issued before login, e.g. one planted in the browser.
	anon, err := f.sessions.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, f.sessions.Save(ctx, anon))
	preLoginID, preLoginCookie := anon.ID, f.sessions.CookieValue(anon)

	withCookie := func(req *http.Request, value string) *http.Request {
		req.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: value})
		return req
	}

	rr, sess := f.serve(t, withCookie(loginRequest("test@example.org", "test123"), preLoginCookie))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEqual(t, preLoginID, sess.ID)

	stale, err := f.sessions.Load(ctx, withCookie(httptest.NewRequest(http.MethodGet, "/api/me", nil), preLoginCookie))
	require.NoError(t, err)
	_, err = NewUserSession(stale, fixedClock(testNow)).Record()
	assert.ErrorIs(t, err, shared.ErrUnauthenticated, "pre-login cookie must not resolve to the user")

	fresh, err := f.sessions.Load(ctx, withCookie(httptest.NewRequest(http.MethodGet, "/api/me", nil), f.sessions.CookieValue(sess)))
	require.NoError(t, err)
	record, err := NewUserSession(fresh, fixedClock(testNow)).Record()
	require.NoError(t, err)
	assert.Equal(t, f.user, record.User)

	// A second login on the same browser gets its own audit row.
	rr, second := f.serve(t, withCookie(loginRequest("test@example.org", "test123"), f.sessions.CookieValue(sess)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, f.recorder.calls, 2)
	assert.NotEqual(t, f.recorder.calls[0].sessionID, f.recorder.calls[1].sessionID)
	assert.Equal(t, second.ID, f.recorder.calls[1].sessionID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		want     int
	}{
		{name: "wrong password", email: "test@example.org", password: "nope", want: http.StatusUnauthorized},
		{name: "unknown user", email: "ghost@example.org", password: "test123", want: http.StatusUnauthorized},
		{name: "missing password", email: "test@example.org", want: http.StatusBadRequest},
		{name: "malformed email", email: "not-an-email", password: "test123", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newLoginFixture(t)
			rr, sess := f.serve(t, loginRequest(tt.email, tt.password))
			assert.Equal(t, tt.want, rr.Code)
			_, hasUser := sess.Lookup(SessionUserKey)
			_, hasTTL := sess.Lookup(SessionTTLKey)
			assert.False(t, hasUser)
			assert.False(t, hasTTL)
			assert.Empty(t, f.recorder.calls)
		})
	}
}

func TestLoginClearsRecordWhenSessionStoreFails(t *testing.T) {
	f, stopRedis := newLoginFixture(t)
	req := loginRequest("test@example.org", "test123")
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)

	stopRedis()
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, withSession(req, sess))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	_, hasUser := sess.Lookup(SessionUserKey)
	_, hasTTL := sess.Lookup(SessionTTLKey)
	assert.False(t, hasUser)
	assert.False(t, hasTTL)
	assert.Empty(t, f.recorder.calls)
}

func TestLoginSucceedsWhenAuditFails(t *testing.T) {
	f, _ := newLoginFixture(t)
	f.recorder.err = errors.New("queue down")

	rr, _ := f.serve(t, loginRequest("test@example.org", "test123"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, f.recorder.calls, 1)
}

func TestLoginWithoutSession(t *testing.T) {
	f, _ := newLoginFixture(t)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, loginRequest("test@example.org", "test123"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	f, _ := newLoginFixture(t)
	rr, sess := f.serve(t, loginRequest("test@example.org", "test123"))
	require.Equal(t, http.StatusOK, rr.Code)

	logout := httptest.NewRequest(http.MethodPost, "/logout", nil)
	logout.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: f.sessions.CookieValue(sess)})
	loaded, err := f.sessions.Load(context.Background(), logout)
	require.NoError(t, err)
	logout = withSession(logout, loaded)

	out := httptest.NewRecorder()
	f.router.ServeHTTP(out, logout)
	require.Equal(t, http.StatusNoContent, out.Code)
	require.NoError(t, f.sessions.Commit(context.Background(), out, logout, loaded))

	again := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	again.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: f.sessions.CookieValue(sess)})
	reloaded, err := f.sessions.Load(context.Background(), again)
	require.NoError(t, err)
	_, err = NewUserSession(reloaded, fixedClock(testNow)).Record()
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestMeReturnsContextUser(t *testing.T) {
	f, _ := newLoginFixture(t)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = req.WithContext(ContextWithUser(req.Context(), f.user))
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var got users.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, f.user, got)
}

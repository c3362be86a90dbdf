package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session holds per-request session data. A Session is owned by a single
// request and must not be shared between goroutines.
type Session struct {
	ID        string
	values    map[string]string
	manager   *SessionManager
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	Values map[string]string `json:"values"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Load loads or creates a new session for request. Cookies whose signature
// does not verify are ignored and a fresh session is issued.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	id, ok := sm.verifyCookieValue(cookie.Value)
	if !ok {
		return sm.newSession(), nil
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			sess := sm.newSession()
			sess.ID = id
			return sess, nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}

	sess := sm.newSession()
	sess.ID = id
	if stored.Values != nil {
		sess.values = stored.Values
	}
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Save persists pending session changes to Redis without touching the
// response. Handlers that must know whether session data reached the store
// call Save before answering; Commit then only has to write the cookie.
func (sm *SessionManager) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.destroyed {
		return nil
	}
	if sess.ID == "" {
		sess.ID = sm.generateSessionID()
	}
	if !sess.dirty && !sess.isNew {
		return nil
	}
	data, err := json.Marshal(sessionPayload{Values: sess.values})
	if err != nil {
		return fmt.Errorf("shared: encode session: %w", err)
	}
	if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
		return fmt.Errorf("shared: store session: %w", err)
	}
	sess.dirty = false
	sess.isNew = false
	return nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if err := sm.Save(ctx, sess); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sm.signCookieValue(sess.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	return nil
}

// Renew moves sess to a freshly generated ID and deletes the record stored
// under the old one. Values carried by sess are kept and written under the
// new ID on the next Save. Call it whenever the privilege level of the
// session changes.
func (sm *SessionManager) Renew(ctx context.Context, sess *Session) error {
	if sess == nil || sess.destroyed {
		return nil
	}
	if sess.ID != "" {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("shared: renew session: %w", err)
		}
	}
	sess.ID = sm.generateSessionID()
	sess.isNew = true
	sess.dirty = true
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured store-side session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// CookieValue returns the signed cookie value identifying sess.
func (sm *SessionManager) CookieValue(sess *Session) string {
	if sess == nil {
		return ""
	}
	return sm.signCookieValue(sess.ID)
}

// Session helpers

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// SetMany stores all entries in one step so readers never observe a
// partial update.
func (s *Session) SetMany(entries map[string]string) {
	if s.values == nil {
		s.values = make(map[string]string, len(entries))
	}
	for k, v := range entries {
		s.values[k] = v
	}
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Lookup retrieves a value and reports whether it was present.
func (s *Session) Lookup(key string) (string, bool) {
	if s.values == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// GetJSON decodes the value stored under key into dst. It reports false
// without error when the key is absent.
func (s *Session) GetJSON(key string, dst any) (bool, error) {
	raw, ok := s.Lookup(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("shared: decode session key %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value and stores it under key.
func (s *Session) SetJSON(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("shared: encode session key %q: %w", key, err)
	}
	s.Set(key, string(data))
	return nil
}

// Keys lists stored keys in sorted order.
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LogValue renders the session without its values.
func (s *Session) LogValue() slog.Value {
	if s == nil {
		return slog.StringValue("<nil>")
	}
	id := s.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return slog.GroupValue(
		slog.String("id", id),
		slog.String("keys", strings.Join(s.Keys(), ",")),
		slog.Bool("new", s.isNew),
	)
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:      sm.generateSessionID(),
		values:  make(map[string]string),
		manager: sm,
		isNew:   true,
		dirty:   true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) signCookieValue(id string) string {
	return id + "." + sm.signature(id)
}

func (sm *SessionManager) verifyCookieValue(value string) (string, bool) {
	idx := strings.LastIndexByte(value, '.')
	if idx <= 0 || idx == len(value)-1 {
		return "", false
	}
	id, sig := value[:idx], value[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(sm.signature(id))) {
		return "", false
	}
	return id, true
}

func (sm *SessionManager) signature(id string) string {
	mac := hmac.New(sha256.New, sm.secret)
	_, _ = mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

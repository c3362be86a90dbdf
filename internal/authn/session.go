package authn

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

const (
	// SessionUserKey holds the serialized user.
	SessionUserKey = "user"
	// SessionTTLKey holds the serialized absolute expiry.
	SessionTTLKey = "ttl"
	// SessionLifetime is how long a session record stays valid after login.
	SessionLifetime = 30 * time.Minute
)

// ErrNoSession is returned when a request carries no session to write to.
var ErrNoSession = errors.New("authn: no session in request context")

// SessionRecord is the user identity and expiry stored in a session.
type SessionRecord struct {
	User users.User
	TTL  time.Time
}

// ValidAt reports whether the record is still valid at now.
func (r SessionRecord) ValidAt(now time.Time) bool {
	return now.Before(r.TTL)
}

// UserSession reads and writes the session record of one request.
type UserSession struct {
	sess *shared.Session
	now  func() time.Time
}

// NewUserSession wraps sess. A nil now defaults to time.Now.
func NewUserSession(sess *shared.Session, now func() time.Time) *UserSession {
	if now == nil {
		now = time.Now
	}
	return &UserSession{sess: sess, now: now}
}

// SetUser stores u with a fresh expiry. Both entries are encoded before
// either is written, so a failure leaves the session untouched.
func (s *UserSession) SetUser(u users.User) (SessionRecord, error) {
	if s == nil || s.sess == nil {
		return SessionRecord{}, ErrNoSession
	}
	record := SessionRecord{User: u, TTL: s.now().Add(SessionLifetime).UTC()}
	userJSON, err := json.Marshal(record.User)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("authn: encode session user: %w", err)
	}
	ttlJSON, err := json.Marshal(record.TTL)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("authn: encode session ttl: %w", err)
	}
	s.sess.SetMany(map[string]string{
		SessionUserKey: string(userJSON),
		SessionTTLKey:  string(ttlJSON),
	})
	return record, nil
}

// Clear removes the session record.
func (s *UserSession) Clear() {
	if s == nil || s.sess == nil {
		return
	}
	s.sess.Delete(SessionUserKey)
	s.sess.Delete(SessionTTLKey)
}

// Record returns the stored record. Missing, undecodable and expired
// records all yield shared.ErrUnauthenticated.
func (s *UserSession) Record() (SessionRecord, error) {
	if s == nil || s.sess == nil {
		return SessionRecord{}, shared.ErrUnauthenticated
	}
	var record SessionRecord
	okTTL, err := s.sess.GetJSON(SessionTTLKey, &record.TTL)
	if err != nil || !okTTL {
		return SessionRecord{}, shared.ErrUnauthenticated
	}
	if !record.ValidAt(s.now()) {
		return SessionRecord{}, shared.ErrUnauthenticated
	}
	okUser, err := s.sess.GetJSON(SessionUserKey, &record.User)
	if err != nil || !okUser {
		return SessionRecord{}, shared.ErrUnauthenticated
	}
	return record, nil
}

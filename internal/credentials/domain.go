// Package credentials persists password hashes and MFA configuration keyed
// by user.
package credentials

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/authgate/internal/users"
)

// MFAConfig describes a second authentication factor. A nil Secret means
// enrollment is pending and no secret has been issued yet.
type MFAConfig struct {
	ID     string  `json:"mfa_id"`
	Secret *string `json:"secret,omitempty"`
}

// HasSecret reports whether a secret has been issued.
func (m *MFAConfig) HasSecret() bool {
	return m != nil && m.Secret != nil
}

// LogValue never includes the secret.
func (m *MFAConfig) LogValue() slog.Value {
	if m == nil {
		return slog.StringValue("<none>")
	}
	return slog.GroupValue(
		slog.String("mfa_id", m.ID),
		slog.Bool("has_secret", m.HasSecret()),
	)
}

// Credentials holds the password hash and optional MFA configuration of a
// user. ID zero means the row has not been persisted yet.
type Credentials struct {
	ID       int64
	Password string
	UserID   int64
	MFA      *MFAConfig
}

// IsNew reports whether Save will insert rather than update.
func (c Credentials) IsNew() bool {
	return c.ID == 0
}

// LogValue never includes the password hash or MFA secret.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("id", c.ID),
		slog.Int64("user_id", c.UserID),
		slog.Any("mfa", c.MFA),
	)
}

// Store is the persistence boundary for credentials.
type Store interface {
	// FindByUserID returns the credentials of userID or an error wrapping
	// shared.ErrNotFound.
	FindByUserID(ctx context.Context, userID int64) (Credentials, error)
	// Save inserts credentials with a zero ID and updates all others, then
	// returns the row as persisted.
	Save(ctx context.Context, c Credentials) (Credentials, error)
	// CreateUserWithCredentials inserts a user and its credentials
	// atomically.
	CreateUserWithCredentials(ctx context.Context, u users.User, c Credentials) (users.User, Credentials, error)
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string {
	return &s
}

func mfaColumns(m *MFAConfig) (mfaID, secret pgtype.Text) {
	if m == nil {
		return pgtype.Text{}, pgtype.Text{}
	}
	mfaID = pgtype.Text{String: m.ID, Valid: true}
	if m.Secret != nil {
		secret = pgtype.Text{String: *m.Secret, Valid: true}
	}
	return mfaID, secret
}

// mfaFromColumns ignores a stray secret when no MFA id is stored.
func mfaFromColumns(mfaID, secret pgtype.Text) *MFAConfig {
	if !mfaID.Valid {
		return nil
	}
	cfg := &MFAConfig{ID: mfaID.String}
	if secret.Valid {
		cfg.Secret = StrPtr(secret.String)
	}
	return cfg
}

func cloneMFA(m *MFAConfig) *MFAConfig {
	if m == nil {
		return nil
	}
	out := &MFAConfig{ID: m.ID}
	if m.Secret != nil {
		out.Secret = StrPtr(*m.Secret)
	}
	return out
}

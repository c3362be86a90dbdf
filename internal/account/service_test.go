package account

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/authgate/internal/credentials"
	"github.com/odyssey-erp/authgate/internal/platform/httpx"
	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func newTestService(t *testing.T) (*Service, *users.MemoryStore, *credentials.MemoryStore) {
	t.Helper()
	directory := users.NewMemoryStore()
	store := credentials.NewMemoryStore(directory)
	return NewService(store, bcrypt.MinCost, nil), directory, store
}

func TestRegisterCreatesUserAndCredentials(t *testing.T) {
	svc, directory, store := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Name: "Test User", Email: "Test@Example.org", Password: "test123"})
	require.NoError(t, err)
	assert.Equal(t, "test@example.org", user.Email)

	found, err := directory.FindByEmail(ctx, "test@example.org")
	require.NoError(t, err)
	assert.Equal(t, user, found)

	creds, err := store.FindByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(creds.Password), []byte("test123")))
	assert.Nil(t, creds.MFA)
}

func TestRegisterRejectsDuplicateAndInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@example.org", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "B", Email: " A@example.org", Password: "secret2"})
	assert.ErrorIs(t, err, shared.ErrDuplicate)

	_, err = svc.Register(ctx, RegisterInput{Name: "C", Email: "not-an-email", Password: "secret3"})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Register(ctx, RegisterInput{Name: "D", Email: "d@example.org", Password: "123"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestChangePassword(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@example.org", Password: "oldpass"})
	require.NoError(t, err)
	before, err := store.FindByUserID(ctx, user.ID)
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, PasswordChange{CurrentPassword: "wrong!", NewPassword: "newpass"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, user.ID, PasswordChange{CurrentPassword: "oldpass", NewPassword: "oldpass"})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, PasswordChange{CurrentPassword: "oldpass", NewPassword: "newpass"}))
	after, err := store.FindByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID, "password change updates in place")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(after.Password), []byte("newpass")))
}

func TestEnrollAndDisableMFA(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@example.org", Password: "secret1"})
	require.NoError(t, err)

	pending, err := svc.EnrollMFA(ctx, user.ID, MFAInput{MFAID: "MFA_ID"})
	require.NoError(t, err)
	assert.Equal(t, "MFA_ID", pending.ID)
	assert.False(t, pending.HasSecret())

	active, err := svc.EnrollMFA(ctx, user.ID, MFAInput{MFAID: "MFA_ID", Secret: credentials.StrPtr(testSecret)})
	require.NoError(t, err)
	require.True(t, active.HasSecret())
	assert.Equal(t, testSecret, *active.Secret)

	require.NoError(t, svc.DisableMFA(ctx, user.ID))
	creds, err := store.FindByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, creds.MFA)

	require.NoError(t, svc.DisableMFA(ctx, user.ID), "disabling twice is a no-op")

	_, err = svc.EnrollMFA(ctx, 999, MFAInput{MFAID: "X"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEnrollMFARejectsMalformedSecret(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@example.org", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.EnrollMFA(ctx, user.ID, MFAInput{MFAID: "MFA_ID", Secret: credentials.StrPtr("not base32!")})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	creds, err := store.FindByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, creds.MFA, "rejected enrollment must not be stored")
}

func TestVerifyMFA(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@example.org", Password: "secret1"})
	require.NoError(t, err)

	err = svc.VerifyMFA(ctx, user.ID, MFACode{Code: "123456"})
	assert.ErrorIs(t, err, shared.ErrNotFound, "no mfa configured")

	_, err = svc.EnrollMFA(ctx, user.ID, MFAInput{MFAID: "MFA_ID"})
	require.NoError(t, err)
	err = svc.VerifyMFA(ctx, user.ID, MFACode{Code: "123456"})
	assert.ErrorIs(t, err, shared.ErrNotFound, "pending enrollment has no secret")

	_, err = svc.EnrollMFA(ctx, user.ID, MFAInput{MFAID: "MFA_ID", Secret: credentials.StrPtr(testSecret)})
	require.NoError(t, err)

	code, err := totp.GenerateCode(testSecret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.VerifyMFA(ctx, user.ID, MFACode{Code: code}))

	wrong, err := totp.GenerateCode(testSecret, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	if wrong != code {
		assert.ErrorIs(t, svc.VerifyMFA(ctx, user.ID, MFACode{Code: wrong}), shared.ErrInvalidCredentials)
	}

	assert.ErrorIs(t, svc.VerifyMFA(ctx, user.ID, MFACode{Code: "12ab56"}), httpx.ErrValidation)
}

// Package account manages registration, password changes and MFA
// enrollment on top of the credentials store.
package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pquerna/otp/totp"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/authgate/internal/credentials"
	"github.com/odyssey-erp/authgate/internal/platform/httpx"
	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

// RegisterInput carries the fields needed to create an account.
type RegisterInput struct {
	Name     string `validate:"required,max=200"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=72"`
}

// PasswordChange carries a password rotation request.
type PasswordChange struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72,nefield=CurrentPassword"`
}

// MFAInput carries an MFA enrollment. A missing secret leaves enrollment
// pending.
type MFAInput struct {
	MFAID  string  `json:"mfa_id" validate:"required,max=200"`
	Secret *string `json:"secret,omitempty" validate:"omitempty,min=1"`
}

// MFACode carries a one-time code to check against the enrolled secret.
type MFACode struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

// Service implements account operations.
type Service struct {
	store     credentials.Store
	validator *validator.Validate
	cost      int
	logger    *slog.Logger
}

// NewService constructs a Service. cost is the bcrypt cost; zero selects
// bcrypt.DefaultCost.
func NewService(store credentials.Store, cost int, logger *slog.Logger) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, validator: validator.New(), cost: cost, logger: logger}
}

// Register creates a user and its credentials in one step.
func (s *Service) Register(ctx context.Context, in RegisterInput) (users.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate(in); err != nil {
		return users.User{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return users.User{}, err
	}
	user, _, err := s.store.CreateUserWithCredentials(ctx,
		users.User{Name: in.Name, Email: in.Email},
		credentials.Credentials{Password: hash})
	if err != nil {
		return users.User{}, err
	}
	s.logger.Info("account registered", slog.Int64("user_id", user.ID))
	return user, nil
}

// ChangePassword replaces the password of userID after checking the
// current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, in PasswordChange) error {
	if err := s.validate(in); err != nil {
		return err
	}
	creds, err := s.store.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(creds.Password), []byte(in.CurrentPassword)) != nil {
		return shared.ErrInvalidCredentials
	}
	hash, err := s.hash(in.NewPassword)
	if err != nil {
		return err
	}
	creds.Password = hash
	if _, err := s.store.Save(ctx, creds); err != nil {
		return err
	}
	s.logger.Info("password changed", slog.Int64("user_id", userID))
	return nil
}

// EnrollMFA stores the MFA configuration of userID and returns it as
// persisted.
func (s *Service) EnrollMFA(ctx context.Context, userID int64, in MFAInput) (*credentials.MFAConfig, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	if in.Secret != nil {
		if _, err := totp.GenerateCode(*in.Secret, time.Now()); err != nil {
			return nil, oops.Code("ACCOUNT_INVALID").
				With("field", "Secret").
				Errorf("%w: secret is not base32", httpx.ErrValidation)
		}
	}
	creds, err := s.store.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	creds.MFA = &credentials.MFAConfig{ID: in.MFAID, Secret: in.Secret}
	saved, err := s.store.Save(ctx, creds)
	if err != nil {
		return nil, err
	}
	s.logger.Info("mfa enrolled", slog.Int64("user_id", userID), slog.Any("mfa", saved.MFA))
	return saved.MFA, nil
}

// VerifyMFA checks code against the active TOTP secret of userID. Pending
// enrollments have nothing to check against and report ErrNotFound.
func (s *Service) VerifyMFA(ctx context.Context, userID int64, in MFACode) error {
	if err := s.validate(in); err != nil {
		return err
	}
	creds, err := s.store.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if !creds.MFA.HasSecret() {
		return oops.Code("MFA_NOT_ACTIVE").With("user_id", userID).Wrap(shared.ErrNotFound)
	}
	if !totp.Validate(in.Code, *creds.MFA.Secret) {
		s.logger.Warn("mfa code rejected", slog.Int64("user_id", userID))
		return shared.ErrInvalidCredentials
	}
	return nil
}

// DisableMFA clears the MFA configuration of userID.
func (s *Service) DisableMFA(ctx context.Context, userID int64) error {
	creds, err := s.store.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if creds.MFA == nil {
		return nil
	}
	creds.MFA = nil
	if _, err := s.store.Save(ctx, creds); err != nil {
		return err
	}
	s.logger.Info("mfa disabled", slog.Int64("user_id", userID))
	return nil
}

func (s *Service) validate(v any) error {
	if err := s.validator.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return oops.Code("ACCOUNT_INVALID").
				With("field", fieldErrs[0].Field()).
				Errorf("%w: %s failed %s", httpx.ErrValidation, fieldErrs[0].Field(), fieldErrs[0].Tag())
		}
		return oops.Code("ACCOUNT_INVALID").Wrap(httpx.ErrValidation)
	}
	return nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", oops.Code("ACCOUNT_HASH_FAILED").Wrapf(err, "hash password")
	}
	return string(hash), nil
}

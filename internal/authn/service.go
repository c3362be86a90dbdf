package authn

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

// decoyHash is compared against when the email is unknown so that both
// rejection paths pay for a bcrypt comparison.
var decoyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("authgate decoy password"), bcrypt.DefaultCost)
	return hash
})

func compareDecoy(password string) {
	_ = bcrypt.CompareHashAndPassword(decoyHash(), []byte(password))
}

// Service wraps authentication business rules.
type Service struct {
	users users.UserAPI
	api   AuthenticationAPI
	decoy func(password string)
}

// NewService constructs a new Service.
func NewService(userAPI users.UserAPI, api AuthenticationAPI) *Service {
	return &Service{users: userAPI, api: api, decoy: compareDecoy}
}

// Authenticate validates email/password credentials. Unknown users and
// wrong passwords both yield shared.ErrInvalidCredentials; storage failures
// are returned as they are.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.decoy(password)
			return users.User{}, shared.ErrInvalidCredentials
		}
		return users.User{}, err
	}
	if !s.api.IsPasswordCorrect(ctx, user, password) {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// API exposes the verification API used by the service.
func (s *Service) API() AuthenticationAPI {
	return s.api
}

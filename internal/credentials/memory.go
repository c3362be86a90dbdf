package credentials

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

// MemoryStore keeps credentials in process memory next to a users.MemoryStore.
type MemoryStore struct {
	mu     sync.Mutex
	users  *users.MemoryStore
	byID   map[int64]Credentials
	byUser map[int64]int64
	nextID int64
}

// NewMemoryStore builds a MemoryStore creating users in directory.
func NewMemoryStore(directory *users.MemoryStore) *MemoryStore {
	return &MemoryStore{
		users:  directory,
		byID:   make(map[int64]Credentials),
		byUser: make(map[int64]int64),
		nextID: 1,
	}
}

// FindByUserID returns the credentials owned by userID.
func (m *MemoryStore) FindByUserID(ctx context.Context, userID int64) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUser[userID]
	if !ok {
		return Credentials{}, oops.Code("CREDENTIALS_NOT_FOUND").With("user_id", userID).Wrap(shared.ErrNotFound)
	}
	return copyCredentials(m.byID[id]), nil
}

// Save inserts or updates credentials.
func (m *MemoryStore) Save(ctx context.Context, c Credentials) (Credentials, error) {
	if c.UserID == 0 {
		return Credentials{}, orphaned(c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(ctx, c)
}

// CreateUserWithCredentials inserts the user and credentials; the user is
// removed again when the credentials cannot be stored.
func (m *MemoryStore) CreateUserWithCredentials(ctx context.Context, u users.User, c Credentials) (users.User, Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created, err := m.users.Insert(ctx, u)
	if err != nil {
		return users.User{}, Credentials{}, err
	}
	c.ID = 0
	c.UserID = created.ID
	saved, err := m.saveLocked(ctx, c)
	if err != nil {
		m.users.Remove(ctx, created.ID)
		return users.User{}, Credentials{}, err
	}
	return created, saved, nil
}

// saveLocked mirrors the foreign key of the credentials table: the owner
// must exist in the user directory.
func (m *MemoryStore) saveLocked(ctx context.Context, c Credentials) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, saveFailed("save credentials", c, err)
	}
	if _, err := m.users.FindByID(ctx, c.UserID); err != nil {
		return Credentials{}, oops.Code("CREDENTIALS_SAVE_FAILED").
			With("user_id", c.UserID).
			Errorf("%w: user %d does not exist", shared.ErrUpdate, c.UserID)
	}
	if c.IsNew() {
		if _, exists := m.byUser[c.UserID]; exists {
			return Credentials{}, oops.Code("CREDENTIALS_SAVE_FAILED").
				With("user_id", c.UserID).
				Errorf("%w: user %d already has credentials", shared.ErrUpdate, c.UserID)
		}
		c.ID = m.nextID
		m.nextID++
	} else {
		prev, ok := m.byID[c.ID]
		if !ok {
			return Credentials{}, oops.Code("CREDENTIALS_SAVE_FAILED").
				With("id", c.ID).
				Errorf("%w: no credentials row with id %d", shared.ErrUpdate, c.ID)
		}
		if owner, taken := m.byUser[c.UserID]; taken && owner != c.ID {
			return Credentials{}, oops.Code("CREDENTIALS_SAVE_FAILED").
				With("id", c.ID).
				Errorf("%w: user %d already has credentials", shared.ErrUpdate, c.UserID)
		}
		delete(m.byUser, prev.UserID)
	}
	stored := copyCredentials(c)
	m.byID[c.ID] = stored
	m.byUser[c.UserID] = c.ID
	return copyCredentials(stored), nil
}

func copyCredentials(c Credentials) Credentials {
	c.MFA = cloneMFA(c.MFA)
	return c
}

var _ Store = (*MemoryStore)(nil)

package users

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/odyssey-erp/authgate/internal/shared"
)

// MemoryStore keeps users in process memory. It backs the memory store
// driver and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[int64]User
	byEmail map[string]int64
	nextID  int64
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[int64]User),
		byEmail: make(map[string]int64),
		nextID:  1,
	}
}

// FindByEmail returns the user registered under email.
func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (User, error) {
	normalized := NormalizeEmail(email)
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[normalized]
	if !ok {
		return User{}, oops.Code("USER_NOT_FOUND").With("email", normalized).Wrap(shared.ErrNotFound)
	}
	return m.byID[id], nil
}

// FindByID returns the user with id.
func (m *MemoryStore) FindByID(ctx context.Context, id int64) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return User{}, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(shared.ErrNotFound)
	}
	return u, nil
}

// Insert stores a new user and assigns its ID.
func (m *MemoryStore) Insert(ctx context.Context, u User) (User, error) {
	u.Email = NormalizeEmail(u.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[u.Email]; exists {
		return User{}, oops.Code("USER_DUPLICATE").With("email", u.Email).Wrap(shared.ErrDuplicate)
	}
	u.ID = m.nextID
	m.nextID++
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return u, nil
}

// Remove deletes the user with id if present.
func (m *MemoryStore) Remove(ctx context.Context, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		delete(m.byEmail, u.Email)
		delete(m.byID, id)
	}
}

var _ UserAPI = (*MemoryStore)(nil)

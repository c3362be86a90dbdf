package credentials

import (
	"context"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"

	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

// Bounded limits how many credential operations reach the underlying store
// at once. Callers wait for a slot or give up when their context ends.
type Bounded struct {
	next Store
	sem  *semaphore.Weighted
}

// NewBounded wraps next with at most workers concurrent operations.
func NewBounded(next Store, workers int) *Bounded {
	if workers <= 0 {
		workers = 1
	}
	return &Bounded{next: next, sem: semaphore.NewWeighted(int64(workers))}
}

// FindByUserID implements Store.
func (b *Bounded) FindByUserID(ctx context.Context, userID int64) (Credentials, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return Credentials{}, oops.Code("CREDENTIALS_QUERY_FAILED").
			With("user_id", userID).
			With("cause", err.Error()).
			Wrap(shared.ErrQueryUser)
	}
	defer b.sem.Release(1)
	return b.next.FindByUserID(ctx, userID)
}

// Save implements Store.
func (b *Bounded) Save(ctx context.Context, c Credentials) (Credentials, error) {
	if c.UserID == 0 {
		return Credentials{}, orphaned(c)
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return Credentials{}, saveFailed("acquire worker", c, err)
	}
	defer b.sem.Release(1)
	return b.next.Save(ctx, c)
}

// CreateUserWithCredentials implements Store.
func (b *Bounded) CreateUserWithCredentials(ctx context.Context, u users.User, c Credentials) (users.User, Credentials, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return users.User{}, Credentials{}, saveFailed("acquire worker", c, err)
	}
	defer b.sem.Release(1)
	return b.next.CreateUserWithCredentials(ctx, u, c)
}

var _ Store = (*Bounded)(nil)

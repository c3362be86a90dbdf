package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/odyssey-erp/authgate/internal/shared"
)

// Querier is the subset of pgx used by Repository. Both *pgxpool.Pool and
// pgx.Tx satisfy it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db Querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier builds a repository over any Querier.
func NewRepositoryWithQuerier(db Querier) *Repository {
	return &Repository{db: db}
}

// FindByEmail fetches a user by normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	normalized := NormalizeEmail(email)
	row := r.db.QueryRow(ctx, `SELECT id, name, email FROM users WHERE email = $1`, normalized)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, oops.Code("USER_NOT_FOUND").
			With("email", normalized).
			Wrap(shared.ErrNotFound)
	}
	if err != nil {
		return User{}, queryFailed("find user by email", err)
	}
	return user, nil
}

// FindByID fetches a user by primary key.
func (r *Repository) FindByID(ctx context.Context, id int64) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, email FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(shared.ErrNotFound)
	}
	if err != nil {
		return User{}, queryFailed("find user by id", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email); err != nil {
		return User{}, err
	}
	return u, nil
}

// queryFailed hides the driver error behind ErrQueryUser; its text is kept
// as context for logs only.
func queryFailed(operation string, err error) error {
	return oops.Code("USER_QUERY_FAILED").
		With("operation", operation).
		With("cause", err.Error()).
		Wrap(shared.ErrQueryUser)
}

var _ UserAPI = (*Repository)(nil)

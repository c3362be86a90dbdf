package credentials

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/odyssey-erp/authgate/internal/platform/db"
	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

// DB is the subset of pgx used by PGStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db DB
}

// NewPGStore constructs a PostgreSQL store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool}
}

// NewPGStoreWithDB constructs a store over any DB implementation.
func NewPGStoreWithDB(conn DB) *PGStore {
	return &PGStore{db: conn}
}

const selectCredentials = `SELECT id, password, mfa_id, mfa_secret, user_id FROM credentials`

// FindByUserID fetches credentials by owning user.
func (s *PGStore) FindByUserID(ctx context.Context, userID int64) (Credentials, error) {
	row := s.db.QueryRow(ctx, selectCredentials+` WHERE user_id = $1`, userID)
	c, err := scanCredentials(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credentials{}, oops.Code("CREDENTIALS_NOT_FOUND").
			With("user_id", userID).
			Wrap(shared.ErrNotFound)
	}
	if err != nil {
		return Credentials{}, oops.Code("CREDENTIALS_QUERY_FAILED").
			With("user_id", userID).
			With("cause", err.Error()).
			Wrap(shared.ErrQueryUser)
	}
	return c, nil
}

// Save inserts or updates credentials and returns the persisted row.
func (s *PGStore) Save(ctx context.Context, c Credentials) (Credentials, error) {
	if c.UserID == 0 {
		return Credentials{}, orphaned(c)
	}
	mfaID, secret := mfaColumns(c.MFA)

	id := c.ID
	if c.IsNew() {
		err := s.db.QueryRow(ctx, `
			INSERT INTO credentials (password, mfa_id, mfa_secret, user_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, c.Password, mfaID, secret, c.UserID).Scan(&id)
		if err != nil {
			return Credentials{}, saveFailed("insert credentials", c, err)
		}
	} else {
		tag, err := s.db.Exec(ctx, `
			UPDATE credentials
			SET password = $1, mfa_id = $2, mfa_secret = $3, user_id = $4
			WHERE id = $5
		`, c.Password, mfaID, secret, c.UserID, c.ID)
		if err != nil {
			return Credentials{}, saveFailed("update credentials", c, err)
		}
		if tag.RowsAffected() == 0 {
			return Credentials{}, oops.Code("CREDENTIALS_SAVE_FAILED").
				With("operation", "update credentials").
				With("id", c.ID).
				Errorf("%w: no credentials row with id %d", shared.ErrUpdate, c.ID)
		}
	}

	saved, err := s.findByID(ctx, s.db, id)
	if err != nil {
		return Credentials{}, saveFailed("reload credentials", c, err)
	}
	return saved, nil
}

// CreateUserWithCredentials inserts the user and its credentials in one
// transaction. Any failure rolls back both rows.
func (s *PGStore) CreateUserWithCredentials(ctx context.Context, u users.User, c Credentials) (users.User, Credentials, error) {
	u.Email = users.NormalizeEmail(u.Email)
	var created users.User
	var saved Credentials

	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var userID int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO users (name, email)
			VALUES ($1, $2)
			RETURNING id
		`, u.Name, u.Email).Scan(&userID); err != nil {
			if isUniqueViolation(err) {
				return oops.Code("USER_DUPLICATE").
					With("email", u.Email).
					Wrap(shared.ErrDuplicate)
			}
			return saveFailed("insert user", c, err)
		}

		mfaID, secret := mfaColumns(c.MFA)
		var credID int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO credentials (password, mfa_id, mfa_secret, user_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, c.Password, mfaID, secret, userID).Scan(&credID); err != nil {
			return saveFailed("insert credentials", c, err)
		}

		reloaded, err := s.findByID(ctx, tx, credID)
		if err != nil {
			return saveFailed("reload credentials", c, err)
		}
		created = users.User{ID: userID, Name: u.Name, Email: u.Email}
		saved = reloaded
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) || errors.Is(err, shared.ErrUpdate) {
			return users.User{}, Credentials{}, err
		}
		return users.User{}, Credentials{}, saveFailed("create user transaction", c, err)
	}
	return created, saved, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PGStore) findByID(ctx context.Context, q rowQuerier, id int64) (Credentials, error) {
	return scanCredentials(q.QueryRow(ctx, selectCredentials+` WHERE id = $1`, id))
}

func scanCredentials(row pgx.Row) (Credentials, error) {
	var (
		c      Credentials
		mfaID  pgtype.Text
		secret pgtype.Text
	)
	if err := row.Scan(&c.ID, &c.Password, &mfaID, &secret, &c.UserID); err != nil {
		return Credentials{}, err
	}
	c.MFA = mfaFromColumns(mfaID, secret)
	return c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func orphaned(c Credentials) error {
	return oops.Code("CREDENTIALS_ORPHANED").
		With("id", c.ID).
		Errorf("%w: %w", shared.ErrUpdate, shared.ErrOrphanedCredentials)
}

// saveFailed hides the driver error behind ErrUpdate; its text is kept as
// context for logs only.
func saveFailed(operation string, c Credentials, err error) error {
	return oops.Code("CREDENTIALS_SAVE_FAILED").
		With("operation", operation).
		With("id", c.ID).
		With("user_id", c.UserID).
		With("cause", err.Error()).
		Wrap(shared.ErrUpdate)
}

var _ Store = (*PGStore)(nil)

package users

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/authgate/internal/shared"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "test@example.org", NormalizeEmail("  Test@Example.ORG\t"))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	u, err := store.Insert(ctx, User{Name: "Test User", Email: " Test@Example.org"})
	require.NoError(t, err)
	assert.Equal(t, User{ID: 1, Name: "Test User", Email: "test@example.org"}, u)

	got, err := store.FindByEmail(ctx, "TEST@example.org")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	got, err = store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = store.Insert(ctx, User{Name: "Dup", Email: "test@example.org"})
	assert.ErrorIs(t, err, shared.ErrDuplicate)

	store.Remove(ctx, u.ID)
	_, err = store.FindByEmail(ctx, "test@example.org")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = store.FindByID(ctx, u.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	again, err := store.Insert(ctx, User{Name: "Again", Email: "test@example.org"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.ID, "ids are never reused")
}

func TestRepositoryFindByEmail(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		want      User
		wantErr   error
	}{
		{
			name: "found with normalized email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT id, name, email FROM users WHERE email`).
					WithArgs("test@example.org").
					WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email"}).
						AddRow(int64(1), "Test User", "test@example.org"))
			},
			want: User{ID: 1, Name: "Test User", Email: "test@example.org"},
		},
		{
			name: "missing",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM users WHERE email`).
					WithArgs("test@example.org").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: shared.ErrNotFound,
		},
		{
			name: "driver failure",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM users WHERE email`).
					WithArgs("test@example.org").
					WillReturnError(errors.New("conn closed"))
			},
			wantErr: shared.ErrQueryUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			got, err := NewRepositoryWithQuerier(mock).FindByEmail(context.Background(), " Test@Example.org ")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepositoryFindByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM users WHERE id`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email"}).
			AddRow(int64(7), "Test User", "test@example.org"))
	mock.ExpectQuery(`FROM users WHERE id`).
		WithArgs(int64(8)).
		WillReturnError(pgx.ErrNoRows)

	repo := NewRepositoryWithQuerier(mock)
	got, err := repo.FindByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)

	_, err = repo.FindByID(context.Background(), 8)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

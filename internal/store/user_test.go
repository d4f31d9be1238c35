package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cinequiz/apiserver/types"
	"github.com/lib/pq"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userRowColumns = []string{
	"id", "email", "username", "first_name", "last_name", "password_hash",
	"is_staff", "is_superuser", "is_active", "total_points", "games_played",
	"quizzes_completed", "rank", "badges", "date_joined", "last_login",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return db, mock
}

func aliceRow(joined time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(userRowColumns).AddRow(
		int64(7), "alice@example.com", "alice", "Alice", "Liddell", "hash",
		false, false, true, 120, 3, 1, "Intermediate", []byte(`["first-win"]`), joined, nil,
	)
}

func TestUserRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	joined := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT .* FROM users WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(aliceRow(joined))

	user, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, types.RankIntermediate, user.Rank)
	assert.Equal(t, []string{"first-win"}, user.Badges)
	assert.Equal(t, joined, user.DateJoined)
	assert.Nil(t, user.LastLogin)
	assert.True(t, user.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`(?s)SELECT .* FROM users WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_GetByEmailWrapsDriverErrors(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`(?s)SELECT .* FROM users WHERE email = \$1`).
		WithArgs("alice@example.com").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByEmail(context.Background(), "alice@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, "USER_GET_BY_EMAIL_FAILED", oopsErr.Code())
}

func TestUserRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	joined := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	lastLogin := joined.Add(time.Hour)

	rows := sqlmock.NewRows(userRowColumns).
		AddRow(int64(1), "a@example.com", "a", "", "", "h", true, true, true, 0, 0, 0, "Newbie", []byte(`[]`), joined, lastLogin).
		AddRow(int64(2), "b@example.com", "b", "", "", "h", false, false, true, 1000, 9, 2, "Legend", []byte(`["x","y"]`), joined, nil)
	mock.ExpectQuery(`(?s)SELECT .* FROM users ORDER BY id`).WillReturnRows(rows)

	users, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.True(t, users[0].IsSuperuser)
	require.NotNil(t, users[0].LastLogin)
	assert.Equal(t, lastLogin, *users[0].LastLogin)
	assert.Equal(t, []string{}, users[0].Badges)
	assert.Equal(t, types.RankLegend, users[1].Rank)
	assert.Equal(t, []string{"x", "y"}, users[1].Badges)
}

func TestUserRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`(?s)INSERT INTO users .* RETURNING id`).
		WithArgs(
			"alice@example.com", "alice", "", "", "hash",
			false, false, true, 0, 0, 0, "Newbie", []byte("[]"), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	user, err := repo.Create(context.Background(), types.User{
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "hash",
		IsActive:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), user.ID)
	assert.Equal(t, types.RankNewbie, user.Rank)
	assert.False(t, user.DateJoined.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateClassifiesConstraintViolations(t *testing.T) {
	tests := []struct {
		name        string
		pqErr       *pq.Error
		wantField   ConflictField
		wantInvalid bool
	}{
		{
			name:      "duplicate email",
			pqErr:     &pq.Error{Code: "23505", Constraint: "users_email_key"},
			wantField: ConflictEmail,
		},
		{
			name:      "duplicate username",
			pqErr:     &pq.Error{Code: "23505", Constraint: "users_username_key"},
			wantField: ConflictUsername,
		},
		{
			name:        "blank username",
			pqErr:       &pq.Error{Code: "23514", Constraint: "users_username_not_blank", Message: "check violated"},
			wantInvalid: true,
		},
		{
			name:        "null column",
			pqErr:       &pq.Error{Code: "23502", Message: "null value"},
			wantInvalid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewUserRepository(db)

			mock.ExpectQuery(`(?s)INSERT INTO users`).WillReturnError(tt.pqErr)

			_, err := repo.Create(context.Background(), types.User{Email: "a@example.com", Username: "a"})
			require.Error(t, err)

			if tt.wantInvalid {
				assert.ErrorIs(t, err, ErrInvalidRecord)
				return
			}
			var conflict *ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, tt.wantField, conflict.Field)
		})
	}
}

func TestUserRepository_CreateUnknownUniqueConstraint(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`(?s)INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_other_key"})

	_, err := repo.Create(context.Background(), types.User{Email: "a@example.com", Username: "a"})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ConflictUnknown, conflict.Field)
	assert.Contains(t, conflict.Error(), "users_other_key")
}

func TestUserRepository_TouchLastLogin(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE users SET last_login = \$1 WHERE id = \$2`).
		WithArgs(at, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET last_login = \$1 WHERE id = \$2`).
		WithArgs(at, int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.TouchLastLogin(context.Background(), 7, at))
	assert.ErrorIs(t, repo.TouchLastLogin(context.Background(), 8, at), ErrNotFound)
}

func TestUserRepository_UpdateProgress(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	joined := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .* FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(aliceRow(joined))
	mock.ExpectExec(`(?s)UPDATE users\s+SET total_points`).
		WithArgs(520, 4, 1, "Pro", []byte(`["first-win","streak"]`), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := repo.UpdateProgress(context.Background(), 7, func(u *types.User) error {
		u.GamesPlayed++
		u.AddBadges("streak", "first-win")
		u.AwardPoints(400)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 520, user.TotalPoints)
	assert.Equal(t, types.RankPro, user.Rank)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateProgressMutationErrorRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	mutateErr := errors.New("rejected")

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .* FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(aliceRow(time.Now()))
	mock.ExpectRollback()

	_, err := repo.UpdateProgress(context.Background(), 7, func(*types.User) error {
		return mutateErr
	})
	assert.ErrorIs(t, err, mutateErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateProgressMissingUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .* FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.UpdateProgress(context.Background(), 42, func(*types.User) error {
		t.Fatal("mutate must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

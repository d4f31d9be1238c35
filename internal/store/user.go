package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/cinequiz/apiserver/types"
	"github.com/samber/oops"
)

const userColumns = `id, email, username, first_name, last_name, password_hash,
		is_staff, is_superuser, is_active, total_points, games_played,
		quizzes_completed, rank, badges, date_joined, last_login`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user       types.User
		rank       string
		badgesJSON []byte
		lastLogin  sql.NullTime
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.IsActive,
		&user.TotalPoints,
		&user.GamesPlayed,
		&user.QuizzesCompleted,
		&rank,
		&badgesJSON,
		&user.DateJoined,
		&lastLogin,
	); err != nil {
		return types.User{}, err
	}

	user.Rank = types.Rank(rank)
	user.Badges = []string{}
	if len(badgesJSON) > 0 {
		if err := json.Unmarshal(badgesJSON, &user.Badges); err != nil {
			return types.User{}, err
		}
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("USER_LIST_FAILED").With("operation", "scan user").Wrap(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_LIST_FAILED").Wrap(err)
	}
	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, oops.Code("USER_GET_BY_ID_FAILED").With("id", id).Wrap(err)
	}
	return user, nil
}

// GetByEmail looks a user up by the already normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, oops.Code("USER_GET_BY_EMAIL_FAILED").Wrap(err)
	}
	return user, nil
}

// Create inserts a user in a single statement. Uniqueness of email and
// username is left to the database; violations come back as
// *ConflictError, NOT NULL and CHECK failures as ErrInvalidRecord.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	user.DateJoined = time.Now().UTC()
	user.RecomputeRank()
	if user.Badges == nil {
		user.Badges = []string{}
	}

	badgesJSON, err := json.Marshal(user.Badges)
	if err != nil {
		return types.User{}, oops.Code("USER_CREATE_FAILED").With("operation", "marshal badges").Wrap(err)
	}

	const query = `
		INSERT INTO users (email, username, first_name, last_name, password_hash,
			is_staff, is_superuser, is_active, total_points, games_played,
			quizzes_completed, rank, badges, date_joined)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.Username,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.IsStaff,
		user.IsSuperuser,
		user.IsActive,
		user.TotalPoints,
		user.GamesPlayed,
		user.QuizzesCompleted,
		string(user.Rank),
		badgesJSON,
		user.DateJoined,
	).Scan(&user.ID); err != nil {
		if classified := classifyError(err); isConstraintError(classified) {
			return types.User{}, classified
		}
		return types.User{}, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return user, nil
}

// TouchLastLogin records a successful login.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE users SET last_login = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return oops.Code("USER_TOUCH_LOGIN_FAILED").With("id", id).Wrap(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return oops.Code("USER_TOUCH_LOGIN_FAILED").With("id", id).Wrap(err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProgress loads the user with a row lock, lets mutate change it and
// writes back the progression columns in the same transaction, so
// concurrent point awards never overwrite each other.
func (r *UserRepository) UpdateProgress(ctx context.Context, id int64, mutate func(*types.User) error) (types.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.User{}, oops.Code("USER_PROGRESS_FAILED").With("operation", "begin").Wrap(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	user, err := scanUser(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, oops.Code("USER_PROGRESS_FAILED").With("operation", "lock user").With("id", id).Wrap(err)
	}

	if err := mutate(&user); err != nil {
		return types.User{}, err
	}

	badgesJSON, err := json.Marshal(user.Badges)
	if err != nil {
		return types.User{}, oops.Code("USER_PROGRESS_FAILED").With("operation", "marshal badges").Wrap(err)
	}

	const update = `
		UPDATE users
		SET total_points = $1,
			games_played = $2,
			quizzes_completed = $3,
			rank = $4,
			badges = $5
		WHERE id = $6`
	if _, err := tx.ExecContext(
		ctx,
		update,
		user.TotalPoints,
		user.GamesPlayed,
		user.QuizzesCompleted,
		string(user.Rank),
		badgesJSON,
		user.ID,
	); err != nil {
		if classified := classifyError(err); isConstraintError(classified) {
			return types.User{}, classified
		}
		return types.User{}, oops.Code("USER_PROGRESS_FAILED").With("operation", "update user").With("id", id).Wrap(err)
	}

	if err := tx.Commit(); err != nil {
		return types.User{}, oops.Code("USER_PROGRESS_FAILED").With("operation", "commit").Wrap(err)
	}
	return user, nil
}

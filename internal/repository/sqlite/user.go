package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores user accounts.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `u.id, u.email, u.username, u.first_name, u.last_name,
	u.password_hash, u.avatar, u.github_id, u.created_at, u.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// userDest returns scan destinations matching userColumns.
func userDest(u *model.User, githubID *sql.NullInt64) []any {
	return []any{
		&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.Avatar, githubID, &u.CreatedAt, &u.UpdatedAt,
	}
}

func setGitHubID(u *model.User, githubID sql.NullInt64) {
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
}

func scanUser(row rowScanner, extra ...any) (*model.User, error) {
	var u model.User
	var githubID sql.NullInt64
	if err := row.Scan(append(userDest(&u, &githubID), extra...)...); err != nil {
		return nil, err
	}
	setGitHubID(&u, githubID)
	return &u, nil
}

// Create inserts a new user and sets user.ID and the timestamps.
// A taken email or username is reported as a validation error on that field.
func (r *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := r.conn.ExecContext(ctx,
		`INSERT INTO users (email, username, first_name, last_name, password_hash,
		                    avatar, github_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Email,
		user.Username,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.Avatar,
		nullableInt64(user.GitHubID),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return uniqueUserError(err)
		}
		return fmt.Errorf("sqlite: creating user %q: %w", user.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	user.ID = id
	return nil
}

// Upsert inserts or refreshes a user keyed by GitHub ID. An existing row
// keeps its id, email and password; only the display fields are updated.
func (r *UserDB) Upsert(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return fmt.Errorf("sqlite: upserting user %q: github id is required", user.Username)
	}

	existing, err := r.GetByGitHubID(ctx, *user.GitHubID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	if existing == nil {
		return r.Create(ctx, user)
	}

	user.ID = existing.ID
	user.Email = existing.Email
	user.PasswordHash = existing.PasswordHash
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	if user.Avatar == "" {
		user.Avatar = existing.Avatar
	}

	_, err = r.conn.ExecContext(ctx,
		`UPDATE users SET first_name = ?, last_name = ?, avatar = ?, updated_at = ?
		 WHERE id = ?`,
		user.FirstName,
		user.LastName,
		user.Avatar,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}
	user.Username = existing.Username
	return nil
}

func (r *UserDB) GetByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(r.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetByEmail looks a user up by email, ignoring ASCII case.
func (r *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.email = ? COLLATE NOCASE`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

func (r *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	u, err := scanUser(r.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.github_id = ?`, githubID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", githubID)
		}
		return nil, fmt.Errorf("sqlite: getting user by github id %d: %w", githubID, err)
	}
	return u, nil
}

// List returns users ordered by id together with the total count.
// IsSubscribed is set from viewerID's subscriptions.
func (r *UserDB) List(ctx context.Context, viewerID int64, opts repository.ListOptions) ([]model.User, int, error) {
	var total int
	if err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting users: %w", err)
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+userColumns+`,
		        EXISTS (SELECT 1 FROM subscriptions s
		                WHERE s.user_id = ? AND s.author_id = u.id)
		 FROM users u
		 ORDER BY u.id
		 LIMIT ? OFFSET ?`,
		viewerID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, opts.Limit)
	for rows.Next() {
		var subscribed bool
		u, err := scanUser(rows, &subscribed)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		u.IsSubscribed = subscribed
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, total, nil
}

func (r *UserDB) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return r.updateColumn(ctx, id, "password_hash", hash)
}

// UpdateAvatar stores the avatar storage key. An empty key clears it.
func (r *UserDB) UpdateAvatar(ctx context.Context, id int64, avatar string) error {
	return r.updateColumn(ctx, id, "avatar", avatar)
}

// updateColumn sets one column. column is always a constant from this file.
func (r *UserDB) updateColumn(ctx context.Context, id int64, column string, value any) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating %s of user %d: %w", column, id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// uniqueUserError names the column that collided. SQLite reports it in the
// message as "UNIQUE constraint failed: users.<column>".
func uniqueUserError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		return apperror.ValidationFailed("email", "a user with this email already exists")
	case strings.Contains(msg, "users.username"):
		return apperror.ValidationFailed("username", "a user with this username already exists")
	default:
		return apperror.Conflict("user already exists")
	}
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

var _ repository.SubscriptionRepository = (*SubscriptionDB)(nil)

// SubscriptionDB stores follower → author pairs. The table's CHECK
// constraint rejects self-subscription even if a caller skips the service.
type SubscriptionDB struct {
	conn *sql.DB
}

func (r *SubscriptionDB) Add(ctx context.Context, userID, authorID int64) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, author_id) VALUES (?, ?)`,
		userID, authorID,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.Conflict("already subscribed to this user")
		case isCheckViolation(err):
			return apperror.ValidationFailed("author", "cannot subscribe to yourself")
		case isForeignKeyViolation(err):
			return apperror.NotFound("user", authorID)
		}
		return fmt.Errorf("sqlite: subscribing user %d to %d: %w", userID, authorID, err)
	}
	return nil
}

func (r *SubscriptionDB) Remove(ctx context.Context, userID, authorID int64) error {
	result, err := r.conn.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = ? AND author_id = ?`,
		userID, authorID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: unsubscribing user %d from %d: %w", userID, authorID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.Missing("not subscribed to this user")
	}
	return nil
}

func (r *SubscriptionDB) Exists(ctx context.Context, userID, authorID int64) (bool, error) {
	var exists bool
	err := r.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = ? AND author_id = ?)`,
		userID, authorID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking subscription: %w", err)
	}
	return exists, nil
}

// ListAuthors returns the authors userID follows, ordered by username, and
// the total number of subscriptions. IsSubscribed is true on every row.
func (r *SubscriptionDB) ListAuthors(ctx context.Context, userID int64, opts repository.ListOptions) ([]model.User, int, error) {
	var total int
	if err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE user_id = ?`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting subscriptions of user %d: %w", userID, err)
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+userColumns+`
		 FROM subscriptions s
		 JOIN users u ON u.id = s.author_id
		 WHERE s.user_id = ?
		 ORDER BY u.username
		 LIMIT ? OFFSET ?`,
		userID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing subscriptions of user %d: %w", userID, err)
	}
	defer rows.Close()

	authors := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning author row: %w", err)
		}
		u.IsSubscribed = true
		authors = append(authors, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating subscriptions: %w", err)
	}

	return authors, total, nil
}

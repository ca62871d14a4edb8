package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/repository"
)

var _ repository.ShortLinkRepository = (*ShortLinkDB)(nil)

type ShortLinkDB struct {
	conn *sql.DB
}

// maxCodeAttempts bounds retries when a freshly generated code collides
// with an existing one.
const maxCodeAttempts = 5

// GetOrCreate returns the code already assigned to recipeID, or stores a new
// one from newCode. If two requests race, the recipe_id UNIQUE constraint
// lets one insert win and the other re-reads the winner's code.
func (r *ShortLinkDB) GetOrCreate(ctx context.Context, recipeID int64, newCode func() string) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := r.codeFor(ctx, recipeID)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("sqlite: getting short link of recipe %d: %w", recipeID, err)
		}

		code = newCode()
		_, err = r.conn.ExecContext(ctx,
			`INSERT INTO short_links (code, recipe_id) VALUES (?, ?)`,
			code, recipeID,
		)
		if err == nil {
			return code, nil
		}
		if isForeignKeyViolation(err) {
			return "", apperror.NotFound("recipe", recipeID)
		}
		if !isUniqueViolation(err) {
			return "", fmt.Errorf("sqlite: creating short link of recipe %d: %w", recipeID, err)
		}
		// Either the code collided or another request linked the recipe
		// first. Loop: re-read, and generate a new code if still unlinked.
	}
	return "", fmt.Errorf("sqlite: creating short link of recipe %d: too many collisions", recipeID)
}

func (r *ShortLinkDB) codeFor(ctx context.Context, recipeID int64) (string, error) {
	var code string
	err := r.conn.QueryRowContext(ctx,
		`SELECT code FROM short_links WHERE recipe_id = ?`, recipeID,
	).Scan(&code)
	return code, err
}

// Resolve returns the recipe id a code points to.
func (r *ShortLinkDB) Resolve(ctx context.Context, code string) (int64, error) {
	var recipeID int64
	err := r.conn.QueryRowContext(ctx,
		`SELECT recipe_id FROM short_links WHERE code = ?`, code,
	).Scan(&recipeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperror.NotFound("short link", code)
		}
		return 0, fmt.Errorf("sqlite: resolving short link %q: %w", code, err)
	}
	return recipeID, nil
}

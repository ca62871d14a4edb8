package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

var _ repository.IngredientRepository = (*IngredientDB)(nil)

// IngredientDB reads and seeds the ingredient catalog.
//
// SQLite's LOWER() only folds ASCII, and catalog names are mostly not ASCII.
// name_lower is filled with strings.ToLower on insert so prefix search is
// case-insensitive for any script.
type IngredientDB struct {
	conn *sql.DB
}

// Search returns ingredients whose name starts with prefix, ignoring case,
// ordered by name. An empty prefix returns the whole catalog.
func (r *IngredientDB) Search(ctx context.Context, prefix string) ([]model.Ingredient, error) {
	pattern := escapeLike(strings.ToLower(prefix)) + "%"

	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, name, measurement_unit
		 FROM ingredients
		 WHERE name_lower LIKE ? ESCAPE '\'
		 ORDER BY name_lower, name, measurement_unit`,
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching ingredients: %w", err)
	}
	defer rows.Close()

	ingredients := []model.Ingredient{}
	for rows.Next() {
		var i model.Ingredient
		if err := rows.Scan(&i.ID, &i.Name, &i.MeasurementUnit); err != nil {
			return nil, fmt.Errorf("sqlite: scanning ingredient row: %w", err)
		}
		ingredients = append(ingredients, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating ingredients: %w", err)
	}

	return ingredients, nil
}

func (r *IngredientDB) GetByID(ctx context.Context, id int64) (*model.Ingredient, error) {
	var i model.Ingredient
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, name, measurement_unit FROM ingredients WHERE id = ?`, id,
	).Scan(&i.ID, &i.Name, &i.MeasurementUnit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("ingredient", id)
		}
		return nil, fmt.Errorf("sqlite: getting ingredient %d: %w", id, err)
	}
	return &i, nil
}

// MissingIDs returns, in input order, the ids that are not in the catalog.
func (r *IngredientDB) MissingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT id FROM ingredients WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking ingredient ids: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning ingredient id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating ingredient ids: %w", err)
	}

	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// CreateIfMissing inserts the ingredient unless its (name, unit) pair is
// already present, in which case ingredient.ID is set to the existing row.
func (r *IngredientDB) CreateIfMissing(ctx context.Context, ingredient *model.Ingredient) (bool, error) {
	res, err := r.conn.ExecContext(ctx,
		`INSERT INTO ingredients (name, name_lower, measurement_unit)
		 VALUES (?, ?, ?)
		 ON CONFLICT (name, measurement_unit) DO NOTHING`,
		ingredient.Name,
		strings.ToLower(ingredient.Name),
		ingredient.MeasurementUnit,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: inserting ingredient %q: %w", ingredient.Name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("sqlite: reading ingredient id: %w", err)
		}
		ingredient.ID = id
		return true, nil
	}

	err = r.conn.QueryRowContext(ctx,
		`SELECT id FROM ingredients WHERE name = ? AND measurement_unit = ?`,
		ingredient.Name, ingredient.MeasurementUnit,
	).Scan(&ingredient.ID)
	if err != nil {
		return false, fmt.Errorf("sqlite: looking up ingredient %q: %w", ingredient.Name, err)
	}
	return false, nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

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

var _ repository.RecipeRepository = (*RecipeDB)(nil)

// RecipeDB stores recipes and their ingredient links.
//
// A recipe and its recipe_ingredients rows are always written in one
// transaction, so a failed link insert leaves no half-written recipe behind.
type RecipeDB struct {
	conn *sql.DB
}

// recipeSelect reads a recipe with its author and the three per-viewer
// flags. It takes the viewer id three times: favorites, cart, subscription.
// Viewer 0 never matches a row, so anonymous readers get false everywhere.
const recipeSelect = `
	SELECT r.id, r.author_id, r.name, r.text, r.cooking_time, r.image, r.created_at,
	       EXISTS (SELECT 1 FROM favorites fv
	               WHERE fv.user_id = ? AND fv.recipe_id = r.id),
	       EXISTS (SELECT 1 FROM shopping_cart sc
	               WHERE sc.user_id = ? AND sc.recipe_id = r.id),
	       ` + userColumns + `,
	       EXISTS (SELECT 1 FROM subscriptions s
	               WHERE s.user_id = ? AND s.author_id = u.id)
	FROM recipes r
	JOIN users u ON u.id = r.author_id`

func scanRecipe(row rowScanner) (*model.Recipe, error) {
	var r model.Recipe
	var author model.User
	var githubID sql.NullInt64

	dest := []any{
		&r.ID, &r.AuthorID, &r.Name, &r.Text, &r.CookingTime, &r.Image, &r.CreatedAt,
		&r.IsFavorited, &r.IsInShoppingCart,
	}
	dest = append(dest, userDest(&author, &githubID)...)
	dest = append(dest, &author.IsSubscribed)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	setGitHubID(&author, githubID)
	r.Author = &author
	return &r, nil
}

// Create inserts the recipe and bulk-inserts its ingredient links.
// recipe.Ingredients carries (ID, Amount) pairs; names and units are
// not needed on write.
func (r *RecipeDB) Create(ctx context.Context, recipe *model.Recipe) error {
	recipe.CreatedAt = time.Now().UTC()

	return withTx(ctx, r.conn, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO recipes (author_id, name, text, cooking_time, image, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			recipe.AuthorID,
			recipe.Name,
			recipe.Text,
			recipe.CookingTime,
			recipe.Image,
			recipe.CreatedAt,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.NotFound("user", recipe.AuthorID)
			}
			if isCheckViolation(err) {
				return apperror.ValidationFailed("cooking_time", "cooking_time must be between 1 and 32767")
			}
			return fmt.Errorf("sqlite: creating recipe: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: reading recipe id: %w", err)
		}
		recipe.ID = id

		return insertRecipeIngredients(ctx, tx, recipe.ID, recipe.Ingredients)
	})
}

// Update overwrites name, text, cooking time and image, then replaces the
// full ingredient set: every existing link is deleted and the new list is
// inserted. There is no diffing.
func (r *RecipeDB) Update(ctx context.Context, recipe *model.Recipe) error {
	return withTx(ctx, r.conn, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE recipes SET name = ?, text = ?, cooking_time = ?, image = ?
			 WHERE id = ?`,
			recipe.Name,
			recipe.Text,
			recipe.CookingTime,
			recipe.Image,
			recipe.ID,
		)
		if err != nil {
			if isCheckViolation(err) {
				return apperror.ValidationFailed("cooking_time", "cooking_time must be between 1 and 32767")
			}
			return fmt.Errorf("sqlite: updating recipe %d: %w", recipe.ID, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("recipe", recipe.ID)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM recipe_ingredients WHERE recipe_id = ?`, recipe.ID,
		); err != nil {
			return fmt.Errorf("sqlite: clearing ingredients of recipe %d: %w", recipe.ID, err)
		}

		return insertRecipeIngredients(ctx, tx, recipe.ID, recipe.Ingredients)
	})
}

// insertRecipeIngredients writes all links with a single multi-row INSERT.
func insertRecipeIngredients(ctx context.Context, tx *sql.Tx, recipeID int64, items []model.RecipeIngredient) error {
	if len(items) == 0 {
		return apperror.ValidationFailed("ingredients", "at least one ingredient is required")
	}

	values := make([]string, len(items))
	args := make([]any, 0, len(items)*3)
	for i, item := range items {
		values[i] = "(?, ?, ?)"
		args = append(args, recipeID, item.ID, item.Amount)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO recipe_ingredients (recipe_id, ingredient_id, amount) VALUES `+
			strings.Join(values, ", "),
		args...,
	)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return apperror.ValidationFailed("ingredients", "ingredient does not exist")
		case isUniqueViolation(err):
			return apperror.ValidationFailed("ingredients", "ingredients must not repeat")
		case isCheckViolation(err):
			return apperror.ValidationFailed("amount", "amount must be between 1 and 32000")
		}
		return fmt.Errorf("sqlite: inserting ingredients of recipe %d: %w", recipeID, err)
	}
	return nil
}

func (r *RecipeDB) Delete(ctx context.Context, id int64) error {
	result, err := r.conn.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting recipe %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("recipe", id)
	}
	return nil
}

// GetByID returns the full recipe as seen by viewerID.
func (r *RecipeDB) GetByID(ctx context.Context, id, viewerID int64) (*model.Recipe, error) {
	recipe, err := scanRecipe(r.conn.QueryRowContext(ctx,
		recipeSelect+` WHERE r.id = ?`,
		viewerID, viewerID, viewerID, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("recipe", id)
		}
		return nil, fmt.Errorf("sqlite: getting recipe %d: %w", id, err)
	}

	recipes := []model.Recipe{*recipe}
	if err := r.loadIngredients(ctx, recipes); err != nil {
		return nil, err
	}
	return &recipes[0], nil
}

// List returns one page of recipes, newest first, and the total number of
// recipes matching the filter.
func (r *RecipeDB) List(ctx context.Context, f repository.RecipeFilter) ([]model.Recipe, int, error) {
	var where []string
	var args []any

	if f.AuthorID != 0 {
		where = append(where, `r.author_id = ?`)
		args = append(args, f.AuthorID)
	}
	if f.FavoritedBy != 0 {
		where = append(where, `EXISTS (SELECT 1 FROM favorites ff WHERE ff.user_id = ? AND ff.recipe_id = r.id)`)
		args = append(args, f.FavoritedBy)
	}
	if f.InCartOf != 0 {
		where = append(where, `EXISTS (SELECT 1 FROM shopping_cart cf WHERE cf.user_id = ? AND cf.recipe_id = r.id)`)
		args = append(args, f.InCartOf)
	}
	if f.NamePrefix != "" {
		where = append(where, `r.name LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(f.NamePrefix)+"%")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recipes r`+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting recipes: %w", err)
	}

	queryArgs := append([]any{f.ViewerID, f.ViewerID, f.ViewerID}, args...)
	queryArgs = append(queryArgs, f.Limit, f.Offset)

	recipes, err := r.queryRecipes(ctx,
		recipeSelect+clause+` ORDER BY r.created_at DESC, r.id DESC LIMIT ? OFFSET ?`,
		queryArgs...,
	)
	if err != nil {
		return nil, 0, err
	}

	if err := r.loadIngredients(ctx, recipes); err != nil {
		return nil, 0, err
	}
	return recipes, total, nil
}

// queryRecipes drains and closes the result set before returning, so the
// caller can issue the next query on a single-connection pool.
func (r *RecipeDB) queryRecipes(ctx context.Context, query string, args ...any) ([]model.Recipe, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing recipes: %w", err)
	}
	defer rows.Close()

	recipes := []model.Recipe{}
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning recipe row: %w", err)
		}
		recipes = append(recipes, *recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating recipes: %w", err)
	}
	return recipes, nil
}

// loadIngredients fills Ingredients on every recipe with one query, keeping
// the order in which the links were written.
func (r *RecipeDB) loadIngredients(ctx context.Context, recipes []model.Recipe) error {
	if len(recipes) == 0 {
		return nil
	}

	ids := make([]int64, len(recipes))
	index := make(map[int64]int, len(recipes))
	for i := range recipes {
		ids[i] = recipes[i].ID
		index[recipes[i].ID] = i
		recipes[i].Ingredients = []model.RecipeIngredient{}
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT ri.recipe_id, i.id, i.name, i.measurement_unit, ri.amount
		 FROM recipe_ingredients ri
		 JOIN ingredients i ON i.id = ri.ingredient_id
		 WHERE ri.recipe_id IN (`+placeholders(len(ids))+`)
		 ORDER BY ri.id`,
		int64Args(ids)...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading recipe ingredients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var recipeID int64
		var ing model.RecipeIngredient
		if err := rows.Scan(&recipeID, &ing.ID, &ing.Name, &ing.MeasurementUnit, &ing.Amount); err != nil {
			return fmt.Errorf("sqlite: scanning recipe ingredient: %w", err)
		}
		i := index[recipeID]
		recipes[i].Ingredients = append(recipes[i].Ingredients, ing)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating recipe ingredients: %w", err)
	}
	return nil
}

// ListShort returns the author's newest recipes in compact form.
// limit <= 0 returns all of them.
func (r *RecipeDB) ListShort(ctx context.Context, authorID int64, limit int) ([]model.RecipeShort, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, name, image, cooking_time
		 FROM recipes
		 WHERE author_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		authorID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing recipes of user %d: %w", authorID, err)
	}
	defer rows.Close()

	recipes := []model.RecipeShort{}
	for rows.Next() {
		var s model.RecipeShort
		if err := rows.Scan(&s.ID, &s.Name, &s.Image, &s.CookingTime); err != nil {
			return nil, fmt.Errorf("sqlite: scanning recipe row: %w", err)
		}
		recipes = append(recipes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating recipes: %w", err)
	}
	return recipes, nil
}

func (r *RecipeDB) CountByAuthor(ctx context.Context, authorID int64) (int, error) {
	var n int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recipes WHERE author_id = ?`, authorID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting recipes of user %d: %w", authorID, err)
	}
	return n, nil
}

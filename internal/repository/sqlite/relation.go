package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

var (
	_ repository.RelationRepository     = (*RelationDB)(nil)
	_ repository.ShoppingCartRepository = (*CartDB)(nil)
)

// RelationDB is a (user_id, recipe_id) membership table. Favorites and the
// shopping cart share this code and differ only in table name and messages.
//
// The pair is the table's primary key, so the database decides whether an
// Add wins: a duplicate insert, including the loser of two concurrent
// inserts, fails with a constraint error and becomes a Conflict.
type RelationDB struct {
	conn       *sql.DB
	table      string
	existsMsg  string
	missingMsg string
}

func (r *RelationDB) Add(ctx context.Context, userID, recipeID int64) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO `+r.table+` (user_id, recipe_id) VALUES (?, ?)`,
		userID, recipeID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(r.existsMsg)
		}
		if isForeignKeyViolation(err) {
			return apperror.NotFound("recipe", recipeID)
		}
		return fmt.Errorf("sqlite: adding recipe %d to %s of user %d: %w", recipeID, r.table, userID, err)
	}
	return nil
}

func (r *RelationDB) Remove(ctx context.Context, userID, recipeID int64) error {
	result, err := r.conn.ExecContext(ctx,
		`DELETE FROM `+r.table+` WHERE user_id = ? AND recipe_id = ?`,
		userID, recipeID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing recipe %d from %s of user %d: %w", recipeID, r.table, userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.Missing(r.missingMsg)
	}
	return nil
}

// CartDB is the shopping cart relation plus the shopping-list aggregation.
type CartDB struct {
	*RelationDB
}

// Aggregate sums the amount of every ingredient across all recipes in the
// user's cart. Ingredients are grouped by their natural key (name, unit),
// so the same ingredient used by several recipes yields one line.
func (c *CartDB) Aggregate(ctx context.Context, userID int64) ([]model.ShoppingListItem, error) {
	rows, err := c.conn.QueryContext(ctx,
		`SELECT i.name, i.measurement_unit, SUM(ri.amount)
		 FROM shopping_cart sc
		 JOIN recipe_ingredients ri ON ri.recipe_id = sc.recipe_id
		 JOIN ingredients i ON i.id = ri.ingredient_id
		 WHERE sc.user_id = ?
		 GROUP BY i.name, i.measurement_unit
		 ORDER BY i.name, i.measurement_unit`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating shopping cart of user %d: %w", userID, err)
	}
	defer rows.Close()

	items := []model.ShoppingListItem{}
	for rows.Next() {
		var item model.ShoppingListItem
		if err := rows.Scan(&item.Name, &item.MeasurementUnit, &item.Amount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning shopping list row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating shopping list: %w", err)
	}
	return items, nil
}

// Package repository declares the persistence contracts used by the service
// layer. The sqlite subpackage is the only production implementation; the
// service tests use in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/foodgram/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// RecipeFilter narrows a recipe listing. Zero values mean "no filter".
// ViewerID is the requester and drives the per-user flags; 0 is anonymous.
type RecipeFilter struct {
	ViewerID    int64
	AuthorID    int64
	FavoritedBy int64
	InCartOf    int64
	NamePrefix  string
	ListOptions
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	Upsert(ctx context.Context, user *model.User) error
	List(ctx context.Context, viewerID int64, opts ListOptions) ([]model.User, int, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	UpdateAvatar(ctx context.Context, id int64, avatar string) error
}

type IngredientRepository interface {
	Search(ctx context.Context, prefix string) ([]model.Ingredient, error)
	GetByID(ctx context.Context, id int64) (*model.Ingredient, error)
	// MissingIDs returns the ids from the input that have no catalog row.
	MissingIDs(ctx context.Context, ids []int64) ([]int64, error)
	// CreateIfMissing inserts the ingredient unless (name, unit) already
	// exists. It reports whether a row was inserted.
	CreateIfMissing(ctx context.Context, ingredient *model.Ingredient) (bool, error)
}

type RecipeRepository interface {
	Create(ctx context.Context, recipe *model.Recipe) error
	// Update overwrites the recipe row and replaces the whole ingredient set.
	Update(ctx context.Context, recipe *model.Recipe) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id, viewerID int64) (*model.Recipe, error)
	List(ctx context.Context, filter RecipeFilter) ([]model.Recipe, int, error)
	ListShort(ctx context.Context, authorID int64, limit int) ([]model.RecipeShort, error)
	CountByAuthor(ctx context.Context, authorID int64) (int, error)
}

// RelationRepository is a user-to-recipe membership table (favorites,
// shopping cart). Add fails with apperror.ErrConflict when the pair exists;
// Remove fails with apperror.ErrNotFound when it does not.
type RelationRepository interface {
	Add(ctx context.Context, userID, recipeID int64) error
	Remove(ctx context.Context, userID, recipeID int64) error
}

type ShoppingCartRepository interface {
	RelationRepository
	// Aggregate sums ingredient amounts across every recipe in the user's
	// cart, grouped by (name, unit) and sorted by name.
	Aggregate(ctx context.Context, userID int64) ([]model.ShoppingListItem, error)
}

type SubscriptionRepository interface {
	Add(ctx context.Context, userID, authorID int64) error
	Remove(ctx context.Context, userID, authorID int64) error
	Exists(ctx context.Context, userID, authorID int64) (bool, error)
	ListAuthors(ctx context.Context, userID int64, opts ListOptions) ([]model.User, int, error)
}

type ShortLinkRepository interface {
	// GetOrCreate returns the recipe's existing code or stores the one
	// produced by newCode.
	GetOrCreate(ctx context.Context, recipeID int64, newCode func() string) (string, error)
	Resolve(ctx context.Context, code string) (int64, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/imagedata"
	"github.com/sakif/foodgram/internal/metrics"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
	"github.com/sakif/foodgram/internal/storage"
	"github.com/sakif/foodgram/internal/validation"
)

// recipeImagePrefix is the storage folder for recipe pictures.
const recipeImagePrefix = "recipes"

// RecipeInput is the body of a recipe create request.
type RecipeInput struct {
	Name        string                   `json:"name"         validate:"required,max=256"`
	Text        string                   `json:"text"         validate:"required"`
	CookingTime int                      `json:"cooking_time" validate:"gte=1,lte=32767"`
	Image       string                   `json:"image"        validate:"required"`
	Ingredients []model.IngredientAmount `json:"ingredients"  validate:"required,min=1,dive"`
}

// RecipePatch is the body of a recipe update. Nil fields keep their stored
// value; the ingredient list is always replaced and therefore required.
type RecipePatch struct {
	Name        *string                  `json:"name"         validate:"omitnil,min=1,max=256"`
	Text        *string                  `json:"text"         validate:"omitnil,min=1"`
	CookingTime *int                     `json:"cooking_time" validate:"omitnil,gte=1,lte=32767"`
	Image       *string                  `json:"image"        validate:"omitnil,min=1"`
	Ingredients []model.IngredientAmount `json:"ingredients"  validate:"required,min=1,dive"`
}

// RecipeQuery selects a page of the recipe feed.
type RecipeQuery struct {
	Page      int
	Limit     int
	AuthorID  int64
	Favorited bool // only honoured for signed-in viewers
	InCart    bool // only honoured for signed-in viewers
	Name      string
}

// RecipeService manages recipes, favorites and the shopping cart.
type RecipeService struct {
	recipes     repository.RecipeRepository
	ingredients repository.IngredientRepository
	favorites   repository.RelationRepository
	cart        repository.ShoppingCartRepository
	images      storage.ImageStore
	logger      *slog.Logger
}

func NewRecipeService(
	recipes repository.RecipeRepository,
	ingredients repository.IngredientRepository,
	favorites repository.RelationRepository,
	cart repository.ShoppingCartRepository,
	images storage.ImageStore,
	logger *slog.Logger,
) *RecipeService {
	return &RecipeService{
		recipes:     recipes,
		ingredients: ingredients,
		favorites:   favorites,
		cart:        cart,
		images:      images,
		logger:      logger,
	}
}

// Create validates in, stores the image and inserts the recipe with its
// ingredient links in one transaction. Nothing is stored when any check
// fails.
func (s *RecipeService) Create(ctx context.Context, authorID int64, in RecipeInput) (*model.Recipe, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	if err := s.checkIngredients(ctx, in.Ingredients); err != nil {
		return nil, err
	}

	img, err := imagedata.Decode("image", in.Image)
	if err != nil {
		return nil, err
	}
	key, err := s.images.Save(ctx, recipeImagePrefix, img)
	if err != nil {
		return nil, fmt.Errorf("saving recipe image: %w", err)
	}

	recipe := &model.Recipe{
		AuthorID:    authorID,
		Name:        in.Name,
		Text:        in.Text,
		CookingTime: in.CookingTime,
		Image:       key,
		Ingredients: toRecipeIngredients(in.Ingredients),
	}
	if err := s.recipes.Create(ctx, recipe); err != nil {
		s.discardImage(ctx, key)
		return nil, err
	}

	metrics.RecipesWritten.WithLabelValues("create").Inc()
	s.logger.Info("recipe created",
		slog.Int64("id", recipe.ID),
		slog.Int64("author", authorID),
		slog.Int("ingredients", len(recipe.Ingredients)),
	)

	return s.recipes.GetByID(ctx, recipe.ID, authorID)
}

// Update applies patch to a recipe owned by userID. The ingredient set is
// replaced wholesale; a new image replaces and deletes the old one.
func (s *RecipeService) Update(ctx context.Context, userID, recipeID int64, patch RecipePatch) (*model.Recipe, error) {
	recipe, err := s.ownedRecipe(ctx, userID, recipeID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if err := validation.Struct(&patch); err != nil {
		return nil, err
	}
	if err := s.checkIngredients(ctx, patch.Ingredients); err != nil {
		return nil, err
	}

	if patch.Name != nil {
		recipe.Name = *patch.Name
	}
	if patch.Text != nil {
		recipe.Text = *patch.Text
	}
	if patch.CookingTime != nil {
		recipe.CookingTime = *patch.CookingTime
	}
	recipe.Ingredients = toRecipeIngredients(patch.Ingredients)

	oldImage := recipe.Image
	if patch.Image != nil {
		img, err := imagedata.Decode("image", *patch.Image)
		if err != nil {
			return nil, err
		}
		if recipe.Image, err = s.images.Save(ctx, recipeImagePrefix, img); err != nil {
			return nil, fmt.Errorf("saving recipe image: %w", err)
		}
	}

	if err := s.recipes.Update(ctx, recipe); err != nil {
		if recipe.Image != oldImage {
			s.discardImage(ctx, recipe.Image)
		}
		return nil, err
	}
	if recipe.Image != oldImage {
		s.discardImage(ctx, oldImage)
	}

	metrics.RecipesWritten.WithLabelValues("update").Inc()
	s.logger.Info("recipe updated", slog.Int64("id", recipeID))

	return s.recipes.GetByID(ctx, recipeID, userID)
}

// Delete removes a recipe owned by userID together with its image. Links
// to favorites, carts and short links go with it through cascades.
func (s *RecipeService) Delete(ctx context.Context, userID, recipeID int64) error {
	recipe, err := s.ownedRecipe(ctx, userID, recipeID)
	if err != nil {
		return err
	}

	if err := s.recipes.Delete(ctx, recipeID); err != nil {
		return err
	}
	s.discardImage(ctx, recipe.Image)

	metrics.RecipesWritten.WithLabelValues("delete").Inc()
	s.logger.Info("recipe deleted", slog.Int64("id", recipeID))
	return nil
}

// Get returns a recipe with flags computed for viewerID (0 = anonymous).
func (s *RecipeService) Get(ctx context.Context, recipeID, viewerID int64) (*model.Recipe, error) {
	return s.recipes.GetByID(ctx, recipeID, viewerID)
}

// List returns one page of recipes, newest first.
func (s *RecipeService) List(ctx context.Context, viewerID int64, q RecipeQuery) (*model.Page[model.Recipe], error) {
	filter := repository.RecipeFilter{
		ViewerID:    viewerID,
		AuthorID:    q.AuthorID,
		NamePrefix:  strings.TrimSpace(q.Name),
		ListOptions: pageOptions(q.Page, q.Limit),
	}
	if viewerID > 0 {
		if q.Favorited {
			filter.FavoritedBy = viewerID
		}
		if q.InCart {
			filter.InCartOf = viewerID
		}
	}

	recipes, total, err := s.recipes.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing recipes: %w", err)
	}
	return &model.Page[model.Recipe]{Items: recipes, Count: total}, nil
}

// AddFavorite marks a recipe as a favorite of userID.
func (s *RecipeService) AddFavorite(ctx context.Context, userID, recipeID int64) (*model.RecipeShort, error) {
	return s.addRelation(ctx, s.favorites, userID, recipeID)
}

func (s *RecipeService) RemoveFavorite(ctx context.Context, userID, recipeID int64) error {
	return s.removeRelation(ctx, s.favorites, userID, recipeID)
}

// AddToCart puts a recipe into userID's shopping cart.
func (s *RecipeService) AddToCart(ctx context.Context, userID, recipeID int64) (*model.RecipeShort, error) {
	return s.addRelation(ctx, s.cart, userID, recipeID)
}

func (s *RecipeService) RemoveFromCart(ctx context.Context, userID, recipeID int64) error {
	return s.removeRelation(ctx, s.cart, userID, recipeID)
}

// ShoppingList renders the aggregated ingredients of every recipe in the
// user's cart, one "<name> - <amount> <unit>" line per ingredient, sorted
// by name. An empty cart is a validation error.
func (s *RecipeService) ShoppingList(ctx context.Context, userID int64) (string, error) {
	items, err := s.cart.Aggregate(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("aggregating shopping cart: %w", err)
	}
	if len(items) == 0 {
		return "", apperror.ValidationFailed("shopping_cart", "shopping cart is empty")
	}

	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "%s - %d %s\n", item.Name, item.Amount, item.MeasurementUnit)
	}

	metrics.ShoppingListsDownloaded.Inc()
	return b.String(), nil
}

func (s *RecipeService) addRelation(ctx context.Context, rel repository.RelationRepository, userID, recipeID int64) (*model.RecipeShort, error) {
	recipe, err := s.recipes.GetByID(ctx, recipeID, userID)
	if err != nil {
		return nil, err
	}
	if err := rel.Add(ctx, userID, recipeID); err != nil {
		return nil, err
	}
	short := recipe.Short()
	return &short, nil
}

func (s *RecipeService) removeRelation(ctx context.Context, rel repository.RelationRepository, userID, recipeID int64) error {
	if _, err := s.recipes.GetByID(ctx, recipeID, userID); err != nil {
		return err
	}
	return rel.Remove(ctx, userID, recipeID)
}

// ownedRecipe loads a recipe and checks that userID wrote it.
func (s *RecipeService) ownedRecipe(ctx context.Context, userID, recipeID int64) (*model.Recipe, error) {
	recipe, err := s.recipes.GetByID(ctx, recipeID, userID)
	if err != nil {
		return nil, err
	}
	if recipe.AuthorID != userID {
		return nil, apperror.Forbidden("only the author can change this recipe")
	}
	return recipe, nil
}

// checkIngredients rejects repeated ids and ids missing from the catalog.
func (s *RecipeService) checkIngredients(ctx context.Context, items []model.IngredientAmount) error {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			return apperror.ValidationFailed("ingredients", "ingredients must not repeat")
		}
		seen[item.ID] = struct{}{}
		ids = append(ids, item.ID)
	}

	missing, err := s.ingredients.MissingIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("checking ingredients: %w", err)
	}
	if len(missing) > 0 {
		return apperror.ValidationFailed("ingredients",
			fmt.Sprintf("ingredient with id %d does not exist", missing[0]))
	}
	return nil
}

// discardImage deletes an image that is no longer referenced. Failures are
// only logged.
func (s *RecipeService) discardImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.images.Delete(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("failed to delete image",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func toRecipeIngredients(items []model.IngredientAmount) []model.RecipeIngredient {
	out := make([]model.RecipeIngredient, len(items))
	for i, item := range items {
		out[i] = model.RecipeIngredient{ID: item.ID, Amount: item.Amount}
	}
	return out
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"

	"github.com/sakif/foodgram/internal/metrics"
	"github.com/sakif/foodgram/internal/repository"
)

// shortCodeLength is the number of hex characters in a short link code.
const shortCodeLength = 10

// ShortLinkService hands out one stable short code per recipe and resolves
// codes back to recipe ids.
//
// Resolutions are cached in a fixed-size LRU. A code never changes its
// recipe, so entries only go stale when the recipe is deleted, and then the
// redirect target answers 404 on its own.
type ShortLinkService struct {
	links   repository.ShortLinkRepository
	recipes repository.RecipeRepository
	cache   *lru.Cache
	logger  *slog.Logger
}

func NewShortLinkService(
	links repository.ShortLinkRepository,
	recipes repository.RecipeRepository,
	cacheSize int,
	logger *slog.Logger,
) (*ShortLinkService, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating short link cache: %w", err)
	}
	return &ShortLinkService{
		links:   links,
		recipes: recipes,
		cache:   cache,
		logger:  logger,
	}, nil
}

// Code returns the short code of a recipe, creating it on first use.
func (s *ShortLinkService) Code(ctx context.Context, recipeID int64) (string, error) {
	if _, err := s.recipes.GetByID(ctx, recipeID, 0); err != nil {
		return "", err
	}

	code, err := s.links.GetOrCreate(ctx, recipeID, newShortCode)
	if err != nil {
		return "", err
	}
	s.cache.Add(code, recipeID)
	return code, nil
}

// Resolve returns the recipe id behind code.
func (s *ShortLinkService) Resolve(ctx context.Context, code string) (int64, error) {
	if v, ok := s.cache.Get(code); ok {
		metrics.ShortLinkCacheLookups.WithLabelValues("hit").Inc()
		return v.(int64), nil
	}
	metrics.ShortLinkCacheLookups.WithLabelValues("miss").Inc()

	recipeID, err := s.links.Resolve(ctx, code)
	if err != nil {
		return 0, err
	}
	s.cache.Add(code, recipeID)
	return recipeID, nil
}

func newShortCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:shortCodeLength]
}

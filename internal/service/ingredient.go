package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
	"github.com/sakif/foodgram/internal/validation"
)

// IngredientInput is one catalog entry of an import file.
type IngredientInput struct {
	Name            string `json:"name"             validate:"required,max=128"`
	MeasurementUnit string `json:"measurement_unit" validate:"required,max=64"`
}

// ImportResult counts what an import did.
type ImportResult struct {
	Created int
	Skipped int
}

// IngredientService serves the read-only ingredient catalog and loads it
// from import files.
type IngredientService struct {
	repo   repository.IngredientRepository
	logger *slog.Logger
}

func NewIngredientService(repo repository.IngredientRepository, logger *slog.Logger) *IngredientService {
	return &IngredientService{repo: repo, logger: logger}
}

// Search returns the ingredients whose name starts with prefix, ignoring
// case. An empty prefix returns the whole catalog.
func (s *IngredientService) Search(ctx context.Context, prefix string) ([]model.Ingredient, error) {
	ingredients, err := s.repo.Search(ctx, strings.TrimSpace(prefix))
	if err != nil {
		return nil, fmt.Errorf("searching ingredients: %w", err)
	}
	return ingredients, nil
}

func (s *IngredientService) Get(ctx context.Context, id int64) (*model.Ingredient, error) {
	return s.repo.GetByID(ctx, id)
}

// Import adds every entry whose (name, unit) pair is not in the catalog yet.
// Existing pairs are skipped, so running the same file twice is harmless.
// The first invalid entry aborts the import; entries before it stay.
func (s *IngredientService) Import(ctx context.Context, items []IngredientInput) (ImportResult, error) {
	var res ImportResult

	for i, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		item.MeasurementUnit = strings.TrimSpace(item.MeasurementUnit)
		if err := validation.Struct(&item); err != nil {
			return res, fmt.Errorf("entry %d: %w", i, err)
		}

		created, err := s.repo.CreateIfMissing(ctx, &model.Ingredient{
			Name:            item.Name,
			MeasurementUnit: item.MeasurementUnit,
		})
		if err != nil {
			return res, fmt.Errorf("importing %q: %w", item.Name, err)
		}
		if created {
			res.Created++
		} else {
			res.Skipped++
		}
	}

	s.logger.Info("ingredients imported",
		slog.Int("created", res.Created),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}

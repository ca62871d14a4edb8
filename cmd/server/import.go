package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	sqliteRepo "github.com/sakif/foodgram/internal/repository/sqlite"
	"github.com/sakif/foodgram/internal/service"
)

var importCmd = &cobra.Command{
	Use:   "import-ingredients <file.json>",
	Short: "Load the ingredient catalog from a JSON file",
	Long: `Reads a JSON array of {"name": "...", "measurement_unit": "..."} objects and
adds every ingredient that is not already in the catalog. Running it twice
is harmless.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		var items []service.IngredientInput
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}

		db, err := sqliteRepo.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		ingredients := service.NewIngredientService(db.Ingredients(), logger)
		result, err := ingredients.Import(cmd.Context(), items)
		if err != nil {
			return err
		}

		logger.Info("ingredients imported",
			slog.String("file", args[0]),
			slog.Int("created", result.Created),
			slog.Int("skipped", result.Skipped),
		)
		return nil
	},
}

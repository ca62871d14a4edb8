// Command server runs the foodgram API and its maintenance tasks.
//
//	server serve [--config config.yaml]
//	server import-ingredients ingredients.json [--config config.yaml]
//
// All settings come from internal/config; see config.example.yaml.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/foodgram/internal/config"
	"github.com/sakif/foodgram/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Foodgram recipe API",
	Long: `Foodgram is a recipe-sharing API: users publish recipes, follow authors,
keep favorites and a shopping cart, and download an aggregated shopping list.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default: $CONFIG_PATH or ./config.yaml)")
	rootCmd.AddCommand(serveCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config, installs the logger and makes sure the database
// directory exists.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if cfg.Database.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating database directory %s: %w", dbDir, err)
		}
	}
	return cfg, logger, nil
}

// newLogger builds a text logger for development and a JSON logger for
// everything that ships logs somewhere.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newImageStore(ctx context.Context, cfg config.MediaConfig) (storage.ImageStore, error) {
	switch cfg.Backend {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			Bucket:       cfg.S3.Bucket,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			PublicURL:    cfg.S3.PublicURL,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
	default:
		return storage.NewLocalStore(cfg.Root, cfg.URL)
	}
}

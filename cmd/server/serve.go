package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/foodgram/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		images, err := newImageStore(cmd.Context(), cfg.Media)
		if err != nil {
			return fmt.Errorf("creating image store: %w", err)
		}
		logger.Info("image store ready", slog.String("backend", cfg.Media.Backend))

		srv, err := server.New(cfg, images, logger)
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}

		// Start blocks until SIGINT or SIGTERM.
		return srv.Start()
	},
}

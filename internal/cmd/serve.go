package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nulpointcorp/model-resolver/internal/app"
	"github.com/nulpointcorp/model-resolver/internal/config"
)

func newServeCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  `Start the HTTP API on PORT. This is the default when no command is given.`,
		Example: `
# Serve with Ollama as the default provider
OLLAMA_BASE_URL=http://localhost:11434 resolver serve
  `,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), version)
		},
	}
}

func runServe(ctx context.Context, version string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// All subsystems share this instance.
	logger := buildLogger(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger, version)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

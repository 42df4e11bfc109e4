// Package cmd implements the resolver command line.
package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nulpointcorp/model-resolver/internal/config"
	"github.com/nulpointcorp/model-resolver/internal/resolver"
)

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "resolver",
		Short: "Resolve model names and providers into callable models",
		Long: `resolver maps (model, provider) pairs and named tasks onto clients for
OpenAI, Ollama, Anthropic, Groq, Google, OpenRouter, Fireworks, DeepInfra and
Vertex AI. Configuration comes from the environment, a .env file or config.yaml.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), version)
		},
	}

	root.AddCommand(
		newServeCmd(version),
		newDefaultsCmd(),
		newResolveCmd(),
		newProvidersCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute(version string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(version).ExecuteContext(ctx); err != nil {
		slog.Error("resolver failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

// loadResolver loads configuration and builds a resolver without starting
// any server. Logs go to stderr so command output stays parseable.
func loadResolver(stderr io.Writer) (*config.Config, *resolver.Resolver, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := buildLogger(cfg.LogLevel, stderr)

	reg := resolver.BuildRegistry(cfg, log)
	if cfg.StrictProviders {
		if err := reg.Err(); err != nil {
			return nil, nil, err
		}
	}
	return cfg, resolver.New(reg, cfg, resolver.WithLogger(log)), nil
}

// buildLogger constructs a JSON slog.Logger for the given level string.
// Unknown level strings default to INFO.
func buildLogger(level string, w io.Writer) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     l,
		AddSource: l == slog.LevelDebug, // file:line only in debug mode
	}))
}

package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nulpointcorp/model-resolver/internal/config"
	"github.com/nulpointcorp/model-resolver/internal/providers"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:            18080,
		LogLevel:        "info",
		ProviderTimeout: time.Second,
		DefaultProvider: "ollama",
		Tasks: config.TaskDefaults{
			Extract: config.ModelRef{Model: "llama3", Provider: "ollama"},
		},
		Vertex: config.VertexConfig{Project: "p", Location: "global", KeyFile: "/nonexistent/key.json"},
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNew_NilContext(t *testing.T) {
	_, err := New(nil, testConfig(), discard(), "test")
	require.Error(t, err)
}

func TestNew_WiresResolver(t *testing.T) {
	a, err := New(context.Background(), testConfig(), discard(), "test")
	require.NoError(t, err)
	t.Cleanup(a.Close)

	m, err := a.Resolver().ExtractModel()
	require.NoError(t, err)
	require.Equal(t, "ollama", m.Provider())
	require.Equal(t, "llama3", m.Model())
}

func TestNew_ConstructionErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Vertex.Credentials = "!!not-base64!!"

	t.Run("isolated by default", func(t *testing.T) {
		a, err := New(context.Background(), cfg, discard(), "test")
		require.NoError(t, err)
		t.Cleanup(a.Close)

		_, err = a.Resolver().Resolve("gemini-2.5-pro", "vertex")
		var cerr *providers.ConstructionError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("fatal when strict", func(t *testing.T) {
		strict := *cfg
		strict.StrictProviders = true

		_, err := New(context.Background(), &strict, discard(), "test")
		require.Error(t, err)
		require.Contains(t, err.Error(), "app: init registry")
	})
}

func TestClose_Idempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(), discard(), "test")
	require.NoError(t, err)

	a.Close()
	a.Close()
}

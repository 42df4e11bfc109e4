package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads so host settings cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "CORS_ORIGINS", "PROVIDER_TIMEOUT", "HEALTH_CHECK_INTERVAL", "PROVIDERS_STRICT",
		"DEFAULT_PROVIDER", "OLLAMA_BASE_URL", "MODEL_NAME", "MODEL_EMBEDDING_NAME",
		"EXTRACT_MODEL", "EXTRACT_PROVIDER", "EXTRACT_RETRY_MODEL", "EXTRACT_RETRY_PROVIDER",
		"RERANKER_MODEL", "RERANKER_PROVIDER", "RERANKER_RETRY_MODEL", "RERANKER_RETRY_PROVIDER",
		"SMART_SCRAPE_THINKING_MODEL", "SMART_SCRAPE_THINKING_PROVIDER",
		"SMART_SCRAPE_TOOL_MODEL", "SMART_SCRAPE_TOOL_PROVIDER",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL",
		"GROQ_API_KEY", "GROQ_BASE_URL", "GOOGLE_GENERATIVE_AI_API_KEY", "GOOGLE_BASE_URL",
		"OPENROUTER_API_KEY", "OPENROUTER_BASE_URL", "FIREWORKS_API_KEY", "FIREWORKS_BASE_URL",
		"DEEPINFRA_API_KEY", "DEEPINFRA_BASE_URL",
		"VERTEX_PROJECT", "VERTEX_LOCATION", "VERTEX_BASE_URL", "VERTEX_CREDENTIALS", "VERTEX_KEY_FILE",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, []string{"*"}, cfg.CORSOrigins)
	require.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	require.Equal(t, 60*time.Second, cfg.HealthCheckInterval)
	require.False(t, cfg.StrictProviders)
	require.Equal(t, "openai", cfg.DefaultProvider)
	require.Empty(t, cfg.Overrides.ModelName)
	require.Empty(t, cfg.Overrides.EmbeddingModelName)

	require.Equal(t, TaskDefaults{
		Extract:             ModelRef{Model: "gemini-2.5-pro", Provider: "vertex"},
		ExtractRetry:        ModelRef{Model: "gemini-2.5-pro", Provider: "google"},
		Reranker:            ModelRef{Model: "gemini-2.5-pro", Provider: "vertex"},
		RerankerRetry:       ModelRef{Model: "gemini-2.5-pro", Provider: "google"},
		SmartScrapeThinking: ModelRef{Model: "gemini-2.5-pro", Provider: "vertex"},
		SmartScrapeTool:     ModelRef{Model: "gemini-2.0-flash", Provider: "google"},
	}, cfg.Tasks)

	require.Equal(t, VertexConfig{
		Project:  "firecrawl",
		Location: "global",
		KeyFile:  "./gke-key.json",
	}, cfg.Vertex)
}

func TestLoad_RerankerChainsToExtract(t *testing.T) {
	clearEnv(t)
	t.Setenv("EXTRACT_MODEL", "X")
	t.Setenv("EXTRACT_RETRY_PROVIDER", "groq")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ModelRef{Model: "X", Provider: "vertex"}, cfg.Tasks.Reranker)
	require.Equal(t, ModelRef{Model: "gemini-2.5-pro", Provider: "groq"}, cfg.Tasks.RerankerRetry)
}

func TestLoad_CORSOriginsCommaSeparated(t *testing.T) {
	for raw, want := range map[string][]string{
		"https://a.example,https://b.example":    {"https://a.example", "https://b.example"},
		" https://a.example , https://b.example": {"https://a.example", "https://b.example"},
		"https://a.example https://b.example":    {"https://a.example", "https://b.example"},
		"https://a.example":                      {"https://a.example"},
		"*":                                      {"*"},
		" , ":                                    {"*"},
	} {
		clearEnv(t)
		t.Setenv("CORS_ORIGINS", raw)

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, want, cfg.CORSOrigins, raw)
	}
}

func TestLoad_RerankerOwnValuesWin(t *testing.T) {
	clearEnv(t)
	t.Setenv("EXTRACT_MODEL", "X")
	t.Setenv("RERANKER_MODEL", "Y")
	t.Setenv("RERANKER_PROVIDER", "anthropic")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ModelRef{Model: "Y", Provider: "anthropic"}, cfg.Tasks.Reranker)
}

func TestLoad_EmptyValueFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("EXTRACT_MODEL", "")
	t.Setenv("SMART_SCRAPE_TOOL_PROVIDER", "  ")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultExtractModel, cfg.Tasks.Extract.Model)
	require.Equal(t, DefaultSmartScrapeToolProvider, cfg.Tasks.SmartScrapeTool.Provider)
}

func TestLoad_DefaultProvider(t *testing.T) {
	t.Run("ollama when OLLAMA_BASE_URL is set", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434/api")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "ollama", cfg.DefaultProvider)
		require.Equal(t, "http://localhost:11434/api", cfg.Ollama.BaseURL)
	})

	t.Run("DEFAULT_PROVIDER wins", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")
		t.Setenv("DEFAULT_PROVIDER", "anthropic")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "anthropic", cfg.DefaultProvider)
	})

	t.Run("unknown provider is kept verbatim", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DEFAULT_PROVIDER", "azure")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "azure", cfg.DefaultProvider)
	})
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_NAME", "custom-model")
	t.Setenv("MODEL_EMBEDDING_NAME", "custom-embed")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "custom-model", cfg.Overrides.ModelName)
	require.Equal(t, "custom-embed", cfg.Overrides.EmbeddingModelName)
}

func TestLoad_ProviderSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://proxy/v1")
	t.Setenv("GOOGLE_GENERATIVE_AI_API_KEY", "g-key")
	t.Setenv("VERTEX_PROJECT", "acme")
	t.Setenv("VERTEX_LOCATION", "us-central1")
	t.Setenv("VERTEX_CREDENTIALS", "e30=")
	t.Setenv("PROVIDERS_STRICT", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ProviderConfig{APIKey: "sk-test", BaseURL: "http://proxy/v1"}, cfg.OpenAI)
	require.Equal(t, "g-key", cfg.Google.APIKey)
	require.Equal(t, "acme", cfg.Vertex.Project)
	require.Equal(t, "us-central1", cfg.Vertex.Location)
	require.Equal(t, "e30=", cfg.Vertex.Credentials)
	require.True(t, cfg.StrictProviders)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"port out of range", "PORT", "70000"},
		{"zero timeout", "PROVIDER_TIMEOUT", "0s"},
		{"negative health interval", "HEALTH_CHECK_INTERVAL", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			require.Error(t, err)
			require.Contains(t, err.Error(), "config:")
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env")))
	require.Error(t, loadDotEnv(dir))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RESOLVER_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("RESOLVER_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("RESOLVER_TEST_DOTENV"))

	require.NoError(t, loadDotEnv(path))
	require.Equal(t, "from-file", os.Getenv("RESOLVER_TEST_DOTENV"))
}

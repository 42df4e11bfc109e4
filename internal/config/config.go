// Package config loads and validates all runtime configuration for the
// resolver.
//
// Configuration is read from environment variables (preferred for containers),
// an optional .env file, or a config.yaml file in the working directory.
// Environment variables take precedence over the YAML file.
//
// Naming convention: env vars use UPPER_SNAKE_CASE; the YAML file uses the
// same names in lower_snake_case. For example OPENAI_API_KEY becomes
// openai_api_key in YAML.
//
// Every variable is optional. An empty value is treated the same as an unset
// one, so EXTRACT_MODEL="" falls back to the built-in default.
//
// Provider identifiers in the task table are kept as raw strings and are not
// checked here; an unknown identifier fails when a model is resolved for it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Built-in task defaults.
const (
	DefaultExtractModel         = "gemini-2.5-pro"
	DefaultExtractProvider      = "vertex"
	DefaultExtractRetryModel    = "gemini-2.5-pro"
	DefaultExtractRetryProvider = "google"

	DefaultSmartScrapeThinkingModel    = "gemini-2.5-pro"
	DefaultSmartScrapeThinkingProvider = "vertex"
	DefaultSmartScrapeToolModel        = "gemini-2.0-flash"
	DefaultSmartScrapeToolProvider     = "google"
)

// Config is the top-level configuration container. It is built once by Load
// and never mutated afterwards.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	// Default: info.
	LogLevel string

	// CORSOrigins is the list of allowed CORS origins. Default: ["*"].
	CORSOrigins []string

	// ProviderTimeout is the per-request HTTP timeout applied to every
	// provider client. Default: 30s.
	ProviderTimeout time.Duration

	// HealthCheckInterval is how often provider health is probed by the
	// server. 0 disables probing. Default: 60s.
	HealthCheckInterval time.Duration

	// StrictProviders makes startup fail when any provider client cannot be
	// constructed. Default: false.
	StrictProviders bool

	// DefaultProvider is the provider used when a caller does not name one:
	// DEFAULT_PROVIDER, else "ollama" when OLLAMA_BASE_URL is set, else "openai".
	DefaultProvider string

	Overrides Overrides
	Tasks     TaskDefaults

	OpenAI     ProviderConfig
	Ollama     OllamaConfig
	Anthropic  ProviderConfig
	Groq       ProviderConfig
	Google     ProviderConfig
	OpenRouter ProviderConfig
	Fireworks  ProviderConfig
	DeepInfra  ProviderConfig
	Vertex     VertexConfig
}

// Overrides force a model name for every resolution of the given kind.
type Overrides struct {
	// ModelName replaces the requested name on every chat resolution (MODEL_NAME).
	ModelName string
	// EmbeddingModelName replaces it on every embedding resolution (MODEL_EMBEDDING_NAME).
	EmbeddingModelName string
}

// ModelRef is a (model name, provider identifier) pair.
type ModelRef struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

func (r ModelRef) String() string { return r.Provider + "/" + r.Model }

// TaskDefaults holds the default model for each task. Reranker and
// RerankerRetry chain to Extract and ExtractRetry when unset.
type TaskDefaults struct {
	Extract             ModelRef
	ExtractRetry        ModelRef
	Reranker            ModelRef
	RerankerRetry       ModelRef
	SmartScrapeThinking ModelRef
	SmartScrapeTool     ModelRef
}

// ProviderConfig holds configuration for a single API-key provider.
type ProviderConfig struct {
	// APIKey is the provider API key. An empty key leaves the provider
	// registered but unconfigured; resolving a model on it fails.
	APIKey string

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string
}

// OllamaConfig holds the Ollama server address. Ollama needs no key.
type OllamaConfig struct {
	BaseURL string
}

// VertexConfig holds Google Vertex AI configuration.
type VertexConfig struct {
	// Project is the Google Cloud project ID. Default: "firecrawl".
	Project string
	// Location is the Vertex AI region. Default: "global".
	Location string
	// BaseURL overrides the templated publisher endpoint.
	BaseURL string
	// Credentials is base64-encoded service-account JSON. Takes precedence
	// over KeyFile.
	Credentials string
	// KeyFile is the service-account key path. Default: "./gke-key.json".
	KeyFile string
}

// Load reads configuration from the environment, a .env file and
// config.yaml, in decreasing order of precedence.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──────────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", []string{"*"})
	v.SetDefault("PROVIDER_TIMEOUT", "30s")
	v.SetDefault("HEALTH_CHECK_INTERVAL", "60s")
	v.SetDefault("PROVIDERS_STRICT", false)

	str := func(key string) string { return strings.TrimSpace(v.GetString(key)) }
	or := func(key, fallback string) string {
		if s := str(key); s != "" {
			return s
		}
		return fallback
	}

	// ── Task table ────────────────────────────────────────────────────────────
	extract := ModelRef{
		Model:    or("EXTRACT_MODEL", DefaultExtractModel),
		Provider: or("EXTRACT_PROVIDER", DefaultExtractProvider),
	}
	extractRetry := ModelRef{
		Model:    or("EXTRACT_RETRY_MODEL", DefaultExtractRetryModel),
		Provider: or("EXTRACT_RETRY_PROVIDER", DefaultExtractRetryProvider),
	}

	tasks := TaskDefaults{
		Extract:      extract,
		ExtractRetry: extractRetry,
		Reranker: ModelRef{
			Model:    or("RERANKER_MODEL", extract.Model),
			Provider: or("RERANKER_PROVIDER", extract.Provider),
		},
		RerankerRetry: ModelRef{
			Model:    or("RERANKER_RETRY_MODEL", extractRetry.Model),
			Provider: or("RERANKER_RETRY_PROVIDER", extractRetry.Provider),
		},
		SmartScrapeThinking: ModelRef{
			Model:    or("SMART_SCRAPE_THINKING_MODEL", DefaultSmartScrapeThinkingModel),
			Provider: or("SMART_SCRAPE_THINKING_PROVIDER", DefaultSmartScrapeThinkingProvider),
		},
		SmartScrapeTool: ModelRef{
			Model:    or("SMART_SCRAPE_TOOL_MODEL", DefaultSmartScrapeToolModel),
			Provider: or("SMART_SCRAPE_TOOL_PROVIDER", DefaultSmartScrapeToolProvider),
		},
	}

	defaultProvider := "openai"
	if str("OLLAMA_BASE_URL") != "" {
		defaultProvider = "ollama"
	}

	// ── Build config ──────────────────────────────────────────────────────────
	cfg := &Config{
		Port:                v.GetInt("PORT"),
		LogLevel:            strings.ToLower(str("LOG_LEVEL")),
		CORSOrigins:         splitList(v.GetStringSlice("CORS_ORIGINS"), "*"),
		ProviderTimeout:     v.GetDuration("PROVIDER_TIMEOUT"),
		HealthCheckInterval: v.GetDuration("HEALTH_CHECK_INTERVAL"),
		StrictProviders:     v.GetBool("PROVIDERS_STRICT"),

		DefaultProvider: or("DEFAULT_PROVIDER", defaultProvider),

		Overrides: Overrides{
			ModelName:          str("MODEL_NAME"),
			EmbeddingModelName: str("MODEL_EMBEDDING_NAME"),
		},
		Tasks: tasks,

		OpenAI:     ProviderConfig{APIKey: str("OPENAI_API_KEY"), BaseURL: str("OPENAI_BASE_URL")},
		Ollama:     OllamaConfig{BaseURL: str("OLLAMA_BASE_URL")},
		Anthropic:  ProviderConfig{APIKey: str("ANTHROPIC_API_KEY"), BaseURL: str("ANTHROPIC_BASE_URL")},
		Groq:       ProviderConfig{APIKey: str("GROQ_API_KEY"), BaseURL: str("GROQ_BASE_URL")},
		Google:     ProviderConfig{APIKey: str("GOOGLE_GENERATIVE_AI_API_KEY"), BaseURL: str("GOOGLE_BASE_URL")},
		OpenRouter: ProviderConfig{APIKey: str("OPENROUTER_API_KEY"), BaseURL: str("OPENROUTER_BASE_URL")},
		Fireworks:  ProviderConfig{APIKey: str("FIREWORKS_API_KEY"), BaseURL: str("FIREWORKS_BASE_URL")},
		DeepInfra:  ProviderConfig{APIKey: str("DEEPINFRA_API_KEY"), BaseURL: str("DEEPINFRA_BASE_URL")},

		Vertex: VertexConfig{
			Project:     or("VERTEX_PROJECT", "firecrawl"),
			Location:    or("VERTEX_LOCATION", "global"),
			BaseURL:     str("VERTEX_BASE_URL"),
			Credentials: str("VERTEX_CREDENTIALS"),
			KeyFile:     or("VERTEX_KEY_FILE", "./gke-key.json"),
		},
	}

	// ── Validation ────────────────────────────────────────────────────────────
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks the ambient settings only. Provider identifiers and model
// names are not checked.
func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("config: PROVIDER_TIMEOUT must be a positive duration")
	}
	if c.HealthCheckInterval < 0 {
		return errors.New("config: HEALTH_CHECK_INTERVAL must not be negative")
	}

	return nil
}

// loadDotEnv populates process env vars from a .env file when present.
// Variables already set in the environment win.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

// splitList flattens comma- or space-separated entries, dropping blanks.
// An empty result falls back to def.
func splitList(raw []string, def ...string) []string {
	var out []string
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
